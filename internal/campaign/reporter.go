package campaign

import "time"

// Reporter receives progress events from a run. Implementations render them
// for a human; the Runner never prints.
type Reporter interface {
	Start(plan *Plan, opts Options)
	Attempt(index, total int, addr string)
	Sent(addr string)
	Failed(addr string, err error)
	LedgerFailed(addr string, err error)
	Waiting(d time.Duration)
	Finish(summary Summary)
}

// NopReporter discards every event.
type NopReporter struct{}

func (NopReporter) Start(*Plan, Options)       {}
func (NopReporter) Attempt(int, int, string)   {}
func (NopReporter) Sent(string)                {}
func (NopReporter) Failed(string, error)       {}
func (NopReporter) LedgerFailed(string, error) {}
func (NopReporter) Waiting(time.Duration)      {}
func (NopReporter) Finish(Summary)             {}
