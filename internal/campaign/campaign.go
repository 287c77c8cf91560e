// Package campaign runs a bulk send: it partitions recipients against the
// ledger, then renders, assembles and delivers one message per pending
// recipient, strictly in source order.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shineum/bulk-mailer/internal/compose"
	"github.com/shineum/bulk-mailer/internal/fault"
	"github.com/shineum/bulk-mailer/internal/ledger"
	"github.com/shineum/bulk-mailer/internal/provider"
	"github.com/shineum/bulk-mailer/internal/recipient"
	"github.com/shineum/bulk-mailer/internal/render"
)

// RecipientLoader returns every recipient row in source order.
type RecipientLoader func() ([]recipient.Record, error)

// Renderer produces the per-recipient body and subject.
type Renderer interface {
	Render(vars render.Vars) (string, error)
	Subject(vars render.Vars) (string, error)
}

// Assembler builds the message for one recipient.
type Assembler interface {
	Assemble(p compose.Params) compose.Result
}

// Deps are the collaborators a Runner drives.
type Deps struct {
	Recipients RecipientLoader
	Ledger     ledger.Ledger
	Template   Renderer
	Assembler  Assembler
	Provider   provider.Provider
	Reporter   Reporter

	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Options are the per-run settings resolved before the run starts.
type Options struct {
	From               string
	FromName           string
	Delay              time.Duration
	IncludeAttachments bool
}

// Plan is the partition of the recipient list against the ledger.
type Plan struct {
	Total       int
	Pending     []recipient.Record
	AlreadySent []recipient.Record
}

// Failure is a recipient whose delivery did not complete in this run.
type Failure struct {
	Recipient string
	Err       error
}

// Summary carries the totals of a run.
type Summary struct {
	RunID        string
	Attempted    int
	Succeeded    int
	AlreadySent  int
	Failures     []Failure
	LedgerErrors []error
	AssetSkips   int
	Interrupted  bool
}

// Runner executes campaigns.
type Runner struct {
	deps Deps
}

// New returns a Runner over deps. A nil Reporter discards progress events.
func New(deps Deps) *Runner {
	if deps.Reporter == nil {
		deps.Reporter = NopReporter{}
	}
	if deps.Sleep == nil {
		deps.Sleep = sleepWithContext
	}
	return &Runner{deps: deps}
}

// Plan loads the recipients and the ledger and partitions the recipients into
// pending and already sent, each in source order.
func (r *Runner) Plan(ctx context.Context) (*Plan, error) {
	records, err := r.deps.Recipients()
	if err != nil {
		return nil, err
	}

	sent, err := r.deps.Ledger.LoadSent(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load sent log: %w", err)
	}

	plan := &Plan{Total: len(records)}
	for _, rec := range records {
		if addr := rec.Email(); addr != "" && sent.Has(addr) {
			plan.AlreadySent = append(plan.AlreadySent, rec)
			continue
		}
		plan.Pending = append(plan.Pending, rec)
	}
	return plan, nil
}

// Run delivers every pending recipient of plan. Per-recipient failures are
// recorded in the Summary; the returned error is non-nil only when the run
// was cut short by ctx or a template could not be executed.
func (r *Runner) Run(ctx context.Context, plan *Plan, opts Options) (Summary, error) {
	summary := Summary{
		RunID:       uuid.NewString(),
		AlreadySent: len(plan.AlreadySent),
	}
	log := slog.With("run_id", summary.RunID, "provider", r.deps.Provider.Name())

	r.deps.Reporter.Start(plan, opts)
	log.Info("campaign started",
		"total", plan.Total,
		"pending", len(plan.Pending),
		"already_sent", len(plan.AlreadySent),
		"delay", opts.Delay,
		"attachments", opts.IncludeAttachments,
	)

	// delivered also covers sends the ledger failed to record.
	delivered := make(ledger.Set)

	for i, rec := range plan.Pending {
		addr := rec.Email()

		// Duplicate rows are delivered once.
		if addr != "" && (delivered.Has(addr) || r.deps.Ledger.IsSent(addr)) {
			summary.AlreadySent++
			log.Info("skipping recipient already sent in this run", "recipient", addr)
			continue
		}

		if summary.Attempted > 0 && opts.Delay > 0 {
			r.deps.Reporter.Waiting(opts.Delay)
			if err := r.deps.Sleep(ctx, opts.Delay); err != nil {
				return r.interrupted(log, summary, err)
			}
		}
		if err := ctx.Err(); err != nil {
			return r.interrupted(log, summary, err)
		}

		summary.Attempted++
		r.deps.Reporter.Attempt(i+1, len(plan.Pending), addr)

		skips, err := r.deliver(ctx, rec, opts)
		summary.AssetSkips += skips
		if err != nil {
			if fault.IsFatal(err) {
				log.Error("campaign aborted", "recipient", addr, "error", err)
				r.deps.Reporter.Finish(summary)
				return summary, err
			}
			summary.Failures = append(summary.Failures, Failure{Recipient: addr, Err: err})
			log.Warn("delivery failed", "recipient", addr, "error", err)
			r.deps.Reporter.Failed(addr, err)
			continue
		}

		summary.Succeeded++
		delivered.Add(addr)
		r.deps.Reporter.Sent(addr)

		// The relay has accepted the message; record it even if the run is
		// being cancelled.
		if err := r.deps.Ledger.MarkSent(context.WithoutCancel(ctx), addr); err != nil {
			summary.LedgerErrors = append(summary.LedgerErrors, err)
			log.Warn("failed to record sent recipient; it may be emailed again on the next run",
				"recipient", addr, "error", err)
			r.deps.Reporter.LedgerFailed(addr, err)
		}
	}

	log.Info("campaign finished",
		"attempted", summary.Attempted,
		"succeeded", summary.Succeeded,
		"failed", len(summary.Failures),
		"ledger_errors", len(summary.LedgerErrors),
	)
	r.deps.Reporter.Finish(summary)
	return summary, nil
}

// deliver renders, assembles and sends the message for rec. It returns the
// number of skipped assets.
func (r *Runner) deliver(ctx context.Context, rec recipient.Record, opts Options) (int, error) {
	addr := rec.Email()
	vars := render.Bind(rec)

	body, err := r.deps.Template.Render(vars)
	if err != nil {
		return 0, err
	}
	subject, err := r.deps.Template.Subject(vars)
	if err != nil {
		return 0, err
	}

	res := r.deps.Assembler.Assemble(compose.Params{
		From:               opts.From,
		FromName:           opts.FromName,
		To:                 addr,
		Subject:            subject,
		HTMLBody:           body,
		IncludeAttachments: opts.IncludeAttachments,
	})

	if err := r.deps.Provider.Send(ctx, res.Message); err != nil {
		return len(res.Skipped), &fault.TransportError{
			Recipient: addr,
			Provider:  r.deps.Provider.Name(),
			Err:       err,
		}
	}
	return len(res.Skipped), nil
}

func (r *Runner) interrupted(log *slog.Logger, summary Summary, cause error) (Summary, error) {
	summary.Interrupted = true
	log.Warn("campaign interrupted",
		"attempted", summary.Attempted,
		"succeeded", summary.Succeeded,
		"error", cause,
	)
	r.deps.Reporter.Finish(summary)
	return summary, fmt.Errorf("campaign interrupted: %w", cause)
}

// Interrupted reports whether err came from a cancelled run.
func Interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// sleepWithContext waits for the specified duration or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
