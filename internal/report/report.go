// Package report prints campaign progress and summaries for a human at a
// terminal.
package report

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/shineum/bulk-mailer/internal/campaign"
	"github.com/shineum/bulk-mailer/internal/fault"
)

const rule = "--------------------------------------------------"

// Console writes progress lines to w.
type Console struct {
	w io.Writer

	ok   *color.Color
	bad  *color.Color
	warn *color.Color
	dim  *color.Color
	bold *color.Color
}

// New returns a Console writing to w. Colour is dropped automatically when
// stdout is not a terminal.
func New(w io.Writer) *Console {
	return &Console{
		w:    w,
		ok:   color.New(color.FgGreen),
		bad:  color.New(color.FgRed),
		warn: color.New(color.FgYellow),
		dim:  color.New(color.Faint),
		bold: color.New(color.Bold),
	}
}

// Plain disables colour output.
func (c *Console) Plain() *Console {
	for _, col := range []*color.Color{c.ok, c.bad, c.warn, c.dim, c.bold} {
		col.DisableColor()
	}
	return c
}

// Start prints the campaign header.
func (c *Console) Start(plan *campaign.Plan, opts campaign.Options) {
	c.bold.Fprintln(c.w, "Starting bulk email campaign...")
	fmt.Fprintf(c.w, "Total recipients: %d\n", plan.Total)
	if n := len(plan.AlreadySent); n > 0 {
		fmt.Fprintf(c.w, "Already sent (skipped): %d\n", n)
	}
	fmt.Fprintf(c.w, "Pending: %d\n", len(plan.Pending))
	fmt.Fprintf(c.w, "Delay between emails: %s\n", opts.Delay)
	fmt.Fprintf(c.w, "Attachments: %s\n", yesNo(opts.IncludeAttachments))
	fmt.Fprintln(c.w, rule)
	if len(plan.Pending) == 0 {
		c.ok.Fprintln(c.w, "Nothing to do: every recipient has already been emailed.")
	}
}

// Attempt prints the recipient about to be processed.
func (c *Console) Attempt(index, total int, addr string) {
	if addr == "" {
		addr = "(no email address)"
	}
	fmt.Fprintf(c.w, "Processing %d/%d: %s\n", index, total, addr)
}

// Sent prints a delivery confirmation.
func (c *Console) Sent(addr string) {
	c.ok.Fprintf(c.w, "✓ Email sent successfully to %s\n", addr)
}

// Failed prints a delivery failure.
func (c *Console) Failed(addr string, err error) {
	c.bad.Fprintf(c.w, "✗ Failed to send email to %s: %v\n", addr, cause(err))
}

// LedgerFailed warns that a delivered recipient was not recorded.
func (c *Console) LedgerFailed(addr string, err error) {
	c.warn.Fprintf(c.w, "! Sent to %s but could not record it (%v); it may be emailed again next run\n", addr, cause(err))
}

// Waiting prints the pause between sends.
func (c *Console) Waiting(d time.Duration) {
	c.dim.Fprintf(c.w, "Waiting %s...\n", d)
}

// Finish prints the campaign summary.
func (c *Console) Finish(s campaign.Summary) {
	fmt.Fprintln(c.w, rule)
	if s.Interrupted {
		c.warn.Fprintln(c.w, "Campaign interrupted; re-run to resume.")
	} else {
		c.bold.Fprintln(c.w, "Campaign completed!")
	}
	fmt.Fprintf(c.w, "Successful sends: %d/%d\n", s.Succeeded, s.Attempted)
	if s.AlreadySent > 0 {
		fmt.Fprintf(c.w, "Skipped (already sent): %d\n", s.AlreadySent)
	}
	if s.AssetSkips > 0 {
		c.warn.Fprintf(c.w, "Skipped asset files: %d (see log)\n", s.AssetSkips)
	}
	if n := len(s.LedgerErrors); n > 0 {
		c.warn.Fprintf(c.w, "Unrecorded sends: %d (may be emailed again next run)\n", n)
	}

	switch {
	case s.Attempted == 0:
	case len(s.Failures) == 0 && s.Succeeded == s.Attempted:
		c.ok.Fprintln(c.w, "🎉 All emails sent successfully!")
	default:
		c.warn.Fprintf(c.w, "⚠️  %d emails failed to send\n", s.Attempted-s.Succeeded)
		for _, f := range s.Failures {
			fmt.Fprintf(c.w, "  - %s: %v\n", orNone(f.Recipient), cause(f.Err))
		}
	}
}

// Fatal prints err with remediation hints matching its kind.
func (c *Console) Fatal(err error) {
	c.bad.Fprintf(c.w, "❌ Error: %v\n", err)

	hints := Hints(err)
	if len(hints) == 0 {
		return
	}
	fmt.Fprintln(c.w, "\nTroubleshooting tips:")
	for i, h := range hints {
		fmt.Fprintf(c.w, "%d. %s\n", i+1, h)
	}
}

// Hints returns remediation steps for a fatal error.
func Hints(err error) []string {
	var (
		cfgErr  *fault.ConfigurationError
		dataErr *fault.DataSourceError
		tmplErr *fault.TemplateError
	)
	switch {
	case errors.As(err, &cfgErr):
		return []string{
			"Check your .env file has GMAIL_EMAIL and GMAIL_APP_PASSWORD",
			"Ensure you have 2FA enabled and are using an App Password",
			"Run 'bulk-mailer check' to verify the setup",
		}
	case errors.As(err, &dataErr):
		return []string{
			fmt.Sprintf("Verify the %s file exists: %s", dataErr.Kind, dataErr.Path),
			"Verify all required files exist (template.html, emails.csv)",
			"Recipient files need a header row with an 'email' column",
		}
	case errors.As(err, &tmplErr):
		return []string{
			"Placeholders use {{.recipient_name}} syntax",
			"Check that every {{ has a matching }}",
			"Frontmatter must be valid YAML between two '---' lines",
		}
	}
	return nil
}

// CheckResult is the outcome of one setup check.
type CheckResult struct {
	Name   string
	OK     bool
	Detail string
}

// Checks prints setup checks and a pass count. It returns the number of
// failed checks.
func (c *Console) Checks(results []CheckResult) int {
	c.bold.Fprintln(c.w, "Bulk mailer setup check")
	fmt.Fprintln(c.w, strings.Repeat("=", 40))

	failed := 0
	for _, r := range results {
		if r.OK {
			c.ok.Fprintf(c.w, "✓ %s", r.Name)
		} else {
			failed++
			c.bad.Fprintf(c.w, "✗ %s", r.Name)
		}
		if r.Detail != "" {
			fmt.Fprintf(c.w, ": %s", r.Detail)
		}
		fmt.Fprintln(c.w)
	}

	fmt.Fprintln(c.w, strings.Repeat("=", 40))
	fmt.Fprintf(c.w, "Overall: %d/%d checks passed\n", len(results)-failed, len(results))
	if failed == 0 {
		c.ok.Fprintln(c.w, "🎉 All checks passed! Run 'bulk-mailer' to start sending.")
	} else {
		c.warn.Fprintln(c.w, "⚠️  Some checks failed. Please fix the errors above.")
	}
	return failed
}

// Status prints the plan without sending anything.
func (c *Console) Status(plan *campaign.Plan) {
	fmt.Fprintf(c.w, "Total recipients: %d\n", plan.Total)
	fmt.Fprintf(c.w, "Already sent: %d\n", len(plan.AlreadySent))
	fmt.Fprintf(c.w, "Pending: %d\n", len(plan.Pending))
	for _, rec := range plan.Pending {
		fmt.Fprintf(c.w, "  - %s\n", orNone(rec.Email()))
	}
}

// cause strips the campaign wrapper so the line shows the relay's message.
func cause(err error) error {
	var tErr *fault.TransportError
	if errors.As(err, &tErr) {
		return tErr.Err
	}
	var lErr *fault.LedgerWriteError
	if errors.As(err, &lErr) {
		return lErr.Err
	}
	return err
}

func orNone(addr string) string {
	if addr == "" {
		return "(no email address)"
	}
	return addr
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
