package campaign

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shineum/bulk-mailer/internal/compose"
	"github.com/shineum/bulk-mailer/internal/email"
	"github.com/shineum/bulk-mailer/internal/fault"
	"github.com/shineum/bulk-mailer/internal/ledger"
	"github.com/shineum/bulk-mailer/internal/recipient"
	"github.com/shineum/bulk-mailer/internal/render"
)

// memLedger is an in-memory Ledger with an optional write failure.
type memLedger struct {
	mu       sync.Mutex
	sent     ledger.Set
	marked   []string
	failMark bool
}

func newMemLedger(addrs ...string) *memLedger {
	l := &memLedger{sent: make(ledger.Set)}
	for _, a := range addrs {
		l.sent.Add(a)
	}
	return l
}

func (l *memLedger) LoadSent(context.Context) (ledger.Set, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(ledger.Set, len(l.sent))
	for k := range l.sent {
		out[k] = struct{}{}
	}
	return out, nil
}

func (l *memLedger) IsSent(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sent.Has(addr)
}

func (l *memLedger) MarkSent(_ context.Context, addr string) error {
	if l.failMark {
		return &fault.LedgerWriteError{Recipient: addr, Err: errors.New("disk full")}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent.Add(addr)
	l.marked = append(l.marked, addr)
	return nil
}

func (l *memLedger) Close() error { return nil }

// mockProvider records messages and fails for the listed recipients.
type mockProvider struct {
	mu     sync.Mutex
	sent   []*email.Email
	failOn map[string]bool
	onSend func()
}

func (p *mockProvider) Send(_ context.Context, msg *email.Email) error {
	if p.onSend != nil {
		p.onSend()
	}
	to := msg.Recipients()
	if len(to) == 0 {
		return email.ErrNoRecipient
	}
	if p.failOn[to[0]] {
		return errors.New("535 authentication failed")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg)
	return nil
}

func (p *mockProvider) Name() string { return "mock" }

func rows(addrs ...string) RecipientLoader {
	return func() ([]recipient.Record, error) {
		out := make([]recipient.Record, 0, len(addrs))
		for _, a := range addrs {
			out = append(out, recipient.Record{"email": a, "name": strings.ToUpper(a[:1])})
		}
		return out, nil
	}
}

type sleepCounter struct {
	calls []time.Duration
}

func (s *sleepCounter) sleep(_ context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return nil
}

func newRunner(t *testing.T, loader RecipientLoader, l ledger.Ledger, p *mockProvider, sleeper *sleepCounter) *Runner {
	t.Helper()

	tmpl, err := render.Parse("template.html", []byte("<p>Hello {{.recipient_name}}</p>"))
	if err != nil {
		t.Fatalf("failed to parse template: %v", err)
	}
	dir := t.TempDir()
	return New(Deps{
		Recipients: loader,
		Ledger:     l,
		Template:   tmpl,
		Assembler:  compose.New(filepath.Join(dir, "assets"), filepath.Join(dir, "attachments")),
		Provider:   p,
		Sleep:      sleeper.sleep,
	})
}

func runAll(t *testing.T, r *Runner, opts Options) Summary {
	t.Helper()

	plan, err := r.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan: unexpected error: %v", err)
	}
	summary, err := r.Run(context.Background(), plan, opts)
	if err != nil {
		t.Fatalf("Run: unexpected error: %v", err)
	}
	return summary
}

var testOpts = Options{From: "events@example.com", FromName: "Events", Delay: 2 * time.Second}

func TestRun_AllSucceedWithEmptyLedger(t *testing.T) {
	t.Parallel()

	l := newMemLedger()
	p := &mockProvider{}
	sleeper := &sleepCounter{}
	r := newRunner(t, rows("a@x.com", "b@x.com"), l, p, sleeper)

	summary := runAll(t, r, testOpts)

	if summary.Succeeded != 2 || summary.Attempted != 2 {
		t.Errorf("result: got %d/%d, want 2/2", summary.Succeeded, summary.Attempted)
	}
	if got := strings.Join(l.marked, ","); got != "a@x.com,b@x.com" {
		t.Errorf("ledger: got %q, want %q", got, "a@x.com,b@x.com")
	}
	if len(p.sent) != 2 {
		t.Fatalf("sent: got %d, want 2", len(p.sent))
	}
	if p.sent[0].Subject != "Welcome to Our Company, A!" {
		t.Errorf("subject: got %q, want %q", p.sent[0].Subject, "Welcome to Our Company, A!")
	}
	if !strings.Contains(p.sent[1].HTMLBody, "Hello B") {
		t.Errorf("body: got %q, want it to greet B", p.sent[1].HTMLBody)
	}
	if p.sent[0].From != "events@example.com" || p.sent[0].FromName != "Events" {
		t.Errorf("from: got %q <%s>", p.sent[0].FromName, p.sent[0].From)
	}
}

func TestRun_SkipsAlreadySent(t *testing.T) {
	t.Parallel()

	l := newMemLedger("a@x.com")
	p := &mockProvider{}
	r := newRunner(t, rows("a@x.com", "b@x.com"), l, p, &sleepCounter{})

	plan, err := r.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan: unexpected error: %v", err)
	}
	if len(plan.Pending) != 1 || plan.Pending[0].Email() != "b@x.com" {
		t.Fatalf("pending: got %v, want [b@x.com]", plan.Pending)
	}
	if len(plan.AlreadySent) != 1 {
		t.Errorf("already sent: got %d, want 1", len(plan.AlreadySent))
	}

	summary, err := r.Run(context.Background(), plan, testOpts)
	if err != nil {
		t.Fatalf("Run: unexpected error: %v", err)
	}
	if summary.Succeeded != 1 || summary.Attempted != 1 {
		t.Errorf("result: got %d/%d, want 1/1", summary.Succeeded, summary.Attempted)
	}
	if len(p.sent) != 1 || p.sent[0].To[0] != "b@x.com" {
		t.Errorf("sent: got %d messages, want only b@x.com", len(p.sent))
	}
}

func TestRun_SecondRunIsNoOp(t *testing.T) {
	t.Parallel()

	l := newMemLedger()
	p := &mockProvider{}
	sleeper := &sleepCounter{}
	r := newRunner(t, rows("a@x.com", "b@x.com"), l, p, sleeper)

	runAll(t, r, testOpts)
	second := runAll(t, r, testOpts)

	if second.Attempted != 0 || second.Succeeded != 0 {
		t.Errorf("second run: got %d/%d, want 0/0", second.Succeeded, second.Attempted)
	}
	if second.AlreadySent != 2 {
		t.Errorf("second run already sent: got %d, want 2", second.AlreadySent)
	}
	if len(p.sent) != 2 {
		t.Errorf("sent: got %d, want 2 across both runs", len(p.sent))
	}
}

func TestRun_FailureContinuesAndStaysPending(t *testing.T) {
	t.Parallel()

	l := newMemLedger()
	p := &mockProvider{failOn: map[string]bool{"a@x.com": true}}
	r := newRunner(t, rows("a@x.com", "b@x.com"), l, p, &sleepCounter{})

	summary := runAll(t, r, testOpts)

	if summary.Succeeded != 1 || summary.Attempted != 2 {
		t.Errorf("result: got %d/%d, want 1/2", summary.Succeeded, summary.Attempted)
	}
	if len(summary.Failures) != 1 {
		t.Fatalf("failures: got %d, want 1", len(summary.Failures))
	}
	f := summary.Failures[0]
	if f.Recipient != "a@x.com" {
		t.Errorf("failure recipient: got %q, want %q", f.Recipient, "a@x.com")
	}
	var tErr *fault.TransportError
	if !errors.As(f.Err, &tErr) || tErr.Provider != "mock" {
		t.Errorf("failure cause: got %v, want *fault.TransportError from mock", f.Err)
	}
	if l.IsSent("a@x.com") {
		t.Error("failed recipient must not be recorded as sent")
	}
	if !l.IsSent("b@x.com") {
		t.Error("successful recipient must be recorded as sent")
	}
}

func TestRun_LedgerFailureDoesNotUndoSend(t *testing.T) {
	t.Parallel()

	l := newMemLedger()
	l.failMark = true
	p := &mockProvider{}
	r := newRunner(t, rows("a@x.com"), l, p, &sleepCounter{})

	summary := runAll(t, r, testOpts)

	if summary.Succeeded != 1 {
		t.Errorf("succeeded: got %d, want 1", summary.Succeeded)
	}
	if len(summary.LedgerErrors) != 1 {
		t.Errorf("ledger errors: got %d, want 1", len(summary.LedgerErrors))
	}
	if len(summary.Failures) != 0 {
		t.Errorf("failures: got %d, want 0", len(summary.Failures))
	}

	// The unrecorded recipient is pending again on the next run.
	l.failMark = false
	plan, err := r.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan: unexpected error: %v", err)
	}
	if len(plan.Pending) != 1 {
		t.Errorf("pending after ledger failure: got %d, want 1", len(plan.Pending))
	}
}

func TestRun_MissingEmailDoesNotAbort(t *testing.T) {
	t.Parallel()

	loader := func() ([]recipient.Record, error) {
		return []recipient.Record{
			{"name": "No Address"},
			{"email": "b@x.com", "name": "Bob"},
		}, nil
	}
	l := newMemLedger()
	p := &mockProvider{}
	r := newRunner(t, loader, l, p, &sleepCounter{})

	summary := runAll(t, r, testOpts)

	if summary.Succeeded != 1 || summary.Attempted != 2 {
		t.Errorf("result: got %d/%d, want 1/2", summary.Succeeded, summary.Attempted)
	}
	if len(summary.Failures) != 1 || !errors.Is(summary.Failures[0].Err, email.ErrNoRecipient) {
		t.Errorf("failures: got %v, want one ErrNoRecipient", summary.Failures)
	}
}

func TestRun_DelayOnlyBetweenAttempts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		recipients []string
		sent       []string
		delay      time.Duration
		wantSleeps int
	}{
		{name: "three pending", recipients: []string{"a@x.com", "b@x.com", "c@x.com"}, delay: time.Second, wantSleeps: 2},
		{name: "single pending", recipients: []string{"a@x.com"}, delay: time.Second, wantSleeps: 0},
		{name: "zero delay", recipients: []string{"a@x.com", "b@x.com"}, delay: 0, wantSleeps: 0},
		{name: "already sent skipped", recipients: []string{"a@x.com", "b@x.com", "c@x.com"}, sent: []string{"b@x.com"}, delay: time.Second, wantSleeps: 1},
		{name: "duplicate row", recipients: []string{"a@x.com", "A@x.com "}, delay: time.Second, wantSleeps: 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sleeper := &sleepCounter{}
			r := newRunner(t, rows(tt.recipients...), newMemLedger(tt.sent...), &mockProvider{}, sleeper)
			runAll(t, r, Options{From: "events@example.com", Delay: tt.delay})

			if len(sleeper.calls) != tt.wantSleeps {
				t.Errorf("sleeps: got %d, want %d", len(sleeper.calls), tt.wantSleeps)
			}
			for _, d := range sleeper.calls {
				if d != tt.delay {
					t.Errorf("sleep duration: got %s, want %s", d, tt.delay)
				}
			}
		})
	}
}

func TestRun_CancelStopsBeforeNextRecipient(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := newMemLedger()
	p := &mockProvider{}
	p.onSend = cancel
	r := newRunner(t, rows("a@x.com", "b@x.com", "c@x.com"), l, p, &sleepCounter{})

	plan, err := r.Plan(ctx)
	if err != nil {
		t.Fatalf("Plan: unexpected error: %v", err)
	}
	summary, err := r.Run(ctx, plan, Options{From: "events@example.com"})
	if !Interrupted(err) {
		t.Fatalf("error: got %v, want context cancellation", err)
	}
	if !summary.Interrupted {
		t.Error("summary should be marked interrupted")
	}
	if summary.Attempted != 1 || summary.Succeeded != 1 {
		t.Errorf("result: got %d/%d, want 1/1", summary.Succeeded, summary.Attempted)
	}
	if got := strings.Join(l.marked, ","); got != "a@x.com" {
		t.Errorf("ledger: got %q, want %q", got, "a@x.com")
	}
}

func TestRun_CancelDuringSendStillRecordsDelivery(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "sent.db")
	l, err := ledger.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer l.Close()

	// The relay accepts the message while the run is being cancelled.
	p := &mockProvider{onSend: cancel}
	r := newRunner(t, rows("a@x.com", "b@x.com"), l, p, &sleepCounter{})

	plan, err := r.Plan(ctx)
	if err != nil {
		t.Fatalf("Plan: unexpected error: %v", err)
	}
	summary, err := r.Run(ctx, plan, Options{From: "events@example.com"})
	if !Interrupted(err) {
		t.Fatalf("error: got %v, want context cancellation", err)
	}
	if summary.Succeeded != 1 {
		t.Errorf("succeeded: got %d, want 1", summary.Succeeded)
	}
	if len(summary.LedgerErrors) != 0 {
		t.Errorf("ledger errors: got %v, want none", summary.LedgerErrors)
	}

	reopened, err := ledger.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer reopened.Close()
	sent, err := reopened.LoadSent(context.Background())
	if err != nil {
		t.Fatalf("LoadSent: %v", err)
	}
	if !sent.Has("a@x.com") || sent.Has("b@x.com") {
		t.Errorf("persisted: got %v, want only a@x.com", sent)
	}
}

func TestRun_DuplicateRowAfterLedgerFailureSentOnce(t *testing.T) {
	t.Parallel()

	l := newMemLedger()
	l.failMark = true
	p := &mockProvider{}
	r := newRunner(t, rows("a@x.com", "b@x.com", "A@x.com"), l, p, &sleepCounter{})

	summary := runAll(t, r, testOpts)

	if len(p.sent) != 2 {
		t.Errorf("sent: got %d messages, want 2", len(p.sent))
	}
	if summary.Attempted != 2 {
		t.Errorf("attempted: got %d, want 2", summary.Attempted)
	}
	if summary.AlreadySent != 1 {
		t.Errorf("already sent: got %d, want 1", summary.AlreadySent)
	}
}

func TestPlan_RecipientLoadErrorIsFatal(t *testing.T) {
	t.Parallel()

	loader := func() ([]recipient.Record, error) {
		return recipient.Load(filepath.Join(t.TempDir(), "missing.csv"), "")
	}
	r := newRunner(t, loader, newMemLedger(), &mockProvider{}, &sleepCounter{})

	_, err := r.Plan(context.Background())
	if !fault.IsFatal(err) {
		t.Errorf("error: got %v, want a fatal data source error", err)
	}
}

type recordingReporter struct {
	NopReporter
	events []string
}

func (r *recordingReporter) Attempt(i, n int, addr string) {
	r.events = append(r.events, "attempt "+addr)
}
func (r *recordingReporter) Sent(addr string)            { r.events = append(r.events, "sent "+addr) }
func (r *recordingReporter) Failed(addr string, _ error) { r.events = append(r.events, "failed "+addr) }
func (r *recordingReporter) Waiting(time.Duration)       { r.events = append(r.events, "wait") }
func (r *recordingReporter) Finish(Summary)              { r.events = append(r.events, "finish") }

func TestRun_ReporterEvents(t *testing.T) {
	t.Parallel()

	rep := &recordingReporter{}
	p := &mockProvider{failOn: map[string]bool{"b@x.com": true}}
	r := newRunner(t, rows("a@x.com", "b@x.com"), newMemLedger(), p, &sleepCounter{})
	r.deps.Reporter = rep

	runAll(t, r, testOpts)

	want := "attempt a@x.com|sent a@x.com|wait|attempt b@x.com|failed b@x.com|finish"
	if got := strings.Join(rep.events, "|"); got != want {
		t.Errorf("events: got %q, want %q", got, want)
	}
}
