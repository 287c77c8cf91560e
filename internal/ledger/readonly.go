package ledger

import (
	"context"
	"sync"
)

// ReadOnly wraps a Ledger for runs that deliver nothing, such as a dry run.
// It reads the persisted set from the wrapped ledger but keeps MarkSent in
// memory, so the store is left exactly as it was.
type ReadOnly struct {
	base Ledger

	mu   sync.Mutex
	seen Set
}

// NewReadOnly returns a ReadOnly view of base.
func NewReadOnly(base Ledger) *ReadOnly {
	return &ReadOnly{base: base, seen: make(Set)}
}

// LoadSent reads the persisted set from the wrapped ledger.
func (r *ReadOnly) LoadSent(ctx context.Context) (Set, error) {
	return r.base.LoadSent(ctx)
}

// IsSent reports whether addr is persisted or was marked during this run.
func (r *ReadOnly) IsSent(addr string) bool {
	r.mu.Lock()
	seen := r.seen.Has(addr)
	r.mu.Unlock()
	return seen || r.base.IsSent(addr)
}

// MarkSent records addr in memory only.
func (r *ReadOnly) MarkSent(_ context.Context, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen.Add(addr)
	return nil
}

// Close closes the wrapped ledger.
func (r *ReadOnly) Close() error {
	return r.base.Close()
}
