// Package ledger records which recipients have already been emailed so that a
// campaign can be re-run safely.
package ledger

import (
	"context"
	"fmt"
	"strings"
)

// Ledger is the persisted set of addresses whose delivery succeeded.
// Entries are only ever added.
type Ledger interface {
	// LoadSent reads the persisted set. A missing store is an empty set.
	LoadSent(ctx context.Context) (Set, error)

	// IsSent reports whether addr is in the set loaded by LoadSent or
	// recorded by MarkSent since.
	IsSent(addr string) bool

	// MarkSent durably appends addr. Failures are *fault.LedgerWriteError.
	MarkSent(ctx context.Context, addr string) error

	Close() error
}

// Set is an in-memory set of normalized addresses.
type Set map[string]struct{}

// Has reports whether addr is in the set.
func (s Set) Has(addr string) bool {
	_, ok := s[Normalize(addr)]
	return ok
}

// Add inserts addr and reports whether it was new.
func (s Set) Add(addr string) bool {
	key := Normalize(addr)
	if key == "" {
		return false
	}
	if _, ok := s[key]; ok {
		return false
	}
	s[key] = struct{}{}
	return true
}

// Normalize returns the comparison key for an address.
func Normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Open returns the ledger implementation for backend stored at path.
func Open(backend, path string) (Ledger, error) {
	switch strings.ToLower(backend) {
	case "", BackendFile:
		return NewFile(path), nil
	case BackendSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", backend)
	}
}
