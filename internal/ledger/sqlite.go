package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/shineum/bulk-mailer/internal/fault"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sent_recipients (
    email TEXT PRIMARY KEY,
    address TEXT NOT NULL,
    sent_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// SQLite is a Ledger stored in a SQLite database file.
type SQLite struct {
	db *sql.DB

	mu   sync.Mutex
	sent Set
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}

	return &SQLite{db: db, sent: make(Set)}, nil
}

// LoadSent reads every recorded address.
func (s *SQLite) LoadSent(ctx context.Context) (Set, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT email FROM sent_recipients")
	if err != nil {
		return nil, fmt.Errorf("failed to query sent recipients: %w", err)
	}
	defer rows.Close()

	sent := make(Set)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan sent recipient: %w", err)
		}
		sent.Add(key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sent recipients: %w", err)
	}

	s.mu.Lock()
	s.sent = make(Set, len(sent))
	for k := range sent {
		s.sent[k] = struct{}{}
	}
	s.mu.Unlock()

	return sent, nil
}

// IsSent reports whether addr has been recorded.
func (s *SQLite) IsSent(addr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent.Has(addr)
}

// MarkSent inserts addr; recording an address twice is not an error.
func (s *SQLite) MarkSent(ctx context.Context, addr string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO sent_recipients (email, address) VALUES (?, ?)",
		Normalize(addr), addr,
	)
	if err != nil {
		return &fault.LedgerWriteError{Recipient: addr, Err: err}
	}

	s.mu.Lock()
	s.sent.Add(addr)
	s.mu.Unlock()
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
