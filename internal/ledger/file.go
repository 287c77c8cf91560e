package ledger

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/shineum/bulk-mailer/internal/fault"
)

var errLineBreak = errors.New("address contains a line break")

// File is a Ledger backed by a line-oriented text file, one address per line.
// The file is created on the first MarkSent and never rewritten.
type File struct {
	path string

	mu   sync.Mutex
	sent Set
}

// NewFile returns a file ledger at path. Nothing is read until LoadSent.
func NewFile(path string) *File {
	return &File{path: path, sent: make(Set)}
}

// LoadSent reads every non-blank line of the file.
func (f *File) LoadSent(_ context.Context) (Set, error) {
	sent := make(Set)

	fh, err := os.Open(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		f.replace(sent)
		return sent, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open sent log: %w", err)
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	for scanner.Scan() {
		sent.Add(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sent log: %w", err)
	}

	f.replace(sent)
	return sent, nil
}

func (f *File) replace(s Set) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = make(Set, len(s))
	for k := range s {
		f.sent[k] = struct{}{}
	}
}

// IsSent reports whether addr has been recorded.
func (f *File) IsSent(addr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent.Has(addr)
}

// MarkSent appends addr and syncs the file before returning. A last line
// left without a newline is terminated first so entries never run together.
func (f *File) MarkSent(_ context.Context, addr string) error {
	if strings.ContainsAny(addr, "\r\n") {
		return &fault.LedgerWriteError{Recipient: addr, Err: errLineBreak}
	}

	fh, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return &fault.LedgerWriteError{Recipient: addr, Err: err}
	}

	line := addr + "\n"
	unterminated, err := endsWithoutNewline(fh)
	if err != nil {
		fh.Close()
		return &fault.LedgerWriteError{Recipient: addr, Err: err}
	}
	if unterminated {
		line = "\n" + line
	}

	if _, err := io.WriteString(fh, line); err != nil {
		fh.Close()
		return &fault.LedgerWriteError{Recipient: addr, Err: err}
	}
	if err := fh.Sync(); err != nil {
		fh.Close()
		return &fault.LedgerWriteError{Recipient: addr, Err: err}
	}
	if err := fh.Close(); err != nil {
		return &fault.LedgerWriteError{Recipient: addr, Err: err}
	}

	f.mu.Lock()
	f.sent.Add(addr)
	f.mu.Unlock()
	return nil
}

// endsWithoutNewline reports whether fh is non-empty and its last byte is not '\n'.
func endsWithoutNewline(fh *os.File) (bool, error) {
	info, err := fh.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := fh.ReadAt(last, info.Size()-1); err != nil {
		return false, err
	}
	return last[0] != '\n', nil
}

// Close is a no-op; the file is opened per append.
func (f *File) Close() error { return nil }
