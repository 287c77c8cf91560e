// Package stdout implements a Provider that prints assembled messages instead
// of sending them. It backs the dry-run mode.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shineum/bulk-mailer/internal/email"
	"github.com/shineum/bulk-mailer/internal/parser"
)

// Provider prints email messages to stdout in a human-readable format.
type Provider struct {
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
}

// New creates a new stdout Provider that writes to os.Stdout.
func New() *Provider {
	return &Provider{writer: os.Stdout}
}

// NewWithWriter creates a new stdout Provider that writes to the given writer.
func NewWithWriter(w io.Writer) *Provider {
	return &Provider{writer: w}
}

// Send encodes msg exactly as a real provider would, parses the result back
// and prints a summary of what would go on the wire.
func (p *Provider) Send(_ context.Context, msg *email.Email) error {
	if len(msg.Recipients()) == 0 {
		return email.ErrNoRecipient
	}

	raw, err := msg.Bytes()
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	parsed, err := parser.Parse(raw)
	if err != nil {
		return fmt.Errorf("failed to parse encoded message: %w", err)
	}

	var b strings.Builder

	b.WriteString("========================================\n")
	fmt.Fprintf(&b, "From: %s\n", parsed.From)
	fmt.Fprintf(&b, "To: %s\n", strings.Join(parsed.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\n", parsed.Subject)
	fmt.Fprintf(&b, "Message-ID: %s\n", parsed.MessageID)
	fmt.Fprintf(&b, "Size: %s\n", formatSize(len(raw)))

	if len(parsed.Inline) > 0 {
		ids := make([]string, 0, len(parsed.Inline))
		for _, part := range parsed.Inline {
			ids = append(ids, fmt.Sprintf("cid:%s (%s)", part.ContentID, formatSize(len(part.Content))))
		}
		fmt.Fprintf(&b, "Inline: %s\n", strings.Join(ids, ", "))
	}

	if len(parsed.Attachments) > 0 {
		attachments := make([]string, 0, len(parsed.Attachments))
		for _, att := range parsed.Attachments {
			attachments = append(attachments, fmt.Sprintf("%s (%s)", att.Filename, formatSize(len(att.Content))))
		}
		fmt.Fprintf(&b, "Attachments: %s\n", strings.Join(attachments, ", "))
	}

	b.WriteString("========================================\n")

	if _, err := io.WriteString(p.writer, b.String()); err != nil {
		return fmt.Errorf("failed to write preview: %w", err)
	}
	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "stdout"
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
