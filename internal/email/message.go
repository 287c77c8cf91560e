// Package email defines the message model shared by the assembler and the
// delivery providers, and its MIME encoding.
package email

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNoRecipient indicates the message has no usable recipient address.
var ErrNoRecipient = errors.New("email must have at least one recipient")

// Email represents an assembled message for a single campaign recipient.
type Email struct {
	From        string
	FromName    string
	To          []string
	Subject     string
	HTMLBody    string
	Inline      []Attachment // images referenced from HTMLBody via cid:
	Attachments []Attachment
	MessageID   string
	Date        time.Time
}

// Attachment represents a file carried by the message, either as an inline
// part (ContentID set) or as a regular attachment.
type Attachment struct {
	Filename    string
	ContentType string
	ContentID   string
	Content     []byte
}

// Recipients returns the non-empty recipient addresses.
func (e *Email) Recipients() []string {
	out := make([]string, 0, len(e.To))
	for _, addr := range e.To {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// NewMessageID returns a globally unique Message-ID (without angle brackets)
// in the sender's domain.
func NewMessageID(from string) string {
	domain := "localhost"
	if i := strings.LastIndexByte(from, '@'); i >= 0 && i < len(from)-1 {
		domain = from[i+1:]
	}
	return uuid.NewString() + "@" + domain
}
