// Package provider defines the interface for message delivery backends.
package provider

import (
	"context"

	"github.com/shineum/bulk-mailer/internal/email"
)

// Provider is the interface that delivery backends must implement.
// Each call delivers exactly one message and holds no connection
// open afterwards.
type Provider interface {
	// Send delivers an assembled message through this provider.
	// It returns an error if the delivery fails; it never retries.
	Send(ctx context.Context, msg *email.Email) error

	// Name returns the human-readable name of this provider.
	Name() string
}
