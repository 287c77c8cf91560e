// Package smtp implements a Provider that submits messages to an SMTP relay
// over STARTTLS with PLAIN authentication.
package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"

	"github.com/shineum/bulk-mailer/internal/email"
)

// defaultTimeout bounds a whole submission, from dial to QUIT.
const defaultTimeout = 60 * time.Second

// Config holds the relay settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	// TLSConfig is used for the STARTTLS upgrade. It must carry ServerName.
	TLSConfig *tls.Config

	Timeout time.Duration
}

// Provider submits each message on its own connection.
type Provider struct {
	cfg    Config
	dialer *net.Dialer
}

// New creates a Provider for the relay described by cfg.
func New(cfg Config) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.TLSConfig == nil {
		cfg.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	}
	return &Provider{
		cfg:    cfg,
		dialer: &net.Dialer{Timeout: cfg.Timeout},
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "smtp"
}

// Send dials the relay, upgrades with STARTTLS, authenticates, submits msg and
// quits. The connection is closed on every path.
func (p *Provider) Send(ctx context.Context, msg *email.Email) error {
	to := msg.Recipients()
	if len(to) == 0 {
		return email.ErrNoRecipient
	}

	raw, err := msg.Bytes()
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	addr := net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))
	conn, err := p.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Now().Add(p.cfg.Timeout))
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c, err := gosmtp.NewClientStartTLS(conn, p.cfg.TLSConfig)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to start TLS with %s: %w", addr, err)
	}
	defer c.Close()

	if p.cfg.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", p.cfg.Username, p.cfg.Password)); err != nil {
			return fmt.Errorf("failed to authenticate as %s: %w", p.cfg.Username, err)
		}
	}

	if err := c.SendMail(msg.From, to, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("failed to submit message: %w", err)
	}

	// The relay has accepted the message at this point.
	if err := c.Quit(); err != nil {
		slog.Debug("QUIT failed after delivery", "addr", addr, "error", err)
	}
	return nil
}
