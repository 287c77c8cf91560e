package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shineum/bulk-mailer/internal/config"
	"github.com/shineum/bulk-mailer/internal/provider"
	"github.com/shineum/bulk-mailer/internal/provider/graph"
	"github.com/shineum/bulk-mailer/internal/provider/ses"
	"github.com/shineum/bulk-mailer/internal/provider/smtp"
	"github.com/shineum/bulk-mailer/internal/provider/stdout"
	smtptls "github.com/shineum/bulk-mailer/internal/tls"
)

// selectProvider builds the delivery backend named by cfg.Provider.
// cfg must already be validated.
func selectProvider(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	switch cfg.Provider {
	case config.ProviderSMTP:
		tlsConfig, err := smtptls.ClientConfig(smtptls.ClientOptions{
			ServerName:         cfg.SMTP.Host,
			CAFile:             cfg.SMTP.TLS.CAFile,
			InsecureSkipVerify: cfg.SMTP.TLS.InsecureSkipVerify,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to setup TLS: %w", err)
		}
		slog.Info("using SMTP provider",
			"host", cfg.SMTP.Host,
			"port", cfg.SMTP.Port,
			"username", cfg.SMTP.Username,
		)
		return smtp.New(smtp.Config{
			Host:      cfg.SMTP.Host,
			Port:      cfg.SMTP.Port,
			Username:  cfg.SMTP.Username,
			Password:  cfg.SMTP.Password,
			TLSConfig: tlsConfig,
			Timeout:   cfg.SMTP.Timeout,
		}), nil

	case config.ProviderSES:
		slog.Info("using AWS SES provider", "region", cfg.SES.Region)
		p, err := ses.New(ctx, ses.SESProviderConfig{
			Region:           cfg.SES.Region,
			AccessKeyID:      cfg.SES.AccessKeyID,
			SecretAccessKey:  cfg.SES.SecretAccessKey,
			ConfigurationSet: cfg.SES.ConfigurationSet,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SES provider: %w", err)
		}
		return p, nil

	case config.ProviderGraph:
		slog.Info("using Microsoft Graph provider", "sender", cfg.SenderAddress())
		return graph.New(graph.GraphProviderConfig{
			TenantID:     cfg.Graph.TenantID,
			ClientID:     cfg.Graph.ClientID,
			ClientSecret: cfg.Graph.ClientSecret,
			Sender:       cfg.SenderAddress(),
		}), nil

	case config.ProviderStdout:
		slog.Info("using stdout provider, nothing will be sent")
		return stdout.New(), nil

	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
