package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/shineum/bulk-mailer/internal/campaign"
	"github.com/shineum/bulk-mailer/internal/compose"
	"github.com/shineum/bulk-mailer/internal/config"
	"github.com/shineum/bulk-mailer/internal/ledger"
	"github.com/shineum/bulk-mailer/internal/provider"
	"github.com/shineum/bulk-mailer/internal/recipient"
	"github.com/shineum/bulk-mailer/internal/render"
	"github.com/shineum/bulk-mailer/internal/report"
)

// runSend runs one campaign. The attachment choice is settled before the
// first message is built.
func runSend(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	prov, err := selectProvider(ctx, cfg)
	if err != nil {
		return err
	}
	return sendWith(ctx, cfg, prov, in, out)
}

func sendWith(ctx context.Context, cfg *config.Config, prov provider.Provider, in io.Reader, out io.Writer) error {
	tmpl, err := render.Load(cfg.Campaign.Template)
	if err != nil {
		return err
	}
	if err := tmpl.SetSubject(cfg.Campaign.Subject); err != nil {
		return err
	}

	runner, led, err := newRunner(cfg, tmpl, prov, report.New(out))
	if err != nil {
		return err
	}
	defer led.Close()

	plan, err := runner.Plan(ctx)
	if err != nil {
		return err
	}

	include, err := resolveAttachments(cfg.Campaign.AttachmentMode, cfg.Campaign.Attachments, len(plan.Pending), in, out)
	if err != nil {
		return err
	}

	_, err = runner.Run(ctx, plan, campaign.Options{
		From:               cfg.SenderAddress(),
		FromName:           cfg.SMTP.SenderName,
		Delay:              cfg.Campaign.Delay,
		IncludeAttachments: include,
	})
	return err
}

// newRunner wires the campaign collaborators described by cfg. The caller
// closes the returned ledger. The stdout provider delivers nothing, so it
// gets a read-only view of the sent log.
func newRunner(cfg *config.Config, tmpl campaign.Renderer, prov provider.Provider, rep campaign.Reporter) (*campaign.Runner, ledger.Ledger, error) {
	led, err := ledger.Open(cfg.Ledger.Backend, cfg.Ledger.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open sent log: %w", err)
	}
	if cfg.Provider == config.ProviderStdout {
		led = ledger.NewReadOnly(led)
	}

	runner := campaign.New(campaign.Deps{
		Recipients: func() ([]recipient.Record, error) {
			return recipient.Load(cfg.Campaign.Recipients, cfg.Campaign.CSVEncoding)
		},
		Ledger:    led,
		Template:  tmpl,
		Assembler: compose.New(cfg.Campaign.Assets, cfg.Campaign.Attachments),
		Provider:  prov,
		Reporter:  rep,
	})
	return runner, led, nil
}

// resolveAttachments turns the configured mode into a yes/no answer, asking
// on in only when the mode is "ask" and there is someone to send to.
func resolveAttachments(mode, dir string, pending int, in io.Reader, out io.Writer) (bool, error) {
	switch mode {
	case config.AttachmentsYes:
		return true, nil
	case config.AttachmentsNo:
		return false, nil
	}
	if pending == 0 {
		return false, nil
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintf(out, "Include attachments from %s/ in %d emails? (y/n): ", dir, pending)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return false, fmt.Errorf("failed to read answer: %w", err)
			}
			// EOF: no terminal to ask, send without attachments.
			fmt.Fprintln(out)
			return false, nil
		}
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		fmt.Fprintln(out, "Please answer y or n.")
	}
}
