package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shineum/bulk-mailer/internal/config"
	"github.com/shineum/bulk-mailer/internal/ledger"
	"github.com/shineum/bulk-mailer/internal/recipient"
	"github.com/shineum/bulk-mailer/internal/render"
	"github.com/shineum/bulk-mailer/internal/report"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify credentials, template, recipient file and folders",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if failed := report.New(os.Stdout).Checks(runChecks(cmd.Context(), cfg)); failed > 0 {
			return fmt.Errorf("%d setup checks failed", failed)
		}
		return nil
	},
}

// runChecks inspects everything a campaign needs without sending anything.
func runChecks(ctx context.Context, cfg *config.Config) []report.CheckResult {
	var results []report.CheckResult

	if err := cfg.Validate(); err != nil {
		results = append(results, report.CheckResult{Name: "configuration", Detail: err.Error()})
	} else {
		results = append(results, report.CheckResult{Name: "configuration", OK: true, Detail: "provider " + cfg.Provider})
	}

	results = append(results, checkTemplate(cfg))
	results = append(results, checkRecipients(cfg))

	for _, dir := range []string{cfg.Campaign.Assets, cfg.Campaign.Attachments} {
		results = append(results, checkDir(dir))
	}

	results = append(results, checkLedger(ctx, cfg))
	return results
}

func checkTemplate(cfg *config.Config) report.CheckResult {
	res := report.CheckResult{Name: cfg.Campaign.Template}

	tmpl, err := render.Load(cfg.Campaign.Template)
	if err == nil {
		err = tmpl.SetSubject(cfg.Campaign.Subject)
	}
	if err != nil {
		res.Detail = err.Error()
		return res
	}

	vars := render.Vars{"recipient_name": "Test User", "company_name": "Test Company"}
	body, err := tmpl.Render(vars)
	if err != nil {
		res.Detail = err.Error()
		return res
	}
	if !strings.Contains(body, "Test User") || !strings.Contains(body, "Test Company") {
		res.Detail = "rendered, but recipient_name or company_name is not used"
		return res
	}

	subject, err := tmpl.Subject(vars)
	if err != nil {
		res.Detail = err.Error()
		return res
	}
	res.OK = true
	res.Detail = fmt.Sprintf("renders sample data (subject %q)", subject)
	return res
}

func checkRecipients(cfg *config.Config) report.CheckResult {
	res := report.CheckResult{Name: cfg.Campaign.Recipients}

	records, err := recipient.Load(cfg.Campaign.Recipients, cfg.Campaign.CSVEncoding)
	if err != nil {
		res.Detail = err.Error()
		return res
	}
	if len(records) == 0 {
		res.Detail = "file has a header but no rows"
		return res
	}

	columns := make([]string, 0, len(records[0]))
	for k := range records[0] {
		columns = append(columns, k)
	}
	sort.Strings(columns)

	if _, ok := records[0][recipient.EmailField]; !ok {
		res.Detail = fmt.Sprintf("no %q column (columns: %s)", recipient.EmailField, strings.Join(columns, ", "))
		return res
	}

	res.OK = true
	res.Detail = fmt.Sprintf("%d rows, columns: %s", len(records), strings.Join(columns, ", "))
	return res
}

func checkDir(dir string) report.CheckResult {
	res := report.CheckResult{Name: dir + "/"}

	entries, err := os.ReadDir(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		res.Detail = "missing"
	case err != nil:
		res.Detail = err.Error()
	default:
		res.OK = true
		res.Detail = fmt.Sprintf("%d entries", len(entries))
	}
	return res
}

func checkLedger(ctx context.Context, cfg *config.Config) report.CheckResult {
	res := report.CheckResult{Name: "sent log " + cfg.Ledger.Path}

	led, err := ledger.Open(cfg.Ledger.Backend, cfg.Ledger.Path)
	if err != nil {
		res.Detail = err.Error()
		return res
	}
	defer led.Close()

	sent, err := led.LoadSent(ctx)
	if err != nil {
		res.Detail = err.Error()
		return res
	}
	res.OK = true
	res.Detail = fmt.Sprintf("%d recipients recorded", len(sent))
	return res
}
