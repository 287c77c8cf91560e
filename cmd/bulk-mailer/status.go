package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/shineum/bulk-mailer/internal/campaign"
	"github.com/shineum/bulk-mailer/internal/report"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show how many recipients are pending without sending anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		runner, led, err := newRunner(cfg, nil, nil, campaign.NopReporter{})
		if err != nil {
			return err
		}
		defer led.Close()

		plan, err := runner.Plan(cmd.Context())
		if err != nil {
			return err
		}
		report.New(os.Stdout).Status(plan)
		return nil
	},
}
