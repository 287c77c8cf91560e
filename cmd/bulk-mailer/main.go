// Package main is the entry point for the bulk mailer.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shineum/bulk-mailer/internal/config"
	"github.com/shineum/bulk-mailer/internal/fault"
	"github.com/shineum/bulk-mailer/internal/report"
)

var (
	cfgFile     string
	envFile     string
	delay       time.Duration
	attachments string
	dryRun      bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if fault.IsFatal(err) {
			report.New(os.Stderr).Fatal(err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bulk-mailer",
	Short: "Send a personalised HTML email to every recipient in a CSV file",
	Long: `bulk-mailer renders a template for each row of a recipient CSV, embeds
images from the assets folder, optionally attaches files, and sends each
message through an SMTP relay. Recipients already recorded in the sent log
are skipped, so an interrupted campaign can simply be run again.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runSend(cmd.Context(), cfg, os.Stdin, os.Stdout)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to YAML configuration file (optional)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "path to .env file with credentials")

	rootCmd.Flags().DurationVar(&delay, "delay", 0, "pause between sends (overrides CAMPAIGN_DELAY)")
	rootCmd.Flags().StringVar(&attachments, "attachments", "", "include attachments: ask, yes or no (overrides CAMPAIGN_ATTACHMENT_MODE)")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "print each message instead of sending it")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(checkCmd)
}

// loadConfig builds the configuration from the .env file, the optional YAML
// file and the environment, then applies flag overrides. Callers validate.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return nil, &fault.ConfigurationError{Reason: err.Error()}
	}

	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.LoadFromFile(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("delay") {
		cfg.Campaign.Delay = delay
	}
	if cmd.Flags().Changed("attachments") {
		cfg.Campaign.AttachmentMode = attachments
	}
	if dryRun {
		cfg.Provider = config.ProviderStdout
	}

	setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

// setupLogger configures the global slog logger. Logs go to stderr so the
// progress lines on stdout stay readable.
func setupLogger(level, format string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
