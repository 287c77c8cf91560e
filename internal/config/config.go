// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for the bulk mailer.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/shineum/bulk-mailer/internal/fault"
)

// Provider names accepted in Config.Provider.
const (
	ProviderSMTP   = "smtp"
	ProviderSES    = "ses"
	ProviderGraph  = "graph"
	ProviderStdout = "stdout"
)

// Attachment modes accepted in CampaignConfig.AttachmentMode.
const (
	AttachmentsAsk = "ask"
	AttachmentsYes = "yes"
	AttachmentsNo  = "no"
)

// DefaultEnvFile is loaded when present; its absence is not an error.
const DefaultEnvFile = ".env"

// Config holds the complete application configuration.
type Config struct {
	Provider string         `yaml:"provider"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Campaign CampaignConfig `yaml:"campaign"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	SES      SESConfig      `yaml:"ses"`
	Graph    GraphConfig    `yaml:"graph"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SMTPConfig holds the relay and sender settings.
type SMTPConfig struct {
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	Sender     string        `yaml:"sender"`
	SenderName string        `yaml:"sender_name"`
	Timeout    time.Duration `yaml:"timeout"`
	TLS        TLSConfig     `yaml:"tls"`
}

// TLSConfig controls certificate verification for the relay connection.
type TLSConfig struct {
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	CAFile             string `yaml:"ca_file"`
}

// CampaignConfig holds the campaign inputs.
type CampaignConfig struct {
	Recipients     string        `yaml:"recipients"`
	CSVEncoding    string        `yaml:"csv_encoding"`
	Template       string        `yaml:"template"`
	Subject        string        `yaml:"subject"`
	Assets         string        `yaml:"assets"`
	Attachments    string        `yaml:"attachments"`
	AttachmentMode string        `yaml:"attachment_mode"`
	Delay          time.Duration `yaml:"delay"`
}

// LedgerConfig selects where sent recipients are recorded.
type LedgerConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// SESConfig holds AWS SES configuration.
type SESConfig struct {
	Region           string `yaml:"region"`
	AccessKeyID      string `yaml:"access_key_id"`
	SecretAccessKey  string `yaml:"secret_access_key"`
	ConfigurationSet string `yaml:"configuration_set"`
}

// GraphConfig holds Microsoft Graph API configuration.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// Variables already set are left alone. A missing DefaultEnvFile is ignored;
// any other missing path is an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && path == DefaultEnvFile {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SenderAddress returns the From address: the explicit sender, else the
// relay username.
func (c *Config) SenderAddress() string {
	if c.SMTP.Sender != "" {
		return c.SMTP.Sender
	}
	return c.SMTP.Username
}

// Validate checks that everything the selected provider needs is present.
// It returns a *fault.ConfigurationError listing every missing variable.
func (c *Config) Validate() error {
	var missing []string
	need := func(value, name string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}

	switch c.Provider {
	case ProviderSMTP:
		need(c.SMTP.Host, "SMTP_HOST")
		need(c.SMTP.Username, "GMAIL_EMAIL")
		need(c.SMTP.Password, "GMAIL_APP_PASSWORD")
	case ProviderSES:
		need(c.SES.Region, "SES_REGION")
		need(c.SenderAddress(), "SENDER_EMAIL")
	case ProviderGraph:
		need(c.Graph.TenantID, "GRAPH_TENANT_ID")
		need(c.Graph.ClientID, "GRAPH_CLIENT_ID")
		need(c.Graph.ClientSecret, "GRAPH_CLIENT_SECRET")
		need(c.SenderAddress(), "SENDER_EMAIL")
	case ProviderStdout:
		need(c.SenderAddress(), "SENDER_EMAIL")
	default:
		return &fault.ConfigurationError{Reason: fmt.Sprintf("unknown provider %q", c.Provider)}
	}
	if len(missing) > 0 {
		return &fault.ConfigurationError{Missing: missing}
	}

	switch {
	case c.Provider == ProviderSMTP && (c.SMTP.Port <= 0 || c.SMTP.Port > 65535):
		return &fault.ConfigurationError{Reason: fmt.Sprintf("invalid SMTP_PORT %d", c.SMTP.Port)}
	case c.Campaign.Delay < 0:
		return &fault.ConfigurationError{Reason: fmt.Sprintf("delay must not be negative, got %s", c.Campaign.Delay)}
	}

	switch c.Campaign.AttachmentMode {
	case AttachmentsAsk, AttachmentsYes, AttachmentsNo:
	default:
		return &fault.ConfigurationError{Reason: fmt.Sprintf("attachment mode must be ask, yes or no, got %q", c.Campaign.AttachmentMode)}
	}

	switch c.Ledger.Backend {
	case "file", "sqlite":
	default:
		return &fault.ConfigurationError{Reason: fmt.Sprintf("unknown ledger backend %q", c.Ledger.Backend)}
	}

	return nil
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.Provider = ProviderSMTP

	c.SMTP.Host = "smtp.gmail.com"
	c.SMTP.Port = 587
	c.SMTP.Timeout = 60 * time.Second

	c.Campaign.Recipients = "emails.csv"
	c.Campaign.CSVEncoding = "utf-8"
	c.Campaign.Template = "template.html"
	c.Campaign.Assets = "assets"
	c.Campaign.Attachments = "attachments"
	c.Campaign.AttachmentMode = AttachmentsAsk
	c.Campaign.Delay = 2 * time.Second

	c.Ledger.Backend = "file"
	c.Ledger.Path = "sent_emails.txt"

	c.Logging.Level = "info"
	c.Logging.Format = "text"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() error {
	setString := func(dst *string, names ...string) {
		for _, name := range names {
			if v := os.Getenv(name); v != "" {
				*dst = v
			}
		}
	}

	if v := os.Getenv("PROVIDER"); v != "" {
		c.Provider = strings.ToLower(v)
	}

	setString(&c.SMTP.Host, "SMTP_HOST")
	// The generic names win over the Gmail-specific ones when both are set.
	setString(&c.SMTP.Username, "GMAIL_EMAIL", "SMTP_USERNAME")
	setString(&c.SMTP.Password, "GMAIL_APP_PASSWORD", "SMTP_PASSWORD")
	setString(&c.SMTP.Sender, "SENDER_EMAIL")
	setString(&c.SMTP.SenderName, "SENDER_NAME")
	setString(&c.SMTP.TLS.CAFile, "SMTP_TLS_CA_FILE")

	if v := os.Getenv("SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return &fault.ConfigurationError{Reason: fmt.Sprintf("invalid SMTP_PORT %q", v)}
		}
		c.SMTP.Port = port
	}
	if v := os.Getenv("SMTP_TIMEOUT"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return &fault.ConfigurationError{Reason: fmt.Sprintf("invalid SMTP_TIMEOUT %q", v)}
		}
		c.SMTP.Timeout = d
	}
	if v := os.Getenv("SMTP_TLS_INSECURE_SKIP_VERIFY"); v != "" {
		insecure, err := strconv.ParseBool(v)
		if err != nil {
			return &fault.ConfigurationError{Reason: fmt.Sprintf("invalid SMTP_TLS_INSECURE_SKIP_VERIFY %q", v)}
		}
		c.SMTP.TLS.InsecureSkipVerify = insecure
	}

	setString(&c.Campaign.Recipients, "CAMPAIGN_RECIPIENTS")
	setString(&c.Campaign.CSVEncoding, "CAMPAIGN_CSV_ENCODING")
	setString(&c.Campaign.Template, "CAMPAIGN_TEMPLATE")
	setString(&c.Campaign.Subject, "CAMPAIGN_SUBJECT")
	setString(&c.Campaign.Assets, "CAMPAIGN_ASSETS")
	setString(&c.Campaign.Attachments, "CAMPAIGN_ATTACHMENTS")
	if v := os.Getenv("CAMPAIGN_ATTACHMENT_MODE"); v != "" {
		c.Campaign.AttachmentMode = strings.ToLower(v)
	}
	if v := os.Getenv("CAMPAIGN_DELAY"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return &fault.ConfigurationError{Reason: fmt.Sprintf("invalid CAMPAIGN_DELAY %q", v)}
		}
		c.Campaign.Delay = d
	}

	if v := os.Getenv("LEDGER_BACKEND"); v != "" {
		c.Ledger.Backend = strings.ToLower(v)
	}
	setString(&c.Ledger.Path, "LEDGER_PATH")

	setString(&c.SES.Region, "SES_REGION")
	setString(&c.SES.AccessKeyID, "SES_ACCESS_KEY_ID")
	setString(&c.SES.SecretAccessKey, "SES_SECRET_ACCESS_KEY")
	setString(&c.SES.ConfigurationSet, "SES_CONFIGURATION_SET")

	setString(&c.Graph.TenantID, "GRAPH_TENANT_ID")
	setString(&c.Graph.ClientID, "GRAPH_CLIENT_ID")
	setString(&c.Graph.ClientSecret, "GRAPH_CLIENT_SECRET")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}

	return nil
}

// parseDuration accepts Go durations ("1500ms") and bare seconds ("2", "0.5").
func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}
