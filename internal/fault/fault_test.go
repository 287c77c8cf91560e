package fault

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"
)

func TestIsFatal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"configuration", &ConfigurationError{Missing: []string{"GMAIL_EMAIL"}}, true},
		{"data source", &DataSourceError{Kind: "recipients", Path: "emails.csv", Err: fs.ErrNotExist}, true},
		{"template", &TemplateError{Path: "template.html", Err: errors.New("bad")}, true},
		{"wrapped template", fmt.Errorf("failed to load: %w", &TemplateError{Err: errors.New("bad")}), true},
		{"transport", &TransportError{Recipient: "a@x.com", Err: errors.New("refused")}, false},
		{"ledger", &LedgerWriteError{Recipient: "a@x.com", Err: errors.New("disk full")}, false},
		{"asset", AssetIOError{Path: "assets/logo.png", Err: fs.ErrPermission}, false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsFatal(tt.err); got != tt.want {
				t.Errorf("IsFatal(%v): got %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestConfigurationError_ListsMissing(t *testing.T) {
	t.Parallel()

	err := &ConfigurationError{Missing: []string{"GMAIL_EMAIL", "GMAIL_APP_PASSWORD"}}
	msg := err.Error()
	if !strings.Contains(msg, "GMAIL_EMAIL, GMAIL_APP_PASSWORD") {
		t.Errorf("Error(): got %q, want both variables listed", msg)
	}
}

func TestDataSourceError_Unwrap(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("load: %w", &DataSourceError{Kind: "recipients", Path: "emails.csv", Err: fs.ErrNotExist})
	if !errors.Is(err, fs.ErrNotExist) {
		t.Error("expected errors.Is(err, fs.ErrNotExist) to hold through DataSourceError")
	}
}
