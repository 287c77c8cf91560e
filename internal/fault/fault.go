// Package fault defines the error taxonomy shared by the campaign components.
//
// Fatal errors (configuration, data source, template) abort a run before any
// message is sent. The remaining kinds are recovered: they are logged, counted
// in the campaign summary, and the run continues.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError reports required settings that are missing or invalid.
type ConfigurationError struct {
	Missing []string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	switch {
	case len(e.Missing) > 0 && e.Reason != "":
		return fmt.Sprintf("configuration error: %s (missing %s)", e.Reason, strings.Join(e.Missing, ", "))
	case len(e.Missing) > 0:
		return fmt.Sprintf("configuration error: missing %s", strings.Join(e.Missing, ", "))
	default:
		return "configuration error: " + e.Reason
	}
}

// DataSourceError reports a recipient list or template that cannot be read.
type DataSourceError struct {
	Kind string // "recipients" or "template"
	Path string
	Err  error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("%s file %s: %v", e.Kind, e.Path, e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }

// TemplateError reports a template that exists but cannot be parsed or executed.
type TemplateError struct {
	Path string
	Err  error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template %s: %v", e.Path, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// AssetIOError reports an inline image or attachment that was skipped.
type AssetIOError struct {
	Path string
	Err  error
}

func (e AssetIOError) Error() string {
	return fmt.Sprintf("skipped %s: %v", e.Path, e.Err)
}

func (e AssetIOError) Unwrap() error { return e.Err }

// TransportError reports a failed delivery to a single recipient.
type TransportError struct {
	Recipient string
	Provider  string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: failed to deliver to %q: %v", e.Provider, e.Recipient, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// LedgerWriteError reports a delivered recipient that could not be recorded.
// The recipient may be emailed again on a later run.
type LedgerWriteError struct {
	Recipient string
	Err       error
}

func (e *LedgerWriteError) Error() string {
	return fmt.Sprintf("failed to record %q as sent: %v", e.Recipient, e.Err)
}

func (e *LedgerWriteError) Unwrap() error { return e.Err }

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	var (
		cfgErr  *ConfigurationError
		dataErr *DataSourceError
		tmplErr *TemplateError
	)
	return errors.As(err, &cfgErr) || errors.As(err, &dataErr) || errors.As(err, &tmplErr)
}
