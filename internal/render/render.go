// Package render binds per-recipient variables into the campaign template.
//
// Templates use Go template syntax ({{.recipient_name}}). A template may start
// with a YAML frontmatter block whose Subject overrides the default subject.
// Files ending in .md are executed as text and converted to HTML with goldmark;
// all others are executed with html/template escaping.
package render

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"os"
	"path/filepath"
	"strings"
	texttemplate "text/template"

	"github.com/yuin/goldmark"

	"github.com/shineum/bulk-mailer/internal/fault"
)

// DefaultSubject is used when neither the caller nor the template sets one.
const DefaultSubject = "Welcome to Our Company, {{.recipient_name}}!"

// Template is a parsed campaign template, safe to render many times.
type Template struct {
	path     string
	markdown bool
	meta     *document

	html    *htmltemplate.Template
	text    *texttemplate.Template
	subject *texttemplate.Template
	md      goldmark.Markdown
}

// Load reads and parses the template at path.
func Load(path string) (*Template, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &fault.DataSourceError{Kind: "template", Path: path, Err: err}
	}
	return Parse(path, content)
}

// Parse parses content; name selects markdown mode by its extension.
func Parse(name string, content []byte) (*Template, error) {
	doc, err := splitFrontmatter(content)
	if err != nil {
		return nil, &fault.TemplateError{Path: name, Err: err}
	}

	t := &Template{
		path:     name,
		meta:     doc,
		markdown: strings.EqualFold(filepath.Ext(name), ".md"),
	}

	if t.markdown {
		t.text, err = texttemplate.New(filepath.Base(name)).Option("missingkey=zero").Parse(doc.Body)
		t.md = goldmark.New()
	} else {
		t.html, err = htmltemplate.New(filepath.Base(name)).Option("missingkey=zero").Parse(doc.Body)
	}
	if err != nil {
		return nil, &fault.TemplateError{Path: name, Err: err}
	}

	if err := t.SetSubject(""); err != nil {
		return nil, err
	}
	return t, nil
}

// SetSubject selects the subject template: override when non-empty, else the
// frontmatter Subject, else DefaultSubject.
func (t *Template) SetSubject(override string) error {
	subject := override
	if subject == "" {
		subject = t.meta.metaString("Subject", "subject")
	}
	if subject == "" {
		subject = DefaultSubject
	}

	tmpl, err := texttemplate.New("subject").Option("missingkey=zero").Parse(subject)
	if err != nil {
		return &fault.TemplateError{Path: t.path, Err: fmt.Errorf("subject: %w", err)}
	}
	t.subject = tmpl
	return nil
}

// Render produces the HTML body for vars.
func (t *Template) Render(vars Vars) (string, error) {
	var out bytes.Buffer

	if !t.markdown {
		if err := t.html.Execute(&out, map[string]string(vars)); err != nil {
			return "", &fault.TemplateError{Path: t.path, Err: err}
		}
		return out.String(), nil
	}

	var src bytes.Buffer
	if err := t.text.Execute(&src, map[string]string(vars)); err != nil {
		return "", &fault.TemplateError{Path: t.path, Err: err}
	}
	if err := t.md.Convert(src.Bytes(), &out); err != nil {
		return "", &fault.TemplateError{Path: t.path, Err: fmt.Errorf("failed to convert markdown: %w", err)}
	}
	return out.String(), nil
}

// Subject produces the subject line for vars. Line breaks are folded to spaces.
func (t *Template) Subject(vars Vars) (string, error) {
	var out bytes.Buffer
	if err := t.subject.Execute(&out, map[string]string(vars)); err != nil {
		return "", &fault.TemplateError{Path: t.path, Err: fmt.Errorf("subject: %w", err)}
	}
	return strings.Join(strings.Fields(out.String()), " "), nil
}
