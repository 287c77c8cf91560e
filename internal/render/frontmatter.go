package render

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ErrInvalidFrontmatter indicates a malformed YAML header block.
var ErrInvalidFrontmatter = errors.New("invalid frontmatter")

// document is a template file split into its YAML header and body.
type document struct {
	Metadata map[string]any
	Body     string
}

// splitFrontmatter separates an optional leading "---" YAML block from the body.
func splitFrontmatter(content []byte) (*document, error) {
	delimiter := []byte("---")

	if !bytes.HasPrefix(content, delimiter) {
		return &document{Metadata: map[string]any{}, Body: string(content)}, nil
	}

	afterFirst := bytes.TrimPrefix(content, delimiter)
	afterFirst = bytes.TrimLeft(afterFirst, "\n\r")
	if len(afterFirst) == 0 {
		return nil, fmt.Errorf("%w: no content after opening delimiter", ErrInvalidFrontmatter)
	}

	endIdx := bytes.Index(afterFirst, delimiter)
	if endIdx == -1 {
		return nil, fmt.Errorf("%w: closing delimiter not found", ErrInvalidFrontmatter)
	}

	header := afterFirst[:endIdx]
	bodyStart := endIdx + len(delimiter)
	if bodyStart < len(afterFirst) {
		if afterFirst[bodyStart] == '\r' && bodyStart+1 < len(afterFirst) && afterFirst[bodyStart+1] == '\n' {
			bodyStart += 2
		} else if afterFirst[bodyStart] == '\n' {
			bodyStart++
		}
	}

	metadata := map[string]any{}
	if len(bytes.TrimSpace(header)) > 0 {
		if err := yaml.Unmarshal(header, &metadata); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFrontmatter, err)
		}
	}

	return &document{Metadata: metadata, Body: string(afterFirst[bodyStart:])}, nil
}

// metaString returns the first string value among keys.
func (d *document) metaString(keys ...string) string {
	for _, k := range keys {
		if v, ok := d.Metadata[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
