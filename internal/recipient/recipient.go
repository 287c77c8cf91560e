// Package recipient loads the campaign recipient list from a CSV file whose
// first row names the fields.
package recipient

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/shineum/bulk-mailer/internal/fault"
)

// EmailField is the column that identifies a recipient.
const EmailField = "email"

// Record maps a field name to its value for one recipient row.
type Record map[string]string

// Email returns the recipient address, trimmed. It may be empty.
func (r Record) Email() string {
	return strings.TrimSpace(r[EmailField])
}

// Get returns the trimmed value of field, or def when it is absent or blank.
func (r Record) Get(field, def string) string {
	if v := strings.TrimSpace(r[field]); v != "" {
		return v
	}
	return def
}

// Load reads all rows of the CSV file at path in source order.
// enc names the file encoding; empty means UTF-8.
func Load(path, enc string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &fault.DataSourceError{Kind: "recipients", Path: path, Err: err}
	}
	defer f.Close()

	decoder, err := lookupEncoding(enc)
	if err != nil {
		return nil, &fault.DataSourceError{Kind: "recipients", Path: path, Err: err}
	}

	records, err := Parse(decoder.Reader(f))
	if err != nil {
		return nil, &fault.DataSourceError{Kind: "recipients", Path: path, Err: err}
	}
	return records, nil
}

// Parse reads CSV rows from r. Rows shorter than the header leave the
// remaining fields unset; extra cells are ignored.
func Parse(r io.Reader) ([]Record, error) {
	br := bufio.NewReader(r)
	if bom, err := br.Peek(3); err == nil && bytes.Equal(bom, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = br.Discard(3)
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("missing header row")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header row: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records []Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		if isBlank(row) {
			continue
		}

		rec := make(Record, len(header))
		for i, name := range header {
			if name == "" || i >= len(row) {
				continue
			}
			rec[name] = row[i]
		}
		records = append(records, rec)
	}

	return records, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func lookupEncoding(name string) (*encoding.Decoder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return unicode.UTF8.NewDecoder(), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder(), nil
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1.NewDecoder(), nil
	case "iso-8859-15", "latin9":
		return charmap.ISO8859_15.NewDecoder(), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
}
