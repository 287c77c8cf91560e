// Package compose assembles the per-recipient message: the rendered HTML body,
// inline images from the assets directory and, optionally, every file in the
// attachments directory.
package compose

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shineum/bulk-mailer/internal/email"
	"github.com/shineum/bulk-mailer/internal/fault"
)

// ReservedFilename is never attached; it documents the attachments directory.
const ReservedFilename = "README.md"

// imageTypes maps the embeddable extensions to their media types.
var imageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// Assembler builds messages from the configured asset directories.
// Empty or absent directories contribute nothing.
type Assembler struct {
	ImageDir      string
	AttachmentDir string

	// now is overridable in tests.
	now func() time.Time
}

// New returns an Assembler for the given directories.
func New(imageDir, attachmentDir string) *Assembler {
	return &Assembler{ImageDir: imageDir, AttachmentDir: attachmentDir, now: time.Now}
}

// Params are the per-recipient inputs to Assemble.
type Params struct {
	From               string
	FromName           string
	To                 string
	Subject            string
	HTMLBody           string
	IncludeAttachments bool
}

// Result is an assembled message with the files that had to be skipped.
type Result struct {
	Message *email.Email
	Skipped []fault.AssetIOError
}

// Assemble builds the message for p. It never fails: unreadable assets are
// reported in Result.Skipped and left out.
func (a *Assembler) Assemble(p Params) Result {
	now := time.Now
	if a.now != nil {
		now = a.now
	}

	msg := &email.Email{
		From:      p.From,
		FromName:  p.FromName,
		To:        []string{p.To},
		Subject:   p.Subject,
		HTMLBody:  p.HTMLBody,
		MessageID: email.NewMessageID(p.From),
		Date:      now(),
	}

	var skipped []fault.AssetIOError

	images, skips := a.inlineImages()
	msg.Inline = images
	skipped = append(skipped, skips...)

	if p.IncludeAttachments {
		files, skips := a.attachments()
		msg.Attachments = files
		skipped = append(skipped, skips...)
	}

	for _, s := range skipped {
		slog.Warn("skipping asset", "path", s.Path, "error", s.Err, "recipient", p.To)
	}

	return Result{Message: msg, Skipped: skipped}
}

func (a *Assembler) inlineImages() ([]email.Attachment, []fault.AssetIOError) {
	var (
		images  []email.Attachment
		skipped []fault.AssetIOError
	)

	for _, entry := range listDir(a.ImageDir, &skipped) {
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		mediaType, ok := imageTypes[ext]
		if !ok || entry.IsDir() {
			continue
		}

		path := filepath.Join(a.ImageDir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			skipped = append(skipped, fault.AssetIOError{Path: path, Err: err})
			continue
		}

		images = append(images, email.Attachment{
			Filename:    name,
			ContentType: mediaType,
			ContentID:   strings.TrimSuffix(name, filepath.Ext(name)),
			Content:     data,
		})
	}

	return images, skipped
}

func (a *Assembler) attachments() ([]email.Attachment, []fault.AssetIOError) {
	var (
		files   []email.Attachment
		skipped []fault.AssetIOError
	)

	for _, entry := range listDir(a.AttachmentDir, &skipped) {
		name := entry.Name()
		if name == ReservedFilename || entry.IsDir() {
			continue
		}

		path := filepath.Join(a.AttachmentDir, name)
		info, err := os.Stat(path)
		if err != nil {
			skipped = append(skipped, fault.AssetIOError{Path: path, Err: err})
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			skipped = append(skipped, fault.AssetIOError{Path: path, Err: err})
			continue
		}

		files = append(files, email.Attachment{
			Filename:    name,
			ContentType: "application/octet-stream",
			Content:     data,
		})
	}

	return files, skipped
}

// listDir returns the entries of dir in name order. An absent directory is
// empty; any other listing failure is recorded as a skip.
func listDir(dir string, skipped *[]fault.AssetIOError) []fs.DirEntry {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		*skipped = append(*skipped, fault.AssetIOError{Path: dir, Err: err})
	}
	return entries
}
