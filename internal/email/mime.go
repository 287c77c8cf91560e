package email

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
)

// Bytes encodes the message as RFC 5322 text.
//
// Layout: multipart/mixed{ multipart/related{ text/html, inline images... }, attachments... }.
func (e *Email) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := e.WriteMIME(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteMIME writes the encoded message to w.
func (e *Email) WriteMIME(w io.Writer) error {
	var h mail.Header
	date := e.Date
	if date.IsZero() {
		date = time.Now()
	}
	h.SetDate(date)
	h.SetSubject(e.Subject)
	h.SetAddressList("From", []*mail.Address{{Name: e.FromName, Address: e.From}})
	if to := e.Recipients(); len(to) > 0 {
		addrs := make([]*mail.Address, 0, len(to))
		for _, a := range to {
			addrs = append(addrs, &mail.Address{Address: a})
		}
		h.SetAddressList("To", addrs)
	}
	if e.MessageID != "" {
		h.Set("Message-Id", "<"+e.MessageID+">")
	}
	h.Set("MIME-Version", "1.0")
	h.SetContentType("multipart/mixed", nil)

	mw, err := message.CreateWriter(w, h.Header)
	if err != nil {
		return fmt.Errorf("failed to create message writer: %w", err)
	}

	if err := e.writeRelated(mw); err != nil {
		return err
	}

	for _, att := range e.Attachments {
		var ah message.Header
		ah.SetContentType(contentType(att), nil)
		ah.SetContentDisposition("attachment", map[string]string{"filename": att.Filename})
		ah.Set("Content-Transfer-Encoding", "base64")
		if err := writePart(mw, ah, att.Content); err != nil {
			return fmt.Errorf("failed to write attachment %s: %w", att.Filename, err)
		}
	}

	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}
	return nil
}

// writeRelated writes the HTML body together with the inline images it references.
func (e *Email) writeRelated(mw *message.Writer) error {
	var rh message.Header
	rh.SetContentType("multipart/related", map[string]string{"type": "text/html"})
	rw, err := mw.CreatePart(rh)
	if err != nil {
		return fmt.Errorf("failed to create related part: %w", err)
	}

	var hh message.Header
	hh.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	hh.Set("Content-Transfer-Encoding", "quoted-printable")
	if err := writePart(rw, hh, []byte(e.HTMLBody)); err != nil {
		return fmt.Errorf("failed to write html body: %w", err)
	}

	for _, img := range e.Inline {
		var ih message.Header
		ih.SetContentType(contentType(img), nil)
		ih.Set("Content-Id", "<"+img.ContentID+">")
		ih.SetContentDisposition("inline", map[string]string{"filename": img.Filename})
		ih.Set("Content-Transfer-Encoding", "base64")
		if err := writePart(rw, ih, img.Content); err != nil {
			return fmt.Errorf("failed to write inline image %s: %w", img.Filename, err)
		}
	}

	return rw.Close()
}

func writePart(parent *message.Writer, h message.Header, content []byte) error {
	pw, err := parent.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := pw.Write(content); err != nil {
		pw.Close()
		return err
	}
	return pw.Close()
}

func contentType(att Attachment) string {
	if att.ContentType == "" {
		return "application/octet-stream"
	}
	return att.ContentType
}
