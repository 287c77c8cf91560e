// Package parser decodes an encoded campaign message back into its parts.
// It backs the dry-run provider and lets tests inspect assembled messages.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"golang.org/x/text/encoding/charmap"
)

func init() {
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
}

// Message is the decoded view of an RFC 5322 message.
type Message struct {
	MessageID   string
	Subject     string
	From        string
	To          []string
	HTMLBody    string
	TextBody    string
	Inline      []Part
	Attachments []Part
}

// Part is a decoded non-body MIME part.
type Part struct {
	Filename    string
	ContentType string
	ContentID   string
	Content     []byte
}

// Parse decodes raw into a Message. Nested multiparts are flattened.
func Parse(raw []byte) (*Message, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to create mail reader: %w", err)
	}
	defer mr.Close()

	msg := &Message{
		MessageID: strings.Trim(mr.Header.Get("Message-Id"), "<>"),
	}
	if subject, err := mr.Header.Subject(); err == nil {
		msg.Subject = subject
	} else {
		msg.Subject = mr.Header.Get("Subject")
	}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = from[0].Address
	}
	if to, err := mr.Header.AddressList("To"); err == nil {
		for _, addr := range to {
			msg.To = append(msg.To, addr.Address)
		}
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read part: %w", err)
		}

		body, err := io.ReadAll(part.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read part body: %w", err)
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, params, _ := h.ContentType()
			switch contentType {
			case "text/html":
				msg.HTMLBody = string(body)
			case "text/plain":
				msg.TextBody = string(body)
			default:
				msg.Inline = append(msg.Inline, Part{
					Filename:    params["name"],
					ContentType: contentType,
					ContentID:   strings.Trim(h.Get("Content-Id"), "<>"),
					Content:     body,
				})
				if _, dispParams, err := h.ContentDisposition(); err == nil && dispParams["filename"] != "" {
					msg.Inline[len(msg.Inline)-1].Filename = dispParams["filename"]
				}
			}
		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			msg.Attachments = append(msg.Attachments, Part{
				Filename:    filename,
				ContentType: contentType,
				Content:     body,
			})
		}
	}

	return msg, nil
}
