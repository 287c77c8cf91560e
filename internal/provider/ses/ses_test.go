package ses

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/shineum/bulk-mailer/internal/email"
	"github.com/shineum/bulk-mailer/internal/provider"
)

// mockSESClient implements SendEmailAPI for testing.
type mockSESClient struct {
	sendFn    func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	callCount int
	lastInput *sesv2.SendEmailInput
}

func (m *mockSESClient) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.callCount++
	m.lastInput = params
	if m.sendFn != nil {
		return m.sendFn(ctx, params, optFns...)
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("test-message-id")}, nil
}

var _ provider.Provider = (*SESProvider)(nil)

func testMessage() *email.Email {
	return &email.Email{
		From:      "events@example.com",
		To:        []string{"a@x.com"},
		Subject:   "Welcome",
		HTMLBody:  "<h1>Hello</h1>",
		MessageID: "id@example.com",
		Attachments: []email.Attachment{{
			Filename: "agenda.pdf", ContentType: "application/octet-stream", Content: []byte("pdf"),
		}},
	}
}

func TestName(t *testing.T) {
	t.Parallel()
	p := NewWithClient(&mockSESClient{})
	if got := p.Name(); got != "ses" {
		t.Errorf("Name(): got %q, want %q", got, "ses")
	}
}

func TestSend_RawMessage(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient(mock)

	if err := p.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if mock.callCount != 1 {
		t.Errorf("call count: got %d, want 1", mock.callCount)
	}
	input := mock.lastInput
	if input.Content.Raw == nil {
		t.Fatal("expected raw email content, got nil")
	}
	if got := *input.FromEmailAddress; got != "events@example.com" {
		t.Errorf("FromEmailAddress: got %q, want %q", got, "events@example.com")
	}
	if got := input.Destination.ToAddresses; len(got) != 1 || got[0] != "a@x.com" {
		t.Errorf("ToAddresses: got %v, want [a@x.com]", got)
	}
	raw := string(input.Content.Raw.Data)
	if !strings.Contains(raw, "Subject: Welcome") {
		t.Error("raw message missing Subject header")
	}
	if !strings.Contains(raw, "agenda.pdf") {
		t.Error("raw message missing attachment")
	}
	if input.ConfigurationSetName != nil {
		t.Errorf("ConfigurationSetName: got %q, want nil", *input.ConfigurationSetName)
	}
}

func TestSend_ConfigurationSet(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := &SESProvider{client: mock, configurationSet: "campaigns"}

	if err := p.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := aws.ToString(mock.lastInput.ConfigurationSetName); got != "campaigns" {
		t.Errorf("ConfigurationSetName: got %q, want %q", got, "campaigns")
	}
}

func TestSend_ErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{
		sendFn: func(_ context.Context, _ *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			return nil, errors.New("throttled")
		},
	}
	p := NewWithClient(mock)

	err := p.Send(context.Background(), testMessage())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "throttled") {
		t.Errorf("error: got %q, want to contain %q", err, "throttled")
	}
	if mock.callCount != 1 {
		t.Errorf("call count: got %d, want 1", mock.callCount)
	}
}

func TestSend_NoRecipient(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient(mock)

	msg := testMessage()
	msg.To = []string{""}
	if err := p.Send(context.Background(), msg); !errors.Is(err, email.ErrNoRecipient) {
		t.Errorf("error: got %v, want %v", err, email.ErrNoRecipient)
	}
	if mock.callCount != 0 {
		t.Errorf("call count: got %d, want 0", mock.callCount)
	}
}
