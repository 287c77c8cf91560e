// Package graph implements a Provider that sends campaign messages through the
// Microsoft Graph sendMail endpoint, authenticating with OAuth2 client credentials.
package graph

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/shineum/bulk-mailer/internal/email"
)

// requestTimeout bounds each Graph and token request.
const requestTimeout = 30 * time.Second

// GraphProviderConfig holds the configuration for creating a GraphProvider.
type GraphProviderConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Sender       string
}

// GraphProvider posts each message as base64 MIME, which keeps inline images
// and attachments exactly as assembled.
type GraphProvider struct {
	sendURL    string
	httpClient *http.Client
}

// New creates a new GraphProvider with the given configuration.
func New(cfg GraphProviderConfig) *GraphProvider {
	return newWithOverrides(cfg,
		"https://graph.microsoft.com/v1.0/users/"+url.PathEscape(cfg.Sender)+"/sendMail",
		fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", url.PathEscape(cfg.TenantID)),
		&http.Client{Timeout: requestTimeout},
	)
}

// newWithOverrides creates a GraphProvider with custom URLs and base HTTP
// client, used for testing.
func newWithOverrides(cfg GraphProviderConfig, sendURL, tokenURL string, base *http.Client) *GraphProvider {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{"https://graph.microsoft.com/.default"},
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := cc.Client(ctx)
	client.Timeout = requestTimeout

	return &GraphProvider{sendURL: sendURL, httpClient: client}
}

// Send delivers msg with a single sendMail request.
func (g *GraphProvider) Send(ctx context.Context, msg *email.Email) error {
	if len(msg.Recipients()) == 0 {
		return email.ErrNoRecipient
	}

	raw, err := msg.Bytes()
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	body := base64.StdEncoding.EncodeToString(raw)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.sendURL, bytes.NewReader([]byte(body)))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Graph API request failed: %w", err)
	}
	defer resp.Body.Close()

	// HTTP 202 Accepted is success for sendMail
	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var graphErr graphErrorResponse
	if jsonErr := json.Unmarshal(respBody, &graphErr); jsonErr == nil && graphErr.Error.Message != "" {
		return &sendError{statusCode: resp.StatusCode, code: graphErr.Error.Code, message: graphErr.Error.Message}
	}
	return &sendError{statusCode: resp.StatusCode, message: string(respBody)}
}

// Name returns the provider name.
func (g *GraphProvider) Name() string {
	return "msgraph"
}

// sendError is a non-success response from the sendMail endpoint.
type sendError struct {
	statusCode int
	code       string
	message    string
}

func (e *sendError) Error() string {
	if e.code != "" {
		return fmt.Sprintf("Graph API error (HTTP %d, %s): %s", e.statusCode, e.code, e.message)
	}
	return fmt.Sprintf("Graph API error (HTTP %d): %s", e.statusCode, e.message)
}

// graphErrorResponse represents an error response from the Graph API.
type graphErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
