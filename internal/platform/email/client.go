// Package email implements the provision.EmailSender port over a
// transactional email HTTP API.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/funnelkit/provision-api/internal/provision"
)

// Client sends the welcome email through a transactional delivery API.
type Client struct {
	baseURL    string
	apiKey     string
	from       string
	httpClient *http.Client
}

// NewClient creates an email client.
func NewClient(baseURL, apiKey, from string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		from:       from,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

var _ provision.EmailSender = (*Client)(nil)

// SendWelcomeEmail delivers the welcome message to a newly provisioned
// student. Callers treat failures as non-fatal.
func (c *Client) SendWelcomeEmail(ctx context.Context, email, fullName string) error {
	body, err := json.Marshal(map[string]any{
		"from":    c.from,
		"to":      []string{email},
		"subject": "Welcome to the sales training program",
		"text": fmt.Sprintf(
			"Hi %s,\n\nYour training account is ready. Sign in with this email address and the password you were given.\n",
			fullName),
	})
	if err != nil {
		return fmt.Errorf("failed to encode email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("email API returned %d: %s", resp.StatusCode, raw)
	}
	return nil
}
