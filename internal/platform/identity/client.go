// Package identity implements the provision.IdentityStore port over the
// identity provider's admin HTTP API.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/funnelkit/provision-api/internal/domain"
	"github.com/funnelkit/provision-api/internal/provision"
)

// Client calls the identity provider's admin endpoints with the
// service-role key. Admin endpoints bypass the provider's public
// signup flow, so accounts are created confirmed.
type Client struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

// NewClient creates an identity admin client.
func NewClient(baseURL, serviceKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

var _ provision.IdentityStore = (*Client)(nil)

type accountPayload struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func (p accountPayload) toAccount() *provision.Account {
	return &provision.Account{ID: p.ID, Email: p.Email, CreatedAt: p.CreatedAt}
}

// CreateAccount registers a confirmed account.
func (c *Client) CreateAccount(ctx context.Context, email, password string, metadata map[string]any) (*provision.Account, error) {
	body, err := json.Marshal(map[string]any{
		"email":         email,
		"password":      password,
		"email_confirm": true,
		"user_metadata": metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode account payload: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/admin/users", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var created accountPayload
	if err := c.do(req, http.StatusOK, &created); err != nil {
		return nil, fmt.Errorf("failed to create identity account: %w", err)
	}
	return created.toAccount(), nil
}

// DeleteAccount removes an account by ID.
func (c *Client) DeleteAccount(ctx context.Context, accountID uuid.UUID) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/admin/users/"+accountID.String(), nil)
	if err != nil {
		return err
	}
	if err := c.do(req, http.StatusOK, nil); err != nil {
		return fmt.Errorf("failed to delete identity account: %w", err)
	}
	return nil
}

// FindAccountByEmail looks up an account by its normalized address.
func (c *Client) FindAccountByEmail(ctx context.Context, email string) (*provision.Account, error) {
	key := domain.NormalizeEmail(email)
	req, err := c.newRequest(ctx, http.MethodGet, "/admin/users?email="+url.QueryEscape(key), nil)
	if err != nil {
		return nil, err
	}

	var listing struct {
		Users []accountPayload `json:"users"`
	}
	if err := c.do(req, http.StatusOK, &listing); err != nil {
		return nil, fmt.Errorf("failed to look up identity account: %w", err)
	}

	for _, u := range listing.Users {
		if domain.NormalizeEmail(u.Email) == key {
			return u.toAccount(), nil
		}
	}
	return nil, provision.ErrAccountNotFound
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build identity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("apikey", c.serviceKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do executes the request and decodes the response into out when the
// status matches. Error responses surface the provider's message text,
// which the retry classifier inspects for permanent conditions.
func (c *Client) do(req *http.Request, wantStatus int, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != wantStatus {
		var apiErr struct {
			Message string `json:"message"`
			Msg     string `json:"msg"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(raw, &apiErr)
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Msg
		}
		if msg == "" {
			msg = string(raw)
		}
		return fmt.Errorf("identity API returned %d: %s", resp.StatusCode, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode identity response: %w", err)
	}
	return nil
}
