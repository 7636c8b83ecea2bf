// Package npm talks to the account endpoints of an npm registry.
package npm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/savaki/credential-rotators/internal/errors"
)

// DefaultRegistryURL is the public npm registry
const DefaultRegistryURL = "https://registry.npmjs.org"

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for registry calls
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultRegistryURL
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type loginRequest struct {
	ID       string   `json:"_id"`
	Name     string   `json:"name"`
	Password string   `json:"password"`
	Type     string   `json:"type"`
	Roles    []string `json:"roles"`
	Date     string   `json:"date"`
}

type loginResponse struct {
	OK    any    `json:"ok"`
	Token string `json:"token"`
}

type passwordChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

type profileUpdate struct {
	Password passwordChange `json:"password"`
}

// Login exchanges a username and password for a registry session token.
// Rejected credentials return errors.ErrUnauthorized.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	userID := "org.couchdb.user:" + username
	body := loginRequest{
		ID:       userID,
		Name:     username,
		Password: password,
		Type:     "user",
		Roles:    []string{},
		Date:     time.Now().UTC().Format(time.RFC3339),
	}

	var resp loginResponse
	if err := c.do(ctx, http.MethodPut, "/-/user/"+url.PathEscape(userID), "", body, &resp); err != nil {
		return "", fmt.Errorf("failed to log in as %s: %w", username, err)
	}

	if resp.Token == "" {
		return "", fmt.Errorf("failed to log in as %s: registry returned no token", username)
	}

	return resp.Token, nil
}

// Logout revokes a session token obtained from Login
func (c *Client) Logout(ctx context.Context, token string) error {
	if err := c.do(ctx, http.MethodDelete, "/-/user/token/"+url.PathEscape(token), token, nil, nil); err != nil {
		return fmt.Errorf("failed to log out: %w", err)
	}
	return nil
}

// ChangePassword replaces the account password. The old password is used to open
// a session which is revoked once the change has been applied.
func (c *Client) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) (err error) {
	token, err := c.Login(ctx, username, oldPassword)
	if err != nil {
		return err
	}
	defer func() {
		if logoutErr := c.Logout(ctx, token); logoutErr != nil && err == nil {
			err = logoutErr
		}
	}()

	body := profileUpdate{
		Password: passwordChange{
			Old: oldPassword,
			New: newPassword,
		},
	}
	if err := c.do(ctx, http.MethodPost, "/-/npm/v1/user", token, body, nil); err != nil {
		return fmt.Errorf("failed to change password for %s: %w", username, err)
	}

	return nil
}

// VerifyPassword reports nil when the password opens a session for the user
func (c *Client) VerifyPassword(ctx context.Context, username, password string) error {
	token, err := c.Login(ctx, username, password)
	if err != nil {
		return err
	}
	return c.Logout(ctx, token)
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var reader io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: status %d", errors.ErrUnauthorized, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body))
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
