package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// Client talks to the token issuer. The refresh credential arrives as an
// httpOnly cookie and is held by the client's cookie jar; nothing in this
// package ever reads it.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient creates an issuer client for the given base URL. When httpc is
// nil a default client is created; either way the client gets a cookie jar if
// it does not already have one.
func NewClient(baseURL string, httpc *http.Client) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("server base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid server base URL: %w", err)
	}

	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	if httpc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		httpc.Jar = jar
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   httpc,
	}, nil
}

// LoginResult is the issuer's successful login response.
type LoginResult struct {
	Token string   `json:"token"`
	Admin Identity `json:"admin"`
}

// Login exchanges credentials for an access token. The refresh credential
// lands in the cookie jar as a side effect.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, "/login", body)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrAuthFailed, serverError(resp))
	case http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s", ErrAccountNotApproved, serverError(resp))
	default:
		return nil, fmt.Errorf("login failed with HTTP %d", resp.StatusCode)
	}

	var result LoginResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode login response: %w", err)
	}
	if result.Token == "" {
		return nil, errors.New("login response missing token")
	}
	return &result, nil
}

// Refresh asks the issuer for a new access token. The rotated refresh
// credential overwrites the cookie in the jar.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	resp, err := c.post(ctx, "/refresh", nil)
	if err != nil {
		return "", err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", fmt.Errorf("%w: %s", ErrRefreshFailed, serverError(resp))
	default:
		return "", fmt.Errorf("refresh failed with HTTP %d", resp.StatusCode)
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if result.Token == "" {
		return "", errors.New("refresh response missing token")
	}
	return result.Token, nil
}

// Logout invalidates the refresh credential server-side and clears the
// cookie. Safe to call when already logged out.
func (c *Client) Logout(ctx context.Context) error {
	resp, err := c.post(ctx, "/logout", nil)
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("logout failed with HTTP %d", resp.StatusCode)
	}
	return nil
}

// Me fetches the identity claims for an access token.
func (c *Client) Me(ctx context.Context, token string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s", ErrAuthExpired, serverError(resp))
	default:
		return nil, fmt.Errorf("identity lookup failed with HTTP %d", resp.StatusCode)
	}

	var identity Identity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return nil, fmt.Errorf("failed to decode identity: %w", err)
	}
	return &identity, nil
}

// BaseURL returns the issuer base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HTTPClient returns the underlying HTTP client, whose jar holds the refresh
// cookie.
func (c *Client) HTTPClient() *http.Client {
	return c.httpc
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpc.Do(req)
}

// serverError extracts the {"error": "..."} message from an error response.
func serverError(resp *http.Response) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err != nil || body.Error == "" {
		return resp.Status
	}
	return body.Error
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
