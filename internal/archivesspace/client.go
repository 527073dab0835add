// Package archivesspace is a minimal client for the ArchivesSpace backend
// API: session login plus the record reads and writes bc2as needs.
package archivesspace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/bc2as/internal/apperr"
)

// SessionHeader carries the session token on every authenticated call.
const SessionHeader = "X-ArchivesSpace-Session"

const (
	defaultTimeout = 30 * time.Second
	maxBodyExcerpt = 2048
)

// Client talks to one backend with one session. The session is acquired by
// Authenticate and never refreshed; an expired session surfaces as a
// RemoteCallError.
type Client struct {
	http    *http.Client
	baseURL string
	session string
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("archivesspace: invalid backend URL %q", baseURL)
	}
	c := &Client{
		http:    &http.Client{Timeout: defaultTimeout},
		baseURL: strings.TrimRight(u.String(), "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the normalized backend URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Authenticated reports whether a session token is held.
func (c *Client) Authenticated() bool { return c.session != "" }

type loginResponse struct {
	Session string `json:"session"`
}

// Authenticate logs in and stores the session token on the client.
func (c *Client) Authenticate(ctx context.Context, username, password string) error {
	endpoint := c.baseURL + "/users/" + url.PathEscape(username) + "/login?" +
		url.Values{"password": {password}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return &apperr.AuthenticationError{Username: username, Reason: "build request", Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &apperr.AuthenticationError{Username: username, Reason: "backend unreachable", Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apperr.AuthenticationError{
			Username: username,
			Reason:   fmt.Sprintf("status %s: %s", resp.Status, excerpt(body)),
		}
	}
	var out loginResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return &apperr.AuthenticationError{Username: username, Reason: "malformed response", Err: err}
	}
	if out.Session == "" {
		return &apperr.AuthenticationError{Username: username, Reason: "response carried no session"}
	}
	c.session = out.Session
	return nil
}

// Call issues method against path (relative to the backend URL, including
// any query string). For POST, body is JSON-encoded; for GET it is ignored.
// When out is non-nil the JSON response is decoded into it.
func (c *Client) Call(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	switch method {
	case http.MethodGet:
	case http.MethodPost:
		b, err := json.Marshal(body)
		if err != nil {
			return &apperr.RemoteCallError{Method: method, Path: path, Err: fmt.Errorf("encode body: %w", err)}
		}
		payload = bytes.NewReader(b)
	default:
		return &apperr.RemoteCallError{Method: method, Path: path, Err: errors.New("unsupported method")}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return &apperr.RemoteCallError{Method: method, Path: path, Err: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.session != "" {
		req.Header.Set(SessionHeader, c.session)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &apperr.RemoteCallError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &apperr.RemoteCallError{Method: method, Path: path, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apperr.RemoteCallError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: excerpt(raw)}
	}
	if !json.Valid(raw) {
		return &apperr.RemoteCallError{
			Method: method, Path: path, StatusCode: resp.StatusCode, Body: excerpt(raw),
			Err: errors.New("response is not JSON"),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &apperr.RemoteCallError{
			Method: method, Path: path, StatusCode: resp.StatusCode, Body: excerpt(raw),
			Err: fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}

// Get is Call with GET.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Call(ctx, http.MethodGet, path, nil, out)
}

// Post is Call with POST.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Call(ctx, http.MethodPost, path, body, out)
}

func excerpt(b []byte) string {
	if len(b) > maxBodyExcerpt {
		b = b[:maxBodyExcerpt]
	}
	return strings.TrimSpace(string(b))
}
