package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"log/slog"

	"github.com/jpleva/channel-client/internal/auth"
)

// Requester is the request/response capability the channel layer consumes.
// Implementations must return a *ConflictError when the server rejects the
// caller's key version as stale.
type Requester interface {
	Request(ctx context.Context, method, path string, body []byte) ([]byte, error)
}

// Client talks to the project's HTTP fallback endpoints.
type Client struct {
	baseURL    string
	creds      auth.Credentials
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// New creates a fallback client rooted at the project path:
// <baseURL>/project/<projectID>.
func New(baseURL, projectID string, creds auth.Credentials, opts ...Option) *Client {
	c := &Client{
		baseURL: fmt.Sprintf("%s/project/%s", baseURL, projectID),
		creds:   creds,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Request performs one HTTP request against the fallback path. A 409
// response becomes a *ConflictError so the caller can refresh its
// encryption settings and retry.
func (c *Client) Request(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	authParam, err := c.creds.AuthParam()
	if err == nil {
		req.Header.Set("Authorization", authParam)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusConflict {
		c.logger.Debug("key version conflict", "path", path)
		return nil, &ConflictError{Body: respBody}
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       respBody,
		}
	}

	return respBody, nil
}
