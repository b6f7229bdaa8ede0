// Package api is a client for the data-capture backend's REST contract.
//
// Every call takes a context, carries the session token as a Bearer header
// once one is set, and maps the backend's status codes onto the sentinel
// errors in pkg/types. Response bodies are checked against the expected
// shape; a mismatch is reported as *types.DecodeError rather than as a
// backend error.
package api

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
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/capture/internal/logging"
	"github.com/mesh-intelligence/capture/pkg/types"
)

// maxErrorBody bounds how much of an error response is kept as the message.
const maxErrorBody = 64 << 10

// RequestIDHeader carries the per-request id generated by the client.
const RequestIDHeader = "X-Request-Id"

// Client talks to one backend root URL. It is safe for concurrent use.
type Client struct {
	base *url.URL
	http *http.Client
	log  *zap.SugaredLogger

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Client) { c.log = log }
}

// WithTimeout bounds every request. Zero leaves the HTTP client default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d <= 0 {
			return
		}
		hc := *c.http
		hc.Timeout = d
		c.http = &hc
	}
}

// New returns a Client for the backend rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("parse api url: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	c := &Client{
		base: u,
		http: &http.Client{},
		log:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetToken sets the bearer token sent with every subsequent request. An
// empty string stops sending the header.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the bearer token currently in use.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// BaseURL returns the backend root URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// endpoint joins path segments onto the base URL, escaping each one.
func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u := *c.base
	u.Path = c.base.Path + "/" + strings.Join(segments, "/")
	u.RawPath = c.base.EscapedPath() + "/" + strings.Join(escaped, "/")
	return u.String()
}

// do performs one request. body, when non-nil, is sent as JSON. out, when
// non-nil, receives the decoded response and is checked with check.
func (c *Client) do(ctx context.Context, op, method string, segments []string, body, out any, check func() error) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	target := c.endpoint(segments...)
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	reqID := newRequestID()
	req.Header.Set(RequestIDHeader, reqID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debugw("request failed", "op", op, "method", method, "request_id", reqID, "error", err)
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	c.log.Debugw("request",
		"op", op,
		"method", method,
		"path", req.URL.EscapedPath(),
		"status", resp.StatusCode,
		"duration", time.Since(start),
		"request_id", reqID,
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s: %w", op, readAPIError(resp))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &types.DecodeError{Op: op, Err: err}
	}
	if check != nil {
		if err := check(); err != nil {
			return &types.DecodeError{Op: op, Err: err}
		}
	}
	return nil
}

// readAPIError turns a non-success response into *types.APIError. Bodies
// shaped like {"error": "..."} or {"message": "..."} are unwrapped; anything
// else is kept as text.
func readAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(data))

	var shaped struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &shaped) == nil {
		switch {
		case shaped.Error != "":
			msg = shaped.Error
		case shaped.Message != "":
			msg = shaped.Message
		}
	}
	return &types.APIError{Status: resp.StatusCode, Message: msg}
}

func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// errMissing reports a required field absent from a response.
func errMissing(field string) error {
	return fmt.Errorf("missing field %q", field)
}

// IsNetworkError reports whether err is a transport failure rather than a
// response from the backend.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *types.APIError
	var decErr *types.DecodeError
	if errors.As(err, &apiErr) || errors.As(err, &decErr) {
		return false
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
