// Package transport is the shared HTTP layer under every PMS adapter. It
// enforces per-call timeouts, translates non-2xx responses into structured
// errors, and hands vendor JSON back unmodified. Retry is deliberately not
// done here; that is the caller's policy decision.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// DefaultTimeout applies when neither the client nor the call sets one.
const DefaultTimeout = 10 * time.Second

const snippetLimit = 512

// ErrTimedOut marks a call that exceeded its configured timeout, as opposed
// to a transport-level network failure.
var ErrTimedOut = errors.New("request timed out")

// APIError is a non-2xx vendor response.
type APIError struct {
	Method  string
	URL     string
	Status  int
	Snippet string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Status, e.Snippet)
}

// IsTimeout reports whether err is a timeout per this package's contract.
func IsTimeout(err error) bool {
	if errors.Is(err, ErrTimedOut) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Options are per-call overrides merged over the client defaults.
type Options struct {
	Headers map[string]string
	Query   url.Values
	Body    any
	Timeout time.Duration
}

// Client wraps a resty client with a base URL and default headers.
type Client struct {
	rc      *resty.Client
	timeout time.Duration
	log     *zap.Logger
}

func New(baseURL string, headers map[string]string, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	rc := resty.New().
		SetBaseURL(baseURL).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")
	for k, v := range headers {
		rc.SetHeader(k, v)
	}
	return &Client{rc: rc, timeout: timeout, log: log}
}

// Do issues one request and returns the raw response body. JSON bodies are
// validated; invalid JSON under a JSON content type is an error. Timeouts
// surface as ErrTimedOut, non-2xx as *APIError.
func (c *Client) Do(ctx context.Context, method, path string, opts Options) ([]byte, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := c.rc.R().SetContext(cctx)
	if len(opts.Headers) > 0 {
		req.SetHeaders(opts.Headers)
	}
	if len(opts.Query) > 0 {
		req.SetQueryParamsFromValues(opts.Query)
	}
	if opts.Body != nil {
		req.SetHeader("Content-Type", "application/json")
		req.SetBody(opts.Body)
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		if IsTimeout(err) {
			return nil, fmt.Errorf("%s %s: %w", method, path, ErrTimedOut)
		}
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	c.log.Debug("pms http call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("elapsed", time.Since(start)),
	)

	body := resp.Body()
	if code := resp.StatusCode(); code < 200 || code > 299 {
		return nil, &APIError{
			Method:  method,
			URL:     resp.Request.URL,
			Status:  code,
			Snippet: snippet(body),
		}
	}
	if isJSON(resp.Header().Get("Content-Type")) {
		if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && !json.Valid(trimmed) {
			return nil, fmt.Errorf("%s %s: invalid JSON response", method, path)
		}
	}
	return body, nil
}

func (c *Client) Get(ctx context.Context, path string, opts Options) ([]byte, error) {
	return c.Do(ctx, "GET", path, opts)
}

func (c *Client) Post(ctx context.Context, path string, body any, opts Options) ([]byte, error) {
	opts.Body = body
	return c.Do(ctx, "POST", path, opts)
}

func (c *Client) Put(ctx context.Context, path string, body any, opts Options) ([]byte, error) {
	opts.Body = body
	return c.Do(ctx, "PUT", path, opts)
}

func isJSON(contentType string) bool {
	return strings.Contains(contentType, "json")
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > snippetLimit {
		s = s[:snippetLimit] + "..."
	}
	return s
}
