// Package fetch retrieves vehicle pages over HTTP, optionally through a
// headless browser and a Postgres-backed page cache.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jonathan/specsheet/internal/logging"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// DefaultRetries is the default number of retries after the first attempt.
const DefaultRetries = 2

// maxBodyBytes bounds how much of a page is read.
const maxBodyBytes = 8 << 20

// Result holds the content retrieved for a URL.
type Result struct {
	URL         string
	HTML        string
	ContentType string
	StatusCode  int
	FromCache   bool
	Rendered    bool
}

// Fetcher retrieves a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Result, error)
}

// Error represents an error during URL fetching.
type Error struct {
	URL     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Options configures the fetch behavior.
type Options struct {
	Timeout    time.Duration
	Retries    int
	UserAgents []string
	Headers    map[string]string
}

// DefaultOptions returns sensible defaults for fetching.
func DefaultOptions() *Options {
	return &Options{
		Timeout: DefaultTimeout,
		Retries: DefaultRetries,
		Headers: map[string]string{
			"Accept":          "text/html,application/xhtml+xml",
			"Accept-Language": "en,de;q=0.8,nl;q=0.7",
		},
	}
}

// Client fetches pages with a retrying transport.
type Client struct {
	http    *http.Client
	headers map[string]string
}

// NewClient builds a client from opts. Nil opts uses DefaultOptions.
func NewClient(opts *Options) *Client {
	if opts == nil {
		opts = DefaultOptions()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http: &http.Client{
			Transport: NewTransport(nil, opts.Retries, opts.UserAgents),
			Timeout:   timeout,
		},
		headers: opts.Headers,
	}
}

// Fetch retrieves the HTML at urlStr. A non-200 status is returned as an
// *Error together with the partial result.
func (c *Client) Fetch(ctx context.Context, urlStr string) (*Result, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, &Error{
			URL:     urlStr,
			Message: "invalid URL",
			Cause:   err,
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, &Error{
			URL:     urlStr,
			Message: "failed to create request",
			Cause:   err,
		}
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{
			URL:     urlStr,
			Message: "HTTP request failed",
			Cause:   err,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &Error{
			URL:     urlStr,
			Message: "failed to read response body",
			Cause:   err,
		}
	}

	logging.FromContext(ctx).Debug().
		Str("url", urlStr).
		Int("status", resp.StatusCode).
		Int("bytes", len(bodyBytes)).
		Dur("elapsed", time.Since(start)).
		Msg("fetched page")

	result := &Result{
		URL:         urlStr,
		HTML:        string(bodyBytes),
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}

	if resp.StatusCode != http.StatusOK {
		return result, &Error{
			URL:     urlStr,
			Message: fmt.Sprintf("HTTP status %d", resp.StatusCode),
		}
	}

	return result, nil
}

// URL retrieves HTML content from a URL with a one-off client.
func URL(ctx context.Context, urlStr string, opts *Options) (*Result, error) {
	return NewClient(opts).Fetch(ctx, urlStr)
}
