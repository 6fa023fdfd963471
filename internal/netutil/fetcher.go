// Package netutil provides the outbound HTTP fetcher shared by the
// spreadsheet and maps clients: bounded per-attempt timeout, one retry on
// transport failure, no retry on HTTP status errors.
package netutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPStatusError indicates the server responded, but with an unexpected
// HTTP status code. This is a non-network failure and is never retried.
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("fetcher: unexpected status %d from %s", e.StatusCode, e.URL)
}

// NonRetryableError indicates request setup failed before any transport
// attempt was made (for example, malformed URL).
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("fetcher: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// Fetcher performs GET requests. Interface allows tests to substitute
// canned responses.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Client fetches over a standard HTTP client, pulling the per-attempt
// timeout from a callback on each request.
type Client struct {
	HTTP      *http.Client
	TimeoutFn func() time.Duration
	// RetryBackoff is the pause before the single transport-error retry.
	RetryBackoff time.Duration
}

// NewClient creates a fetcher with one transport-error retry after backoff.
func NewClient(timeoutFn func() time.Duration, backoff time.Duration) *Client {
	if timeoutFn == nil {
		panic("netutil: NewClient requires non-nil timeoutFn")
	}
	return &Client{
		HTTP:         &http.Client{},
		TimeoutFn:    timeoutFn,
		RetryBackoff: backoff,
	}
}

// Fetch GETs the URL. Transport errors are retried once after RetryBackoff;
// status errors and setup errors are returned immediately.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	body, err := c.fetchOnce(ctx, url)
	if err == nil || !shouldRetry(err) || ctx.Err() != nil {
		return body, err
	}
	select {
	case <-time.After(c.RetryBackoff):
	case <-ctx.Done():
		return nil, err
	}
	return c.fetchOnce(ctx, url)
}

func (c *Client) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	timeout := c.TimeoutFn()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &NonRetryableError{Err: err}
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetcher: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetcher: %w", err)
	}
	return body, nil
}

func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return false
	}
	var nonRetryable *NonRetryableError
	return !errors.As(err, &nonRetryable)
}

// FetchJSON fetches the URL and decodes the body into out.
func FetchJSON(ctx context.Context, f Fetcher, url string, out any) error {
	body, err := f.Fetch(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("fetcher: decode %s: %w", url, err)
	}
	return nil
}
