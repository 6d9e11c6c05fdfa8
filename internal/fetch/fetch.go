// Package fetch performs the idempotent JSON GETs the relying party and
// resource server make against identity providers, with bounded retries.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultMaxTries = 3
	DefaultTimeout  = 10 * time.Second

	maxBodyBytes = 1 << 20
)

var ErrDecode = errors.New("failed to decode response")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Retryable reports whether another attempt could succeed.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

type Client struct {
	httpClient      *http.Client
	maxTries        uint
	initialInterval time.Duration
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(f *Client) { f.httpClient = c }
}

// WithMaxTries bounds the number of attempts, including the first.
func WithMaxTries(n uint) Option {
	return func(f *Client) {
		if n > 0 {
			f.maxTries = n
		}
	}
}

func WithInitialInterval(d time.Duration) Option {
	return func(f *Client) { f.initialInterval = d }
}

func New(opts ...Option) *Client {
	c := &Client{
		httpClient:      &http.Client{Timeout: DefaultTimeout},
		maxTries:        DefaultMaxTries,
		initialInterval: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HTTPClient is the underlying client, shared with non-retried calls.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// GetJSON fetches url and decodes the body into out. A non-empty bearer is
// sent in the Authorization header. Transport errors, 5xx and 429 are
// retried; other failures are returned immediately.
func (c *Client) GetJSON(ctx context.Context, url, bearer string, out any) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = c.initialInterval
	expBackoff.MaxInterval = 10 * c.initialInterval
	expBackoff.Reset()

	operation := func() ([]byte, error) {
		return c.get(ctx, url, bearer)
	}

	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(func(err error, d time.Duration) {
			slog.Debug("Retrying fetch", "url", url, "delay", d, "error", err)
		}),
	)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w from %s: %w", ErrDecode, url, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, url, bearer string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{URL: url, StatusCode: resp.StatusCode, Body: string(body)}
		if statusErr.Retryable() {
			return nil, statusErr
		}
		return nil, backoff.Permanent(statusErr)
	}

	return body, nil
}
