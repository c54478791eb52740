// Package webhook POSTs capture notifications to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/psforever/GameLogger/adapter"
	"github.com/psforever/GameLogger/iox"
)

// DefaultTimeout bounds one HTTP request.
const DefaultTimeout = 10 * time.Second

// Config configures the webhook adapter.
type Config struct {
	// URL receives the POSTs (required).
	URL string
	// Headers are set on every request, after Content-Type.
	Headers map[string]string
	// Encoding of the body (default json).
	Encoding adapter.Encoding
	Timeout  time.Duration
	// Retries applies to session and capture_saved notifications only.
	Retries int
	// Backoff before the first retry (default adapter.DefaultBackoff).
	Backoff time.Duration
}

// Adapter publishes notifications via HTTP POST.
type Adapter struct {
	url      string
	headers  map[string]string
	encoding adapter.Encoding
	delivery adapter.Delivery
	client   *http.Client
}

// New validates cfg and creates the adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook adapter requires a URL")
	}
	enc, err := adapter.ParseEncoding(string(cfg.Encoding))
	if err != nil {
		return nil, fmt.Errorf("webhook adapter: %w", err)
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("webhook adapter: retries must be >= 0, got %d", cfg.Retries)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Adapter{
		url:      cfg.URL,
		headers:  cfg.Headers,
		encoding: enc,
		delivery: adapter.Delivery{
			Retries:   cfg.Retries,
			Backoff:   cfg.Backoff,
			Permanent: isClientError,
		},
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Publish POSTs n. Network errors and 5xx responses are retried for
// retriable notifications; a 4xx response ends delivery at once.
func (a *Adapter) Publish(ctx context.Context, n *adapter.Notification) error {
	body, err := adapter.Marshal(n, a.encoding)
	if err != nil {
		return fmt.Errorf("webhook: marshal %s: %w", n.EventType, err)
	}
	if err := a.delivery.Deliver(ctx, n, func(ctx context.Context) error {
		return a.post(ctx, body)
	}); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

func isClientError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 400 && se.Code < 500
}

func (a *Adapter) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", a.encoding.ContentType())
	for k, v := range a.headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(resp.Body)
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Close drops idle connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
