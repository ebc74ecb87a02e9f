package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/farmora/backend/pkg/circuitbreaker"
	"github.com/farmora/backend/pkg/retry"
)

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s returned status %d", e.URL, e.Code)
}

// Transient reports whether err is worth retrying: 429, 5xx and transport errors.
func Transient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return !errors.Is(err, ErrNoData) && !errors.Is(err, ErrMissingParam)
}

// Upstream bundles the HTTP client, breaker and retry policy for one collaborator.
type Upstream struct {
	Client  *http.Client
	Breaker *circuitbreaker.CircuitBreaker
	Retry   retry.Config
	Header  http.Header
}

func NewUpstream(name string, timeout time.Duration) *Upstream {
	rc := retry.DefaultConfig()
	rc.MaxAttempts = 2
	rc.InitialDelay = 200 * time.Millisecond
	rc.Retryable = Transient

	return &Upstream{
		Client: &http.Client{Timeout: timeout},
		Breaker: circuitbreaker.NewCircuitBreaker(name, circuitbreaker.Config{
			FailureThreshold: 5,
			Timeout:          30 * time.Second,
		}),
		Retry:  rc,
		Header: http.Header{},
	}
}

// Get issues a GET through the breaker and retry policy and hands the body to read.
func (u *Upstream) Get(ctx context.Context, rawURL string, read func(io.Reader) error) error {
	return u.do(ctx, http.MethodGet, rawURL, nil, read)
}

func (u *Upstream) GetJSON(ctx context.Context, rawURL string, out any) error {
	return u.Get(ctx, rawURL, decodeInto(out))
}

// PostJSON sends in as a JSON body and decodes the response into out.
func (u *Upstream) PostJSON(ctx context.Context, rawURL string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return u.do(ctx, http.MethodPost, rawURL, body, decodeInto(out))
}

func (u *Upstream) do(ctx context.Context, method, rawURL string, body []byte, read func(io.Reader) error) error {
	return u.Breaker.Execute(ctx, func() error {
		return retry.Do(ctx, u.Retry, func() error {
			var rb io.Reader
			if body != nil {
				rb = bytes.NewReader(body)
			}
			req, err := http.NewRequestWithContext(ctx, method, rawURL, rb)
			if err != nil {
				return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
			}
			for k, vs := range u.Header {
				for _, v := range vs {
					req.Header.Add(k, v)
				}
			}
			if body != nil {
				req.Header.Set("Content-Type", "application/json")
			}

			resp, err := u.Client.Do(req)
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				_, _ = io.Copy(io.Discard, resp.Body)
				return &StatusError{Code: resp.StatusCode, URL: req.URL.Host + req.URL.Path}
			}
			return read(resp.Body)
		})
	})
}

func decodeInto(out any) func(io.Reader) error {
	return func(r io.Reader) error {
		if err := json.NewDecoder(r).Decode(out); err != nil {
			return retry.Permanent(fmt.Errorf("failed to decode response: %w", err))
		}
		return nil
	}
}
