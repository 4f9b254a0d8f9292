// Package client holds the HTTP plumbing shared by the outbound API clients.
package client

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const maxErrorBody = 2048

// StatusError is returned for any non-2xx response
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// NewRetryClient returns a client that retries only rate-limited (429) responses,
// waiting a fixed delay between attempts. Every other failure is returned at once.
func NewRetryClient(timeout time.Duration, retryMax int, delay time.Duration, logger *log.Logger) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.HTTPClient = &http.Client{Timeout: timeout}
	c.RetryMax = retryMax
	c.RetryWaitMin = delay
	c.RetryWaitMax = delay
	c.CheckRetry = retryOnRateLimit
	c.Backoff = func(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
		return min
	}
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	c.Logger = nil
	if logger != nil {
		c.Logger = logger
	}
	return c
}

func retryOnRateLimit(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return false, err
	}
	return resp.StatusCode == http.StatusTooManyRequests, nil
}

// CheckResponse turns a non-2xx response into a *StatusError, draining and closing the body
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
}
