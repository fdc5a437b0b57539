package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const defaultRetries = 3

// retryBackOff is swapped in tests.
var retryBackOff = func() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 8 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// statusError is an HTTP-level failure from a provider API.
type statusError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *statusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: status %d", e.Provider, e.StatusCode)
}

func (e *statusError) Unwrap() error { return e.Err }

func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var status *statusError
	if errors.As(err, &status) {
		return status.StatusCode == http.StatusTooManyRequests || status.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// withRetry runs call until it succeeds, fails permanently, or the retry
// budget runs out.
func withRetry(ctx context.Context, call func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(retryBackOff(), defaultRetries), ctx)
	return backoff.Retry(func() error {
		err := call()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
