package cloud

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Domain errors for the cloud client package.
var (
	// ErrRateLimitExceeded is returned when the local request quota for a
	// credential is exhausted. No request was sent.
	ErrRateLimitExceeded = errors.New("cloud: rate limit exceeded")

	// ErrCircuitOpen is returned while the credential's circuit breaker is
	// open. No request was sent.
	ErrCircuitOpen = errors.New("cloud: circuit open")

	// ErrInterrupted is returned when the caller's context is cancelled
	// while a call is waiting to retry. It wraps the context error.
	ErrInterrupted = errors.New("cloud: interrupted")

	// ErrNotRegistered is returned by the registry for an unknown client id.
	ErrNotRegistered = errors.New("cloud: client not registered")
)

// HTTPError is a non-2xx response from the provider.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string

	// RetryAfter is the server-requested delay, zero when absent.
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("cloud: %s %s: status %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

// Transient reports whether a retry may succeed (429 or 5xx).
func (e *HTTPError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// NetworkError is a failure to obtain any response at all.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("cloud: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a failure the retry policy retries:
// a network error, a 5xx or a 429.
func IsTransient(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Transient()
	}
	return false
}
