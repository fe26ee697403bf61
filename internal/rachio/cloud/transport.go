package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Transport constants.
const (
	// DefaultBaseURL is the public Rachio REST API root.
	DefaultBaseURL = "https://api.rach.io/1/public"

	// DefaultTimeout bounds a single HTTP exchange.
	DefaultTimeout = 15 * time.Second

	// maxBodySize caps how much of a response body is read.
	maxBodySize = 4 << 20

	// maxErrorBody caps the body excerpt kept on HTTPError.
	maxErrorBody = 512

	headerRateLimit     = "X-RateLimit-Limit"
	headerRateRemaining = "X-RateLimit-Remaining"
	headerRateReset     = "X-RateLimit-Reset"
	headerRetryAfter    = "Retry-After"
)

// Doer executes HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RateObserver receives the provider's rate-limit headers after each
// response that carries them. A negative remaining means the header was
// absent; a zero reset means unknown.
type RateObserver interface {
	ObserveRateHeaders(limit, remaining int, reset time.Time)
}

// TransportConfig holds configuration for a Transport.
type TransportConfig struct {
	// BaseURL is the API root. Default: DefaultBaseURL.
	BaseURL string

	// APIKey is sent as a bearer token on every request.
	APIKey string

	// Timeout bounds each call. Default: DefaultTimeout.
	Timeout time.Duration

	// HTTPClient performs the exchange. Default: a plain *http.Client.
	HTTPClient Doer

	// Observer is told about rate-limit headers. Optional.
	Observer RateObserver
}

// Transport performs single authenticated JSON exchanges against the
// provider. It never retries.
//
// Thread Safety: safe for concurrent use.
type Transport struct {
	baseURL  string
	apiKey   string
	timeout  time.Duration
	client   Doer
	observer RateObserver
}

// NewTransport creates a Transport.
//
// Parameters:
//   - cfg: Transport configuration; zero fields take defaults
//
// Returns:
//   - *Transport: Ready for use
func NewTransport(cfg TransportConfig) *Transport {
	t := &Transport{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		timeout:  cfg.Timeout,
		client:   cfg.HTTPClient,
		observer: cfg.Observer,
	}
	if t.baseURL == "" {
		t.baseURL = DefaultBaseURL
	}
	if t.timeout <= 0 {
		t.timeout = DefaultTimeout
	}
	if t.client == nil {
		t.client = &http.Client{}
	}
	return t
}

// Get fetches path and decodes the JSON response into out (may be nil).
func (t *Transport) Get(ctx context.Context, path string, out any) error {
	return t.Do(ctx, http.MethodGet, path, nil, out)
}

// Put sends body as JSON and decodes the response into out (may be nil).
func (t *Transport) Put(ctx context.Context, path string, body, out any) error {
	return t.Do(ctx, http.MethodPut, path, body, out)
}

// Post sends body as JSON and decodes the response into out (may be nil).
func (t *Transport) Post(ctx context.Context, path string, body, out any) error {
	return t.Do(ctx, http.MethodPost, path, body, out)
}

// Delete issues a DELETE with an optional JSON body.
func (t *Transport) Delete(ctx context.Context, path string, body any) error {
	return t.Do(ctx, http.MethodDelete, path, body, nil)
}

// Do performs one request.
//
// Returns:
//   - *HTTPError for a non-2xx status
//   - *NetworkError when no response was obtained
//   - a wrapped decode error when a 2xx body is not valid JSON for out
func (t *Transport) Do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s %s request: %w", method, path, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building %s %s request: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return &NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &NetworkError{Op: "reading " + method + " " + path, Err: err}
	}

	t.observe(resp.Header)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt := string(data)
		if len(excerpt) > maxErrorBody {
			excerpt = excerpt[:maxErrorBody]
		}
		return &HTTPError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       excerpt,
			RetryAfter: parseRetryAfter(resp.Header.Get(headerRetryAfter), time.Now()),
		}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// observe forwards rate-limit headers, if any, to the observer.
func (t *Transport) observe(h http.Header) {
	if t.observer == nil {
		return
	}
	rawRemaining := h.Get(headerRateRemaining)
	rawReset := h.Get(headerRateReset)
	if rawRemaining == "" && rawReset == "" {
		return
	}

	remaining := -1
	if n, err := strconv.Atoi(strings.TrimSpace(rawRemaining)); err == nil {
		remaining = n
	}
	limit := 0
	if n, err := strconv.Atoi(strings.TrimSpace(h.Get(headerRateLimit))); err == nil {
		limit = n
	}
	t.observer.ObserveRateHeaders(limit, remaining, parseResetTime(rawReset))
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// parseResetTime accepts RFC3339, epoch seconds or an HTTP date.
func parseResetTime(v string) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}
	}
	if at, err := time.Parse(time.RFC3339, v); err == nil {
		return at
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(secs, 0)
	}
	if at, err := http.ParseTime(v); err == nil {
		return at
	}
	return time.Time{}
}
