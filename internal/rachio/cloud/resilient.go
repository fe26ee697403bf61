package cloud

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Logger is the optional logging interface used by this package.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// RetryPolicy controls retries of transient failures.
type RetryPolicy struct {
	// MaxAttempts is the total number of HTTP attempts per call, first included.
	MaxAttempts int
	// BaseDelay is the wait before the second attempt; it doubles per attempt.
	BaseDelay time.Duration
	// MaxDelay caps a single wait.
	MaxDelay time.Duration
	// Jitter is the randomisation factor applied to each wait (0 disables).
	Jitter float64
}

// Options configures a resilient Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient Doer

	// Quota requests are admitted per Period.
	Quota  int
	Period time.Duration

	Retry   RetryPolicy
	Breaker BreakerConfig

	// Clock drives the limiter and breaker. Default: time.Now.
	Clock func() time.Time

	Logger Logger
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		BaseURL: DefaultBaseURL,
		Timeout: DefaultTimeout,
		Quota:   1700,
		Period:  24 * time.Hour,
		Retry: RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
			Jitter:      0.1,
		},
		Breaker: DefaultBreakerConfig(),
	}
}

// Client wraps a Transport with the per-credential resilience policies:
// circuit breaker check, then rate-limit check, then execution with retry.
//
// Thread Safety: safe for concurrent use.
type Client struct {
	id        string
	transport *Transport
	limiter   *RateLimiter
	breaker   *CircuitBreaker
	retry     RetryPolicy

	logger   Logger
	loggerMu sync.RWMutex
}

// NewClient creates a resilient client for one credential.
//
// Parameters:
//   - id: Opaque client identifier used in logs and errors
//   - apiKey: Bearer token for the provider
//   - opts: Policy options; zero fields take DefaultOptions values
//
// Returns:
//   - *Client: Ready for use
func NewClient(id, apiKey string, opts Options) *Client {
	def := DefaultOptions()
	if opts.Quota <= 0 {
		opts.Quota = def.Quota
	}
	if opts.Period <= 0 {
		opts.Period = def.Period
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	if opts.Retry.BaseDelay <= 0 {
		opts.Retry.BaseDelay = def.Retry.BaseDelay
	}
	if opts.Retry.MaxDelay < opts.Retry.BaseDelay {
		opts.Retry.MaxDelay = max(def.Retry.MaxDelay, opts.Retry.BaseDelay)
	}
	if opts.Breaker.Cooldown <= 0 {
		opts.Breaker.Cooldown = def.Breaker.Cooldown
	}

	limiter := NewRateLimiter(opts.Quota, opts.Period)
	breaker := NewCircuitBreaker(id, opts.Breaker)
	if opts.Clock != nil {
		limiter.SetClock(opts.Clock)
		breaker.SetClock(opts.Clock)
	}

	c := &Client{
		id: id,
		transport: NewTransport(TransportConfig{
			BaseURL:    opts.BaseURL,
			APIKey:     apiKey,
			Timeout:    opts.Timeout,
			HTTPClient: opts.HTTPClient,
			Observer:   limiter,
		}),
		limiter: limiter,
		breaker: breaker,
		retry:   opts.Retry,
		logger:  opts.Logger,
	}

	breaker.OnStateChange(func(from, to BreakerState) {
		c.logWarn("circuit breaker state changed", "client", id, "from", from.String(), "to", to.String())
	})

	return c
}

// ID returns the client identifier.
func (c *Client) ID() string {
	return c.id
}

// BreakerState returns the credential's circuit breaker state.
func (c *Client) BreakerState() BreakerState {
	return c.breaker.State()
}

// RateRemaining returns the requests left in the current rate window.
func (c *Client) RateRemaining() int {
	return c.limiter.Remaining()
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// Call performs one logical API call under every policy.
//
// Returns:
//   - ErrCircuitOpen or ErrRateLimitExceeded without contacting the provider
//   - ErrInterrupted wrapping the context error on cancellation
//   - the last *HTTPError / *NetworkError otherwise
func (c *Client) Call(ctx context.Context, method, path string, body, out any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}

	done, err := c.breaker.Allow()
	if err != nil {
		return err
	}

	if err := c.limiter.Acquire(); err != nil {
		done(OutcomeNeutral)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	err = c.execute(ctx, method, path, body, out)
	done(classify(ctx, err))
	return err
}

// execute runs the retry loop. The first attempt's rate-limit slot has
// already been taken by Call; every later attempt takes its own.
func (c *Client) execute(ctx context.Context, method, path string, body, out any) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.retry.BaseDelay
	exp.Multiplier = 2
	exp.MaxInterval = c.retry.MaxDelay
	exp.RandomizationFactor = c.retry.Jitter
	bo := &retryAfterBackOff{base: exp}

	attempt := 0
	var transientErr error
	operation := func() (struct{}, error) {
		if attempt > 0 {
			if err := ctx.Err(); err != nil {
				return struct{}{}, backoff.Permanent(err)
			}
			if err := c.limiter.Acquire(); err != nil {
				return struct{}{}, backoff.Permanent(err)
			}
		}
		attempt++

		err := c.transport.Do(ctx, method, path, body, out)
		if err == nil {
			return struct{}{}, nil
		}
		if !IsTransient(err) {
			return struct{}{}, backoff.Permanent(err)
		}

		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
			pause := httpErr.RetryAfter
			if pause <= 0 {
				pause = c.throttlePause(attempt)
			}
			c.limiter.PauseFor(pause)
			bo.hint = pause
		}
		transientErr = err
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.retry.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logDebug("retrying provider call",
				"client", c.id, "method", method, "path", path,
				"attempt", attempt, "wait", next.String(), "error", err)
		}),
	)
	if err == nil {
		return nil
	}

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrInterrupted, method, path, ctxErr)
	}

	if errors.Is(err, ErrRateLimitExceeded) {
		return fmt.Errorf("%s %s: %w after %w", method, path, err, transientErr)
	}

	if attempt > 1 && IsTransient(err) {
		c.logWarn("provider call failed after retries",
			"client", c.id, "method", method, "path", path, "attempts", attempt, "error", err)
	}
	return err
}

// throttlePause is how long the limiter holds back after a 429 that named
// no Retry-After: the exponential step for attempt, capped at MaxDelay.
func (c *Client) throttlePause(attempt int) time.Duration {
	pause := c.retry.BaseDelay
	for i := 1; i < attempt && pause < c.retry.MaxDelay; i++ {
		pause *= 2
	}
	if c.retry.MaxDelay > 0 && pause > c.retry.MaxDelay {
		pause = c.retry.MaxDelay
	}
	return pause
}

// classify maps a call result onto a breaker outcome. Only retry-exhausted
// network errors and 5xx responses count as failures; other HTTP answers
// prove the provider is reachable.
func classify(ctx context.Context, err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	if ctx.Err() != nil || errors.Is(err, ErrInterrupted) || errors.Is(err, ErrRateLimitExceeded) {
		return OutcomeNeutral
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return OutcomeFailure
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode >= http.StatusInternalServerError:
			return OutcomeFailure
		case httpErr.StatusCode == http.StatusTooManyRequests:
			return OutcomeNeutral
		}
	}
	return OutcomeSuccess
}

// retryAfterBackOff stretches the next exponential wait to honour a
// server-provided Retry-After.
type retryAfterBackOff struct {
	base backoff.BackOff
	hint time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	next := b.base.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if b.hint > next {
		next = b.hint
	}
	b.hint = 0
	return next
}

func (b *retryAfterBackOff) Reset() {
	b.base.Reset()
	b.hint = 0
}

func (c *Client) logDebug(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (c *Client) logWarn(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}
