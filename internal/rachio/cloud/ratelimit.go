package cloud

import (
	"sync"
	"time"
)

// RateLimiter is a fixed-window request counter for one credential.
//
// A window opens on the first request after the previous one ended and
// admits at most quota requests until it closes. The provider's own
// rate-limit headers may shrink the remaining allowance or push the end
// of the window out, never the reverse.
//
// Thread Safety: safe for concurrent use.
type RateLimiter struct {
	mu     sync.Mutex
	quota  int
	period time.Duration
	now    func() time.Time

	windowEnd   time.Time
	used        int
	allowance   int
	pausedUntil time.Time
}

// NewRateLimiter creates a limiter admitting quota requests per period.
func NewRateLimiter(quota int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		quota:  quota,
		period: period,
		now:    time.Now,
	}
}

// SetClock replaces the time source. Used by tests.
func (l *RateLimiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
}

// Acquire consumes one slot.
//
// Returns:
//   - error: ErrRateLimitExceeded when the window is spent or the provider
//     asked us to back off
func (l *RateLimiter) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Before(l.pausedUntil) {
		return ErrRateLimitExceeded
	}
	l.rollLocked(now)
	if l.used >= l.allowance {
		return ErrRateLimitExceeded
	}
	l.used++
	return nil
}

// ObserveRateHeaders tightens the current window from provider headers.
// It implements RateObserver.
func (l *RateLimiter) ObserveRateHeaders(limit, remaining int, reset time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollLocked(l.now())

	if limit > 0 && limit < l.allowance {
		l.allowance = max(limit, l.used)
	}
	if remaining >= 0 && remaining < l.allowance-l.used {
		l.allowance = l.used + remaining
	}
	if reset.After(l.windowEnd) {
		l.windowEnd = reset
	}
}

// PauseFor rejects every request for d. Used after a 429.
func (l *RateLimiter) PauseFor(d time.Duration) {
	l.mu.Lock()
	if until := l.now().Add(d); until.After(l.pausedUntil) {
		l.pausedUntil = until
	}
	l.mu.Unlock()
}

// Remaining returns how many requests the current window still admits.
func (l *RateLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollLocked(l.now())
	return l.allowance - l.used
}

// ResetAt returns when the current window closes.
func (l *RateLimiter) ResetAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollLocked(l.now())
	return l.windowEnd
}

// rollLocked opens a fresh window once the current one has ended.
func (l *RateLimiter) rollLocked(now time.Time) {
	if !l.windowEnd.IsZero() && now.Before(l.windowEnd) {
		return
	}
	l.windowEnd = now.Add(l.period)
	l.used = 0
	l.allowance = l.quota
}
