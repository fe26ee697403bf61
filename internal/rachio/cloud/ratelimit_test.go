package cloud

import (
	"errors"
	"testing"
	"time"
)

func TestRateLimiter_QuotaAndRollover(t *testing.T) {
	clock := newFakeClock()
	l := NewRateLimiter(3, time.Hour)
	l.SetClock(clock.Now)

	for i := 0; i < 3; i++ {
		if err := l.Acquire(); err != nil {
			t.Fatalf("Acquire() #%d error = %v", i+1, err)
		}
	}
	if err := l.Acquire(); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("Acquire() #4 error = %v, want ErrRateLimitExceeded", err)
	}

	clock.Advance(59 * time.Minute)
	if err := l.Acquire(); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("Acquire() before rollover error = %v, want ErrRateLimitExceeded", err)
	}

	clock.Advance(time.Minute)
	if err := l.Acquire(); err != nil {
		t.Fatalf("Acquire() after rollover error = %v", err)
	}
	if got := l.Remaining(); got != 2 {
		t.Errorf("Remaining() = %d, want 2", got)
	}
}

func TestRateLimiter_HeadersOnlyTighten(t *testing.T) {
	tests := []struct {
		name          string
		limit         int
		remaining     int
		wantRemaining int
	}{
		{"lower remaining shrinks allowance", 0, 2, 2},
		{"higher remaining ignored", 0, 50, 9},
		{"absent remaining ignored", 0, -1, 9},
		{"lower limit shrinks allowance", 5, -1, 4},
		{"higher limit ignored", 100, -1, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			l := NewRateLimiter(10, time.Hour)
			l.SetClock(clock.Now)

			if err := l.Acquire(); err != nil {
				t.Fatalf("Acquire() error = %v", err)
			}
			l.ObserveRateHeaders(tt.limit, tt.remaining, time.Time{})

			if got := l.Remaining(); got != tt.wantRemaining {
				t.Errorf("Remaining() = %d, want %d", got, tt.wantRemaining)
			}
		})
	}
}

func TestRateLimiter_LaterResetExtendsWindow(t *testing.T) {
	clock := newFakeClock()
	l := NewRateLimiter(1, time.Hour)
	l.SetClock(clock.Now)

	if err := l.Acquire(); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	start := clock.Now()

	l.ObserveRateHeaders(0, -1, start.Add(30*time.Minute))
	if got := l.ResetAt(); !got.Equal(start.Add(time.Hour)) {
		t.Errorf("earlier reset moved window to %v", got)
	}

	l.ObserveRateHeaders(0, -1, start.Add(2*time.Hour))
	if got := l.ResetAt(); !got.Equal(start.Add(2 * time.Hour)) {
		t.Errorf("ResetAt() = %v, want %v", got, start.Add(2*time.Hour))
	}

	clock.Advance(90 * time.Minute)
	if err := l.Acquire(); !errors.Is(err, ErrRateLimitExceeded) {
		t.Errorf("Acquire() inside extended window error = %v, want ErrRateLimitExceeded", err)
	}
	clock.Advance(30 * time.Minute)
	if err := l.Acquire(); err != nil {
		t.Errorf("Acquire() after extended window error = %v", err)
	}
}

func TestRateLimiter_PauseFor(t *testing.T) {
	clock := newFakeClock()
	l := NewRateLimiter(10, time.Hour)
	l.SetClock(clock.Now)

	l.PauseFor(5 * time.Second)
	if err := l.Acquire(); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("Acquire() while paused error = %v, want ErrRateLimitExceeded", err)
	}

	clock.Advance(5 * time.Second)
	if err := l.Acquire(); err != nil {
		t.Fatalf("Acquire() after pause error = %v", err)
	}
}
