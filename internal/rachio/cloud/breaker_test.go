package cloud

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_OpenProbeClose(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker("acct", BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute})
	cb.SetClock(clock.Now)

	for i := 0; i < 2; i++ {
		done, err := cb.Allow()
		if err != nil {
			t.Fatalf("Allow() #%d error = %v", i+1, err)
		}
		done(OutcomeFailure)
	}
	if got := cb.State(); got != StateOpen {
		t.Fatalf("State() = %v, want open", got)
	}

	if _, err := cb.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Allow() while open error = %v, want ErrCircuitOpen", err)
	}

	clock.Advance(time.Minute)
	done, err := cb.Allow()
	if err != nil {
		t.Fatalf("Allow() probe error = %v", err)
	}
	if got := cb.State(); got != StateHalfOpen {
		t.Fatalf("State() during probe = %v, want half-open", got)
	}
	if _, err := cb.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("second caller during probe error = %v, want ErrCircuitOpen", err)
	}

	done(OutcomeSuccess)
	if got := cb.State(); got != StateClosed {
		t.Fatalf("State() after probe success = %v, want closed", got)
	}
}

func TestCircuitBreaker_ProbeFailureReopens(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker("acct", DefaultBreakerConfig())
	cb.SetClock(clock.Now)

	done, _ := cb.Allow()
	done(OutcomeFailure)

	clock.Advance(time.Minute)
	probe, err := cb.Allow()
	if err != nil {
		t.Fatalf("Allow() probe error = %v", err)
	}
	probe(OutcomeFailure)

	if got := cb.State(); got != StateOpen {
		t.Fatalf("State() after probe failure = %v, want open", got)
	}

	clock.Advance(59 * time.Second)
	if _, err := cb.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("cool-down did not restart: error = %v", err)
	}
	clock.Advance(time.Second)
	if _, err := cb.Allow(); err != nil {
		t.Fatalf("Allow() after restarted cool-down error = %v", err)
	}
}

func TestCircuitBreaker_NeutralReleasesProbe(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker("acct", DefaultBreakerConfig())
	cb.SetClock(clock.Now)

	done, _ := cb.Allow()
	done(OutcomeFailure)
	clock.Advance(time.Minute)

	probe, err := cb.Allow()
	if err != nil {
		t.Fatalf("Allow() probe error = %v", err)
	}
	probe(OutcomeNeutral)

	if got := cb.State(); got != StateHalfOpen {
		t.Fatalf("State() = %v, want half-open", got)
	}
	next, err := cb.Allow()
	if err != nil {
		t.Fatalf("Allow() after released probe error = %v", err)
	}
	next(OutcomeSuccess)
	if got := cb.State(); got != StateClosed {
		t.Errorf("State() = %v, want closed", got)
	}
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreaker("acct", BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute})

	for _, o := range []Outcome{OutcomeFailure, OutcomeSuccess, OutcomeFailure, OutcomeNeutral} {
		done, err := cb.Allow()
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		done(o)
	}
	if got := cb.State(); got != StateClosed {
		t.Errorf("State() = %v, want closed", got)
	}
	if got := cb.FailureCount(); got != 1 {
		t.Errorf("FailureCount() = %d, want 1", got)
	}
}

func TestCircuitBreaker_DoneIsIdempotent(t *testing.T) {
	cb := NewCircuitBreaker("acct", BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute})

	done, _ := cb.Allow()
	done(OutcomeFailure)
	done(OutcomeFailure)

	if got := cb.State(); got != StateClosed {
		t.Errorf("State() = %v, want closed after a single recorded failure", got)
	}
}

func TestBreakerStateString(t *testing.T) {
	tests := map[BreakerState]string{
		StateClosed:      "closed",
		StateOpen:        "open",
		StateHalfOpen:    "half-open",
		BreakerState(42): "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(s), got, want)
		}
	}
}
