package cloud

import (
	"fmt"
	"sync"
	"time"
)

// BreakerState represents the current state of a circuit breaker.
type BreakerState int

const (
	// StateClosed - calls flow normally
	StateClosed BreakerState = iota
	// StateOpen - calls are rejected until the cool-down elapses
	StateOpen
	// StateHalfOpen - a single probe call decides between closed and open
	StateHalfOpen
)

// String returns a string representation of the breaker state.
func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Outcome is what a guarded call reports back to the breaker.
type Outcome int

const (
	// OutcomeSuccess counts towards closing the circuit.
	OutcomeSuccess Outcome = iota
	// OutcomeFailure counts towards opening the circuit.
	OutcomeFailure
	// OutcomeNeutral leaves the state alone (local rejection, cancellation).
	OutcomeNeutral
)

// BreakerConfig holds configuration for the circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before admitting a probe.
	Cooldown time.Duration
}

// DefaultBreakerConfig opens on the first retry-exhausted failure and
// probes again after a minute.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 1,
		Cooldown:         time.Minute,
	}
}

// CircuitBreaker guards one credential's calls to the provider.
//
// Thread Safety: safe for concurrent use.
type CircuitBreaker struct {
	name   string
	config BreakerConfig

	mu           sync.Mutex
	state        BreakerState
	failureCount int
	openedAt     time.Time
	probing      bool
	now          func() time.Time

	onStateChange func(from, to BreakerState)
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(name string, cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	return &CircuitBreaker{
		name:   name,
		config: cfg,
		state:  StateClosed,
		now:    time.Now,
	}
}

// SetClock replaces the time source. Used by tests.
func (cb *CircuitBreaker) SetClock(now func() time.Time) {
	cb.mu.Lock()
	cb.now = now
	cb.mu.Unlock()
}

// OnStateChange registers a callback invoked, outside the lock, on every
// transition.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to BreakerState)) {
	cb.mu.Lock()
	cb.onStateChange = fn
	cb.mu.Unlock()
}

// Allow asks to place a call.
//
// Returns:
//   - func(Outcome): must be called exactly once with the call's outcome
//   - error: ErrCircuitOpen if the call must not be placed
func (cb *CircuitBreaker) Allow() (func(Outcome), error) {
	cb.mu.Lock()

	now := cb.now()
	from := cb.state
	probe := false

	switch cb.state {
	case StateClosed:
	case StateOpen:
		if now.Sub(cb.openedAt) < cb.config.Cooldown {
			cb.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, cb.name)
		}
		cb.state = StateHalfOpen
		cb.probing = true
		probe = true
	case StateHalfOpen:
		if cb.probing {
			cb.mu.Unlock()
			return nil, fmt.Errorf("%w: %s (probe in flight)", ErrCircuitOpen, cb.name)
		}
		cb.probing = true
		probe = true
	}

	to := cb.state
	notify := cb.onStateChange
	cb.mu.Unlock()

	if from != to && notify != nil {
		notify(from, to)
	}

	var once sync.Once
	return func(o Outcome) {
		once.Do(func() { cb.record(o, probe) })
	}, nil
}

// record applies a call outcome.
func (cb *CircuitBreaker) record(o Outcome, probe bool) {
	cb.mu.Lock()
	from := cb.state

	if probe {
		cb.probing = false
		switch o {
		case OutcomeSuccess:
			cb.state = StateClosed
			cb.failureCount = 0
		case OutcomeFailure:
			cb.state = StateOpen
			cb.openedAt = cb.now()
		case OutcomeNeutral:
		}
	} else if cb.state == StateClosed {
		switch o {
		case OutcomeSuccess:
			cb.failureCount = 0
		case OutcomeFailure:
			cb.failureCount++
			if cb.failureCount >= cb.config.FailureThreshold {
				cb.state = StateOpen
				cb.openedAt = cb.now()
			}
		case OutcomeNeutral:
		}
	}

	to := cb.state
	notify := cb.onStateChange
	cb.mu.Unlock()

	if from != to && notify != nil {
		notify(from, to)
	}
}

// State returns the current state. An open circuit whose cool-down has
// elapsed still reports open until the next call probes it.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// FailureCount returns the consecutive failure count in the closed state.
func (cb *CircuitBreaker) FailureCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureCount
}
