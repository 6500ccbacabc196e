// Package resilience provides retry and circuit breaker primitives for the
// translation providers.
//
// [Retry] is the explicit replacement for decorator-style retry wrappers: the
// caller classifies each error as retryable or fatal and gets a bounded loop
// with a fixed delay. [CircuitBreaker] is a classic three-state breaker
// (closed → open → half-open) used per translation provider so a dead
// endpoint is skipped by the pool instead of burning its retry budget.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Allow] when the breaker is in
// the open state and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed is the normal operating state; all calls are forwarded.
	StateClosed State = iota

	// StateOpen indicates the breaker has tripped due to consecutive
	// failures. Calls are rejected immediately with [ErrCircuitOpen] until
	// the reset timeout elapses.
	StateOpen

	// StateHalfOpen is the probe state entered after the reset timeout. One
	// call at a time is allowed through; success closes the breaker, failure
	// re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
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

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before allowing a
	// probe call. Default: 30s.
	ResetTimeout time.Duration
}

// CircuitBreaker implements the three-state circuit breaker pattern with a
// split Allow/Record API so callers that already own a call site (like the
// translator pool's retry loop) can consult the breaker without wrapping
// their work in a closure.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration

	mu              sync.Mutex
	state           State
	consecutiveFail int
	lastFailure     time.Time
	probing         bool
}

// NewCircuitBreaker creates a [CircuitBreaker] with the supplied configuration.
// Zero-value config fields are replaced with sensible defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		state:        StateClosed,
	}
}

// Allow reports whether a call may proceed. It returns [ErrCircuitOpen] when
// the breaker is open (or a probe is already in flight in half-open). Every
// nil return MUST be paired with exactly one later [CircuitBreaker.Record].
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil

	case StateOpen:
		if time.Since(cb.lastFailure) < cb.resetTimeout {
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probing = true
		slog.Info("circuit breaker transitioning to half-open", "name", cb.name)
		return nil

	default: // StateHalfOpen
		if cb.probing {
			return ErrCircuitOpen
		}
		cb.probing = true
		return nil
	}
}

// Record reports the outcome of a call previously admitted by [CircuitBreaker.Allow].
func (cb *CircuitBreaker) Record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.probing = false
		if err != nil {
			cb.state = StateOpen
			cb.lastFailure = time.Now()
			slog.Warn("circuit breaker re-opened from half-open", "name", cb.name)
			return
		}
		cb.state = StateClosed
		cb.consecutiveFail = 0
		slog.Info("circuit breaker closed after successful probe", "name", cb.name)
		return
	}

	if err == nil {
		cb.consecutiveFail = 0
		return
	}

	cb.consecutiveFail++
	cb.lastFailure = time.Now()
	if cb.consecutiveFail >= cb.maxFailures {
		cb.state = StateOpen
		slog.Warn("circuit breaker opened",
			"name", cb.name,
			"consecutive_failures", cb.consecutiveFail)
	}
}

// Execute runs fn if the breaker allows it, recording the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	err := fn()
	cb.Record(err)
	return err
}

// State returns the current [State] of the breaker. If the breaker is open
// and the reset timeout has elapsed, the returned state is [StateHalfOpen]
// (the actual transition happens on the next [CircuitBreaker.Allow] call).
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.lastFailure) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset manually forces the breaker back to [StateClosed], clearing all
// failure counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.consecutiveFail = 0
	cb.probing = false
	slog.Info("circuit breaker manually reset", "name", cb.name)
}
