package llm

import (
	"fmt"
	"sync"
	"time"
)

// CircuitState represents the current state of the circuit breaker.
type CircuitState int

const (
	// CircuitClosed means the circuit is operational and requests flow through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the circuit has tripped due to failures and requests are blocked.
	CircuitOpen
	// CircuitHalfOpen means the circuit is testing if the endpoint has recovered.
	CircuitHalfOpen
)

// String returns a human-readable string for the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// Threshold is the number of hard failure units before the circuit trips.
	Threshold int
	// TransientThreshold is the number of transient failures inside
	// TransientWindow that together count as one hard failure unit.
	TransientThreshold int
	// TransientWindow is the sliding window over which transient failures
	// accumulate.
	TransientWindow time.Duration
	// ResetAfter is the cooldown before an open circuit admits a probe.
	ResetAfter time.Duration
}

// DefaultCircuitBreakerConfig returns the default breaker thresholds.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Threshold:          5,
		TransientThreshold: 3,
		TransientWindow:    5 * time.Minute,
		ResetAfter:         60 * time.Second,
	}
}

// CircuitBreaker implements the circuit breaker pattern for LLM calls.
//
// Hard failures count directly toward the trip threshold. Transient failures
// (timeouts, rate limits, connection resets) accumulate in a sliding window;
// once TransientThreshold of them land inside TransientWindow they are
// collapsed into a single hard failure unit and the window is cleared. A
// sporadic timeout therefore never trips the breaker, while a sustained
// degradation eventually does.
type CircuitBreaker struct {
	mu                 sync.RWMutex
	consecutiveFails   int
	threshold          int
	transientThreshold int
	transientWindow    time.Duration
	transientTimes     []time.Time
	resetAfter         time.Duration
	lastFailure        time.Time
	state              CircuitState
	now                func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		threshold:          config.Threshold,
		transientThreshold: config.TransientThreshold,
		transientWindow:    config.TransientWindow,
		resetAfter:         config.ResetAfter,
		state:              CircuitClosed,
		now:                time.Now,
	}
}

// Allow returns true if the circuit breaker admits a request.
// It transitions to half-open after the cooldown expires; the half-open state
// admits exactly one probe at a time.
func (cb *CircuitBreaker) Allow() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true, nil
	case CircuitOpen:
		if cb.now().Sub(cb.lastFailure) > cb.resetAfter {
			cb.state = CircuitHalfOpen
			return true, nil
		}
		return false, NewError(ErrorTypeCircuitOpen,
			fmt.Sprintf("circuit breaker open: LLM endpoint appears to be down (failed %d times, last failure %v ago)",
				cb.consecutiveFails, cb.now().Sub(cb.lastFailure).Round(time.Second)),
			false, nil)
	case CircuitHalfOpen:
		// A probe is already in flight, reject additional requests
		return false, NewError(ErrorTypeCircuitOpen,
			"circuit breaker half-open: testing if LLM endpoint has recovered", false, nil)
	default:
		return false, NewError(ErrorTypeCircuitOpen,
			fmt.Sprintf("circuit breaker in unknown state: %v", cb.state), false, nil)
	}
}

// RecordSuccess resets all failure accounting and closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails = 0
	cb.transientTimes = nil
	cb.state = CircuitClosed
}

// RecordFailure records a failure. Transient failures accumulate in the
// sliding window and only count toward the trip threshold when enough of
// them cluster together; hard failures count immediately.
func (cb *CircuitBreaker) RecordFailure(transient bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	cb.lastFailure = now

	// A failed half-open probe reopens the circuit regardless of kind.
	if cb.state == CircuitHalfOpen {
		cb.state = CircuitOpen
		cb.consecutiveFails++
		return
	}

	if transient {
		cb.transientTimes = append(cb.transientTimes, now)
		cb.pruneTransientLocked(now)
		if len(cb.transientTimes) < cb.transientThreshold {
			return
		}
		// Promote the cluster to one hard failure unit.
		cb.transientTimes = nil
	}

	cb.consecutiveFails++
	if cb.consecutiveFails >= cb.threshold {
		cb.state = CircuitOpen
	}
}

// AbortProbe returns a half-open circuit to open without counting a failure.
// An admitted probe that never reaches the endpoint (rate-limiter wait
// interrupted by cancellation) must release the half-open slot, otherwise no
// Record call ever transitions the breaker out of half-open.
func (cb *CircuitBreaker) AbortProbe() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitOpen
	}
}

// pruneTransientLocked drops transient failures older than the window.
// Caller must hold cb.mu.
func (cb *CircuitBreaker) pruneTransientLocked(now time.Time) {
	cutoff := now.Add(-cb.transientWindow)
	kept := cb.transientTimes[:0]
	for _, t := range cb.transientTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	cb.transientTimes = kept
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// ConsecutiveFailures returns the current count of hard failure units.
func (cb *CircuitBreaker) ConsecutiveFailures() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.consecutiveFails
}

// Reset manually resets the circuit breaker to closed state.
// Intended for tests and manual intervention only.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails = 0
	cb.transientTimes = nil
	cb.state = CircuitClosed
}
