package infra

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"trade_sync/internal/domain"
)

// CircuitState represents the circuit breaker state.
type CircuitState int

const (
	StateClosed   CircuitState = iota // Normal operation
	StateOpen                         // Failing, reject requests
	StateHalfOpen                     // Testing recovery with a single trial
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitOpenError is returned when a call is rejected without being
// dispatched. RetryAfter is the remaining time until the next trial.
type CircuitOpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit %q open, retry after %s", e.Name, e.RetryAfter)
}

// CircuitBreakerConfig holds configuration for creating a circuit breaker.
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold int           // Failures within Window before opening
	Window           time.Duration // Rolling window for failure counting
	ResetTimeout     time.Duration // Time in OPEN before permitting a trial
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		Window:           60 * time.Second,
		ResetTimeout:     30 * time.Second,
	}
}

// CircuitBreaker implements three-state failure isolation.
// Thread-safe for concurrent use; when two callers race for the half-open
// trial only one is dispatched, the rest see the circuit as still open.
type CircuitBreaker struct {
	name string
	mu   sync.Mutex

	state         CircuitState
	failures      []time.Time // failure timestamps within the rolling window
	openedAt      time.Time
	trialInFlight bool

	failureThreshold int
	window           time.Duration
	resetTimeout     time.Duration
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name:             cfg.Name,
		state:            StateClosed,
		failureThreshold: cfg.FailureThreshold,
		window:           cfg.Window,
		resetTimeout:     cfg.ResetTimeout,
	}
}

// Execute runs op under the breaker's policy. It returns op's own error on
// failure, or a CircuitOpenError without invoking op when the circuit is open.
// Only retriable (transient) failures count toward the threshold: a malformed
// single request must not open the circuit for all callers.
func (cb *CircuitBreaker) Execute(op func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}

	err := op()
	if err == nil {
		cb.recordSuccess()
		return nil
	}

	cb.recordFailure(domain.IsRetriable(err))
	return err
}

// allow decides whether a call may proceed, dispatching at most one
// half-open trial.
func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil

	case StateOpen:
		remaining := cb.resetTimeout - time.Since(cb.openedAt)
		if remaining > 0 {
			return &CircuitOpenError{Name: cb.name, RetryAfter: remaining}
		}
		cb.state = StateHalfOpen
		cb.trialInFlight = true
		slog.Info("Circuit breaker transitioning to HALF_OPEN",
			slog.String("name", cb.name))
		return nil

	case StateHalfOpen:
		// A trial is already in flight; everyone else waits.
		return &CircuitOpenError{Name: cb.name, RetryAfter: 0}

	default:
		return &CircuitOpenError{Name: cb.name, RetryAfter: cb.resetTimeout}
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures = nil

	case StateHalfOpen:
		cb.state = StateClosed
		cb.failures = nil
		cb.trialInFlight = false
		slog.Info("Circuit breaker CLOSED (recovered)",
			slog.String("name", cb.name))
	}
}

// recordFailure counts countable failures toward the threshold. Permanent
// upstream errors pass through without affecting the state machine.
func (cb *CircuitBreaker) recordFailure(countable bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.state = StateOpen
		cb.openedAt = time.Now()
		cb.trialInFlight = false
		slog.Warn("Circuit breaker OPEN (half-open trial failed)",
			slog.String("name", cb.name))
		return
	}

	if !countable {
		return
	}

	now := time.Now()
	cb.failures = append(cb.failures, now)
	cb.pruneLocked(now)

	if cb.state == StateClosed && len(cb.failures) >= cb.failureThreshold {
		cb.state = StateOpen
		cb.openedAt = now
		slog.Warn("Circuit breaker OPEN (failures exceeded threshold)",
			slog.String("name", cb.name),
			slog.Int("failures", len(cb.failures)))
	}
}

// pruneLocked drops failures that have aged out of the rolling window.
// Must be called with mutex held.
func (cb *CircuitBreaker) pruneLocked(now time.Time) {
	cutoff := now.Add(-cb.window)
	kept := cb.failures[:0]
	for _, t := range cb.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	cb.failures = kept
}

// State returns the current state (for monitoring).
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// FailureCount returns the number of failures inside the rolling window.
func (cb *CircuitBreaker) FailureCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.pruneLocked(time.Now())
	return len(cb.failures)
}

// Reset forces the circuit breaker to closed state (for testing/admin).
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = nil
	cb.trialInFlight = false
	slog.Info("Circuit breaker RESET", slog.String("name", cb.name))
}
