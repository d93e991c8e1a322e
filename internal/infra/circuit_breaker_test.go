package infra

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"trade_sync/internal/domain"
)

func transientErr() error {
	return domain.NewNetworkError("test", errors.New("boom"))
}

func permanentErr() error {
	return domain.NewPermanentAPIError("test", 400, "bad request")
}

func TestCircuitBreaker_PassThroughWhenClosed(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig("test"))

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})

	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !called {
		t.Error("operation was not invoked")
	}
	if cb.State() != StateClosed {
		t.Errorf("expected CLOSED, got %s", cb.State())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cfg := CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 3,
		Window:           60 * time.Second,
		ResetTimeout:     100 * time.Millisecond,
	}
	cb := NewCircuitBreaker(cfg)

	// Three failures within the window open the circuit.
	for i := 0; i < 3; i++ {
		cb.Execute(transientErr)
	}

	if cb.State() != StateOpen {
		t.Fatalf("expected OPEN after 3 failures, got %s", cb.State())
	}

	// A fourth call fails immediately without dispatch.
	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})

	var openErr *CircuitOpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("expected CircuitOpenError, got %v", err)
	}
	if openErr.RetryAfter <= 0 {
		t.Errorf("expected positive RetryAfter, got %s", openErr.RetryAfter)
	}
	if called {
		t.Error("operation was invoked while circuit open")
	}
}

func TestCircuitBreaker_WindowExpiryForgivesOldFailures(t *testing.T) {
	cfg := CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 3,
		Window:           50 * time.Millisecond,
		ResetTimeout:     30 * time.Second,
	}
	cb := NewCircuitBreaker(cfg)

	cb.Execute(transientErr)
	cb.Execute(transientErr)

	// Let the first two failures age out of the rolling window.
	time.Sleep(80 * time.Millisecond)

	cb.Execute(transientErr)

	if cb.State() != StateClosed {
		t.Errorf("failures outside the window must not open the circuit, got %s", cb.State())
	}
	if got := cb.FailureCount(); got != 1 {
		t.Errorf("expected 1 failure in window, got %d", got)
	}
}

func TestCircuitBreaker_PermanentErrorsNotCounted(t *testing.T) {
	cfg := CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 2,
		Window:           60 * time.Second,
		ResetTimeout:     30 * time.Second,
	}
	cb := NewCircuitBreaker(cfg)

	// A stream of malformed requests must not open the circuit for everyone.
	for i := 0; i < 10; i++ {
		cb.Execute(permanentErr)
	}

	if cb.State() != StateClosed {
		t.Errorf("permanent errors must not trip the breaker, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cfg := CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 2,
		Window:           60 * time.Second,
		ResetTimeout:     30 * time.Millisecond,
	}
	cb := NewCircuitBreaker(cfg)

	cb.Execute(transientErr)
	cb.Execute(transientErr)
	if cb.State() != StateOpen {
		t.Fatal("expected OPEN state")
	}

	time.Sleep(40 * time.Millisecond)

	// Trial succeeds: circuit closes.
	err := cb.Execute(func() error { return nil })
	if err != nil {
		t.Fatalf("trial call failed: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("expected CLOSED after successful trial, got %s", cb.State())
	}
}

func TestCircuitBreaker_TrialFailureReopens(t *testing.T) {
	cfg := CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 2,
		Window:           60 * time.Second,
		ResetTimeout:     30 * time.Millisecond,
	}
	cb := NewCircuitBreaker(cfg)

	cb.Execute(transientErr)
	cb.Execute(transientErr)
	time.Sleep(40 * time.Millisecond)

	cb.Execute(transientErr)

	if cb.State() != StateOpen {
		t.Errorf("expected OPEN after failed trial, got %s", cb.State())
	}

	// The reset timeout restarts: an immediate call is rejected.
	var openErr *CircuitOpenError
	if err := cb.Execute(func() error { return nil }); !errors.As(err, &openErr) {
		t.Errorf("expected CircuitOpenError right after failed trial, got %v", err)
	}
}

func TestCircuitBreaker_SingleHalfOpenTrial(t *testing.T) {
	cfg := CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 1,
		Window:           60 * time.Second,
		ResetTimeout:     20 * time.Millisecond,
	}
	cb := NewCircuitBreaker(cfg)

	cb.Execute(transientErr)
	time.Sleep(30 * time.Millisecond)

	// Many goroutines race for the trial; exactly one must be dispatched.
	var dispatched atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cb.Execute(func() error {
				dispatched.Add(1)
				<-release
				return nil
			})
		}()
	}

	time.Sleep(50 * time.Millisecond)
	if got := dispatched.Load(); got != 1 {
		t.Errorf("expected exactly 1 trial dispatched, got %d", got)
	}
	close(release)
	wg.Wait()
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig("test"))

	for i := 0; i < 5; i++ {
		cb.Execute(transientErr)
	}
	if cb.State() != StateOpen {
		t.Fatal("expected OPEN state")
	}

	cb.Reset()

	if cb.State() != StateClosed {
		t.Errorf("expected CLOSED after Reset, got %s", cb.State())
	}
}
