package domain

import (
	"errors"
	"fmt"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a network-related error that may be retriable
type NetworkError struct {
	Op        string // Operation that failed (e.g., "connect", "read", "write")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// APIError represents an upstream venue response error. Transient errors
// (timeouts, 5xx) count toward the circuit breaker and may be retried;
// permanent errors (4xx, malformed payloads) are surfaced directly so a
// single bad request cannot open the circuit for everyone.
type APIError struct {
	Op        string
	Status    int
	Message   string
	Transient bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: upstream status=%d msg=%s", e.Op, e.Status, e.Message)
}

func (e *APIError) IsRetriable() bool {
	return e.Transient
}

// NewTransientAPIError creates an error for 5xx-equivalent upstream failures.
func NewTransientAPIError(op string, status int, msg string) *APIError {
	return &APIError{Op: op, Status: status, Message: msg, Transient: true}
}

// NewPermanentAPIError creates an error for 4xx-equivalent upstream failures.
func NewPermanentAPIError(op string, status int, msg string) *APIError {
	return &APIError{Op: op, Status: status, Message: msg, Transient: false}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrRateLimited is returned when the local token budget is exhausted.
	// Deliberately not a RetriableError: deferral is not a failure, and it
	// must never count toward the circuit breaker.
	ErrRateLimited = errors.New("rate limited")

	// ErrStreamFailed is returned when the stream exhausts its reconnect budget.
	ErrStreamFailed = errors.New("stream connection failed permanently")

	// ErrNotConnected is returned on writes against a closed stream.
	ErrNotConnected = errors.New("not connected")

	// ErrSyncInProgress is returned when a manual trigger overlaps a running sync.
	ErrSyncInProgress = errors.New("sync already in progress")
)
