package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsRetriable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network error", NewNetworkError("connect", errors.New("refused")), true},
		{"transient api error", NewTransientAPIError("list_orders", 503, "unavailable"), true},
		{"permanent api error", NewPermanentAPIError("list_orders", 401, "unauthorized"), false},
		{"config error", &ConfigError{Field: "api.token", Err: errors.New("missing")}, false},
		{"plain error", errors.New("boom"), false},
		{"rate limited", ErrRateLimited, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetriable(tt.err); got != tt.want {
				t.Errorf("IsRetriable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRetriable_Wrapped(t *testing.T) {
	inner := NewTransientAPIError("get_quotes", 500, "internal")
	wrapped := fmt.Errorf("sync: %w", inner)

	if !IsRetriable(wrapped) {
		t.Error("expected wrapped transient error to stay retriable")
	}

	permanent := fmt.Errorf("sync: %w", NewPermanentAPIError("get_quotes", 404, "not found"))
	if IsRetriable(permanent) {
		t.Error("expected wrapped permanent error to stay non-retriable")
	}
}

func TestNetworkError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewNetworkError("read", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the underlying cause")
	}
}
