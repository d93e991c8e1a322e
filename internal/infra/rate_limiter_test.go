package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"trade_sync/internal/domain"
)

func TestRateLimiter_TryAcquire(t *testing.T) {
	// Create limiter with 2 tokens, 10/second refill
	rl := NewRateLimiter(2, 10)

	// Should acquire first two tokens immediately
	if !rl.TryAcquire() {
		t.Error("expected first TryAcquire to succeed")
	}
	if !rl.TryAcquire() {
		t.Error("expected second TryAcquire to succeed")
	}

	// Third should fail (no tokens left)
	if rl.TryAcquire() {
		t.Error("expected third TryAcquire to fail")
	}
}

func TestRateLimiter_Refill(t *testing.T) {
	// Create limiter with 1 token, 10/second refill
	rl := NewRateLimiter(1, 10)

	if !rl.TryAcquire() {
		t.Error("expected first TryAcquire to succeed")
	}
	if rl.TryAcquire() {
		t.Error("expected immediate TryAcquire to fail")
	}

	// Wait for refill (100ms = 1 token at 10/s)
	time.Sleep(120 * time.Millisecond)

	if !rl.TryAcquire() {
		t.Error("expected TryAcquire to succeed after refill")
	}
}

func TestRateLimiter_WaitContextBlocks(t *testing.T) {
	// 1 token, 100/second refill (fast for testing)
	rl := NewRateLimiter(1, 100)

	ctx := context.Background()
	if err := rl.WaitContext(ctx, time.Second); err != nil {
		t.Fatalf("first WaitContext failed: %v", err)
	}

	// Second call should block ~10ms for the next token.
	start := time.Now()
	if err := rl.WaitContext(ctx, time.Second); err != nil {
		t.Fatalf("second WaitContext failed: %v", err)
	}
	elapsed := time.Since(start)

	if elapsed < 5*time.Millisecond {
		t.Errorf("expected WaitContext to block, but elapsed=%v", elapsed)
	}
}

func TestRateLimiter_WaitContextMaxWait(t *testing.T) {
	// 1 token, very slow refill: the wait can never complete in time.
	rl := NewRateLimiter(1, 0.1)
	rl.TryAcquire()

	err := rl.WaitContext(context.Background(), 20*time.Millisecond)
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}

func TestRateLimiter_WaitContextCancellation(t *testing.T) {
	rl := NewRateLimiter(1, 0.1)
	rl.TryAcquire()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := rl.WaitContext(ctx, time.Minute)
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("expected ErrRateLimited on cancellation, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("WaitContext did not return promptly on cancellation")
	}
}
