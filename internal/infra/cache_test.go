package infra

import (
	"testing"
	"time"
)

func TestTTLCache_SetAndGet(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 1, time.Minute)

	got, ok := c.Get("a")
	if !ok {
		t.Fatal("expected hit for fresh entry")
	}
	if got != 1 {
		t.Errorf("expected 1, got %d", got)
	}
}

func TestTTLCache_ExpiredEntryIsAbsent(t *testing.T) {
	c := NewTTLCache[string, string]()

	c.Set("quote", "189.50", 20*time.Millisecond)
	time.Sleep(40 * time.Millisecond)

	// No background sweep runs; the read itself must treat it as absent.
	if _, ok := c.Get("quote"); ok {
		t.Error("expired entry was returned")
	}
	if c.Len() != 0 {
		t.Errorf("expected 0 live entries, got %d", c.Len())
	}
}

func TestTTLCache_Overwrite(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 1, time.Minute)
	c.Set("a", 2, time.Minute)

	got, _ := c.Get("a")
	if got != 2 {
		t.Errorf("expected overwritten value 2, got %d", got)
	}
}

func TestTTLCache_Invalidate(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 1, time.Minute)
	c.Invalidate("a")

	if _, ok := c.Get("a"); ok {
		t.Error("invalidated entry was returned")
	}
}

func TestTTLCache_Clear(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Clear()

	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", c.Len())
	}
}

func TestTTLCache_MissingKey(t *testing.T) {
	c := NewTTLCache[string, int]()

	if _, ok := c.Get("nope"); ok {
		t.Error("expected miss for unknown key")
	}
}
