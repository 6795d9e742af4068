package security

import (
	"fmt"
	"log/slog"
	"testing"
	"time"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(1, 2, slog.New(slog.DiscardHandler))
	defer rl.Stop()

	if !rl.Allow("1.2.3.4") {
		t.Error("first request should be allowed")
	}
	if !rl.Allow("1.2.3.4") {
		t.Error("second request should be allowed within the burst")
	}
	if rl.Allow("1.2.3.4") {
		t.Error("third request should exceed the burst")
	}
}

func TestRateLimiter_PerIdentifier(t *testing.T) {
	rl := NewRateLimiter(1, 1, slog.New(slog.DiscardHandler))
	defer rl.Stop()

	if !rl.Allow("1.2.3.4") {
		t.Error("first identifier should be allowed")
	}
	if rl.Allow("1.2.3.4") {
		t.Error("first identifier should be limited")
	}
	if !rl.Allow("5.6.7.8") {
		t.Error("a different identifier has its own bucket")
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(10, 10, slog.New(slog.DiscardHandler))
	defer rl.Stop()

	rl.Allow("1.2.3.4")
	rl.Allow("5.6.7.8")

	// Nothing is idle yet.
	rl.Cleanup(time.Minute)
	rl.mu.Lock()
	remaining := len(rl.limiters)
	rl.mu.Unlock()
	if remaining != 2 {
		t.Errorf("limiters after no-op cleanup = %d, want 2", remaining)
	}

	// Everything is idle relative to a zero threshold.
	time.Sleep(time.Millisecond)
	rl.Cleanup(0)
	rl.mu.Lock()
	remaining = len(rl.limiters)
	rl.mu.Unlock()
	if remaining != 0 {
		t.Errorf("limiters after cleanup = %d, want 0", remaining)
	}
}

func TestRateLimiter_LRUEviction(t *testing.T) {
	rl := NewRateLimiter(10, 10, slog.New(slog.DiscardHandler))
	defer rl.Stop()
	rl.maxEntries = 3

	for i := 0; i < 3; i++ {
		rl.Allow(fmt.Sprintf("ip-%d", i))
	}

	// Touch ip-0 so ip-1 becomes the LRU entry.
	rl.Allow("ip-0")
	rl.Allow("ip-new")

	rl.mu.Lock()
	_, oldest := rl.limiters["ip-1"]
	_, kept := rl.limiters["ip-0"]
	total := len(rl.limiters)
	rl.mu.Unlock()

	if oldest {
		t.Error("the least recently used entry should have been evicted")
	}
	if !kept {
		t.Error("a recently touched entry should survive eviction")
	}
	if total != 3 {
		t.Errorf("limiters = %d, want the configured maximum of 3", total)
	}
}

func TestRateLimiter_StopIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, 1, slog.New(slog.DiscardHandler))
	rl.Stop()
	rl.Stop()
}
