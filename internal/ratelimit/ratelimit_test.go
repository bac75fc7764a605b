package ratelimit

import (
	"testing"
	"time"
)

func TestKeyedRateLimiter_Allow(t *testing.T) {
	tests := []struct {
		name      string
		perMinute float64
		burst     int
		calls     int
		wantPass  int
	}{
		{name: "burst allows initial requests", perMinute: 10, burst: 3, calls: 3, wantPass: 3},
		{name: "exceeding burst blocks", perMinute: 10, burst: 2, calls: 5, wantPass: 2},
		{name: "disabled", perMinute: 0, burst: 1, calls: 20, wantPass: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := New(tt.perMinute, tt.burst)
			defer rl.Stop()

			passed := 0
			for i := 0; i < tt.calls; i++ {
				if rl.Allow("test") {
					passed++
				}
			}

			if passed != tt.wantPass {
				t.Errorf("Allow() passed %d, want %d", passed, tt.wantPass)
			}
		})
	}
}

func TestKeyedRateLimiter_KeysAreIndependent(t *testing.T) {
	rl := New(1, 1)
	defer rl.Stop()

	if !rl.Allow("a") {
		t.Fatal("first request for a should pass")
	}
	if rl.Allow("a") {
		t.Fatal("second request for a should be limited")
	}
	if !rl.Allow("b") {
		t.Fatal("b must not share a's bucket")
	}
}

func TestKeyedRateLimiter_Refill(t *testing.T) {
	rl := New(60, 1)
	defer rl.Stop()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.Allow("k") {
		t.Fatal("first request should pass")
	}
	if rl.Allow("k") {
		t.Fatal("bucket should be empty")
	}
	now = now.Add(time.Second)
	if !rl.Allow("k") {
		t.Fatal("one token should be refilled after a second")
	}
}

func TestKeyedRateLimiter_Sweep(t *testing.T) {
	rl := New(10, 1)
	defer rl.Stop()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("old")
	now = now.Add(idleTTL)
	rl.Allow("fresh")

	rl.sweep(now.Add(time.Second))

	if rl.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", rl.Len())
	}
}
