package supervisor

import (
	"math/rand"
	"testing"
	"time"
)

func TestNextBackoffDelay(t *testing.T) {
	cfg := BackoffConfig{InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2}
	want := []time.Duration{10, 20, 40, 50, 50}
	for i, w := range want {
		got := NextBackoffDelay(cfg, i+1, nil)
		if got != w*time.Millisecond {
			t.Fatalf("attempt %d: got %v want %v", i+1, got, w*time.Millisecond)
		}
	}
}

func TestNextBackoffDelayZeroInitialDisablesDelay(t *testing.T) {
	if d := NextBackoffDelay(BackoffConfig{Multiplier: 3}, 4, nil); d != 0 {
		t.Fatalf("expected no delay, got %v", d)
	}
}

func TestNextBackoffDelayJitterBounds(t *testing.T) {
	cfg := BackoffConfig{InitialDelay: 100 * time.Millisecond, Multiplier: 1, Jitter: true}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		d := NextBackoffDelay(cfg, 2, rng)
		if d < 50*time.Millisecond || d > 150*time.Millisecond {
			t.Fatalf("jittered delay out of range: %v", d)
		}
	}
}
