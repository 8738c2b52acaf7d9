package node

import (
	"math/rand"
	"testing"
	"time"

	"github.com/danmuck/ringdht/internal/testutil/testlog"
)

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     time.Second,
	}
	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
	}
	for i, w := range want {
		if got := NextBackoffDelay(cfg, i+1, nil); got != w {
			t.Fatalf("attempt%d got=%v want %v", i+1, got, w)
		}
	}
}

func TestNextBackoffDelayJitterRange(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     time.Second,
		Jitter:       true,
	}
	rng := rand.New(rand.NewSource(7))
	for attempt := 2; attempt <= 6; attempt++ {
		got := NextBackoffDelay(cfg, attempt, rng)
		if got < 0 || got > 1500*time.Millisecond {
			t.Fatalf("attempt%d jitter out of range: %v", attempt, got)
		}
	}
	if got := NextBackoffDelay(cfg, 3, nil); got != 200*time.Millisecond {
		t.Fatalf("nil rng jitter got=%v", got)
	}
}

func TestNextBackoffDelayClampsMultiplier(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{InitialDelay: 50 * time.Millisecond, Multiplier: 0.5}
	if got := NextBackoffDelay(cfg, 4, nil); got != 50*time.Millisecond {
		t.Fatalf("got=%v", got)
	}
	if got := NextBackoffDelay(BackoffConfig{}, 3, nil); got != 0 {
		t.Fatalf("zero config got=%v", got)
	}
}
