package executor

import (
	"testing"
	"time"
)

func TestRateLimiterAllowsUpToLimit(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(2)
	now := time.Now()

	if !rl.Allow(now) {
		t.Fatalf("first call should be allowed")
	}
	if !rl.Allow(now) {
		t.Fatalf("second call should be allowed")
	}
	if rl.Allow(now) {
		t.Fatalf("third call within the window should be rejected")
	}
}

func TestRateLimiterEvictsOnlyByWindowAge(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(1)
	start := time.Now()

	if !rl.Allow(start) {
		t.Fatalf("first call should be allowed")
	}
	// still inside the 5-minute window: must stay rejected, unlike a
	// continuously-refilling token bucket which would allow it sooner.
	if rl.Allow(start.Add(4 * time.Minute)) {
		t.Fatalf("call at +4m should still be rejected")
	}
	if !rl.Allow(start.Add(5*time.Minute + time.Second)) {
		t.Fatalf("call at +5m1s should be allowed once the first timestamp ages out")
	}
}

func TestRateLimiterTryTrimNeverRefuses(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(1)
	now := time.Now()
	rl.Allow(now) // fills the only slot

	// TryTrim must still record+proceed even though the limit is exhausted.
	rl.TryTrim(now.Add(time.Minute))
	rl.TryTrim(now.Add(2 * time.Minute))

	if len(rl.timestamps) != 3 {
		t.Fatalf("timestamps = %d, want 3 (1 Allow + 2 TryTrim)", len(rl.timestamps))
	}
}

func TestRateLimiterSetLimit(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(1)
	now := time.Now()
	rl.Allow(now)
	rl.SetLimit(2)
	if !rl.Allow(now) {
		t.Fatalf("raising the limit should allow an additional call immediately")
	}
}
