package executor

import (
	"sync"
	"time"
)

// RateLimiter enforces a strict rolling-window cap on the number of
// transactions submitted: unlike a token bucket, it never refills early —
// a slot only frees up once its timestamp ages out of the window.
type RateLimiter struct {
	mu         sync.Mutex
	window     time.Duration
	limit      int
	timestamps []time.Time
}

// NewRateLimiter returns a limiter allowing at most limit transactions in
// any trailing 5-minute window.
func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{window: 5 * time.Minute, limit: limit}
}

// Allow evicts timestamps older than the window, then reports whether a
// new transaction may be sent at now — recording it if so.
func (r *RateLimiter) Allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-r.window)
	i := 0
	for i < len(r.timestamps) && r.timestamps[i].Before(cutoff) {
		i++
	}
	r.timestamps = r.timestamps[i:]

	if len(r.timestamps) >= r.limit {
		return false
	}
	r.timestamps = append(r.timestamps, now)
	return true
}

// TryTrim evicts timestamps older than the window and records now, but
// never refuses: used by intents that must always be allowed to proceed
// (Take, CancelNTake, Cancel) while still counting toward the window for
// any Make/Move that follows.
func (r *RateLimiter) TryTrim(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-r.window)
	i := 0
	for i < len(r.timestamps) && r.timestamps[i].Before(cutoff) {
		i++
	}
	r.timestamps = r.timestamps[i:]
	r.timestamps = append(r.timestamps, now)
}

// SetLimit updates the allowed count, taking effect on the next Allow call.
// Used when portfolio_config's tx_limit_5min changes on a config reload.
func (r *RateLimiter) SetLimit(limit int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limit = limit
}
