package cve

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is the NVD sliding-window limiter (spec.md §4.5, §5): a
// mutex-guarded timestamp ring, capacity depending on whether an API key
// is configured. golang.org/x/time/rate implements a token bucket, which
// refills continuously rather than expiring exact call timestamps after
// window; it cannot express "wait until the oldest call in the last 30s
// ages out" without reimplementing this same ring internally (see
// DESIGN.md), so this is hand-rolled.
type RateLimiter struct {
	mu        sync.Mutex
	window    time.Duration
	capacity  int
	timestamps []time.Time
}

// NewRateLimiter constructs a limiter with the given sliding window and
// capacity.
func NewRateLimiter(window time.Duration, capacity int) *RateLimiter {
	return &RateLimiter{window: window, capacity: capacity}
}

// Wait blocks until a call slot is available under the sliding window,
// then reserves it. It returns only on ctx cancellation or once the slot
// is reserved; it never fails from rate limiting itself (spec.md §7).
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		wait, ok := r.reserve()
		if ok {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve attempts to record a call now. If the window is full it returns
// how long to wait before the oldest entry ages out (plus a 100ms safety
// margin), and false.
func (r *RateLimiter) reserve() (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-r.window)

	// drop expired timestamps from the front of the ring
	i := 0
	for i < len(r.timestamps) && r.timestamps[i].Before(cutoff) {
		i++
	}
	r.timestamps = r.timestamps[i:]

	if len(r.timestamps) < r.capacity {
		r.timestamps = append(r.timestamps, now)
		return 0, true
	}

	oldest := r.timestamps[0]
	wait := oldest.Add(r.window).Sub(now) + 100*time.Millisecond
	return wait, false
}
