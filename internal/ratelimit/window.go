// internal/ratelimit/window.go
package ratelimit

import (
	"strings"
	"sync"
	"time"

	"github.com/fluxpay/gatekeeper/internal/clock"
)

// DefaultMaxEntries caps a key's bucket list. Time-based eviction is the
// dominant strategy (entries outside the largest window are dropped on every
// Increment, and Cleanup sweeps idle keys); the cap is only a safety valve,
// sized at two hours of one-per-second buckets so it never fires before
// time-based eviction under sane window spans.
const DefaultMaxEntries = 7200

// windowEntry is one second-granularity bucket: the number of admitted
// events whose timestamps fall inside that second.
type windowEntry struct {
	count int
	sec   int64 // unix second the bucket covers
}

func (e windowEntry) time() time.Time {
	return time.Unix(e.sec, 0)
}

// SlidingWindowCounter answers, for an arbitrary string key, whether the key
// has exceeded its ceilings over a set of trailing windows plus a one-second
// burst sub-window, and records the event when admitted.
//
// Events are coalesced into whole-second buckets, so window boundaries carry
// up to one second of imprecision. That is an accepted approximation of the
// design, not a defect.
type SlidingWindowCounter struct {
	mu         sync.Mutex
	clock      clock.Clock
	maxEntries int
	entries    map[string][]windowEntry
}

// NewSlidingWindowCounter creates an in-memory counter. maxEntries <= 0
// selects DefaultMaxEntries.
func NewSlidingWindowCounter(c clock.Clock, maxEntries int) *SlidingWindowCounter {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &SlidingWindowCounter{
		clock:      c,
		maxEntries: maxEntries,
		entries:    make(map[string][]windowEntry),
	}
}

// countSince sums bucket counts with timestamps strictly after the cutoff.
func countSince(entries []windowEntry, cutoff time.Time) int {
	total := 0
	for _, e := range entries {
		if e.time().After(cutoff) {
			total += e.count
		}
	}
	return total
}

// oldestSince returns the timestamp of the oldest bucket strictly after the
// cutoff. Buckets are ordered oldest first.
func oldestSince(entries []windowEntry, cutoff time.Time) (time.Time, bool) {
	for _, e := range entries {
		if t := e.time(); t.After(cutoff) {
			return t, true
		}
	}
	return time.Time{}, false
}

func ceilToSecond(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}
	return (d + time.Second - 1) / time.Second * time.Second
}

// Increment implements Counter. All windows are evaluated over the same
// bucket list before the event is recorded, so a single request is counted
// exactly once regardless of how many windows are enforced.
func (c *SlidingWindowCounter) Increment(key string, windows []Window, burst Window) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()

	maxSpan := burst.Span
	for _, w := range windows {
		if w.Span > maxSpan {
			maxSpan = w.Span
		}
	}

	// Slide: drop buckets at or before the start of the largest window.
	live := c.entries[key][:0]
	for _, e := range c.entries[key] {
		if e.time().After(now.Add(-maxSpan)) {
			live = append(live, e)
		}
	}

	// Deny if any ceiling is already met (>= tie-break: the limit is the
	// maximum number of admitted events, not the first denied one).
	denied := false
	var deciding Window
	for _, w := range append([]Window{burst}, windows...) {
		if countSince(live, now.Add(-w.Span)) >= w.Limit {
			if !denied || w.Span > deciding.Span {
				deciding = w
			}
			denied = true
		}
	}

	if denied {
		c.entries[key] = live
		resetAt := now.Add(deciding.Span)
		if oldest, ok := oldestSince(live, now.Add(-deciding.Span)); ok {
			resetAt = oldest.Add(deciding.Span)
		}
		return Result{
			Allowed:    false,
			Remaining:  0,
			Limit:      deciding.Limit,
			ResetAt:    resetAt,
			RetryAfter: ceilToSecond(resetAt.Sub(now)),
		}
	}

	// Admitted: the most constrained primary window drives Remaining,
	// Limit and ResetAt. The burst sub-window gates admission only.
	constrained := burst
	remaining := burst.Limit - countSince(live, now.Add(-burst.Span)) - 1
	for i, w := range windows {
		r := w.Limit - countSince(live, now.Add(-w.Span)) - 1
		if i == 0 || r < remaining {
			constrained = w
			remaining = r
		}
	}
	if remaining < 0 {
		remaining = 0
	}

	// Coalesce into the bucket for the containing second.
	sec := now.Unix()
	if n := len(live); n > 0 && live[n-1].sec == sec {
		live[n-1].count++
	} else {
		live = append(live, windowEntry{count: 1, sec: sec})
	}
	if len(live) > c.maxEntries {
		live = live[len(live)-c.maxEntries:]
	}
	c.entries[key] = live

	return Result{
		Allowed:   true,
		Remaining: remaining,
		Limit:     constrained.Limit,
		ResetAt:   now.Add(constrained.Span),
	}
}

// Stats implements Counter. Read-only: the bucket list is filtered for the
// window but not rewritten.
func (c *SlidingWindowCounter) Stats(key string, span time.Duration) KeyStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statsLocked(c.entries[key], span)
}

// StatsPrefix implements Counter.
func (c *SlidingWindowCounter) StatsPrefix(prefix string, span time.Duration) KeyStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var merged []windowEntry
	for key, entries := range c.entries {
		if strings.HasPrefix(key, prefix) {
			merged = append(merged, entries...)
		}
	}
	return c.statsLocked(merged, span)
}

func (c *SlidingWindowCounter) statsLocked(entries []windowEntry, span time.Duration) KeyStats {
	now := c.clock.Now()
	count := countSince(entries, now.Add(-span))
	rate := 0.0
	if span > 0 {
		rate = float64(count) / span.Seconds()
	}
	return KeyStats{
		Requests:      count,
		RatePerSecond: rate,
		WindowStart:   now.Add(-span),
	}
}

// Clear implements Counter.
func (c *SlidingWindowCounter) Clear(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// ClearPrefix implements Counter.
func (c *SlidingWindowCounter) ClearPrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

// Cleanup implements Counter. Runs on a timer so keys with no recent traffic
// are still swept.
func (c *SlidingWindowCounter) Cleanup(maxAge time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.clock.Now().Add(-maxAge)
	for key, entries := range c.entries {
		live := entries[:0]
		for _, e := range entries {
			if e.time().After(cutoff) {
				live = append(live, e)
			}
		}
		if len(live) == 0 {
			delete(c.entries, key)
		} else {
			c.entries[key] = live
		}
	}
}

// Len implements Counter.
func (c *SlidingWindowCounter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
