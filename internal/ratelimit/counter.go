package ratelimit

import "time"

// Window pairs a trailing time span with the maximum number of events
// admitted inside it.
type Window struct {
	Span  time.Duration
	Limit int
}

// Result is the outcome of one admission check.
type Result struct {
	// Allowed reports whether the event was admitted and recorded.
	Allowed bool
	// Remaining is the number of further events the most constrained
	// window would admit. Zero when denied.
	Remaining int
	// Limit is the ceiling of the window that determined the decision.
	Limit int
	// ResetAt is when the deciding window will have fully rolled over.
	ResetAt time.Time
	// RetryAfter is how long a denied caller should wait before retrying.
	// Zero when allowed.
	RetryAfter time.Duration
}

// KeyStats is a read-only traffic snapshot for a counter key.
type KeyStats struct {
	// Requests is the number of admitted events inside the window.
	Requests int
	// RatePerSecond is Requests divided by the window span.
	RatePerSecond float64
	// WindowStart is the beginning of the observed window.
	WindowStart time.Time
}

// Counter is the admission-counting capability the limiter is built on.
// The in-memory SlidingWindowCounter is the default implementation; a
// distributed store can be substituted without touching the Limiter.
//
// Implementations must be safe for concurrent use: Increment performs a
// read-evict-write sequence that would otherwise lose updates.
type Counter interface {
	// Increment records one event for key if every window and the burst
	// sub-window are under their ceilings, and reports the decision.
	Increment(key string, windows []Window, burst Window) Result

	// Stats reports admitted traffic for key over the trailing span.
	Stats(key string, span time.Duration) KeyStats

	// StatsPrefix aggregates Stats across every key with the prefix.
	StatsPrefix(prefix string, span time.Duration) KeyStats

	// Clear removes key and its history entirely.
	Clear(key string)

	// ClearPrefix removes every key with the prefix.
	ClearPrefix(prefix string)

	// Cleanup drops entries older than maxAge and deletes emptied keys.
	Cleanup(maxAge time.Duration)

	// Len reports the number of tracked keys.
	Len() int
}
