// Package ratelimit throttles Markdown requests per client with a fixed
// window counter. Windows live in a Store shared by all handlers; the Redis
// store shares them across processes.
package ratelimit

import (
	"time"
)

// KeyPrefix starts every client window key.
const KeyPrefix = "mna:rl:"

// Window is one client's counter for the current fixed window.
type Window struct {
	// Count is the number of accepted requests in the window.
	Count int `json:"count"`

	// Start is when the window opened.
	Start time.Time `json:"start"`
}

// Elapsed reports whether the window is over at now and must restart.
func (w Window) Elapsed(now time.Time, length time.Duration) bool {
	return now.Sub(w.Start) >= length
}

// ResetAt returns when the window closes.
func (w Window) ResetAt(length time.Duration) time.Time {
	return w.Start.Add(length)
}

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed bool

	// Limit is the configured maximum per window.
	Limit int

	// Remaining is how many more requests the window accepts.
	Remaining int

	// RetryAfter is the delay advertised to denied clients.
	RetryAfter time.Duration

	// ResetAt is when the current window closes.
	ResetAt time.Time
}

// decide applies the fixed window policy to w at now. It returns the
// updated window and whether it changed; a denied request leaves w as is.
func decide(w *Window, now time.Time, limit int, length time.Duration) (Window, Decision, bool) {
	if w == nil || w.Elapsed(now, length) {
		next := Window{Count: 1, Start: now}
		return next, newDecision(true, next, limit, length), true
	}

	if w.Count+1 > limit {
		return *w, newDecision(false, *w, limit, length), false
	}

	next := Window{Count: w.Count + 1, Start: w.Start}
	return next, newDecision(true, next, limit, length), true
}

func newDecision(allowed bool, w Window, limit int, length time.Duration) Decision {
	return Decision{
		Allowed:    allowed,
		Limit:      limit,
		Remaining:  max(limit-w.Count, 0),
		RetryAfter: length,
		ResetAt:    w.ResetAt(length),
	}
}
