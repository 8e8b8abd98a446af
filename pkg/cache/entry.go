package cache

import (
	"time"
)

// Entry is a stored Markdown rendering with its expiry metadata.
// The JSON form is the file driver's sidecar and the Redis payload.
type Entry struct {
	// Value is the rendered Markdown. Omitted from sidecar files.
	Value string `json:"value,omitempty"`

	// CreatedAt is when the entry was written.
	CreatedAt time.Time `json:"created"`

	// TTL is the lifetime in whole seconds; 0 never expires.
	TTL int64 `json:"ttl"`

	// Size is len(Value) in bytes at write time.
	Size int `json:"size"`
}

// NewEntry builds an entry created at now. Positive TTLs are rounded up to
// whole seconds so a short TTL never turns into "no expiry".
func NewEntry(value string, ttl time.Duration, now time.Time) Entry {
	return Entry{
		Value:     value,
		CreatedAt: now,
		TTL:       ttlSeconds(ttl),
		Size:      len(value),
	}
}

func ttlSeconds(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	secs := int64(ttl / time.Second)
	if ttl%time.Second != 0 {
		secs++
	}
	return secs
}

// Expired reports whether the entry must be treated as absent at now.
func (e Entry) Expired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.Sub(e.CreatedAt) > time.Duration(e.TTL)*time.Second
}

// Remaining returns the time left before expiry, or 0 for entries that
// never expire or already have.
func (e Entry) Remaining(now time.Time) time.Duration {
	if e.TTL <= 0 {
		return 0
	}
	left := e.CreatedAt.Add(time.Duration(e.TTL) * time.Second).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}
