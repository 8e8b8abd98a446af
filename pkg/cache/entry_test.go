package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestEntry_Expired(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		ttl  int64
		at   time.Duration
		want bool
	}{
		{name: "fresh", ttl: 60, at: 30 * time.Second, want: false},
		{name: "exactly at ttl", ttl: 60, at: 60 * time.Second, want: false},
		{name: "past ttl", ttl: 60, at: 61 * time.Second, want: true},
		{name: "zero ttl never expires", ttl: 0, at: 365 * 24 * time.Hour, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Entry{CreatedAt: created, TTL: tt.ttl}
			if got := e.Expired(created.Add(tt.at)); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewEntry_TTLSeconds(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		ttl  time.Duration
		want int64
	}{
		{name: "zero", ttl: 0, want: 0},
		{name: "negative", ttl: -time.Second, want: 0},
		{name: "sub-second rounds up", ttl: 200 * time.Millisecond, want: 1},
		{name: "whole seconds", ttl: time.Minute, want: 60},
		{name: "fraction rounds up", ttl: 1500 * time.Millisecond, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEntry("body", tt.ttl, created)
			if e.TTL != tt.want {
				t.Errorf("TTL = %d, want %d", e.TTL, tt.want)
			}
		})
	}

	short := NewEntry("body", 200*time.Millisecond, created)
	if !short.Expired(created.Add(2 * time.Second)) {
		t.Error("sub-second entry must expire")
	}
}

func TestMemoryStore_SubSecondTTLExpires(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(0)
	s.now = func() time.Time { return created }

	if err := s.Set(context.Background(), "k", "v", 500*time.Millisecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	s.now = func() time.Time { return created.Add(3 * time.Second) }
	if _, err := s.Get(context.Background(), "k"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() error = %v, want ErrCacheMiss", err)
	}
}

func TestEntry_Remaining(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	e := NewEntry("body", time.Minute, created)

	if e.Size != 4 {
		t.Errorf("Size = %d, want 4", e.Size)
	}
	if got := e.Remaining(created.Add(20 * time.Second)); got != 40*time.Second {
		t.Errorf("Remaining() = %v, want 40s", got)
	}
	if got := e.Remaining(created.Add(2 * time.Minute)); got != 0 {
		t.Errorf("Remaining() after expiry = %v, want 0", got)
	}
	if got := NewEntry("x", 0, created).Remaining(created); got != 0 {
		t.Errorf("Remaining() without ttl = %v, want 0", got)
	}
}

func TestBuildKey(t *testing.T) {
	tests := []struct {
		id     int64
		suffix string
		want   string
	}{
		{42, "", "md_42"},
		{42, "rest", "md_42_rest"},
		{7, VariantREST, "md_7_rest"},
	}

	for _, tt := range tests {
		if got := BuildKey(tt.id, tt.suffix); got != tt.want {
			t.Errorf("BuildKey(%d, %q) = %q, want %q", tt.id, tt.suffix, got, tt.want)
		}
	}
}
