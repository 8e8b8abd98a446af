package ratelimit

import (
	"context"
	"sync"
	"time"
)

// sweepEvery is how many hits pass between sweeps of stale windows.
const sweepEvery = 1024

// MemoryStore keeps windows in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]windowState
	hits    int
	now     func() time.Time
}

type windowState struct {
	Window
	length time.Duration
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]windowState),
		now:     time.Now,
	}
}

func (s *MemoryStore) Hit(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	var current *Window
	if st, ok := s.windows[key]; ok {
		current = &st.Window
	}

	next, d, changed := decide(current, now, limit, window)
	if changed {
		s.windows[key] = windowState{Window: next, length: window}
	}

	s.hits++
	if s.hits%sweepEvery == 0 {
		s.sweep(now)
	}
	return d, nil
}

// Len returns the number of tracked clients.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// sweep drops windows that have elapsed. Caller holds mu.
func (s *MemoryStore) sweep(now time.Time) {
	for key, st := range s.windows {
		if st.Elapsed(now, st.length) {
			delete(s.windows, key)
		}
	}
}
