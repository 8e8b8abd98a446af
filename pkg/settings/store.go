package settings

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Store publishes settings snapshots to concurrent readers.
type Store struct {
	current atomic.Pointer[Settings]

	mu          sync.Mutex
	subscribers []func(old, updated Settings)
}

// NewStore validates initial and returns a store holding it.
func NewStore(initial Settings) (*Store, error) {
	if err := initial.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	s := &Store{}
	snapshot := initial.Clone()
	s.current.Store(&snapshot)
	return s, nil
}

// Load returns the current snapshot. Callers must not mutate slices in it.
func (s *Store) Load() Settings {
	return *s.current.Load()
}

// Update applies fn to a copy of the current snapshot, validates the result
// and publishes it. Subscribers run after publication, in registration order.
func (s *Store) Update(fn func(*Settings)) error {
	s.mu.Lock()
	old := s.Load()
	next := old.Clone()
	fn(&next)
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("invalid settings: %w", err)
	}
	s.current.Store(&next)
	subs := append([]func(old, updated Settings){}, s.subscribers...)
	s.mu.Unlock()

	for _, sub := range subs {
		sub(old, next)
	}
	return nil
}

// Subscribe registers fn to be called after every successful Update.
func (s *Store) Subscribe(fn func(old, updated Settings)) {
	s.mu.Lock()
	s.subscribers = append(s.subscribers, fn)
	s.mu.Unlock()
}
