package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	key   string
	entry Entry
}

// MemoryStore is an in-process LRU bounded by total value bytes.
type MemoryStore struct {
	mu       sync.Mutex
	lru      *list.List
	items    map[string]*list.Element
	maxBytes int64
	curBytes int64
	now      nowFunc
}

// NewMemoryStore returns a store holding at most maxBytes of Markdown.
// maxBytes <= 0 disables the bound.
func NewMemoryStore(maxBytes int64) *MemoryStore {
	return &MemoryStore{
		lru:      list.New(),
		items:    make(map[string]*list.Element),
		maxBytes: maxBytes,
		now:      time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key]
	if !ok {
		return "", ErrCacheMiss
	}
	item := el.Value.(*memoryItem)
	if item.entry.Expired(s.now()) {
		s.removeElement(el)
		return "", ErrCacheMiss
	}
	s.lru.MoveToFront(el)
	return item.entry.Value, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	entry := NewEntry(value, ttl, s.now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[key]; ok {
		item := el.Value.(*memoryItem)
		s.curBytes += int64(entry.Size - item.entry.Size)
		item.entry = entry
		s.lru.MoveToFront(el)
	} else {
		s.items[key] = s.lru.PushFront(&memoryItem{key: key, entry: entry})
		s.curBytes += int64(entry.Size)
	}

	for s.maxBytes > 0 && s.curBytes > s.maxBytes {
		back := s.lru.Back()
		if back == nil {
			break
		}
		s.removeElement(back)
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	if el, ok := s.items[key]; ok {
		s.removeElement(el)
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Flush(context.Context) error {
	s.mu.Lock()
	s.lru.Init()
	s.items = make(map[string]*list.Element)
	s.curBytes = 0
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Available(context.Context) bool { return true }

func (s *MemoryStore) Name() string { return "memory" }

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// removeElement must be called with mu held.
func (s *MemoryStore) removeElement(el *list.Element) {
	item := s.lru.Remove(el).(*memoryItem)
	delete(s.items, item.key)
	s.curBytes -= int64(item.entry.Size)
}
