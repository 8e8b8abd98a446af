package content

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryRepository keeps items in a map. Safe for concurrent use.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[int64]Item
}

// NewMemoryRepository returns a repository seeded with items.
func NewMemoryRepository(items ...Item) *MemoryRepository {
	r := &MemoryRepository{items: make(map[int64]Item, len(items))}
	for _, it := range items {
		r.items[it.ID] = it
	}
	return r
}

// Put inserts or replaces an item.
func (r *MemoryRepository) Put(item Item) {
	r.mu.Lock()
	r.items[item.ID] = item
	r.mu.Unlock()
}

// Remove deletes an item; unknown ids are ignored.
func (r *MemoryRepository) Remove(id int64) {
	r.mu.Lock()
	delete(r.items, id)
	r.mu.Unlock()
}

func (r *MemoryRepository) Get(_ context.Context, id int64) (Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	it, ok := r.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return it, nil
}

func (r *MemoryRepository) FindByPath(_ context.Context, path string) (Item, error) {
	want := normalizePath(path)

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, it := range r.items {
		if it.Permalink() == want {
			return it, nil
		}
	}
	return Item{}, ErrNotFound
}

func (r *MemoryRepository) List(_ context.Context, q ListQuery) (ListResult, error) {
	r.mu.RLock()
	matched := make([]Item, 0, len(r.items))
	for _, it := range r.items {
		if q.Type != "" && it.Type != q.Type {
			continue
		}
		if q.Status != "" && it.Status != q.Status {
			continue
		}
		matched = append(matched, it)
	}
	r.mu.RUnlock()

	sortNewestFirst(matched)
	return paginate(matched, q), nil
}

// sortNewestFirst orders by publish date descending, then id descending.
func sortNewestFirst(items []Item) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].Published.Equal(items[j].Published) {
			return items[i].Published.After(items[j].Published)
		}
		return items[i].ID > items[j].ID
	})
}

func paginate(items []Item, q ListQuery) ListResult {
	perPage := q.PerPage
	if perPage <= 0 {
		perPage = 10
	}
	page := q.Page
	if page <= 0 {
		page = 1
	}

	total := len(items)
	res := ListResult{
		Total:      total,
		TotalPages: (total + perPage - 1) / perPage,
	}

	start := (page - 1) * perPage
	if start >= total {
		res.Items = []Item{}
		return res
	}
	end := min(start+perPage, total)
	res.Items = append([]Item(nil), items[start:end]...)
	return res
}

// normalizePath turns "/hello", "hello/" and "/hello/" into "/hello/".
func normalizePath(path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return "/"
	}
	return "/" + path + "/"
}
