package pagination

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/markdown-negotiation/pkg/content"
	"github.com/rs/zerolog"
)

func makeItems(n int) []content.Item {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	items := make([]content.Item, n)
	for i := range items {
		items[i] = content.Item{
			ID:       int64(i + 1),
			Slug:     fmt.Sprintf("item-%d", i+1),
			Type:     "post",
			Status:   content.StatusPublish,
			Modified: base.Add(time.Duration(i) * time.Hour),
		}
	}
	return items
}

func TestBatchFetcher_FetchAll(t *testing.T) {
	repo := content.NewMemoryRepository(makeItems(23)...)
	fetcher := RepositoryFetcher{Repository: repo, Type: "post", Status: content.StatusPublish}
	bf := NewBatchFetcher(fetcher, Config{MaxConcurrency: 3, PerPage: 5}, zerolog.Nop())

	items, err := bf.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(items) != 23 {
		t.Fatalf("FetchAll() returned %d items, want 23", len(items))
	}

	// Repository lists newest first; page order must be preserved.
	for i := 1; i < len(items); i++ {
		if items[i].Modified.After(items[i-1].Modified) {
			t.Fatalf("items out of order at %d", i)
		}
	}
}

func TestBatchFetcher_SinglePage(t *testing.T) {
	repo := content.NewMemoryRepository(makeItems(3)...)
	bf := NewBatchFetcher(RepositoryFetcher{Repository: repo}, Config{}, zerolog.Nop())

	items, err := bf.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(items) != 3 {
		t.Errorf("FetchAll() returned %d items, want 3", len(items))
	}
}

type flakyFetcher struct {
	failPage int
	calls    atomic.Int32
}

func (f *flakyFetcher) FetchPage(_ context.Context, page, perPage int) ([]content.Item, int, error) {
	f.calls.Add(1)
	if page == f.failPage {
		return nil, 0, errors.New("backend down")
	}
	return []content.Item{{ID: int64(page)}}, 4, nil
}

func TestBatchFetcher_PageError(t *testing.T) {
	f := &flakyFetcher{failPage: 3}
	bf := NewBatchFetcher(f, Config{MaxConcurrency: 2}, zerolog.Nop())

	items, err := bf.FetchAll(context.Background())
	if err == nil {
		t.Fatal("FetchAll() error = nil, want page error")
	}
	if len(items) != 3 {
		t.Errorf("partial items = %d, want 3", len(items))
	}
	if got := f.calls.Load(); got != 4 {
		t.Errorf("FetchPage calls = %d, want 4", got)
	}
}

func TestBatchFetcher_FirstPageError(t *testing.T) {
	bf := NewBatchFetcher(&flakyFetcher{failPage: 1}, Config{}, zerolog.Nop())

	if _, err := bf.FetchAll(context.Background()); err == nil {
		t.Error("FetchAll() error = nil, want first page error")
	}
}
