package pagination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/markdown-negotiation/pkg/content"
	"github.com/rs/zerolog"
)

// Config holds batch fetcher configuration.
type Config struct {
	// MaxConcurrency is the maximum number of pages fetched in parallel.
	MaxConcurrency int
	// Timeout per page fetch.
	Timeout time.Duration
	// PerPage is the page size requested from the repository.
	PerPage int
}

// DefaultConfig returns the configuration used by the CLI.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
		PerPage:        100,
	}
}

// PageFetcher returns one page of items and the total page count.
type PageFetcher interface {
	FetchPage(ctx context.Context, page, perPage int) (items []content.Item, totalPages int, err error)
}

// RepositoryFetcher pages through a content repository with a fixed query.
type RepositoryFetcher struct {
	Repository content.Repository
	Type       string
	Status     string
}

// FetchPage implements PageFetcher.
func (f RepositoryFetcher) FetchPage(ctx context.Context, page, perPage int) ([]content.Item, int, error) {
	res, err := f.Repository.List(ctx, content.ListQuery{
		Type:    f.Type,
		Status:  f.Status,
		PerPage: perPage,
		Page:    page,
	})
	if err != nil {
		return nil, 0, err
	}
	return res.Items, res.TotalPages, nil
}

// PageResult is the result of fetching a single page.
type PageResult struct {
	PageNumber int
	Items      []content.Item
	Error      error
}

// BatchFetcher fetches every page of a listing in parallel.
type BatchFetcher struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
}

// NewBatchFetcher creates a batch fetcher. Zero config values take defaults.
func NewBatchFetcher(fetcher PageFetcher, config Config, logger zerolog.Logger) *BatchFetcher {
	def := DefaultConfig()
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = def.MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.PerPage <= 0 {
		config.PerPage = def.PerPage
	}

	return &BatchFetcher{
		fetcher: fetcher,
		config:  config,
		logger:  logger,
	}
}

// FetchAll returns the items of all pages in page order. The first page
// determines the page count; a failing later page aborts the fetch and the
// items fetched so far are returned with the error.
func (bf *BatchFetcher) FetchAll(ctx context.Context) ([]content.Item, error) {
	start := time.Now()

	first, totalPages, err := bf.fetcher.FetchPage(ctx, 1, bf.config.PerPage)
	if err != nil {
		return nil, fmt.Errorf("fetch first page: %w", err)
	}
	if totalPages <= 1 {
		return first, nil
	}

	bf.logger.Debug().Int("total_pages", totalPages).Msg("Fetching remaining pages")

	pages := make(map[int][]content.Item, totalPages)
	pages[1] = first

	pageQueue := make(chan int, totalPages)
	pageResults := make(chan PageResult, totalPages)
	for page := 2; page <= totalPages; page++ {
		pageQueue <- page
	}
	close(pageQueue)

	var wg sync.WaitGroup
	for i := 0; i < bf.config.MaxConcurrency; i++ {
		wg.Add(1)
		go bf.worker(ctx, pageQueue, pageResults, &wg)
	}

	go func() {
		wg.Wait()
		close(pageResults)
	}()

	var firstErr error
	for result := range pageResults {
		if result.Error != nil {
			bf.logger.Warn().Err(result.Error).Int("page", result.PageNumber).Msg("Page fetch failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("fetch page %d: %w", result.PageNumber, result.Error)
			}
			continue
		}
		pages[result.PageNumber] = result.Items
	}

	var items []content.Item
	for page := 1; page <= totalPages; page++ {
		items = append(items, pages[page]...)
	}

	bf.logger.Debug().
		Int("pages", len(pages)).
		Int("items", len(items)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	if firstErr != nil {
		return items, firstErr
	}
	if err := ctx.Err(); err != nil {
		return items, err
	}
	return items, nil
}

func (bf *BatchFetcher) worker(ctx context.Context, pageQueue <-chan int, results chan<- PageResult, wg *sync.WaitGroup) {
	defer wg.Done()

	for page := range pageQueue {
		if ctx.Err() != nil {
			return
		}

		pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
		items, _, err := bf.fetcher.FetchPage(pageCtx, page, bf.config.PerPage)
		cancel()

		results <- PageResult{PageNumber: page, Items: items, Error: err}
	}
}
