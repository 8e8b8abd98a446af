package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/markdown-negotiation/pkg/cache"
	"github.com/Sternrassler/markdown-negotiation/pkg/content"
	"github.com/Sternrassler/markdown-negotiation/pkg/settings"
)

// Output selects where Generate writes Markdown.
type Output string

const (
	OutputCache  Output = "cache"
	OutputFile   Output = "file"
	OutputStdout Output = "stdout"
)

// ErrSkipped marks items that are not eligible for Markdown.
var ErrSkipped = errors.New("content not eligible for markdown")

// GenerateOptions configures a batch run.
type GenerateOptions struct {
	Output Output

	// Dir receives <slug>.md files for OutputFile.
	Dir string

	// Writer receives the documents for OutputStdout, in input order.
	Writer io.Writer

	// Concurrency is the number of workers.
	Concurrency int

	// Timeout bounds each item.
	Timeout time.Duration
}

// DefaultGenerateOptions returns cache output with four workers.
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{
		Output:      OutputCache,
		Dir:         "./markdown-export",
		Concurrency: 4,
		Timeout:     30 * time.Second,
	}
}

// ItemError is a failed item of a batch.
type ItemError struct {
	ID  int64
	Err error
}

// Report summarizes a batch run.
type Report struct {
	Generated int
	Skipped   int
	Failed    []ItemError
	Duration  time.Duration
}

type generateResult struct {
	index    int
	item     content.Item
	markdown string
	err      error
}

// Generate converts items with a worker pool. A failing item is logged and
// recorded in the report; the batch continues. Only a cancelled context or
// an unusable output aborts the run.
func (s *Service) Generate(ctx context.Context, items []content.Item, opts GenerateOptions) (Report, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	switch opts.Output {
	case OutputCache:
	case OutputFile:
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return Report{}, fmt.Errorf("create output dir: %w", err)
		}
	case OutputStdout:
		if opts.Writer == nil {
			return Report{}, fmt.Errorf("stdout output requires a writer")
		}
	default:
		return Report{}, fmt.Errorf("unknown output %q", opts.Output)
	}

	start := time.Now()
	current := s.settings.Load()

	queue := make(chan int, len(items))
	results := make(chan generateResult, len(items))
	for i := range items {
		queue <- i
	}
	close(queue)

	var wg sync.WaitGroup
	for w := 0; w < opts.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := range queue {
				if ctx.Err() != nil {
					return
				}
				item := items[i]
				if err := s.checker.Check(item, "", current); err != nil {
					results <- generateResult{index: i, item: item, err: fmt.Errorf("%w: %v", ErrSkipped, err)}
					continue
				}

				itemCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
				markdown, err := s.Convert(itemCtx, item)
				cancel()
				results <- generateResult{index: i, item: item, markdown: markdown, err: err}
			}
			s.logger.Debug().Int("worker_id", workerID).Msg("Generate worker completed")
		}(w)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var (
		report  Report
		ordered = make([]*generateResult, len(items))
	)
	for res := range results {
		switch {
		case errors.Is(res.err, ErrSkipped):
			report.Skipped++
			s.logger.Debug().Int64("content_id", res.item.ID).Err(res.err).Msg("Skipped content")
			continue
		case res.err != nil:
			report.Failed = append(report.Failed, ItemError{ID: res.item.ID, Err: res.err})
			s.logger.Warn().Int64("content_id", res.item.ID).Err(res.err).Msg("Generate failed for content, continuing")
			continue
		}

		if err := s.store(ctx, res, opts, current); err != nil {
			report.Failed = append(report.Failed, ItemError{ID: res.item.ID, Err: err})
			s.logger.Warn().Int64("content_id", res.item.ID).Err(err).Msg("Writing Markdown failed, continuing")
			continue
		}
		report.Generated++
		if opts.Output == OutputStdout {
			r := res
			ordered[res.index] = &r
		}
	}

	if opts.Output == OutputStdout {
		for _, res := range ordered {
			if res == nil {
				continue
			}
			if _, err := io.WriteString(opts.Writer, res.markdown+"\n"); err != nil {
				return report, fmt.Errorf("write output: %w", err)
			}
		}
	}

	report.Duration = time.Since(start)
	s.logger.Info().
		Int("generated", report.Generated).
		Int("skipped", report.Skipped).
		Int("failed", len(report.Failed)).
		Dur("duration", report.Duration).
		Msg("Generate complete")

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("generate cancelled: %w", err)
	}
	return report, nil
}

func (s *Service) store(ctx context.Context, res generateResult, opts GenerateOptions, current settings.Settings) error {
	switch opts.Output {
	case OutputCache:
		s.cache.SetWithTTL(ctx, cache.BuildKey(res.item.ID, cache.VariantPage), res.markdown, ttlOf(current))
	case OutputFile:
		return writeFileAtomic(filepath.Join(opts.Dir, exportName(res.item)), res.markdown)
	}
	return nil
}

// exportName is <slug>.md, or <id>.md for items without a slug.
func exportName(item content.Item) string {
	name := item.Slug
	if name == "" {
		name = strconv.FormatInt(item.ID, 10)
	}
	return filepath.Base(name) + ".md"
}

func writeFileAtomic(path, data string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(data), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
