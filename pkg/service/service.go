// Package service exposes the operations shared by the HTTP server and the
// command line: cache-or-convert, flush, convert, token estimates, stats and
// batch generation.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/markdown-negotiation/pkg/access"
	"github.com/Sternrassler/markdown-negotiation/pkg/cache"
	"github.com/Sternrassler/markdown-negotiation/pkg/content"
	"github.com/Sternrassler/markdown-negotiation/pkg/converter"
	"github.com/Sternrassler/markdown-negotiation/pkg/settings"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

var (
	conversionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mna_conversion_duration_seconds",
		Help:    "HTML to Markdown conversion duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})

	conversionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mna_conversions_total",
		Help: "Total conversions by result",
	}, []string{"result"})
)

// PostProcessor rewrites converted Markdown before it is cached.
type PostProcessor func(markdown string, item content.Item) string

// SettingsSource yields the current settings snapshot.
type SettingsSource interface {
	Load() settings.Settings
}

// Stats summarizes the service for status pages and the CLI.
type Stats struct {
	Enabled            bool     `json:"enabled"`
	Converter          string   `json:"converter"`
	ConverterAvailable bool     `json:"converter_available"`
	CacheEnabled       bool     `json:"cache_enabled"`
	CacheDriver        string   `json:"cache_driver"`
	CacheAvailable     bool     `json:"cache_available"`
	CacheTTL           int      `json:"cache_ttl"`
	PostTypes          []string `json:"post_types"`
}

// Config holds the service collaborators.
type Config struct {
	Repository     content.Repository
	Converter      converter.Converter
	Cache          *cache.Manager
	Settings       SettingsSource
	Extract        content.ExtractOptions
	PostProcessors []PostProcessor
}

// Service is safe for concurrent use.
type Service struct {
	repo     content.Repository
	conv     converter.Converter
	cache    *cache.Manager
	settings SettingsSource
	extract  content.ExtractOptions
	post     []PostProcessor
	checker  *access.Checker
	group    singleflight.Group
	logger   zerolog.Logger
}

// New creates a service. Repository, Converter, Cache and Settings are
// required.
func New(cfg Config, logger zerolog.Logger) *Service {
	if cfg.Repository == nil || cfg.Converter == nil || cfg.Cache == nil || cfg.Settings == nil {
		panic("service: repository, converter, cache and settings are required")
	}
	return &Service{
		repo:     cfg.Repository,
		conv:     cfg.Converter,
		cache:    cfg.Cache,
		settings: cfg.Settings,
		extract:  cfg.Extract,
		post:     cfg.PostProcessors,
		checker:  access.NewChecker(),
		logger:   logger,
	}
}

// Repository returns the content source.
func (s *Service) Repository() content.Repository {
	return s.repo
}

// Markdown returns the Markdown for item, from cache when possible.
// Concurrent misses for the same key share one conversion. Failed
// conversions are never cached.
func (s *Service) Markdown(ctx context.Context, item content.Item, variant string) (string, error) {
	current := s.settings.Load()
	if !current.CacheEnabled {
		return s.Convert(ctx, item)
	}

	key := cache.BuildKey(item.ID, variant)
	if markdown, ok := s.cache.Get(ctx, key); ok {
		return markdown, nil
	}

	// The shared conversion outlives the caller that started it.
	shared := context.WithoutCancel(ctx)
	v, err, joined := s.group.Do(key, func() (any, error) {
		markdown, err := s.Convert(shared, item)
		if err != nil {
			return "", err
		}
		s.cache.SetWithTTL(shared, key, markdown, ttlOf(current))
		return markdown, nil
	})
	if err != nil {
		return "", err
	}
	if joined {
		s.logger.Debug().Str("cache_key", key).Msg("Shared in-flight conversion")
	}
	return v.(string), nil
}

// Convert renders item to Markdown without touching the cache.
func (s *Service) Convert(ctx context.Context, item content.Item) (string, error) {
	if !s.conv.Available() {
		conversionsTotal.WithLabelValues("unavailable").Inc()
		return "", converter.ErrUnavailable
	}

	start := time.Now()
	markdown, err := s.conv.Convert(ctx, content.Extract(item, s.extract))
	conversionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		conversionsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("convert content %d: %w", item.ID, err)
	}

	for _, fn := range s.post {
		markdown = fn(markdown, item)
	}

	conversionsTotal.WithLabelValues("ok").Inc()
	s.logger.Info().
		Int64("content_id", item.ID).
		Int("bytes", len(markdown)).
		Dur("duration", time.Since(start)).
		Msg("Converted content to Markdown")
	return markdown, nil
}

// ConvertByID loads an item and converts it.
func (s *Service) ConvertByID(ctx context.Context, id int64) (string, error) {
	item, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", fmt.Errorf("load content %d: %w", id, err)
	}
	return s.Convert(ctx, item)
}

// EstimateTokens approximates the token count of text.
func (s *Service) EstimateTokens(text string) int {
	return converter.EstimateTokens(text)
}

// FlushAll removes every cached rendering.
func (s *Service) FlushAll(ctx context.Context) error {
	return s.cache.FlushAll(ctx)
}

// Invalidate drops the cached renderings of one item.
func (s *Service) Invalidate(ctx context.Context, id int64, reason cache.Reason) {
	s.cache.Invalidate(ctx, id, reason)
}

// InvalidateMeta drops the cached renderings of one item unless metaKey is
// bookkeeping. It reports whether anything was invalidated.
func (s *Service) InvalidateMeta(ctx context.Context, id int64, metaKey string) bool {
	return s.cache.InvalidateMeta(ctx, id, metaKey)
}

// Stats reports the current service state.
func (s *Service) Stats(ctx context.Context) Stats {
	current := s.settings.Load()
	cs := s.cache.Stats(ctx)
	return Stats{
		Enabled:            current.Enabled,
		Converter:          s.conv.Name(),
		ConverterAvailable: s.conv.Available(),
		CacheEnabled:       current.CacheEnabled,
		CacheDriver:        cs.Driver,
		CacheAvailable:     cs.Available,
		CacheTTL:           current.CacheTTL,
		PostTypes:          current.EnabledTypes(),
	}
}

func ttlOf(s settings.Settings) time.Duration {
	return time.Duration(s.CacheTTL) * time.Second
}
