package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTTL applies when no TTL is configured.
const DefaultTTL = time.Hour

// Reason names the content lifecycle event behind an invalidation.
type Reason string

const (
	ReasonSave         Reason = "save"
	ReasonTrash        Reason = "trash"
	ReasonDelete       Reason = "delete"
	ReasonStatusChange Reason = "status_change"
	ReasonTerms        Reason = "terms"
	ReasonMeta         Reason = "meta"
)

// IgnoredMetaPrefixes are bookkeeping meta keys whose updates leave cached
// Markdown untouched.
var IgnoredMetaPrefixes = []string{
	"_edit_lock",
	"_edit_last",
	"_pingme",
	"_encloseme",
	"_mna_",
}

// Stats describes the active backend.
type Stats struct {
	Driver    string `json:"driver"`
	Available bool   `json:"available"`
}

// Manager owns cache keys, TTL policy and invalidation on top of one Store.
// Backend errors never reach callers of Get, Set or Invalidate.
type Manager struct {
	store      Store
	defaultTTL time.Duration
	logger     zerolog.Logger
}

// NewManager wraps store. A negative ttl selects DefaultTTL; zero disables
// time-based expiry.
func NewManager(store Store, ttl time.Duration, logger zerolog.Logger) *Manager {
	if store == nil {
		panic("cache store cannot be nil")
	}
	if ttl < 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		store:      store,
		defaultTTL: ttl,
		logger:     logger,
	}
}

// Driver returns the backend name.
func (m *Manager) Driver() string {
	return m.store.Name()
}

// TTL returns the TTL used by Set.
func (m *Manager) TTL() time.Duration {
	return m.defaultTTL
}

// Get returns the cached value and whether it was found. Backend failures
// are logged and reported as a miss.
func (m *Manager) Get(ctx context.Context, key string) (string, bool) {
	value, err := m.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			CacheErrors.WithLabelValues("get").Inc()
			m.logger.Warn().Err(err).Str("cache_key", key).Str("driver", m.store.Name()).Msg("Cache read failed, treating as miss")
		}
		CacheMisses.Inc()
		m.logger.Debug().Str("cache_key", key).Msg("Cache miss")
		return "", false
	}

	CacheHits.WithLabelValues(m.store.Name()).Inc()
	m.logger.Debug().Str("cache_key", key).Msg("Cache hit")
	return value, true
}

// Set stores value with the default TTL.
func (m *Manager) Set(ctx context.Context, key, value string) {
	m.SetWithTTL(ctx, key, value, m.defaultTTL)
}

// SetWithTTL stores value with ttl; a negative ttl selects the default.
func (m *Manager) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) {
	if ttl < 0 {
		ttl = m.defaultTTL
	}
	if err := m.store.Set(ctx, key, value, ttl); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		m.logger.Warn().Err(err).Str("cache_key", key).Str("driver", m.store.Name()).Msg("Cache write failed")
		return
	}
	CacheWrittenBytes.WithLabelValues(m.store.Name()).Add(float64(len(value)))
	m.logger.Debug().Str("cache_key", key).Dur("ttl", ttl).Int("size", len(value)).Msg("Cache set")
}

// Delete removes key and reports whether the backend accepted the delete.
func (m *Manager) Delete(ctx context.Context, key string) bool {
	if err := m.store.Delete(ctx, key); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		m.logger.Warn().Err(err).Str("cache_key", key).Str("driver", m.store.Name()).Msg("Cache delete failed")
		return false
	}
	return true
}

// Invalidate drops every variant cached for contentID. It is synchronous and
// best-effort; failures are logged only.
func (m *Manager) Invalidate(ctx context.Context, contentID int64, reason Reason) {
	for _, variant := range Variants {
		m.Delete(ctx, BuildKey(contentID, variant))
	}
	CacheInvalidations.WithLabelValues(string(reason)).Inc()
	m.logger.Debug().Int64("content_id", contentID).Str("reason", string(reason)).Msg("Cache invalidated")
}

// InvalidateMeta invalidates contentID unless metaKey is bookkeeping. It
// reports whether an invalidation happened.
func (m *Manager) InvalidateMeta(ctx context.Context, contentID int64, metaKey string) bool {
	if IsIgnoredMeta(metaKey) {
		return false
	}
	m.Invalidate(ctx, contentID, ReasonMeta)
	return true
}

// IsIgnoredMeta reports whether updates to metaKey must not invalidate.
func IsIgnoredMeta(metaKey string) bool {
	for _, prefix := range IgnoredMetaPrefixes {
		if strings.HasPrefix(metaKey, prefix) {
			return true
		}
	}
	return false
}

// FlushAll clears the whole namespace.
func (m *Manager) FlushAll(ctx context.Context) error {
	if err := m.store.Flush(ctx); err != nil {
		CacheErrors.WithLabelValues("flush").Inc()
		return fmt.Errorf("flush %s cache: %w", m.store.Name(), err)
	}
	m.logger.Info().Str("driver", m.store.Name()).Msg("Cache flushed")
	return nil
}

// Stats reports the backend name and its current availability.
func (m *Manager) Stats(ctx context.Context) Stats {
	return Stats{
		Driver:    m.store.Name(),
		Available: m.store.Available(ctx),
	}
}
