package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by driver
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mna_cache_hits_total",
			Help: "Total number of Markdown cache hits",
		},
		[]string{"driver"},
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mna_cache_misses_total",
			Help: "Total number of Markdown cache misses",
		},
	)

	// CacheErrors tracks backend failures that were degraded to a miss or no-op
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mna_cache_errors_total",
			Help: "Total number of cache backend errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "flush"
	)

	// CacheWrittenBytes tracks bytes written to the cache by driver
	CacheWrittenBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mna_cache_written_bytes_total",
			Help: "Total bytes of Markdown written to the cache",
		},
		[]string{"driver"},
	)

	// CacheInvalidations tracks invalidations by lifecycle reason
	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mna_cache_invalidations_total",
			Help: "Total number of content invalidations",
		},
		[]string{"reason"},
	)
)
