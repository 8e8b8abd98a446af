// Package metrics hosts the Prometheus registry handle and the metrics
// endpoint. Collectors are declared with promauto in the packages that
// update them (cache, ratelimit, dispatch, service).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all package collectors use.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the source served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cache (pkg/cache):
//   - mna_cache_hits_total{driver} (Counter): cache hits by backend
//   - mna_cache_misses_total (Counter): cache misses, including backend errors
//   - mna_cache_errors_total{operation} (Counter): backend failures by operation
//   - mna_cache_written_bytes_total{driver} (Counter): Markdown bytes written
//   - mna_cache_invalidations_total{reason} (Counter): invalidations by lifecycle reason
//
// Rate limiting (pkg/ratelimit):
//   - mna_rate_limit_allowed_total (Counter): admitted Markdown requests
//   - mna_rate_limit_denied_total (Counter): requests answered with 429
//   - mna_rate_limit_errors_total (Counter): store failures (request admitted)
//
// Dispatch (pkg/dispatch):
//   - mna_responses_total{outcome} (Counter): markdown, not_modified, passthrough,
//     bad_request, forbidden, rate_limited, not_found, conversion_error
//
// Conversion (pkg/service):
//   - mna_conversion_duration_seconds (Histogram): converter latency
//   - mna_conversions_total{result} (Counter): ok, error, unavailable
//
// Example Prometheus Queries:
//
//	# Cache hit rate
//	sum(rate(mna_cache_hits_total[5m])) /
//	(sum(rate(mna_cache_hits_total[5m])) + sum(rate(mna_cache_misses_total[5m])))
//
//	# Share of negotiated requests served as Markdown
//	rate(mna_responses_total{outcome="markdown"}[5m]) / sum(rate(mna_responses_total[5m]))
//
//	# P95 conversion latency
//	histogram_quantile(0.95, rate(mna_conversion_duration_seconds_bucket[5m]))
