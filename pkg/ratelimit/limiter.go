package ratelimit

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limiting.
var (
	rateLimitAllowedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mna_rate_limit_allowed_total",
		Help: "Total number of Markdown requests admitted by the rate limiter",
	})

	rateLimitDeniedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mna_rate_limit_denied_total",
		Help: "Total number of Markdown requests denied by the rate limiter",
	})

	rateLimitErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mna_rate_limit_errors_total",
		Help: "Total number of rate limit store errors (request admitted)",
	})
)

// Store keeps windows per key. Hit must be atomic per key: concurrent hits
// for the same key never lose an increment.
type Store interface {
	Hit(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

// Limiter gates requests per client IP.
type Limiter struct {
	store  Store
	logger zerolog.Logger
}

// NewLimiter creates a limiter over store.
func NewLimiter(store Store, logger zerolog.Logger) *Limiter {
	if store == nil {
		panic("rate limit store cannot be nil")
	}
	return &Limiter{
		store:  store,
		logger: logger,
	}
}

// ClientKey hashes ip into the store key so raw addresses are never stored.
func ClientKey(ip string) string {
	sum := md5.Sum([]byte(ip))
	return KeyPrefix + hex.EncodeToString(sum[:])
}

// Allow records a request from ip and reports whether it may proceed.
// Store failures admit the request and are logged.
func (l *Limiter) Allow(ctx context.Context, ip string, limit int, window time.Duration) Decision {
	d, err := l.check(ctx, ip, limit, window)
	if err != nil {
		rateLimitErrorsTotal.Inc()
		l.logger.Warn().Err(err).Msg("Rate limit store failed, admitting request")
		return Decision{Allowed: true, Limit: limit, Remaining: limit, RetryAfter: window}
	}

	if !d.Allowed {
		rateLimitDeniedTotal.Inc()
		l.logger.Info().
			Int("limit", d.Limit).
			Dur("window", window).
			Time("reset_at", d.ResetAt).
			Msg("Rate limit exceeded")
		return d
	}

	rateLimitAllowedTotal.Inc()
	return d
}

func (l *Limiter) check(ctx context.Context, ip string, limit int, window time.Duration) (Decision, error) {
	if limit < 1 || window <= 0 {
		return Decision{}, fmt.Errorf("invalid rate limit %d per %v", limit, window)
	}
	return l.store.Hit(ctx, ClientKey(ip), limit, window)
}
