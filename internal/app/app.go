// Package app is the composition root shared by mdserver and mdctl.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/markdown-negotiation/internal/config"
	"github.com/Sternrassler/markdown-negotiation/pkg/cache"
	"github.com/Sternrassler/markdown-negotiation/pkg/content"
	"github.com/Sternrassler/markdown-negotiation/pkg/converter"
	"github.com/Sternrassler/markdown-negotiation/pkg/dispatch"
	"github.com/Sternrassler/markdown-negotiation/pkg/ratelimit"
	"github.com/Sternrassler/markdown-negotiation/pkg/service"
	"github.com/Sternrassler/markdown-negotiation/pkg/settings"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Version is reported by the status endpoint and headers. Set with
// -ldflags "-X github.com/Sternrassler/markdown-negotiation/internal/app.Version=...".
var Version = "1.0.0"

// App holds the wired components.
type App struct {
	Config     *config.Config
	Settings   *settings.Store
	Repository *content.FileRepository
	Cache      *cache.Manager
	Service    *service.Service
	Limiter    *ratelimit.Limiter
	Dispatcher *dispatch.Dispatcher

	redis     *redis.Client
	transient *cache.PostgresStore
	closers   []func()
	logger    zerolog.Logger
}

// Build connects backends and wires every component. Unreachable Redis or
// Postgres servers leave their drivers out instead of failing.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, logger: logger}
	if err := a.build(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// build wires the components. On error every backend opened so far is
// closed again.
func (a *App) build(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	cfg, logger := a.Config, a.logger

	st, err := settings.NewStore(cfg.Settings)
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	a.Settings = st

	repo, err := content.NewFileRepository(ctx, cfg.Content.Dir, logger.With().Str("component", "content").Logger())
	if err != nil {
		return fmt.Errorf("content: %w", err)
	}
	a.Repository = repo

	drivers := cache.Drivers{
		File:   cache.NewFileStore(cfg.Cache.Dir),
		Memory: cache.NewMemoryStore(cfg.Cache.MemoryBytes),
	}
	if rdb := a.connectRedis(ctx); rdb != nil {
		drivers.Object = cache.NewRedisStore(rdb, cfg.Cache.Namespace)
	}
	if pool := a.connectPostgres(ctx); pool != nil {
		pg := cache.NewPostgresStore(pool, cfg.Cache.Namespace)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Warn().Err(err).Msg("Postgres cache schema unavailable, transient driver disabled")
		} else {
			drivers.Transient = pg
			a.transient = pg
		}
	}

	cacheLogger := logger.With().Str("component", "cache").Logger()
	store := cache.Resolve(ctx, cfg.Settings.CacheDriver, drivers, cacheLogger)
	a.Cache = cache.NewManager(store, time.Duration(cfg.Settings.CacheTTL)*time.Second, cacheLogger)

	a.Service = service.New(service.Config{
		Repository: repo,
		Converter:  converter.NewHTMLConverter(),
		Cache:      a.Cache,
		Settings:   st,
		Extract:    content.DefaultExtractOptions(),
	}, logger.With().Str("component", "service").Logger())

	var windows ratelimit.Store = ratelimit.NewMemoryStore()
	if cfg.RateLimit.Store == "redis" {
		if a.redis == nil {
			return fmt.Errorf("rate limit store redis: redis unreachable")
		}
		windows = ratelimit.NewRedisStore(a.redis)
	}
	a.Limiter = ratelimit.NewLimiter(windows, logger.With().Str("component", "ratelimit").Logger())

	a.Dispatcher = dispatch.New(dispatch.Config{
		Settings: st,
		Limiter:  a.Limiter,
		Source:   a.Service,
		Version:  Version,
	}, logger.With().Str("component", "dispatch").Logger())

	return nil
}

func (a *App) connectRedis(ctx context.Context) *redis.Client {
	if a.Config.Redis.URL == "" {
		return nil
	}
	opts, err := redis.ParseURL(a.Config.Redis.URL)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Invalid redis url, object cache disabled")
		return nil
	}
	opts.DialTimeout = a.Config.Redis.DialTimeout

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, a.Config.Redis.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		a.logger.Warn().Err(err).Str("addr", opts.Addr).Msg("Redis unreachable, object cache disabled")
		client.Close()
		return nil
	}

	a.logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	a.redis = client
	a.closers = append(a.closers, func() { client.Close() })
	return client
}

func (a *App) connectPostgres(ctx context.Context) *pgxpool.Pool {
	const op = "app.connectPostgres"

	if a.Config.Postgres.DSN == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, a.Config.Postgres.DSN)
	if err != nil {
		a.logger.Warn().Err(fmt.Errorf("%s: %w", op, err)).Msg("Postgres pool failed, transient driver disabled")
		return nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, a.Config.Postgres.PingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		a.logger.Warn().Err(fmt.Errorf("%s: %w", op, err)).Msg("Postgres unreachable, transient driver disabled")
		pool.Close()
		return nil
	}

	a.logger.Info().Msg("Connected to Postgres")
	a.closers = append(a.closers, pool.Close)
	return pool
}

// Reload rescans the content directory and invalidates changed items.
func (a *App) Reload(ctx context.Context) error {
	changes, err := a.Repository.Reload(ctx)
	if err != nil {
		return fmt.Errorf("reload content: %w", err)
	}
	for _, id := range changes.Updated {
		a.Service.Invalidate(ctx, id, cache.ReasonSave)
	}
	for _, id := range changes.Removed {
		a.Service.Invalidate(ctx, id, cache.ReasonDelete)
	}
	if !changes.Empty() {
		a.logger.Info().
			Int("updated", len(changes.Updated)).
			Int("removed", len(changes.Removed)).
			Msg("Content reloaded")
	}
	return nil
}

// WatchContent reloads every interval until ctx is done.
func (a *App) WatchContent(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.Reload(ctx); err != nil {
				a.logger.Warn().Err(err).Msg("Content reload failed")
			}
		}
	}
}

// PurgeExpired deletes expired rows from the transient store when one is
// configured.
func (a *App) PurgeExpired(ctx context.Context) (int64, error) {
	if a.transient == nil {
		return 0, nil
	}
	return a.transient.PurgeExpired(ctx)
}

// Close releases backend connections in reverse order of opening. It is
// safe to call more than once.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
