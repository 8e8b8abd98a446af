package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Sternrassler/markdown-negotiation/internal/config"
	"github.com/Sternrassler/markdown-negotiation/pkg/cache"
	"github.com/Sternrassler/markdown-negotiation/pkg/settings"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const helloSource = `---
id: 1
title: Hello
---
Hello *world*.
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	contentDir := filepath.Join(root, "content")
	require.NoError(t, os.MkdirAll(contentDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(contentDir, "hello.md"), []byte(helloSource), 0o600))

	return &config.Config{
		Cache:     config.CacheConfig{Dir: filepath.Join(root, "cache"), Namespace: "mna:"},
		Content:   config.ContentConfig{Dir: contentDir},
		RateLimit: config.RateLimitConfig{Store: "memory"},
		Settings:  settings.Default(),
	}
}

func TestBuild_FallsBackToFileCache(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	a, err := Build(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	require.Equal(t, "file", a.Cache.Driver())

	item, err := a.Repository.Get(ctx, 1)
	require.NoError(t, err)

	md, err := a.Service.Markdown(ctx, item, cache.VariantPage)
	require.NoError(t, err)
	require.Contains(t, md, "Hello")
	require.Contains(t, md, "world")

	purged, err := a.PurgeExpired(ctx)
	require.NoError(t, err)
	require.Zero(t, purged)
}

func TestBuild_MemoryDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Settings.CacheDriver = settings.DriverMemory

	a, err := Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	require.Equal(t, "memory", a.Cache.Driver())
}

func TestBuild_RedisRateLimitNeedsRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.Store = "redis"

	_, err := Build(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
}

func TestBuild_ClosesBackendsOnError(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.Store = "redis"

	closed := 0
	a := &App{Config: cfg, logger: zerolog.Nop()}
	a.closers = append(a.closers, func() { closed++ })

	require.Error(t, a.build(context.Background()))
	require.Equal(t, 1, closed)

	a.Close()
	require.Equal(t, 1, closed)
}

func TestReload_InvalidatesChangedItems(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	a, err := Build(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	item, err := a.Repository.Get(ctx, 1)
	require.NoError(t, err)
	_, err = a.Service.Markdown(ctx, item, cache.VariantPage)
	require.NoError(t, err)

	key := cache.BuildKey(1, cache.VariantPage)
	_, hit := a.Cache.Get(ctx, key)
	require.True(t, hit)

	updated := []byte("---\nid: 1\ntitle: Hello again\n---\nChanged.\n")
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Content.Dir, "hello.md"), updated, 0o600))
	require.NoError(t, a.Reload(ctx))

	_, hit = a.Cache.Get(ctx, key)
	require.False(t, hit)

	item, err = a.Repository.Get(ctx, 1)
	require.NoError(t, err)
	md, err := a.Service.Markdown(ctx, item, cache.VariantPage)
	require.NoError(t, err)
	require.Contains(t, md, "Changed.")
}
