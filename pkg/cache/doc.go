// Package cache memoizes rendered Markdown per content item.
//
// A Manager sits on top of exactly one Store chosen at startup:
//
//   - RedisStore ("object-cache"): shared, volatile, availability follows PING
//   - PostgresStore ("transient"): durable key-value table with lazy expiry
//   - FileStore ("file"): md5-sharded files with a JSON sidecar
//   - MemoryStore ("memory"): in-process LRU for single instances and tests
//
// # Keys and TTL
//
// Keys are built with BuildKey: "md_42" for the page rendering and
// "md_42_rest" for the API rendering. Entries carry their creation time and
// TTL in seconds and are checked for expiry when read; a TTL of 0 never
// expires.
//
// # Basic Usage
//
//	store := cache.Resolve(ctx, "auto", cache.Drivers{
//		Object: cache.NewRedisStore(redisClient, ""),
//		File:   cache.NewFileStore("/var/cache/mna"),
//	}, logger)
//
//	manager := cache.NewManager(store, time.Hour, logger)
//
//	key := cache.BuildKey(42, cache.VariantPage)
//	if markdown, ok := manager.Get(ctx, key); ok {
//		return markdown
//	}
//	manager.Set(ctx, key, markdown)
//
// # Invalidation
//
// The CMS calls Invalidate on save, trash, delete, status and term changes,
// and InvalidateMeta for metadata writes; bookkeeping keys listed in
// IgnoredMetaPrefixes are skipped.
//
//	manager.Invalidate(ctx, 42, cache.ReasonSave)
//	manager.InvalidateMeta(ctx, 42, "_edit_lock") // no-op
//
// # Failure Handling
//
// Backend errors are counted in mna_cache_errors_total and logged at warn.
// Get degrades to a miss, Set and Delete to no-ops; only FlushAll returns the
// error so operators see it.
package cache
