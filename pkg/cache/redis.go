package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultNamespace prefixes every key written to shared backends.
const DefaultNamespace = "mna:"

// RedisStore is the shared object cache driver.
type RedisStore struct {
	redis     *redis.Client
	namespace string
	now       nowFunc
}

// NewRedisStore returns a store writing under namespace. An empty namespace
// uses DefaultNamespace.
func NewRedisStore(redisClient *redis.Client, namespace string) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &RedisStore{
		redis:     redisClient,
		namespace: namespace,
		now:       time.Now,
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	data, err := s.redis.Get(ctx, s.namespace+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrCacheMiss
		}
		return "", fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	// Redis expiry normally wins; this guards against clock skew and
	// entries written without a TTL by older builds.
	if entry.Expired(s.now()) {
		_ = s.redis.Del(ctx, s.namespace+key).Err()
		return "", ErrCacheMiss
	}

	return entry.Value, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	data, err := json.Marshal(NewEntry(value, ttl, s.now()))
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	// A zero expiration keeps the key until deleted.
	if err := s.redis.Set(ctx, s.namespace+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, s.namespace+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Flush deletes every key under the namespace using SCAN, so other data in
// the same database is left alone.
func (s *RedisStore) Flush(ctx context.Context) error {
	iter := s.redis.Scan(ctx, 0, s.namespace+"*", 500).Iterator()

	batch := make([]string, 0, 500)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := s.redis.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("redis flush: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(batch) > 0 {
		if err := s.redis.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("redis flush: %w", err)
		}
	}
	return nil
}

// Available pings the server.
func (s *RedisStore) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.redis.Ping(ctx).Err() == nil
}

func (s *RedisStore) Name() string { return "object-cache" }
