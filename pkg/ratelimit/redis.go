package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// hitScript applies the fixed window policy atomically on a hash with
// fields count and start (unix ms). Returns {allowed, count, start}.
var hitScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

local state = redis.call('HMGET', KEYS[1], 'count', 'start')
local count = tonumber(state[1])
local start = tonumber(state[2])

if count == nil or start == nil or now - start >= window then
	redis.call('HSET', KEYS[1], 'count', 1, 'start', now)
	redis.call('PEXPIRE', KEYS[1], window)
	return {1, 1, now}
end

if count + 1 > limit then
	return {0, count, start}
end

count = redis.call('HINCRBY', KEYS[1], 'count', 1)
return {1, count, start}
`)

// RedisStore shares windows between processes. Keys expire with their
// window so idle clients cost nothing.
type RedisStore struct {
	redis *redis.Client
	now   func() time.Time
}

// NewRedisStore creates a store on redisClient.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{redis: redisClient, now: time.Now}
}

func (s *RedisStore) Hit(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	res, err := hitScript.Run(ctx, s.redis, []string{key},
		s.now().UnixMilli(), window.Milliseconds(), limit,
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}

	w := Window{Count: int(res[1]), Start: time.UnixMilli(res[2])}
	return newDecision(res[0] == 1, w, limit, window), nil
}
