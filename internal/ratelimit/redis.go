package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// takeScript increments the window counter, starting the expiry on the first
// hit of a window, and returns {count, pttl}.
var takeScript = redis.NewScript(`
local c = redis.call("INCR", KEYS[1])
if c == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {c, ttl}
`)

// RedisStore is a Store shared by every process pointing at the same Redis.
// Expiry is delegated to Redis, so no sweep is needed.
type RedisStore struct {
	rdb    redis.Scripter
	prefix string
}

// NewRedisStore creates a RedisStore. Keys are namespaced under prefix.
func NewRedisStore(rdb redis.Scripter, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

// Take implements Store.
func (s *RedisStore) Take(ctx context.Context, key string, max int, win time.Duration, now time.Time) (Usage, error) {
	ttlMs := win.Milliseconds()
	if ttlMs <= 0 {
		ttlMs = 1
	}

	res, err := takeScript.Run(ctx, s.rdb, []string{s.prefix + key}, ttlMs).Int64Slice()
	if err != nil {
		return Usage{}, fmt.Errorf("redis take: %w", err)
	}
	if len(res) != 2 {
		return Usage{}, fmt.Errorf("redis take: unexpected reply length %d", len(res))
	}

	count := int(res[0])
	return Usage{
		Allowed: count <= max,
		Count:   count,
		ResetAt: now.Add(time.Duration(res[1]) * time.Millisecond),
	}, nil
}
