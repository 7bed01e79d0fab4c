package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/severstroy/matcat/internal/config"
)

// slidingWindowScript trims, counts, and conditionally appends to a
// sorted-set window in one round trip. Returns {allowed, retry_after_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count < limit then
  redis.call('ZADD', key, now, member)
  redis.call('PEXPIRE', key, window)
  return {1, 0}
end
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local retry = math.ceil(tonumber(oldest[2]) + window - now)
return {0, retry}
`)

// casScript sets key to the next value iff the current value matches.
// An empty expected value means the key must be absent.
var casScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
local expect = ARGV[1]
if (cur == false and expect == '') or cur == expect then
  if tonumber(ARGV[3]) > 0 then
    redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
  else
    redis.call('SET', KEYS[1], ARGV[2])
  end
  return 1
end
return 0
`)

// RedisCache implements Cache over go-redis.
type RedisCache struct {
	client *redis.Client
	seq    atomic.Uint64
}

// NewRedisCache creates a RedisCache from configuration.
func NewRedisCache(cfg config.CacheConfig) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr(),
			DB:   cfg.RedisDB(),
		}),
	}
}

// NewRedisCacheWithClient wraps an existing client, for tests.
func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Client exposes the underlying go-redis client for pool supervision.
func (c *RedisCache) Client() *redis.Client { return c.client }

// Get returns the value for a key, ErrNotFound when absent.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

// Set stores a value under a TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes keys.
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// GetBatch returns the present subset of keys via MGET.
func (c *RedisCache) GetBatch(ctx context.Context, keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	out := make(map[string][]byte, len(keys))
	for i, v := range vals {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			out[keys[i]] = []byte(s)
		}
	}
	return out, nil
}

// SetBatch stores all items under one TTL via a pipeline.
func (c *RedisCache) SetBatch(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	if len(items) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for k, v := range items {
		pipe.Set(ctx, k, v, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline set: %w", err)
	}
	return nil
}

// DeletePattern removes keys matching a glob pattern via bounded SCAN.
func (c *RedisCache) DeletePattern(ctx context.Context, pattern string) (int, error) {
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			return deleted, fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if deleted+len(keys) > DeleteBudget {
				keys = keys[:DeleteBudget-deleted]
			}
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return deleted, fmt.Errorf("redis del: %w", err)
			}
			deleted += len(keys)
			if deleted >= DeleteBudget {
				return deleted, nil
			}
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

// CompareAndSwap sets key to next iff its current value equals prev.
func (c *RedisCache) CompareAndSwap(ctx context.Context, key string, prev, next []byte, ttl time.Duration) (bool, error) {
	res, err := casScript.Run(ctx, c.client, []string{key},
		string(prev), string(next), ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis cas: %w", err)
	}
	return res == 1, nil
}

// Allow records one hit against a sliding window.
func (c *RedisCache) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	member := fmt.Sprintf("%d-%d", time.Now().UnixNano(), c.seq.Add(1))
	res, err := slidingWindowScript.Run(ctx, c.client, []string{key},
		time.Now().UnixMilli(), window.Milliseconds(), limit, member).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("redis sliding window: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("redis sliding window: unexpected reply %v", res)
	}
	if res[0] == 1 {
		return true, 0, nil
	}
	return false, time.Duration(res[1]) * time.Millisecond, nil
}

// Ping verifies the backend is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

var _ Cache = (*RedisCache)(nil)
