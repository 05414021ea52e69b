package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims the sorted set, then either records the request
// or reports the oldest surviving score. Scores are unix milliseconds.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) >= limit then
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	return {0, tonumber(oldest[2])}
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, 0}
`)

// RedisStore shares windows between instances through a Redis sorted set
// per key.
type RedisStore struct {
	client *redis.Client
	window time.Duration
	limit  int
}

func NewRedisStore(client *redis.Client, window time.Duration, limit int) *RedisStore {
	if limit < 1 {
		limit = 1
	}
	return &RedisStore{client: client, window: window, limit: limit}
}

// NewRedisClient parses a redis:// URL and verifies the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (s *RedisStore) Hit(ctx context.Context, key string, now time.Time) (Result, error) {
	vals, err := slidingWindowScript.Run(ctx, s.client, []string{key},
		now.UnixMilli(),
		s.window.Milliseconds(),
		s.limit,
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("rate limit script: unexpected reply %v", vals)
	}

	if vals[0] == 1 {
		return Result{Allowed: true}, nil
	}
	return Result{Allowed: false, Oldest: time.UnixMilli(vals[1])}, nil
}
