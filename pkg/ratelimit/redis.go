package ratelimit

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisLimiter is a fixed-window counter shared by every replica
type RedisLimiter struct {
	redis  *redis.Client
	config Config
	prefix string
}

// NewRedisLimiter creates a Redis-backed limiter. Keys are stored under
// prefix.
func NewRedisLimiter(client *redis.Client, config Config, prefix string) *RedisLimiter {
	if config.Requests <= 0 || config.Window <= 0 {
		config = DefaultConfig()
	}
	if prefix == "" {
		prefix = "stockroom:ratelimit"
	}
	return &RedisLimiter{
		redis:  client,
		config: config,
		prefix: prefix,
	}
}

// Allow counts the request in the current window
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)

	count64, err := l.redis.Incr(ctx, redisKey).Result()
	if err != nil {
		return Result{}, fmt.Errorf("redis rate limit: %w", err)
	}
	// The first request of a window starts its expiry
	if count64 == 1 {
		if err := l.redis.PExpire(ctx, redisKey, l.config.Window).Err(); err != nil {
			return Result{}, fmt.Errorf("redis rate limit: %w", err)
		}
	}
	ttl, err := l.redis.PTTL(ctx, redisKey).Result()
	if err != nil {
		return Result{}, fmt.Errorf("redis rate limit: %w", err)
	}

	count := int(count64)
	remaining := l.config.Requests - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= l.config.Requests,
		Limit:     l.config.Requests,
		Remaining: remaining,
		Reset:     ttl,
	}, nil
}

// Reset clears the window for key
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.redis.Del(ctx, fmt.Sprintf("%s:%s", l.prefix, key)).Err()
}
