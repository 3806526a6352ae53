package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/stockroom/pkg/storage"
)

// minRedisTimeout keeps socket timeouts usable when the storage operation
// timeout is configured very low
const minRedisTimeout = 500 * time.Millisecond

// redisOptions turns storage configuration into client options. Explicit
// settings override whatever the URL carries.
func redisOptions(cfg storage.Config) (*redis.Options, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("%w: redis URL is empty", storage.ErrInvalidArgument)
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("%w: redis URL: %v", storage.ErrInvalidArgument, err)
	}

	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.RedisDB > 0 {
		opts.DB = cfg.RedisDB
	}
	if cfg.RedisMaxRetries > 0 {
		opts.MaxRetries = cfg.RedisMaxRetries
	}
	if cfg.RedisPoolSize > 0 {
		opts.PoolSize = cfg.RedisPoolSize
	}

	// Cache and rate limit calls sit inside a storage operation, so a single
	// round trip must fit within its budget.
	roundTrip := cfg.OperationTimeout / 2
	if roundTrip < minRedisTimeout {
		roundTrip = minRedisTimeout
	}
	opts.DialTimeout = 2 * roundTrip
	opts.ReadTimeout = roundTrip
	opts.WriteTimeout = roundTrip
	opts.PoolTimeout = roundTrip + minRedisTimeout
	return opts, nil
}

// NewRedisClient connects to Redis and pings it once
func NewRedisClient(ctx context.Context, cfg storage.Config) (*redis.Client, error) {
	opts, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: redis %s: %v", storage.ErrUnavailable, opts.Addr, err)
	}
	return client, nil
}
