// Package redis implements the shared cache tier using go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"skinarb/internal/domain"
)

// keyPrefix namespaces every payload key so pattern invalidation cannot
// touch foreign data in a shared Redis.
const keyPrefix = "skinarb:payload:"

// deleteBatchSize bounds the number of keys removed per DEL during a
// pattern invalidation scan.
const deleteBatchSize = 128

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

// Cache is the Redis-backed payload cache shared across scanner instances.
// It implements domain.SharedCache.
type Cache struct {
	rdb *redis.Client
}

// New connects to Redis, pings it to verify connectivity, and returns the
// shared cache tier.
func New(ctx context.Context, cfg ClientConfig) (*Cache, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}

	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	rdb := redis.NewClient(opts)

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return &Cache{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.rdb.Close()
}

// Get returns the payload stored under key and its remaining TTL, or
// domain.ErrNotFound when the key is missing or has expired. Both commands
// run in one pipeline so the TTL belongs to the payload read.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, time.Duration, error) {
	pipe := c.rdb.Pipeline()
	getCmd := pipe.Get(ctx, keyPrefix+key)
	ttlCmd := pipe.TTL(ctx, keyPrefix+key)
	if _, err := pipe.Exec(ctx); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, 0, domain.ErrNotFound
		}
		return nil, 0, fmt.Errorf("redis: get %s: %w", key, err)
	}

	data, err := getCmd.Bytes()
	if err != nil {
		return nil, 0, fmt.Errorf("redis: get %s: %w", key, err)
	}
	// TTL reports -1 for keys without expiry and -2 for missing keys.
	ttl := ttlCmd.Val()
	if ttl < 0 {
		ttl = 0
	}
	return data, ttl, nil
}

// Set stores payload under key with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, keyPrefix+key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

// Delete removes a single key. Deleting a missing key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis: delete %s: %w", key, err)
	}
	return nil
}

// DeletePattern removes every key under the given prefix. It walks the
// keyspace with SCAN rather than KEYS so a large invalidation does not stall
// the server, deleting in batches as it goes.
func (c *Cache) DeletePattern(ctx context.Context, prefix string) error {
	match := keyPrefix + prefix + "*"

	iter := c.rdb.Scan(ctx, 0, match, int64(deleteBatchSize)).Iterator()
	batch := make([]string, 0, deleteBatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := c.rdb.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("redis: delete pattern %s: %w", prefix, err)
		}
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= deleteBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis: scan pattern %s: %w", prefix, err)
	}
	return flush()
}

// Compile-time interface check.
var _ domain.SharedCache = (*Cache)(nil)
