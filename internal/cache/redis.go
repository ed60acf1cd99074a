// Package cache provides the Redis access layer: rate limit buckets,
// webhook event dedupe and short-lived billing lookups.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned when a key is absent.
var ErrCacheMiss = errors.New("cache miss")

// DefaultKeyPrefix namespaces every key this package writes.
const DefaultKeyPrefix = "errmate"

// Cache provides Redis cache access methods.
type Cache struct {
	client *redis.Client
	prefix string
}

// New parses redisURL, connects and pings. An empty prefix selects
// DefaultKeyPrefix.
func New(ctx context.Context, redisURL, prefix string) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return newCache(client, prefix), nil
}

// NewFromClient wraps an existing client using DefaultKeyPrefix.
func NewFromClient(client *redis.Client) *Cache {
	return newCache(client, "")
}

func newCache(client *redis.Client, prefix string) *Cache {
	prefix = strings.TrimSuffix(prefix, ":")
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Cache{client: client, prefix: prefix}
}

// key joins parts under the cache namespace: "errmate:webhook:event:evt_1".
func (c *Cache) key(parts ...string) string {
	return c.prefix + ":" + strings.Join(parts, ":")
}

// Ping checks Redis connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}
