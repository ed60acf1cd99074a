package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// GetCancelAt returns the cached cancel-at unix time for a subscription.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetCancelAt(ctx context.Context, subscriptionID string) (int64, error) {
	val, err := c.client.Get(ctx, c.cancelAtKey(subscriptionID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrCacheMiss
	}
	if err != nil {
		return 0, fmt.Errorf("redis get failed: %w", err)
	}

	at, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		// Corrupted entry - treat as miss
		return 0, ErrCacheMiss
	}
	return at, nil
}

// SetCancelAt caches the cancel-at unix time for a subscription.
func (c *Cache) SetCancelAt(ctx context.Context, subscriptionID string, at int64, ttl time.Duration) error {
	return c.client.Set(ctx, c.cancelAtKey(subscriptionID), strconv.FormatInt(at, 10), ttl).Err()
}

func (c *Cache) cancelAtKey(subscriptionID string) string {
	return c.key("billing", "cancel_at", subscriptionID)
}

// DeleteCancelAt drops the cached value, used when a subscription ends.
func (c *Cache) DeleteCancelAt(ctx context.Context, subscriptionID string) error {
	return c.client.Del(ctx, c.cancelAtKey(subscriptionID)).Err()
}
