package cache

import (
	"context"
	"fmt"
	"time"
)

// MarkEventSeen records a provider event id. It returns false when the id
// was already recorded within ttl.
func (c *Cache) MarkEventSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.key("webhook", "event", eventID), time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	return ok, nil
}

// ForgetEvent removes a recorded event id so a redelivery is processed again.
func (c *Cache) ForgetEvent(ctx context.Context, eventID string) error {
	return c.client.Del(ctx, c.key("webhook", "event", eventID)).Err()
}
