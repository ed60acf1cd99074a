package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// bucketScript refills and consumes one token atomically. Time is in whole
// seconds so every Redis node agrees on elapsed time.
//
// Returns {allowed, retry_after_s, remaining, full_in_s}.
var bucketScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])
	local burst = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	local state = redis.call('HMGET', key, 'tokens', 'ts')
	local tokens = tonumber(state[1]) or burst
	local ts = tonumber(state[2]) or now
	if now > ts then
		tokens = math.min(burst, tokens + (now - ts) * rate)
	end

	local allowed = 0
	local retry_after = 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		retry_after = math.ceil((1 - tokens) / rate)
	end

	redis.call('HSET', key, 'tokens', tokens, 'ts', now)
	redis.call('EXPIRE', key, ttl)

	return {allowed, retry_after, math.floor(tokens), math.ceil((burst - tokens) / rate)}
`)

// CheckUserRateLimit consumes a token from the signed-in user's bucket.
// A zero rate disables the limit.
func (c *Cache) CheckUserRateLimit(ctx context.Context, userID string, ratePerMinute, burst int) (*RateLimitResult, error) {
	if ratePerMinute <= 0 {
		return &RateLimitResult{
			Allowed:   true,
			Remaining: int64(burst),
			ResetAt:   time.Now(),
		}, nil
	}
	return c.take(ctx, c.key("ratelimit", "user", userID), float64(ratePerMinute)/60, burst)
}

// CheckIPRateLimit consumes a token from the client IP's bucket.
// IPs are hashed before they are used as keys.
func (c *Cache) CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*RateLimitResult, error) {
	if ratePerSecond <= 0 {
		return &RateLimitResult{Allowed: true, Remaining: int64(burst), ResetAt: time.Now()}, nil
	}
	return c.take(ctx, c.key("ratelimit", "ip", hashIP(ip)), float64(ratePerSecond), burst)
}

func (c *Cache) take(ctx context.Context, key string, rate float64, burst int) (*RateLimitResult, error) {
	now := time.Now()

	res, err := bucketScript.Run(ctx, c.client,
		[]string{key},
		rate, burst, now.Unix(), bucketTTL(rate, burst),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 4 {
		return nil, fmt.Errorf("rate limit script: unexpected reply length %d", len(res))
	}

	return &RateLimitResult{
		Allowed:    res[0] == 1,
		Remaining:  res[2],
		ResetAt:    now.Add(time.Duration(res[3]) * time.Second),
		RetryAfter: time.Duration(res[1]) * time.Second,
	}, nil
}

// bucketTTL keeps a bucket until it would have refilled completely, plus a
// second of slack. An expired bucket reads as full.
func bucketTTL(rate float64, burst int) int {
	return int(math.Ceil(float64(burst)/rate)) + 1
}

// hashIP returns the first 8 bytes of the SHA256 of ip, hex encoded.
func hashIP(ip string) string {
	hash := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(hash[:8])
}
