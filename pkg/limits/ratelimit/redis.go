package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript runs the interval token bucket atomically inside Redis.
// KEYS[1] bucket hash; ARGV capacity, rate, interval_ms, now_ms, ttl_ms.
// Returns {allowed, tokens, last_refill_ms}.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local interval = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'last')
local tokens = tonumber(state[1])
local last = tonumber(state[2])
if tokens == nil or last == nil then
  tokens = capacity
  last = now
end

local elapsed = now - last
if elapsed >= interval then
  local intervals = math.floor(elapsed / interval)
  tokens = math.min(capacity, tokens + intervals * rate)
  last = last + intervals * interval
end

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call('HSET', key, 'tokens', tokens, 'last', last)
redis.call('PEXPIRE', key, ttl)
return {allowed, tokens, last}
`)

// RedisLimiter keeps token buckets in Redis so several processes share one
// bucket per key. It runs the same interval refill as TokenBucket. Keys
// expire once a bucket would have refilled completely, which is equivalent
// to idle eviction.
type RedisLimiter struct {
	rdb    redis.UniversalClient
	prefix string
	clock  Clock
}

// RedisOption configures a RedisLimiter.
type RedisOption func(*RedisLimiter)

// WithRedisPrefix sets the key prefix. Default: "sieve:ratelimit".
func WithRedisPrefix(prefix string) RedisOption {
	return func(l *RedisLimiter) { l.prefix = strings.Trim(prefix, ":") }
}

// WithRedisClock sets the clock used to timestamp refills.
func WithRedisClock(clock Clock) RedisOption {
	return func(l *RedisLimiter) { l.clock = clock }
}

// NewRedisLimiter creates a limiter backed by rdb.
func NewRedisLimiter(rdb redis.UniversalClient, opts ...RedisOption) *RedisLimiter {
	l := &RedisLimiter{
		rdb:    rdb,
		prefix: "sieve:ratelimit",
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var _ Limiter = (*RedisLimiter)(nil)

// Check consumes one token from the shared bucket for (p, key).
func (l *RedisLimiter) Check(ctx context.Context, key string, p Policy) (CheckResult, error) {
	now := l.clock()
	nowMs := now.UnixMilli()
	intervalMs := p.RefillInterval.Milliseconds()
	if intervalMs <= 0 {
		intervalMs = 1
	}

	// Long enough for an empty bucket to refill completely, plus one interval.
	fullIntervals := (p.Capacity + p.RefillRate - 1) / p.RefillRate
	ttlMs := (fullIntervals + 1) * intervalMs

	vals, err := tokenBucketScript.Run(ctx, l.rdb, []string{l.key(p.Name, key)},
		p.Capacity, p.RefillRate, intervalMs, nowMs, ttlMs,
	).Int64Slice()
	if err != nil {
		return CheckResult{}, fmt.Errorf("redis token bucket %s: %w", p.Name, err)
	}
	if len(vals) != 3 {
		return CheckResult{}, fmt.Errorf("redis token bucket %s: unexpected reply length %d", p.Name, len(vals))
	}

	lastRefill := time.UnixMilli(vals[2])
	res := CheckResult{
		Allowed:   vals[0] == 1,
		Limit:     p.Capacity,
		Remaining: vals[1],
		Reset:     lastRefill.Add(p.RefillInterval),
	}
	if !res.Allowed {
		res.RetryAfter = res.Reset.Sub(now)
		if res.RetryAfter < 0 {
			res.RetryAfter = 0
		}
	}
	return res, nil
}

// Ping verifies the Redis connection.
func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

// Close closes the underlying client.
func (l *RedisLimiter) Close() error {
	return l.rdb.Close()
}

func (l *RedisLimiter) key(policy, key string) string {
	return l.prefix + ":" + policy + ":" + key
}
