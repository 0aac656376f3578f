// Package ratelimit provides token bucket admission control keyed by
// arbitrary strings.
//
// # Token Bucket
//
// Each (policy, key) pair owns one TokenBucket. A bucket holds at most
// Capacity tokens and gains RefillRate tokens for every whole RefillInterval
// that passes. Refill is evaluated lazily on each call:
//
//	tokens = min(capacity, tokens + floor(elapsed/interval)*rate)
//
// Two policies are predefined: CreationPolicy (10 tokens, 10 per hour, keyed
// by client IP) and CapturePolicy (60 tokens, 60 per minute, keyed by bin).
//
// # Backends
//
// Registry keeps buckets in process memory:
//
//	reg := ratelimit.NewRegistry(ratelimit.WithIdleTTL(2 * time.Hour))
//	if !reg.TryConsume(clientIP, ratelimit.CreationPolicy()) {
//	    // rejected
//	}
//
// RedisLimiter keeps them in Redis and runs the refill in a Lua script so
// several instances share state. Both implement Limiter.
//
// # Concurrent Limiter
//
// ConcurrentLimiter is a non-blocking counting semaphore for bounding
// in-flight work.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use.
package ratelimit
