package ratelimit

import (
	"sync"
	"time"
)

// Clock returns the current time. Tests inject a fake clock.
type Clock func() time.Time

// TokenBucket implements the token bucket algorithm with interval refill.
//
// The bucket holds at most capacity tokens and starts full. Every whole
// refillInterval that elapses adds refillRate tokens. Refill is computed
// lazily when the bucket is touched, so no background timer is needed.
//
// # Algorithm
//
//  1. intervals = floor((now - lastRefill) / refillInterval)
//  2. tokens = min(capacity, tokens + intervals*refillRate)
//  3. lastRefill advances by intervals*refillInterval (partial progress kept)
//  4. Take(n) succeeds and subtracts n when tokens >= n, otherwise leaves
//     the bucket untouched
//
// # Thread Safety
//
// TokenBucket is thread-safe using sync.Mutex for all operations.
type TokenBucket struct {
	capacity       int64
	tokens         int64
	refillRate     int64
	refillInterval time.Duration
	lastRefill     time.Time
	lastUsed       time.Time
	retired        bool
	clock          Clock
	mu             sync.Mutex
}

// NewTokenBucket creates a full token bucket.
//
// Example:
//
//	// 60 requests per minute, burst up to 60
//	bucket := NewTokenBucket(60, 60, time.Minute, nil)
func NewTokenBucket(capacity, refillRate int64, refillInterval time.Duration, clock Clock) *TokenBucket {
	if clock == nil {
		clock = time.Now
	}
	now := clock()
	return &TokenBucket{
		capacity:       capacity,
		tokens:         capacity,
		refillRate:     refillRate,
		refillInterval: refillInterval,
		lastRefill:     now,
		lastUsed:       now,
		clock:          clock,
	}
}

// NewTokenBucketForPolicy creates a full bucket sized by p.
func NewTokenBucketForPolicy(p Policy, clock Clock) *TokenBucket {
	return NewTokenBucket(p.Capacity, p.RefillRate, p.RefillInterval, clock)
}

// Take attempts to consume n tokens from the bucket.
// Returns true if tokens were available and consumed, false otherwise.
func (tb *TokenBucket) Take(n int64) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	ok, _ := tb.takeLocked(n)
	return ok
}

// take is the registry entry point. It reports retired=true when the bucket
// was evicted after the caller looked it up; the caller must fetch the
// current bucket for the key and retry.
func (tb *TokenBucket) take(n int64) (result CheckResult, retired bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if tb.retired {
		return CheckResult{}, true
	}

	allowed, now := tb.takeLocked(n)
	result = CheckResult{
		Allowed:   allowed,
		Limit:     tb.capacity,
		Remaining: tb.tokens,
		Reset:     tb.lastRefill.Add(tb.refillInterval),
	}
	if !allowed {
		result.RetryAfter = tb.untilAvailableLocked(n, now)
	}
	return result, false
}

func (tb *TokenBucket) takeLocked(n int64) (bool, time.Time) {
	now := tb.clock()
	tb.refillLocked(now)
	tb.lastUsed = now

	if tb.tokens >= n {
		tb.tokens -= n
		return true, now
	}
	return false, now
}

// Remaining returns the number of tokens currently available after refill.
func (tb *TokenBucket) Remaining() int64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked(tb.clock())
	return tb.tokens
}

// Capacity returns the maximum bucket capacity.
func (tb *TokenBucket) Capacity() int64 {
	return tb.capacity
}

// Reset refills the bucket to capacity.
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.capacity
	tb.lastRefill = tb.clock()
}

// TimeUntilAvailable returns how long until n tokens will be available.
// Returns 0 if tokens are immediately available.
func (tb *TokenBucket) TimeUntilAvailable(n int64) time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.clock()
	tb.refillLocked(now)
	return tb.untilAvailableLocked(n, now)
}

func (tb *TokenBucket) untilAvailableLocked(n int64, now time.Time) time.Duration {
	if tb.tokens >= n {
		return 0
	}
	if n > tb.capacity || tb.refillRate <= 0 {
		return -1
	}

	missing := n - tb.tokens
	intervals := (missing + tb.refillRate - 1) / tb.refillRate
	wait := tb.lastRefill.Add(time.Duration(intervals) * tb.refillInterval).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// retireIfIdle marks the bucket retired when it is full and has not been used
// since before cutoff. A retired bucket refuses further takes.
func (tb *TokenBucket) retireIfIdle(cutoff time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked(tb.clock())
	if tb.tokens < tb.capacity || tb.lastUsed.After(cutoff) {
		return false
	}
	tb.retired = true
	return true
}

// refillLocked adds tokens for every whole interval elapsed since lastRefill.
// Caller must hold lock.
func (tb *TokenBucket) refillLocked(now time.Time) {
	if tb.refillInterval <= 0 || tb.refillRate <= 0 {
		return
	}

	elapsed := now.Sub(tb.lastRefill)
	if elapsed < tb.refillInterval {
		return
	}

	intervals := int64(elapsed / tb.refillInterval)
	tb.lastRefill = tb.lastRefill.Add(time.Duration(intervals) * tb.refillInterval)

	// Enough intervals to fill from empty; skip the multiply to avoid overflow.
	if intervals >= (tb.capacity+tb.refillRate-1)/tb.refillRate {
		tb.tokens = tb.capacity
		return
	}

	tb.tokens += intervals * tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
}
