package ratelimit

import (
	"sync/atomic"
)

// ConcurrentLimiter bounds the number of simultaneous in-flight operations.
// It is a counting semaphore that never blocks: Acquire fails immediately
// when every slot is taken. Replay uses it to cap concurrent outbound calls.
//
// # Thread Safety
//
// ConcurrentLimiter is lock-free and thread-safe using atomic operations.
type ConcurrentLimiter struct {
	limit   int64
	current atomic.Int64
}

// NewConcurrentLimiter creates a limiter with the given number of slots.
// A non-positive limit disables the bound.
func NewConcurrentLimiter(limit int) *ConcurrentLimiter {
	return &ConcurrentLimiter{limit: int64(limit)}
}

// Acquire takes a slot. If it returns true the caller must call Release:
//
//	if limiter.Acquire() {
//	    defer limiter.Release()
//	}
func (cl *ConcurrentLimiter) Acquire() bool {
	if cl.limit <= 0 {
		cl.current.Add(1)
		return true
	}
	if cl.current.Add(1) > cl.limit {
		cl.current.Add(-1)
		return false
	}
	return true
}

// Release returns a slot taken by Acquire.
func (cl *ConcurrentLimiter) Release() {
	cl.current.Add(-1)
}

// Current returns the number of slots in use.
func (cl *ConcurrentLimiter) Current() int64 {
	return cl.current.Load()
}

// Limit returns the configured number of slots.
func (cl *ConcurrentLimiter) Limit() int64 {
	return cl.limit
}
