package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Registry owns the in-memory token buckets, one per (policy, key).
//
// Buckets are created lazily on first use. sync.Map.LoadOrStore guarantees
// that concurrent first callers for the same key all end up on a single
// bucket. A Registry is created by the process at startup and injected into
// the services that need admission control; there is no package-level
// registry.
//
// # Eviction
//
// With a zero IdleTTL buckets live for the lifetime of the Registry. With a
// positive IdleTTL, EvictIdle removes buckets that are full and unused for
// longer than IdleTTL. A full bucket admits exactly what a fresh bucket
// would, so eviction never changes admission decisions.
type Registry struct {
	clock   Clock
	idleTTL time.Duration

	// policies maps policy name to a *sync.Map of key -> *TokenBucket.
	policies sync.Map
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock sets the clock used by every bucket in the registry.
func WithClock(clock Clock) RegistryOption {
	return func(r *Registry) { r.clock = clock }
}

// WithIdleTTL enables eviction of idle full buckets.
func WithIdleTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) { r.idleTTL = ttl }
}

// NewRegistry creates an empty bucket registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{clock: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ Limiter = (*Registry)(nil)

// TryConsume removes one token from the bucket for (p, key) and reports
// whether it was available.
func (r *Registry) TryConsume(key string, p Policy) bool {
	res, _ := r.Check(context.Background(), key, p)
	return res.Allowed
}

// Check removes one token from the bucket for (p, key).
// It never returns an error; the signature matches Limiter.
func (r *Registry) Check(_ context.Context, key string, p Policy) (CheckResult, error) {
	buckets := r.bucketsFor(p.Name)
	for {
		bucket := r.bucket(buckets, key, p)
		res, retired := bucket.take(1)
		if !retired {
			return res, nil
		}
		// Evicted between lookup and take; drop our stale pointer.
		buckets.CompareAndDelete(key, bucket)
	}
}

// Bucket returns the live bucket for (p, key), creating it if needed.
func (r *Registry) Bucket(key string, p Policy) *TokenBucket {
	return r.bucket(r.bucketsFor(p.Name), key, p)
}

// Len returns the number of buckets held for a policy.
func (r *Registry) Len(policy string) int {
	v, ok := r.policies.Load(policy)
	if !ok {
		return 0
	}
	n := 0
	v.(*sync.Map).Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// EvictIdle drops full buckets unused since now-IdleTTL and returns how many
// were removed. It is a no-op when IdleTTL is zero.
func (r *Registry) EvictIdle(now time.Time) int {
	if r.idleTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-r.idleTTL)

	evicted := 0
	r.policies.Range(func(_, v any) bool {
		buckets := v.(*sync.Map)
		buckets.Range(func(key, b any) bool {
			bucket := b.(*TokenBucket)
			if bucket.retireIfIdle(cutoff) {
				buckets.CompareAndDelete(key, bucket)
				evicted++
			}
			return true
		})
		return true
	})
	return evicted
}

// Reset drops every bucket.
func (r *Registry) Reset() {
	r.policies.Range(func(name, _ any) bool {
		r.policies.Delete(name)
		return true
	})
}

func (r *Registry) bucketsFor(policy string) *sync.Map {
	if v, ok := r.policies.Load(policy); ok {
		return v.(*sync.Map)
	}
	v, _ := r.policies.LoadOrStore(policy, &sync.Map{})
	return v.(*sync.Map)
}

func (r *Registry) bucket(buckets *sync.Map, key string, p Policy) *TokenBucket {
	if v, ok := buckets.Load(key); ok {
		return v.(*TokenBucket)
	}
	v, _ := buckets.LoadOrStore(key, NewTokenBucketForPolicy(p, r.clock))
	return v.(*TokenBucket)
}
