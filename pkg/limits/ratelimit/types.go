package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy describes one family of token buckets.
type Policy struct {
	// Name identifies the policy in metrics, logs and bucket keys.
	Name string

	// Capacity is the maximum number of tokens (burst size).
	Capacity int64

	// RefillRate is the number of tokens added per RefillInterval.
	RefillRate int64

	// RefillInterval is the refill period.
	RefillInterval time.Duration
}

// Validate checks that the policy can drive a bucket.
func (p Policy) Validate() error {
	if p.Name == "" {
		return errors.New("policy name is required")
	}
	if p.Capacity <= 0 {
		return fmt.Errorf("policy %s: capacity must be positive", p.Name)
	}
	if p.RefillRate <= 0 {
		return fmt.Errorf("policy %s: refill rate must be positive", p.Name)
	}
	if p.RefillInterval <= 0 {
		return fmt.Errorf("policy %s: refill interval must be positive", p.Name)
	}
	return nil
}

// String renders the policy as "name(capacity, rate/interval)".
func (p Policy) String() string {
	return fmt.Sprintf("%s(%d, %d/%s)", p.Name, p.Capacity, p.RefillRate, p.RefillInterval)
}

// CreationPolicy limits bin creation per client IP: 10 per hour.
func CreationPolicy() Policy {
	return Policy{Name: "creation", Capacity: 10, RefillRate: 10, RefillInterval: time.Hour}
}

// CapturePolicy limits captures per bin: 60 per minute.
func CapturePolicy() Policy {
	return Policy{Name: "capture", Capacity: 60, RefillRate: 60, RefillInterval: time.Minute}
}

// CheckResult contains the result of a rate limit check.
type CheckResult struct {
	// Allowed indicates if the request is permitted.
	Allowed bool

	// Limit is the bucket capacity.
	Limit int64

	// Remaining is how many tokens remain after this check.
	Remaining int64

	// Reset is when the next refill happens.
	Reset time.Time

	// RetryAfter suggests how long to wait before retrying (if Allowed=false).
	RetryAfter time.Duration
}

// Limiter consumes one token per call from the bucket identified by
// (policy, key).
type Limiter interface {
	Check(ctx context.Context, key string, p Policy) (CheckResult, error)
}
