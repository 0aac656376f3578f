package limits

import (
	"errors"
	"time"

	"requestbin-hq/sieve/pkg/limits/ratelimit"
)

// ErrLimiterUnavailable is wrapped when the limiter backend fails and the
// manager is configured to fail closed.
var ErrLimiterUnavailable = errors.New("rate limiter unavailable")

// RateLimitInfo is the limiter state after one admission decision.
// It is used to populate the X-RateLimit-* response headers.
type RateLimitInfo struct {
	// Policy is the name of the policy evaluated.
	Policy string

	// Key is the bucket key (client IP or bin identifier).
	Key string

	// Limit is the bucket capacity.
	Limit int64

	// Remaining is the number of tokens left.
	Remaining int64

	// Reset is when the next refill happens.
	Reset time.Time

	// RetryAfter is set when the request was rejected.
	RetryAfter time.Duration
}

// Config contains the admission policies.
type Config struct {
	// Creation limits bin creation per client IP.
	Creation ratelimit.Policy

	// Capture limits captures per bin.
	Capture ratelimit.Policy

	// FailOpen admits requests when the limiter backend errors.
	// Only meaningful for remote backends; the in-memory registry never errors.
	FailOpen bool
}

// DefaultConfig returns the standard creation and capture policies.
func DefaultConfig() Config {
	return Config{
		Creation: ratelimit.CreationPolicy(),
		Capture:  ratelimit.CapturePolicy(),
	}
}

func infoFrom(p ratelimit.Policy, key string, res ratelimit.CheckResult) *RateLimitInfo {
	return &RateLimitInfo{
		Policy:     p.Name,
		Key:        key,
		Limit:      res.Limit,
		Remaining:  res.Remaining,
		Reset:      res.Reset,
		RetryAfter: res.RetryAfter,
	}
}
