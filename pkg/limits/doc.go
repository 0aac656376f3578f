// Package limits applies admission control to bin creation and request
// capture.
//
// The Manager owns two policies: creation (keyed by client IP) and capture
// (keyed by bin). Each admission consumes one token from the matching bucket
// of a ratelimit.Limiter; a rejection is returned as a bin.Error of kind
// KindRateLimited carrying RetryAfter, together with a RateLimitInfo used for
// X-RateLimit-* response headers.
//
//	mgr := limits.NewManager(ratelimit.NewRegistry(), limits.DefaultConfig(), nil)
//	info, err := mgr.AdmitCapture(ctx, binKey)
//	if err != nil {
//	    // bin.KindOf(err) == bin.KindRateLimited
//	}
package limits
