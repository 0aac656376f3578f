// Package capture records inbound HTTP requests against bins.
//
// Normalize flattens a request into a bin.CapturedRequest: headers keep
// their last value, query parameters their first, and the client address
// is resolved through ClientIP. Pipeline runs the ordered admission steps
// (bin lookup, liveness, capture rate limit, quota reservation) before
// persisting the normalized request.
package capture
