// Package replay resends captured requests to an external target.
//
// The captured method, headers and body are forwarded, minus hop-by-hop
// headers. Callers may add or override headers and replace the body.
// Outbound traffic is throttled process-wide by a token bucket and by a
// bound on in-flight calls; each call is limited by a timeout and the
// response body returned to the caller is capped.
package replay
