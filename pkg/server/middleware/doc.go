// Package middleware provides the HTTP middleware chain of the sieve server.
//
// The router applies them outermost first:
//
//	RequestID -> ClientIP -> Recovery -> Logging -> Metrics -> tracing -> Timeout
//
// CORS is applied to the management routes only, so that OPTIONS requests
// sent to a capture URL are recorded rather than answered as preflights.
package middleware
