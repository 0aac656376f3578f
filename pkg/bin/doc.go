// Package bin defines the core domain of the request bin service: bins,
// captured requests, the storage contract both are persisted through, the
// identifier allocator and the expiry policy.
//
// # Bins
//
// A Bin is a disposable HTTP sink. It is identified publicly by an 8
// character url-safe code, lives until ExpiresAt and accepts at most
// MaxRequests captured requests. RequestCount is only ever changed through
// Store.ReserveSlot, which performs the compare and increment as a single
// atomic operation so that concurrent captures can never push a bin past its
// ceiling.
//
// # Errors
//
// Every failure that leaves this package or its consumers is classified by a
// Kind. Callers switch on KindOf(err) exactly once, at the transport boundary,
// instead of matching concrete error types:
//
//	switch bin.KindOf(err) {
//	case bin.KindNotFound:
//	    // 404
//	case bin.KindExpired:
//	    // 410
//	}
//
// # Expiry
//
// IsLive is the single definition of liveness. Lookup paths, the capture
// pipeline and the sweeper all evaluate it against the same clock.
package bin
