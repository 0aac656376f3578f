// Package lifecycle creates, resolves and deletes bins.
//
// Manager.Create validates the requested lifetime and quota, applies the
// per-IP creation rate limit, allocates a public code and persists the
// bin. Lookups fail with bin.KindExpired once a bin's lifetime has passed;
// deletion does not check liveness.
package lifecycle
