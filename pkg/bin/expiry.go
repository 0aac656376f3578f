package bin

import "time"

// IsLive reports whether the bin accepts lookups and captures at now.
// A bin is live strictly before its expiry instant.
func IsLive(b *Bin, now time.Time) bool {
	return now.Before(b.ExpiresAt)
}

// CheckLive returns a KindExpired error when the bin is no longer live.
func CheckLive(b *Bin, now time.Time) error {
	if !IsLive(b, now) {
		return Expired(b)
	}
	return nil
}
