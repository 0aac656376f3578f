package bin

import (
	"context"
	"time"
)

// Bin is a capture endpoint with a public code, a lifetime and a request quota.
type Bin struct {
	// ID is the storage-assigned identity.
	ID int64 `json:"id"`

	// PublicCode is the short url-safe identifier used in capture URLs.
	PublicCode string `json:"publicCode"`

	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`

	// MaxRequests is the ceiling on captured requests.
	MaxRequests int `json:"maxRequests"`

	// RequestCount is the number of captured requests reserved so far.
	// It never exceeds MaxRequests.
	RequestCount int `json:"requestCount"`
}

// Remaining returns how many captures the bin still accepts.
func (b *Bin) Remaining() int {
	if b.RequestCount >= b.MaxRequests {
		return 0
	}
	return b.MaxRequests - b.RequestCount
}

// CapturedRequest is one inbound call recorded against a bin.
type CapturedRequest struct {
	ID          string            `json:"id"`
	BinID       int64             `json:"binId"`
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Headers     map[string]string `json:"headers"`
	QueryParams map[string]string `json:"queryParams"`
	Body        string            `json:"body"`
	IPAddress   string            `json:"ipAddress"`
	Timestamp   time.Time         `json:"timestamp"`
}

// Stats summarizes the bins currently held by a store.
type Stats struct {
	Total    int64 `json:"total"`
	Active   int64 `json:"active"`
	Expired  int64 `json:"expired"`
	Requests int64 `json:"requests"`
}

// Store is the persistence contract for bins and their captured requests.
//
// Implementations must be safe for concurrent use. ReserveSlot must evaluate
// "request_count < max_requests" and increment in one atomic step; a
// read-then-write across two calls is not acceptable.
type Store interface {
	// CreateBin persists a new bin and assigns its ID.
	CreateBin(ctx context.Context, b *Bin) error

	// GetBinByCode returns the bin with the given public code or an error of
	// kind KindNotFound.
	GetBinByCode(ctx context.Context, code string) (*Bin, error)

	// CodeExists reports whether a bin with the given public code exists.
	CodeExists(ctx context.Context, code string) (bool, error)

	// DeleteBin removes a bin and all of its captured requests.
	// Deleting an unknown bin returns an error of kind KindNotFound.
	DeleteBin(ctx context.Context, id int64) error

	// ReserveSlot atomically increments the request count of a bin when it is
	// below its maximum. It returns false without mutating anything when the
	// bin is full.
	ReserveSlot(ctx context.Context, id int64) (bool, error)

	// SaveRequest persists a captured request.
	SaveRequest(ctx context.Context, req *CapturedRequest) error

	// ListRequests returns the captured requests of a bin, newest first.
	ListRequests(ctx context.Context, binID int64) ([]*CapturedRequest, error)

	// GetRequest returns one captured request of a bin.
	GetRequest(ctx context.Context, binID int64, requestID string) (*CapturedRequest, error)

	// CountRequests returns the number of captured requests stored for a bin.
	CountRequests(ctx context.Context, binID int64) (int64, error)

	// ListExpired returns bins whose expiry is at or before the given time.
	ListExpired(ctx context.Context, now time.Time) ([]*Bin, error)

	// Stats returns aggregate counts evaluated at the given time.
	Stats(ctx context.Context, now time.Time) (*Stats, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}
