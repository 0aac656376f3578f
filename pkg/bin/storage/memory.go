package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"requestbin-hq/sieve/pkg/bin"
)

// MemoryStore implements bin.Store using in-memory maps.
// It is intended for tests and throwaway deployments; nothing survives a restart.
//
// ReserveSlot reads, compares and increments under the store mutex, which is
// the in-memory equivalent of the conditional UPDATE used by SQLiteStore.
type MemoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	bins     map[int64]*bin.Bin
	byCode   map[string]int64
	requests map[int64][]*bin.CapturedRequest
}

var _ bin.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bins:     make(map[int64]*bin.Bin),
		byCode:   make(map[string]int64),
		requests: make(map[int64][]*bin.CapturedRequest),
	}
}

// CreateBin stores a copy of the bin and assigns its ID.
func (s *MemoryStore) CreateBin(ctx context.Context, b *bin.Bin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byCode[b.PublicCode]; taken {
		return bin.NewStorageError("memory", "create_bin", errDuplicateCode(b.PublicCode))
	}

	s.nextID++
	b.ID = s.nextID

	binCopy := *b
	s.bins[b.ID] = &binCopy
	s.byCode[b.PublicCode] = b.ID
	return nil
}

// GetBinByCode returns a copy of the bin with the given public code.
func (s *MemoryStore) GetBinByCode(ctx context.Context, code string) (*bin.Bin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byCode[code]
	if !ok {
		return nil, bin.NotFound(code)
	}
	binCopy := *s.bins[id]
	return &binCopy, nil
}

// CodeExists reports whether the public code is taken.
func (s *MemoryStore) CodeExists(ctx context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byCode[code]
	return ok, nil
}

// DeleteBin removes the bin and every captured request it owns.
func (s *MemoryStore) DeleteBin(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bins[id]
	if !ok {
		return binIDNotFound(id)
	}
	delete(s.byCode, b.PublicCode)
	delete(s.bins, id)
	delete(s.requests, id)
	return nil
}

// ReserveSlot increments the request count when below the maximum.
func (s *MemoryStore) ReserveSlot(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bins[id]
	if !ok {
		return false, nil
	}
	if b.RequestCount >= b.MaxRequests {
		return false, nil
	}
	b.RequestCount++
	return true, nil
}

// SaveRequest stores a copy of the captured request.
func (s *MemoryStore) SaveRequest(ctx context.Context, req *bin.CapturedRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bins[req.BinID]; !ok {
		return bin.NewStorageError("memory", "save_request", errOrphan(req.BinID))
	}

	s.requests[req.BinID] = append(s.requests[req.BinID], copyRequest(req))
	return nil
}

// ListRequests returns copies of the bin's captured requests, newest first.
func (s *MemoryStore) ListRequests(ctx context.Context, binID int64) ([]*bin.CapturedRequest, error) {
	s.mu.RLock()
	stored := s.requests[binID]
	out := make([]*bin.CapturedRequest, 0, len(stored))
	for _, req := range stored {
		out = append(out, copyRequest(req))
	}
	s.mu.RUnlock()

	// Reverse first so ties on Timestamp keep newest-inserted first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// GetRequest returns a copy of one captured request.
func (s *MemoryStore) GetRequest(ctx context.Context, binID int64, requestID string) (*bin.CapturedRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, req := range s.requests[binID] {
		if req.ID == requestID {
			return copyRequest(req), nil
		}
	}
	return nil, requestNotFound(requestID)
}

// CountRequests returns the number of captured requests stored for a bin.
func (s *MemoryStore) CountRequests(ctx context.Context, binID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.requests[binID])), nil
}

// ListExpired returns copies of bins whose expiry is at or before now.
func (s *MemoryStore) ListExpired(ctx context.Context, now time.Time) ([]*bin.Bin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*bin.Bin
	for _, b := range s.bins {
		if !b.ExpiresAt.After(now) {
			binCopy := *b
			out = append(out, &binCopy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

// Stats returns aggregate counts.
func (s *MemoryStore) Stats(ctx context.Context, now time.Time) (*bin.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &bin.Stats{Total: int64(len(s.bins))}
	for _, b := range s.bins {
		if bin.IsLive(b, now) {
			st.Active++
		}
	}
	st.Expired = st.Total - st.Active
	for _, reqs := range s.requests {
		st.Requests += int64(len(reqs))
	}
	return st, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

// Size returns the number of bins held.
func (s *MemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bins)
}

func copyRequest(req *bin.CapturedRequest) *bin.CapturedRequest {
	c := *req
	c.Headers = copyMap(req.Headers)
	c.QueryParams = copyMap(req.QueryParams)
	return &c
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
