package limits

import (
	"context"
	"sync"
)

type infoSlotKey struct{}

// InfoSlot receives the RateLimitInfo of the admissions made with a context
// returned by TrackInfo. The transport layer reads it to set response
// headers after the domain call returns.
type InfoSlot struct {
	mu   sync.Mutex
	info *RateLimitInfo
}

// TrackInfo returns a context whose admissions are recorded in the slot.
func TrackInfo(ctx context.Context) (context.Context, *InfoSlot) {
	slot := &InfoSlot{}
	return context.WithValue(ctx, infoSlotKey{}, slot), slot
}

// Info returns the latest recorded admission, or nil.
func (s *InfoSlot) Info() *RateLimitInfo {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// InfoFromContext returns the latest admission recorded in ctx, or nil.
func InfoFromContext(ctx context.Context) *RateLimitInfo {
	slot, _ := ctx.Value(infoSlotKey{}).(*InfoSlot)
	return slot.Info()
}

func recordInfo(ctx context.Context, info *RateLimitInfo) {
	slot, ok := ctx.Value(infoSlotKey{}).(*InfoSlot)
	if !ok {
		return
	}
	slot.mu.Lock()
	slot.info = info
	slot.mu.Unlock()
}
