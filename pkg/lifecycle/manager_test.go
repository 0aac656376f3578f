package lifecycle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"requestbin-hq/sieve/pkg/bin"
	"requestbin-hq/sieve/pkg/bin/storage"
	"requestbin-hq/sieve/pkg/capture"
	"requestbin-hq/sieve/pkg/limits"
	"requestbin-hq/sieve/pkg/limits/ratelimit"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store    *storage.MemoryStore
	clock    *clock
	limits   *limits.Manager
	manager  *Manager
	pipeline *capture.Pipeline
	events   *events
}

type events struct {
	mu      sync.Mutex
	created int
	deleted map[string]int
}

func (e *events) RecordBinCreated() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.created++
}

func (e *events) RecordBinDeleted(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted == nil {
		e.deleted = make(map[string]int)
	}
	e.deleted[reason]++
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := &clock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	store := storage.NewMemoryStore()
	registry := ratelimit.NewRegistry(ratelimit.WithClock(clk.Now))
	lm := limits.NewManager(registry, limits.DefaultConfig(), nil)
	ev := &events{}

	return &fixture{
		store:    store,
		clock:    clk,
		limits:   lm,
		events:   ev,
		manager:  NewManager(store, bin.NewAllocator(store), lm, DefaultConfig(), WithClock(clk.Now), WithRecorder(ev)),
		pipeline: capture.NewPipeline(store, lm, capture.WithClock(clk.Now)),
	}
}

func captureRequest() *http.Request {
	return httptest.NewRequest(http.MethodPost, "/capture/x?a=1", strings.NewReader("hello"))
}

func TestCreate_Defaults(t *testing.T) {
	f := newFixture(t)

	b, err := f.manager.Create(context.Background(), CreateParams{ClientIP: "192.0.2.1"})
	require.NoError(t, err)

	assert.Len(t, b.PublicCode, bin.CodeLength)
	assert.NotZero(t, b.ID)
	assert.Equal(t, f.clock.Now(), b.CreatedAt)
	assert.Equal(t, b.CreatedAt.Add(24*time.Hour), b.ExpiresAt)
	assert.Equal(t, 1000, b.MaxRequests)
	assert.Zero(t, b.RequestCount)
	assert.Equal(t, 1, f.events.created)
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name   string
		params CreateParams
		fields []string
	}{
		{"expiry too long", CreateParams{ExpiryHours: 169}, []string{"expiryHours"}},
		{"expiry negative", CreateParams{ExpiryHours: -1}, []string{"expiryHours"}},
		{"max too small", CreateParams{MaxRequests: 9}, []string{"maxRequests"}},
		{"max too large", CreateParams{MaxRequests: 10001}, []string{"maxRequests"}},
		{"both", CreateParams{ExpiryHours: 500, MaxRequests: 5}, []string{"expiryHours", "maxRequests"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.manager.Create(context.Background(), tt.params)
			require.Error(t, err)

			var be *bin.Error
			require.ErrorAs(t, err, &be)
			assert.Equal(t, bin.KindValidation, be.Kind)

			var got []string
			for _, fe := range be.Fields {
				got = append(got, fe.Field)
			}
			assert.Equal(t, tt.fields, got)
		})
	}
}

func TestCreate_Bounds(t *testing.T) {
	f := newFixture(t)
	for _, p := range []CreateParams{
		{ExpiryHours: 1, MaxRequests: 10},
		{ExpiryHours: 168, MaxRequests: 10000},
	} {
		_, err := f.manager.Create(context.Background(), p)
		assert.NoError(t, err)
	}
}

func TestCreate_RateLimitedPerIP(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := f.manager.Create(ctx, CreateParams{ClientIP: "192.0.2.1"})
		require.NoError(t, err, "create %d", i+1)
	}

	_, err := f.manager.Create(ctx, CreateParams{ClientIP: "192.0.2.1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, bin.ErrRateLimited))

	_, err = f.manager.Create(ctx, CreateParams{ClientIP: "192.0.2.2"})
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	_, err = f.manager.Create(ctx, CreateParams{ClientIP: "192.0.2.1"})
	require.NoError(t, err)
}

func TestCreate_AllocationExhausted(t *testing.T) {
	f := newFixture(t)
	zeros := strings.NewReader(strings.Repeat("\x00", 6*bin.DefaultMaxAttempts*2))
	f.manager.allocator = bin.NewAllocator(f.store, bin.WithRandSource(zeros))

	_, err := f.manager.Create(context.Background(), CreateParams{})
	require.NoError(t, err)

	_, err = f.manager.Create(context.Background(), CreateParams{})
	require.Error(t, err)
	assert.Equal(t, bin.KindAllocationExhausted, bin.KindOf(err))
}

func TestEndToEnd_MaxRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.manager.Create(ctx, CreateParams{MaxRequests: 10})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := f.pipeline.Capture(ctx, b.PublicCode, captureRequest())
		require.NoError(t, err, "capture %d", i+1)
	}

	got, err := f.manager.Get(ctx, b.PublicCode)
	require.NoError(t, err)
	assert.Equal(t, 10, got.RequestCount)

	_, err = f.pipeline.Capture(ctx, b.PublicCode, captureRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, bin.ErrLimitExceeded))
}

func TestEndToEnd_Expiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.manager.Create(ctx, CreateParams{ExpiryHours: 1, MaxRequests: 10})
	require.NoError(t, err)

	f.clock.Advance(time.Hour + time.Second)

	_, err = f.manager.Get(ctx, b.PublicCode)
	assert.True(t, errors.Is(err, bin.ErrExpired))

	_, err = f.manager.Details(ctx, b.PublicCode)
	assert.True(t, errors.Is(err, bin.ErrExpired))

	_, err = f.pipeline.Capture(ctx, b.PublicCode, captureRequest())
	assert.True(t, errors.Is(err, bin.ErrExpired))

	// Expired bins can still be deleted.
	require.NoError(t, f.manager.Delete(ctx, b.PublicCode))
	_, err = f.manager.Get(ctx, b.PublicCode)
	assert.True(t, errors.Is(err, bin.ErrNotFound))
}

func TestDetails_NewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.manager.Create(ctx, CreateParams{MaxRequests: 10})
	require.NoError(t, err)

	var ids []string
	for i := 0; i < 3; i++ {
		req, err := f.pipeline.Capture(ctx, b.PublicCode, captureRequest())
		require.NoError(t, err)
		ids = append(ids, req.ID)
		f.clock.Advance(time.Second)
	}

	d, err := f.manager.Details(ctx, b.PublicCode)
	require.NoError(t, err)
	require.Len(t, d.Requests, 3)
	assert.Equal(t, ids[2], d.Requests[0].ID)
	assert.Equal(t, ids[0], d.Requests[2].ID)

	one, err := f.manager.Request(ctx, b.PublicCode, ids[1])
	require.NoError(t, err)
	assert.Equal(t, "hello", one.Body)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.manager.Delete(ctx, "nothere")
	assert.True(t, errors.Is(err, bin.ErrNotFound))

	b, err := f.manager.Create(ctx, CreateParams{MaxRequests: 10})
	require.NoError(t, err)
	_, err = f.pipeline.Capture(ctx, b.PublicCode, captureRequest())
	require.NoError(t, err)

	require.NoError(t, f.manager.Delete(ctx, b.PublicCode))
	n, err := f.store.CountRequests(ctx, b.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, f.events.deleted["owner"])
}

func TestFullURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PublicBaseURL = "https://bins.example.com/"
	m := NewManager(nil, nil, nil, cfg)
	assert.Equal(t, "https://bins.example.com/capture/abcd1234", m.FullURL("abcd1234"))
}
