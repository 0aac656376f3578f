package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"requestbin-hq/sieve/pkg/bin"
	"requestbin-hq/sieve/pkg/bin/storage"
)

var epoch = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

type recorder struct {
	mu       sync.Mutex
	sweeps   map[string]int
	deleted  int
	active   int64
	expired  int64
	requests int64
}

func (r *recorder) RecordSweep(result string, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sweeps == nil {
		r.sweeps = make(map[string]int)
	}
	r.sweeps[result]++
}

func (r *recorder) RecordBinDeleted(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted++
}

func (r *recorder) SetBinCounts(active, expired, requests int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active, r.expired, r.requests = active, expired, requests
}

type maintainer struct{ calls int }

func (m *maintainer) Maintain(time.Time) int {
	m.calls++
	return 3
}

func seed(t *testing.T, store bin.Store, code string, ttl time.Duration) *bin.Bin {
	t.Helper()
	b := &bin.Bin{
		PublicCode:  code,
		CreatedAt:   epoch.Add(-time.Hour),
		ExpiresAt:   epoch.Add(-time.Hour).Add(ttl),
		MaxRequests: 10,
	}
	require.NoError(t, store.CreateBin(context.Background(), b))
	return b
}

func TestSweep_DeletesOnlyDeadBins(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	dead := seed(t, store, "deadbin1", 30*time.Minute)
	edge := seed(t, store, "edgebin1", time.Hour) // expires exactly now
	live := seed(t, store, "livebin1", 2*time.Hour)

	require.NoError(t, store.SaveRequest(ctx, &bin.CapturedRequest{ID: "r1", BinID: dead.ID, Timestamp: epoch}))

	rec := &recorder{}
	m := &maintainer{}
	s := New(store, WithClock(func() time.Time { return epoch }), WithRecorder(rec), WithMaintainer(m))

	res, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Deleted)
	assert.Zero(t, res.Failed)
	assert.Equal(t, 3, res.Evicted)
	assert.Equal(t, 1, m.calls)
	assert.Equal(t, 2, rec.deleted)
	assert.Equal(t, 1, rec.sweeps["success"])

	for _, code := range []string{dead.PublicCode, edge.PublicCode} {
		_, err := store.GetBinByCode(ctx, code)
		assert.True(t, errors.Is(err, bin.ErrNotFound), code)
	}
	_, err = store.GetBinByCode(ctx, live.PublicCode)
	assert.NoError(t, err)

	n, err := store.CountRequests(ctx, dead.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// flakyStore fails deletes for one bin and reports another as already gone.
type flakyStore struct {
	*storage.MemoryStore
	failID int64
	goneID int64
}

func (f *flakyStore) DeleteBin(ctx context.Context, id int64) error {
	switch id {
	case f.failID:
		return bin.NewStorageError("memory", "delete_bin", errors.New("locked"))
	case f.goneID:
		return &bin.Error{Kind: bin.KindNotFound}
	}
	return f.MemoryStore.DeleteBin(ctx, id)
}

func TestSweep_ContinuesPastFailures(t *testing.T) {
	mem := storage.NewMemoryStore()
	a := seed(t, mem, "binaaaaa", time.Minute)
	b := seed(t, mem, "binbbbbb", time.Minute)
	seed(t, mem, "bincccc1", time.Minute)

	rec := &recorder{}
	s := New(&flakyStore{MemoryStore: mem, failID: a.ID, goneID: b.ID},
		WithClock(func() time.Time { return epoch }),
		WithRecorder(rec),
	)

	res, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Scanned)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, rec.sweeps["partial"])
}

func TestSweep_Canceled(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(t, store, "deadbin1", time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(store, WithClock(func() time.Time { return epoch })).Sweep(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStats(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(t, store, "deadbin1", time.Minute)
	seed(t, store, "livebin1", 2*time.Hour)

	rec := &recorder{}
	stats, err := New(store, WithClock(func() time.Time { return epoch }), WithRecorder(rec)).Stats(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Total)
	assert.EqualValues(t, 1, stats.Active)
	assert.EqualValues(t, 1, stats.Expired)
	assert.EqualValues(t, 1, rec.active)
	assert.EqualValues(t, 1, rec.expired)
}

func TestScheduler_StartStop(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(t, store, "deadbin1", time.Minute)

	sched := NewScheduler(New(store, WithClock(func() time.Time { return epoch })), Config{
		Schedule:      "@every 1h",
		StatsSchedule: "@every 30m",
		InitialDelay:  10 * time.Millisecond,
	})

	require.NoError(t, sched.Start(context.Background()))
	assert.True(t, sched.IsRunning())
	require.NotNil(t, sched.NextRun())

	assert.Eventually(t, func() bool {
		return store.Size() == 0
	}, time.Second, 10*time.Millisecond)

	sched.Stop()
	assert.False(t, sched.IsRunning())
	sched.Stop()
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	sched := NewScheduler(New(storage.NewMemoryStore()), Config{Schedule: "@every 1h"})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, sched.Start(ctx))
	cancel()

	assert.Eventually(t, func() bool { return !sched.IsRunning() }, time.Second, 10*time.Millisecond)
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	for _, cfg := range []Config{
		{},
		{Schedule: "not a schedule"},
		{Schedule: "@every 1h", StatsSchedule: "bogus"},
	} {
		err := NewScheduler(New(storage.NewMemoryStore()), cfg).Start(context.Background())
		assert.Error(t, err, "%+v", cfg)
	}
}

// blockingStore holds ListExpired until release is closed.
type blockingStore struct {
	*storage.MemoryStore
	started chan struct{}
	release chan struct{}
}

func (s *blockingStore) ListExpired(ctx context.Context, now time.Time) ([]*bin.Bin, error) {
	close(s.started)
	<-s.release
	return s.MemoryStore.ListExpired(ctx, now)
}

func TestScheduler_StopWaitsForInitialSweep(t *testing.T) {
	store := &blockingStore{
		MemoryStore: storage.NewMemoryStore(),
		started:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	sched := NewScheduler(New(store), Config{Schedule: "@every 1h", InitialDelay: time.Millisecond})
	require.NoError(t, sched.Start(context.Background()))
	<-store.started

	stopped := make(chan struct{})
	go func() {
		sched.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while the initial sweep was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the initial sweep finished")
	}
}

func TestScheduler_Restart(t *testing.T) {
	sched := NewScheduler(New(storage.NewMemoryStore()), Config{
		Schedule:      "@every 1h",
		StatsSchedule: "@every 30m",
	})

	for i := 0; i < 2; i++ {
		require.NoError(t, sched.Start(context.Background()))
		assert.True(t, sched.IsRunning())
		require.NotNil(t, sched.NextRun())
		assert.Len(t, sched.cron.Entries(), 2)
		sched.Stop()
		assert.False(t, sched.IsRunning())
	}
}
