package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"requestbin-hq/sieve/pkg/bin"
)

// Recorder observes sweeps and bin population.
type Recorder interface {
	RecordSweep(result string, deleted int)
	RecordBinDeleted(reason string)
	SetBinCounts(active, expired, requests int64)
}

// Maintainer is run after every sweep, typically to evict idle rate
// limit buckets.
type Maintainer interface {
	Maintain(now time.Time) int
}

// Result summarizes one sweep.
type Result struct {
	Scanned  int
	Deleted  int
	Skipped  int
	Failed   int
	Evicted  int
	Duration time.Duration
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Sweeper) { s.recorder = r }
}

// WithMaintainer sets a post-sweep maintenance hook.
func WithMaintainer(m Maintainer) Option {
	return func(s *Sweeper) { s.maintainer = m }
}

// Sweeper deletes bins whose lifetime has passed.
type Sweeper struct {
	store      bin.Store
	recorder   Recorder
	maintainer Maintainer
	now        func() time.Time
	tracer     trace.Tracer
	logger     *slog.Logger
}

// New creates a Sweeper over store.
func New(store bin.Store, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:  store,
		now:    time.Now,
		tracer: otel.Tracer("requestbin-hq/sieve/pkg/sweeper"),
		logger: slog.Default().With("component", "sweeper"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep deletes every bin that is no longer live, cascading to its captured
// requests. A failed delete is logged and counted without aborting the
// sweep. Bins removed concurrently are counted as skipped.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "sweeper.Sweep")
	defer span.End()

	now := s.now()
	var res Result

	candidates, err := s.store.ListExpired(ctx, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.record("error", 0)
		return res, err
	}

	for _, b := range candidates {
		if err := ctx.Err(); err != nil {
			res.Duration = time.Since(start)
			s.record("canceled", res.Deleted)
			return res, err
		}

		res.Scanned++
		if bin.IsLive(b, now) {
			res.Skipped++
			continue
		}

		err := s.store.DeleteBin(ctx, b.ID)
		switch {
		case err == nil:
			res.Deleted++
			if s.recorder != nil {
				s.recorder.RecordBinDeleted("expired")
			}
		case errors.Is(err, bin.ErrNotFound):
			res.Skipped++
		default:
			res.Failed++
			s.logger.ErrorContext(ctx, "failed to delete expired bin",
				"bin_id", b.ID,
				"bin_code", b.PublicCode,
				"error", err,
			)
		}
	}

	if s.maintainer != nil {
		res.Evicted = s.maintainer.Maintain(now)
	}
	res.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("sweep.scanned", res.Scanned),
		attribute.Int("sweep.deleted", res.Deleted),
		attribute.Int("sweep.failed", res.Failed),
	)

	result := "success"
	if res.Failed > 0 {
		result = "partial"
	}
	s.record(result, res.Deleted)

	if res.Deleted > 0 || res.Failed > 0 {
		s.logger.InfoContext(ctx, "expired bins swept",
			"deleted", res.Deleted,
			"skipped", res.Skipped,
			"failed", res.Failed,
			"duration", res.Duration,
		)
	} else {
		s.logger.DebugContext(ctx, "sweep completed, nothing expired")
	}
	return res, nil
}

// Stats reads the bin population and publishes it to the recorder.
func (s *Sweeper) Stats(ctx context.Context) (*bin.Stats, error) {
	stats, err := s.store.Stats(ctx, s.now())
	if err != nil {
		return nil, err
	}
	if s.recorder != nil {
		s.recorder.SetBinCounts(stats.Active, stats.Expired, stats.Requests)
	}
	s.logger.InfoContext(ctx, "bin statistics",
		"total", stats.Total,
		"active", stats.Active,
		"expired", stats.Expired,
		"requests", stats.Requests,
	)
	return stats, nil
}

func (s *Sweeper) record(result string, deleted int) {
	if s.recorder != nil {
		s.recorder.RecordSweep(result, deleted)
	}
}
