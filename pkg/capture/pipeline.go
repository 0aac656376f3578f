package capture

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"requestbin-hq/sieve/pkg/bin"
	"requestbin-hq/sieve/pkg/limits"
	"requestbin-hq/sieve/pkg/telemetry/logging"
)

// Outcomes reported to the Recorder.
const (
	OutcomeCaptured      = "captured"
	OutcomeNotFound      = "not_found"
	OutcomeExpired       = "expired"
	OutcomeRateLimited   = "rate_limited"
	OutcomeLimitExceeded = "limit_exceeded"
	OutcomeError         = "error"
)

// Admitter consumes capture tokens.
type Admitter interface {
	AdmitCapture(ctx context.Context, binKey string) (*limits.RateLimitInfo, error)
}

// Recorder observes pipeline outcomes.
type Recorder interface {
	RecordCapture(outcome string, duration time.Duration)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock sets the time source used for expiry checks and timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithMaxBodyBytes caps stored bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(p *Pipeline) { p.maxBodyBytes = n }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithIDGenerator replaces the UUID generator for captured request IDs.
func WithIDGenerator(gen func() string) Option {
	return func(p *Pipeline) { p.newID = gen }
}

// Pipeline records inbound requests against bins.
//
// Each capture resolves the bin, checks liveness, consumes a token from the
// bin's capture bucket, reserves a quota slot and persists the normalized
// request. The first failing step ends the capture; nothing is retried. A
// slot reserved before a failed save stays consumed.
//
// Pipeline is safe for concurrent use. The quota is enforced by the store's
// atomic ReserveSlot, so concurrent captures never exceed MaxRequests.
type Pipeline struct {
	store        bin.Store
	admitter     Admitter
	recorder     Recorder
	now          func() time.Time
	newID        func() string
	maxBodyBytes int64
	tracer       trace.Tracer
	logger       *slog.Logger
}

// NewPipeline creates a Pipeline. admitter may be nil to disable capture
// rate limiting.
func NewPipeline(store bin.Store, admitter Admitter, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:        store,
		admitter:     admitter,
		now:          time.Now,
		newID:        func() string { return uuid.NewString() },
		maxBodyBytes: DefaultMaxBodyBytes,
		tracer:       otel.Tracer("requestbin-hq/sieve/pkg/capture"),
		logger:       slog.Default().With("component", "capture"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Capture records r against the bin with the given public code.
//
// Errors carry a bin.Kind: KindNotFound, KindExpired, KindRateLimited,
// KindLimitExceeded, or KindStorage when the backend fails.
func (p *Pipeline) Capture(ctx context.Context, code string, r *http.Request) (req *bin.CapturedRequest, err error) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "capture.Capture",
		trace.WithAttributes(attribute.String("bin.code", code)))
	ctx = logging.WithBinCode(ctx, code)

	defer func() {
		outcome := outcomeOf(err)
		span.SetAttributes(attribute.String("capture.outcome", outcome))
		if err != nil && outcome == OutcomeError {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if p.recorder != nil {
			p.recorder.RecordCapture(outcome, time.Since(start))
		}
	}()

	// A body that fails mid-read is stored as far as it was received.
	body, readErr := ReadBody(r, p.maxBodyBytes)
	if readErr != nil {
		p.logger.WarnContext(ctx, "request body truncated by read error",
			"bytes", len(body),
			"error", readErr,
		)
	}

	b, err := p.store.GetBinByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	span.AddEvent("bin.resolved", trace.WithAttributes(attribute.Int64("bin.id", b.ID)))

	now := p.now()
	if err := bin.CheckLive(b, now); err != nil {
		return nil, err
	}

	if p.admitter != nil {
		if _, err := p.admitter.AdmitCapture(ctx, strconv.FormatInt(b.ID, 10)); err != nil {
			return nil, err
		}
	}

	ok, err := p.store.ReserveSlot(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, p.limitExceeded(ctx, b)
	}
	span.AddEvent("slot.reserved")

	req = Normalize(r, body)
	req.ID = p.newID()
	req.BinID = b.ID
	req.Timestamp = now

	if err := p.store.SaveRequest(ctx, req); err != nil {
		p.logger.ErrorContext(ctx, "failed to save captured request after reserving slot",
			"bin_id", b.ID,
			"error", err,
		)
		return nil, err
	}

	if p.logger.Enabled(ctx, slog.LevelDebug) {
		p.logger.DebugContext(ctx, "request captured",
			"request_id", req.ID,
			"method", req.Method,
			"path", req.Path,
			"ip", req.IPAddress,
			"headers", logging.RedactHeaders(req.Headers),
		)
	}
	return req, nil
}

// limitExceeded re-reads the bin so the error reports the stored count.
func (p *Pipeline) limitExceeded(ctx context.Context, b *bin.Bin) error {
	fresh, err := p.store.GetBinByCode(ctx, b.PublicCode)
	switch {
	case err == nil:
		return bin.LimitExceeded(fresh)
	case errors.Is(err, bin.ErrNotFound):
		return err
	default:
		p.logger.WarnContext(ctx, "failed to re-read bin after rejected reservation", "error", err)
		return bin.LimitExceeded(b)
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return OutcomeCaptured
	}
	switch bin.KindOf(err) {
	case bin.KindNotFound:
		return OutcomeNotFound
	case bin.KindExpired:
		return OutcomeExpired
	case bin.KindRateLimited:
		return OutcomeRateLimited
	case bin.KindLimitExceeded:
		return OutcomeLimitExceeded
	default:
		return OutcomeError
	}
}
