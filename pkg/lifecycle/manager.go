package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"requestbin-hq/sieve/pkg/bin"
	"requestbin-hq/sieve/pkg/limits"
	"requestbin-hq/sieve/pkg/telemetry/logging"
)

// Admitter consumes bin creation tokens.
type Admitter interface {
	AdmitCreation(ctx context.Context, clientIP string) (*limits.RateLimitInfo, error)
}

// Recorder observes lifecycle events.
type Recorder interface {
	RecordBinCreated()
	RecordBinDeleted(reason string)
}

// CreateParams are the caller-supplied inputs of Create. Zero values select
// the configured defaults.
type CreateParams struct {
	ExpiryHours int
	MaxRequests int
	ClientIP    string
}

// Details is a bin together with its captured requests, newest first.
type Details struct {
	Bin      *bin.Bin
	Requests []*bin.CapturedRequest
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// Manager creates, resolves and deletes bins.
type Manager struct {
	store     bin.Store
	allocator *bin.Allocator
	admitter  Admitter
	recorder  Recorder
	config    Config
	now       func() time.Time
	tracer    trace.Tracer
	logger    *slog.Logger
}

// NewManager creates a Manager. admitter may be nil to disable creation
// rate limiting.
func NewManager(store bin.Store, allocator *bin.Allocator, admitter Admitter, config Config, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		allocator: allocator,
		admitter:  admitter,
		config:    config,
		now:       time.Now,
		tracer:    otel.Tracer("requestbin-hq/sieve/pkg/lifecycle"),
		logger:    slog.Default().With("component", "lifecycle"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create validates params, consumes a creation token for the caller's IP,
// allocates a public code and persists a new empty bin.
func (m *Manager) Create(ctx context.Context, params CreateParams) (*bin.Bin, error) {
	ctx, span := m.tracer.Start(ctx, "lifecycle.Create")
	defer span.End()

	expiry, maxRequests, err := m.resolve(params)
	if err != nil {
		return nil, err
	}

	if m.admitter != nil {
		if _, err := m.admitter.AdmitCreation(ctx, params.ClientIP); err != nil {
			return nil, err
		}
	}

	code, err := m.allocator.Allocate(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now()
	b := &bin.Bin{
		PublicCode:  code,
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Duration(expiry) * time.Hour),
		MaxRequests: maxRequests,
	}
	if err := m.store.CreateBin(ctx, b); err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("bin.code", b.PublicCode),
		attribute.Int("bin.max_requests", b.MaxRequests),
	)
	if m.recorder != nil {
		m.recorder.RecordBinCreated()
	}
	m.logger.InfoContext(logging.WithBinCode(ctx, b.PublicCode), "bin created",
		"expires_at", b.ExpiresAt,
		"max_requests", b.MaxRequests,
		"client_ip", params.ClientIP,
	)
	return b, nil
}

func (m *Manager) resolve(params CreateParams) (int, int, error) {
	expiry := params.ExpiryHours
	if expiry == 0 {
		expiry = m.config.DefaultExpiryHours
	}
	maxRequests := params.MaxRequests
	if maxRequests == 0 {
		maxRequests = m.config.DefaultMaxRequests
	}

	var fields []bin.FieldError
	if expiry < m.config.MinExpiryHours || expiry > m.config.MaxExpiryHours {
		fields = append(fields, bin.FieldError{
			Field:   "expiryHours",
			Message: fmt.Sprintf("must be between %d and %d", m.config.MinExpiryHours, m.config.MaxExpiryHours),
		})
	}
	if maxRequests < m.config.MinMaxRequests || maxRequests > m.config.MaxMaxRequests {
		fields = append(fields, bin.FieldError{
			Field:   "maxRequests",
			Message: fmt.Sprintf("must be between %d and %d", m.config.MinMaxRequests, m.config.MaxMaxRequests),
		})
	}
	if len(fields) > 0 {
		return 0, 0, bin.Validation(fields...)
	}
	return expiry, maxRequests, nil
}

// Get returns a live bin. It fails with KindNotFound or KindExpired.
func (m *Manager) Get(ctx context.Context, code string) (*bin.Bin, error) {
	b, err := m.store.GetBinByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := bin.CheckLive(b, m.now()); err != nil {
		return nil, err
	}
	return b, nil
}

// Details returns a live bin and its captured requests, newest first.
func (m *Manager) Details(ctx context.Context, code string) (*Details, error) {
	b, err := m.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	reqs, err := m.store.ListRequests(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	return &Details{Bin: b, Requests: reqs}, nil
}

// Requests returns the captured requests of a live bin, newest first.
func (m *Manager) Requests(ctx context.Context, code string) ([]*bin.CapturedRequest, error) {
	d, err := m.Details(ctx, code)
	if err != nil {
		return nil, err
	}
	return d.Requests, nil
}

// Request returns one captured request of a live bin.
func (m *Manager) Request(ctx context.Context, code, requestID string) (*bin.CapturedRequest, error) {
	b, err := m.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	return m.store.GetRequest(ctx, b.ID, requestID)
}

// Delete removes a bin and its captured requests. Expired bins can be
// deleted.
func (m *Manager) Delete(ctx context.Context, code string) error {
	b, err := m.store.GetBinByCode(ctx, code)
	if err != nil {
		return err
	}
	if err := m.store.DeleteBin(ctx, b.ID); err != nil {
		return err
	}

	if m.recorder != nil {
		m.recorder.RecordBinDeleted("owner")
	}
	m.logger.InfoContext(logging.WithBinCode(ctx, code), "bin deleted")
	return nil
}

// FullURL returns the capture URL of a bin.
func (m *Manager) FullURL(code string) string {
	return strings.TrimRight(m.config.PublicBaseURL, "/") + "/capture/" + code
}
