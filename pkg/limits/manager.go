package limits

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"requestbin-hq/sieve/pkg/bin"
	"requestbin-hq/sieve/pkg/limits/ratelimit"
)

// Manager applies the creation and capture policies through a Limiter and
// turns rejections into bin errors of kind KindRateLimited.
//
// # Thread Safety
//
// Manager is safe for concurrent use; all shared state lives in the Limiter.
type Manager struct {
	limiter ratelimit.Limiter
	config  Config
	metrics *Metrics
	logger  *slog.Logger
}

// NewManager creates a Manager. metrics may be nil.
func NewManager(limiter ratelimit.Limiter, config Config, metrics *Metrics) *Manager {
	if config.Creation.Name == "" {
		config.Creation = ratelimit.CreationPolicy()
	}
	if config.Capture.Name == "" {
		config.Capture = ratelimit.CapturePolicy()
	}
	return &Manager{
		limiter: limiter,
		config:  config,
		metrics: metrics,
		logger:  slog.Default().With("component", "limits.manager"),
	}
}

// AdmitCreation consumes one creation token for the client IP.
func (m *Manager) AdmitCreation(ctx context.Context, clientIP string) (*RateLimitInfo, error) {
	return m.admit(ctx, clientIP, m.config.Creation)
}

// AdmitCapture consumes one capture token for the bin.
func (m *Manager) AdmitCapture(ctx context.Context, binKey string) (*RateLimitInfo, error) {
	return m.admit(ctx, binKey, m.config.Capture)
}

// Policies returns the configured creation and capture policies.
func (m *Manager) Policies() (creation, capture ratelimit.Policy) {
	return m.config.Creation, m.config.Capture
}

func (m *Manager) admit(ctx context.Context, key string, p ratelimit.Policy) (*RateLimitInfo, error) {
	start := time.Now()
	res, err := m.limiter.Check(ctx, key, p)
	if err != nil {
		m.metrics.RecordBackendError(p.Name)
		if m.config.FailOpen {
			m.logger.WarnContext(ctx, "rate limiter unavailable, admitting request",
				"policy", p.Name,
				"key", key,
				"error", err,
			)
			info := &RateLimitInfo{Policy: p.Name, Key: key, Limit: p.Capacity, Remaining: p.Capacity}
			recordInfo(ctx, info)
			return info, nil
		}
		return nil, &bin.Error{
			Kind:    bin.KindInternal,
			Message: fmt.Sprintf("rate limit check failed for %s", p.Name),
			Err:     fmt.Errorf("%w: %v", ErrLimiterUnavailable, err),
		}
	}

	m.metrics.RecordDecision(p.Name, res.Allowed, time.Since(start).Seconds())
	info := infoFrom(p, key, res)
	recordInfo(ctx, info)

	if !res.Allowed {
		m.logger.DebugContext(ctx, "rate limit exceeded",
			"policy", p.Name,
			"key", key,
			"retry_after", res.RetryAfter,
		)
		return info, bin.RateLimited(p.Name, res.RetryAfter)
	}
	return info, nil
}

// Maintain evicts idle buckets and refreshes bucket gauges when the limiter
// is the in-memory Registry. It returns the number of evicted buckets.
func (m *Manager) Maintain(now time.Time) int {
	reg, ok := m.limiter.(*ratelimit.Registry)
	if !ok {
		return 0
	}

	evicted := reg.EvictIdle(now)
	m.metrics.RecordEvictions(evicted)
	for _, p := range []ratelimit.Policy{m.config.Creation, m.config.Capture} {
		m.metrics.SetBuckets(p.Name, reg.Len(p.Name))
	}
	if evicted > 0 {
		m.logger.Debug("evicted idle rate limit buckets", "count", evicted)
	}
	return evicted
}
