package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"requestbin-hq/sieve/pkg/bin"
	"requestbin-hq/sieve/pkg/limits/ratelimit"
	"requestbin-hq/sieve/pkg/telemetry/logging"
)

// Results reported to the Recorder.
const (
	ResultSuccess   = "success"
	ResultNon2xx    = "non_2xx"
	ResultFailed    = "failed"
	ResultThrottled = "throttled"
	ResultRejected  = "rejected"
)

// Defaults used when Config leaves a field zero.
const (
	DefaultTimeout          = 30 * time.Second
	DefaultMaxResponseBytes = int64(64 << 10)
)

// hopHeaders are connection-scoped and never forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Host",
	"Content-Length",
}

// Source resolves a captured request of a live bin.
type Source interface {
	Request(ctx context.Context, code, requestID string) (*bin.CapturedRequest, error)
}

// Recorder observes replay results.
type Recorder interface {
	RecordReplay(result string, duration time.Duration)
}

// Options describe one replay.
type Options struct {
	TargetURL         string            `json:"targetUrl"`
	AdditionalHeaders map[string]string `json:"additionalHeaders,omitempty"`

	// OverrideBody replaces the captured body when non-nil. An empty string
	// sends an empty body.
	OverrideBody *string `json:"overrideBody,omitempty"`
}

// Result is the outcome of a replay. Transport failures and non-2xx
// responses are reported here rather than as errors.
type Result struct {
	Success           bool              `json:"success"`
	StatusCode        int               `json:"statusCode,omitempty"`
	ResponseBody      string            `json:"responseBody,omitempty"`
	ResponseHeaders   map[string]string `json:"responseHeaders,omitempty"`
	Truncated         bool              `json:"truncated,omitempty"`
	OriginalRequestID string            `json:"originalRequestId"`
	TargetURL         string            `json:"targetUrl"`
	Error             string            `json:"error,omitempty"`
}

// Config bounds outbound replay traffic.
type Config struct {
	Timeout          time.Duration
	RatePerSecond    float64
	Burst            int
	MaxConcurrent    int
	MaxResponseBytes int64
}

// Option configures a Replayer.
type Option func(*Replayer)

// WithHTTPClient replaces the outbound client. Its Timeout is left as is.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Replayer) { r.client = c }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Replayer) { r.recorder = rec }
}

// Replayer resends captured requests to caller-chosen targets.
//
// Outbound calls share one token bucket and a bound on in-flight calls, so
// a burst of replays cannot turn the service into a traffic amplifier.
type Replayer struct {
	source   Source
	client   *http.Client
	throttle *rate.Limiter
	inflight *ratelimit.ConcurrentLimiter
	recorder Recorder
	timeout  time.Duration
	maxBytes int64
	tracer   trace.Tracer
	logger   *slog.Logger
}

// New creates a Replayer. A zero RatePerSecond leaves calls unthrottled.
func New(source Source, cfg Config, opts ...Option) *Replayer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = DefaultMaxResponseBytes
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	r := &Replayer{
		source:   source,
		client:   &http.Client{},
		throttle: rate.NewLimiter(limit, burst),
		inflight: ratelimit.NewConcurrentLimiter(cfg.MaxConcurrent),
		timeout:  cfg.Timeout,
		maxBytes: cfg.MaxResponseBytes,
		tracer:   otel.Tracer("requestbin-hq/sieve/pkg/replay"),
		logger:   slog.Default().With("component", "replay"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Replay resends the captured request requestID of bin code to
// opts.TargetURL using the captured method.
//
// Errors carry a bin.Kind: KindValidation for a bad target, the lookup
// kinds of the bin and request, or KindRateLimited when the outbound
// throttle is saturated.
func (r *Replayer) Replay(ctx context.Context, code, requestID string, opts Options) (res *Result, err error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "replay.Replay", trace.WithAttributes(
		attribute.String("bin.code", code),
		attribute.String("replay.request_id", requestID),
	))
	ctx = logging.WithBinCode(ctx, code)

	defer func() {
		result := ResultFailed
		switch {
		case err != nil && bin.KindOf(err) == bin.KindRateLimited:
			result = ResultThrottled
		case err != nil:
			result = ResultRejected
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case res.Success:
			result = ResultSuccess
		case res.StatusCode != 0:
			result = ResultNon2xx
		}
		span.SetAttributes(attribute.String("replay.result", result))
		span.End()
		if r.recorder != nil {
			r.recorder.RecordReplay(result, time.Since(start))
		}
	}()

	target, err := validateTarget(opts.TargetURL)
	if err != nil {
		return nil, err
	}

	captured, err := r.source.Request(ctx, code, requestID)
	if err != nil {
		return nil, err
	}

	if !r.inflight.Acquire() {
		return nil, bin.RateLimited("replay", time.Second)
	}
	defer r.inflight.Release()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.throttle.Wait(ctx); err != nil {
		return nil, bin.RateLimited("replay", time.Second)
	}

	res = &Result{OriginalRequestID: captured.ID, TargetURL: opts.TargetURL}

	req, err := r.buildRequest(ctx, target, captured, opts)
	if err != nil {
		res.Error = err.Error()
		return res, nil
	}

	resp, err := r.client.Do(req)
	if err != nil {
		res.Error = err.Error()
		r.logger.WarnContext(ctx, "replay failed",
			"request_id", captured.ID, "target", target.Redacted(), "error", err)
		return res, nil
	}
	defer resp.Body.Close()

	body, truncated, err := readCapped(resp.Body, r.maxBytes)
	res.StatusCode = resp.StatusCode
	res.ResponseBody = body
	res.Truncated = truncated
	res.ResponseHeaders = flattenHeaders(resp.Header)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	switch {
	case err != nil:
		res.Error = fmt.Sprintf("reading response: %v", err)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		res.Error = fmt.Sprintf("target responded %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	default:
		res.Success = true
	}

	r.logger.InfoContext(ctx, "request replayed",
		"request_id", captured.ID,
		"target", target.Redacted(),
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (r *Replayer) buildRequest(ctx context.Context, target *url.URL, captured *bin.CapturedRequest, opts Options) (*http.Request, error) {
	body := captured.Body
	if opts.OverrideBody != nil {
		body = *opts.OverrideBody
	}

	method := captured.Method
	if method == "" {
		method = http.MethodGet
	}

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, err
	}

	req.Header = forwardHeaders(captured.Headers)
	for k, v := range opts.AdditionalHeaders {
		req.Header.Set(k, v)
	}
	return req, nil
}

func validateTarget(raw string) (*url.URL, error) {
	field := bin.FieldError{Field: "targetUrl"}
	if strings.TrimSpace(raw) == "" {
		field.Message = "target URL is required"
		return nil, bin.Validation(field)
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		field.Message = "target URL must be an absolute http or https URL"
		return nil, bin.Validation(field)
	}
	return u, nil
}

// forwardHeaders drops hop-by-hop headers, including any the captured
// Connection header named.
func forwardHeaders(captured map[string]string) http.Header {
	skip := make(map[string]bool, len(hopHeaders))
	for _, h := range hopHeaders {
		skip[h] = true
	}
	for k, v := range captured {
		if http.CanonicalHeaderKey(k) != "Connection" {
			continue
		}
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				skip[http.CanonicalHeaderKey(name)] = true
			}
		}
	}

	h := make(http.Header, len(captured))
	for k, v := range captured {
		if skip[http.CanonicalHeaderKey(k)] {
			continue
		}
		h.Set(k, v)
	}
	return h
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		if len(vs) > 0 {
			out[k] = strings.Join(vs, ", ")
		}
	}
	return out
}

// readCapped reads at most limit bytes and reports whether more remained.
func readCapped(rc io.Reader, limit int64) (string, bool, error) {
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil && !errors.Is(err, io.EOF) {
		return string(data), false, err
	}
	if int64(len(data)) > limit {
		return string(data[:limit]), true, nil
	}
	return string(data), false, nil
}
