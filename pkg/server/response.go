package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"requestbin-hq/sieve/pkg/bin"
	"requestbin-hq/sieve/pkg/limits"
)

// envelope wraps every successful management response.
type envelope struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Message   string    `json:"message"`
	Data      any       `json:"data"`
}

// binSummary is the public view of a bin.
type binSummary struct {
	PublicCode   string    `json:"publicCode"`
	FullURL      string    `json:"fullUrl"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	MaxRequests  int       `json:"maxRequests"`
	RequestCount int       `json:"requestCount"`
}

type binDetails struct {
	binSummary
	Requests []*bin.CapturedRequest `json:"requests"`
}

// captureAck is returned to the sender of a captured request.
type captureAck struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	RequestID string    `json:"requestId"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) summary(b *bin.Bin) binSummary {
	return binSummary{
		PublicCode:   b.PublicCode,
		FullURL:      s.bins.FullURL(b.PublicCode),
		CreatedAt:    b.CreatedAt.UTC(),
		ExpiresAt:    b.ExpiresAt.UTC(),
		MaxRequests:  b.MaxRequests,
		RequestCount: b.RequestCount,
	}
}

func (s *Server) writeEnvelope(w http.ResponseWriter, r *http.Request, status int, message string, data any) {
	writeJSON(w, r, status, envelope{
		Timestamp: s.now().UTC(),
		Status:    status,
		Message:   message,
		Data:      data,
	})
}

// writeJSON sets any rate limit headers recorded for the request before
// writing v.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	setLimitHeaders(w, limits.InfoFromContext(r.Context()))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.WarnContext(r.Context(), "failed to write response", "error", err)
	}
}

func setLimitHeaders(w http.ResponseWriter, info *limits.RateLimitInfo) {
	if info == nil {
		return
	}
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.FormatInt(info.Limit, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(info.Remaining, 10))
	if !info.Reset.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(info.Reset.Unix(), 10))
	}
	if info.RetryAfter > 0 {
		h.Set("Retry-After", retryAfterSeconds(info.RetryAfter))
	}
}

// retryAfterSeconds rounds up so clients never retry early.
func retryAfterSeconds(d time.Duration) string {
	secs := int64((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
