package server

import (
	"errors"
	"net/http"
	"time"

	"requestbin-hq/sieve/pkg/bin"
)

const genericErrorMessage = "An internal error occurred. Please try again later."

// errorBody is written for every failed request.
type errorBody struct {
	Timestamp   time.Time        `json:"timestamp"`
	Status      int              `json:"status"`
	Error       string           `json:"error"`
	Reason      string           `json:"reason"`
	Message     string           `json:"message"`
	Path        string           `json:"path"`
	FieldErrors []bin.FieldError `json:"fieldErrors,omitempty"`
}

// statusFor is the single mapping from error kind to HTTP status.
func statusFor(kind bin.Kind) int {
	switch kind {
	case bin.KindNotFound:
		return http.StatusNotFound
	case bin.KindExpired:
		return http.StatusGone
	case bin.KindLimitExceeded, bin.KindRateLimited:
		return http.StatusTooManyRequests
	case bin.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// reasonFor hides storage failures behind the generic internal reason.
func reasonFor(kind bin.Kind) string {
	if kind == bin.KindStorage {
		return bin.KindInternal.String()
	}
	return kind.String()
}

// writeError maps err to a status and error body. Server-side failures are
// logged with full detail and answered with a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := bin.KindOf(err)
	status := statusFor(kind)

	body := errorBody{
		Timestamp: s.now().UTC(),
		Status:    status,
		Error:     http.StatusText(status),
		Reason:    reasonFor(kind),
		Message:   err.Error(),
		Path:      r.URL.Path,
	}

	var be *bin.Error
	if errors.As(err, &be) {
		body.Message = be.Error()
		body.FieldErrors = be.Fields
		if kind == bin.KindRateLimited && be.RetryAfter > 0 {
			w.Header().Set("Retry-After", retryAfterSeconds(be.RetryAfter))
		}
	}

	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"reason", body.Reason,
			"error", err,
		)
		body.Message = genericErrorMessage
	} else {
		s.logger.DebugContext(r.Context(), "request rejected",
			"path", r.URL.Path,
			"reason", body.Reason,
			"error", err,
		)
	}

	writeJSON(w, r, status, body)
}

// writeRecovered answers a recovered panic.
func (s *Server) writeRecovered(w http.ResponseWriter, r *http.Request, err error) {
	s.writeError(w, r, &bin.Error{Kind: bin.KindInternal, Message: "panic recovered", Err: err})
}
