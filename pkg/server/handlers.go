package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"requestbin-hq/sieve/pkg/bin"
	"requestbin-hq/sieve/pkg/export"
	"requestbin-hq/sieve/pkg/lifecycle"
	"requestbin-hq/sieve/pkg/limits"
	"requestbin-hq/sieve/pkg/replay"
	"requestbin-hq/sieve/pkg/telemetry/logging"
)

// maxJSONBodyBytes bounds management request bodies.
const maxJSONBodyBytes = 64 << 10

type createBinRequest struct {
	ExpiryHours int `json:"expiryHours"`
	MaxRequests int `json:"maxRequests"`
}

func (s *Server) handleCreateBin(w http.ResponseWriter, r *http.Request) {
	ctx, _ := limits.TrackInfo(r.Context())
	r = r.WithContext(ctx)

	var req createBinRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	b, err := s.bins.Create(ctx, lifecycle.CreateParams{
		ExpiryHours: req.ExpiryHours,
		MaxRequests: req.MaxRequests,
		ClientIP:    logging.GetClientIP(ctx),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Location", "/bins/"+b.PublicCode)
	s.writeEnvelope(w, r, http.StatusCreated, "Bin created successfully", s.summary(b))
}

func (s *Server) handleGetBin(w http.ResponseWriter, r *http.Request) {
	b, err := s.bins.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeEnvelope(w, r, http.StatusOK, "Bin retrieved successfully", s.summary(b))
}

func (s *Server) handleBinDetails(w http.ResponseWriter, r *http.Request) {
	d, err := s.bins.Details(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	requests := d.Requests
	if requests == nil {
		requests = []*bin.CapturedRequest{}
	}
	s.writeEnvelope(w, r, http.StatusOK, "Bin details retrieved successfully", binDetails{
		binSummary: s.summary(d.Bin),
		Requests:   requests,
	})
}

func (s *Server) handleDeleteBin(w http.ResponseWriter, r *http.Request) {
	if err := s.bins.Delete(r.Context(), chi.URLParam(r, "code")); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeEnvelope(w, r, http.StatusOK, "Bin deleted successfully", nil)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	exporter, err := export.ForFormat(chi.URLParam(r, "format"), s.cfg.Export)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	requests, err := s.bins.Requests(r.Context(), code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", exporter.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.Filename(code, exporter)))
	w.WriteHeader(http.StatusOK)

	// Headers are already sent, so a failure can only be logged.
	if err := exporter.Export(r.Context(), requests, w); err != nil {
		s.logger.ErrorContext(r.Context(), "export failed",
			"bin_code", code,
			"format", exporter.Extension(),
			"error", err,
		)
	}
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	ctx, _ := limits.TrackInfo(r.Context())
	r = r.WithContext(ctx)

	captured, err := s.capture.Capture(ctx, chi.URLParam(r, "code"), r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, captureAck{
		Status:    "success",
		Message:   "Request captured",
		RequestID: captured.ID,
		Timestamp: captured.Timestamp.UTC(),
	})
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	var opts replay.Options
	if err := decodeJSON(r, &opts); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.replayer.Replay(r.Context(), chi.URLParam(r, "code"), chi.URLParam(r, "requestID"), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	message := "Request replayed successfully"
	if !res.Success {
		message = "Replay completed with errors"
	}
	s.writeEnvelope(w, r, http.StatusOK, message, res)
}

// decodeJSON decodes an optional JSON body into v. An empty body leaves v
// untouched.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return bin.Validation(bin.FieldError{Field: "body", Message: "malformed JSON: " + err.Error()})
	}
	return nil
}
