package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"requestbin-hq/sieve/pkg/server/middleware"
	"requestbin-hq/sieve/pkg/telemetry/health"
	"requestbin-hq/sieve/pkg/telemetry/tracing"
)

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()

	var recorder middleware.HTTPRecorder
	if s.metrics != nil && s.metrics.Enabled() {
		recorder = s.metrics
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.ClientIP(s.trusted))
	r.Use(middleware.Recovery(s.writeRecovered))
	r.Use(middleware.Logging(s.logger))
	r.Use(middleware.Metrics(recorder))
	r.Use(tracing.Middleware(middleware.RoutePattern))
	r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeStatus(w, r, http.StatusNotFound, "route_not_found", "The requested resource was not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeStatus(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "The requested method is not allowed for this resource")
	})

	r.Route("/bins", func(r chi.Router) {
		r.Use(middleware.CORS(s.cfg.Server.CORS))

		r.Post("/", s.handleCreateBin)
		r.Route("/{code}", func(r chi.Router) {
			r.Get("/", s.handleGetBin)
			r.Delete("/", s.handleDeleteBin)
			r.Get("/details", s.handleBinDetails)
			r.Get("/export/{format}", s.handleExport)
			if s.replayer != nil {
				r.Post("/requests/{requestID}/replay", s.handleReplay)
			}
		})
	})

	r.HandleFunc("/capture/{code}", s.handleCapture)
	r.HandleFunc("/capture/{code}/*", s.handleCapture)

	if s.health != nil {
		r.Get("/health", s.health.LivenessHandler())
		r.Get("/ready", s.health.ReadinessHandler())
	}
	r.Get("/version", health.VersionHandler(s.version))

	if s.metrics != nil && s.metrics.Enabled() && s.cfg.MetricsPath != "" {
		r.Handle(s.cfg.MetricsPath, s.metrics.Handler())
	}

	return r
}

// writeStatus answers routing failures that carry no domain error.
func (s *Server) writeStatus(w http.ResponseWriter, r *http.Request, status int, reason, message string) {
	writeJSON(w, r, status, errorBody{
		Timestamp: s.now().UTC(),
		Status:    status,
		Error:     http.StatusText(status),
		Reason:    reason,
		Message:   message,
		Path:      r.URL.Path,
	})
}
