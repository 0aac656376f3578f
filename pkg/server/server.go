package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"requestbin-hq/sieve/pkg/bin"
	"requestbin-hq/sieve/pkg/capture"
	"requestbin-hq/sieve/pkg/config"
	"requestbin-hq/sieve/pkg/export"
	"requestbin-hq/sieve/pkg/lifecycle"
	"requestbin-hq/sieve/pkg/replay"
	"requestbin-hq/sieve/pkg/telemetry/health"
	"requestbin-hq/sieve/pkg/telemetry/metrics"
)

// BinService manages bins on behalf of the management routes.
type BinService interface {
	Create(ctx context.Context, params lifecycle.CreateParams) (*bin.Bin, error)
	Get(ctx context.Context, code string) (*bin.Bin, error)
	Details(ctx context.Context, code string) (*lifecycle.Details, error)
	Requests(ctx context.Context, code string) ([]*bin.CapturedRequest, error)
	Delete(ctx context.Context, code string) error
	FullURL(code string) string
}

// Capturer records inbound requests against a bin.
type Capturer interface {
	Capture(ctx context.Context, code string, r *http.Request) (*bin.CapturedRequest, error)
}

// Replayer resends captured requests.
type Replayer interface {
	Replay(ctx context.Context, code, requestID string, opts replay.Options) (*replay.Result, error)
}

// Deps are the components the server routes to. Replayer, Health and
// Metrics are optional; their routes are not registered when nil.
type Deps struct {
	Bins     BinService
	Capture  Capturer
	Replayer Replayer
	Health   *health.Checker
	Metrics  *metrics.Collector
	Version  health.VersionInfo
	Logger   *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Config holds the HTTP settings of the server.
type Config struct {
	Server      config.ServerConfig
	MetricsPath string
	Export      export.Options
}

// Server is the sieve HTTP server.
type Server struct {
	cfg      Config
	bins     BinService
	capture  Capturer
	replayer Replayer
	health   *health.Checker
	metrics  *metrics.Collector
	version  health.VersionInfo
	logger   *slog.Logger
	now      func() time.Time
	router   *chi.Mux
	trusted  capture.TrustedProxies

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// New creates a server and registers its routes.
func New(cfg Config, deps Deps) *Server {
	s := &Server{
		cfg:      cfg,
		bins:     deps.Bins,
		capture:  deps.Capture,
		replayer: deps.Replayer,
		health:   deps.Health,
		metrics:  deps.Metrics,
		version:  deps.Version,
		logger:   deps.Logger,
		now:      deps.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default().With("component", "server")
	}
	if s.now == nil {
		s.now = time.Now
	}
	trusted, err := capture.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		s.logger.Error("ignoring trusted proxies", "error", err)
		trusted = nil
	}
	s.trusted = trusted
	s.router = s.routes()
	return s
}

// Handler returns the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves until ctx is
// canceled, then shuts down gracefully within the shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.httpServer != nil {
		s.mu.Unlock()
		return errors.New("server is already running")
	}

	ln, err := net.Listen("tcp", s.cfg.Server.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Server.ListenAddress, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		ReadHeaderTimeout: s.cfg.Server.ReadTimeout,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
		IdleTimeout:       s.cfg.Server.IdleTimeout,
		MaxHeaderBytes:    s.cfg.Server.MaxHeaderBytes,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", "address", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

// Addr returns the bound address once Start is listening, or nil.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting connections and waits for in-flight requests up
// to the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Info("initiating graceful shutdown", "timeout", timeout.String())
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}
