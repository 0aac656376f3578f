package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"requestbin-hq/sieve/pkg/bin"
	"requestbin-hq/sieve/pkg/capture"
	"requestbin-hq/sieve/pkg/cli"
	"requestbin-hq/sieve/pkg/config"
	"requestbin-hq/sieve/pkg/export"
	"requestbin-hq/sieve/pkg/lifecycle"
	"requestbin-hq/sieve/pkg/replay"
	"requestbin-hq/sieve/pkg/server"
	"requestbin-hq/sieve/pkg/sweeper"
	"requestbin-hq/sieve/pkg/telemetry/health"
	"requestbin-hq/sieve/pkg/telemetry/tracing"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Sieve server",
	Long: `Start the Sieve HTTP server with the specified configuration.

The server exposes the bin API under /bins, accepts captures under
/capture/{code} and serves health, version and metrics endpoints. Expired
bins are deleted by a background sweeper on the configured schedule.

Examples:
  # Start with defaults
  sieve run

  # Start with a config file
  sieve run --config /etc/sieve/config.yaml

  # Override listen address
  sieve run --listen 0.0.0.0:9090

  # Validate config without starting server
  sieve run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(func(cfg *config.Config) {
		if runFlags.listenAddress != "" {
			cfg.Server.ListenAddress = runFlags.listenAddress
		}
		if runFlags.logLevel != "" {
			cfg.Telemetry.Logging.Level = runFlags.logLevel
		}
	})
	if err != nil {
		return err
	}

	logger, err := newLogger(&cfg.Telemetry.Logging)
	if err != nil {
		return err
	}
	defer logger.Shutdown()
	logger.SetDefault()

	out := cmd.OutOrStdout()
	if runFlags.dryRun {
		fmt.Fprintln(out, "✓ Configuration is valid")
		fmt.Fprintf(out, "  Listen address: %s\n", cfg.Server.ListenAddress)
		fmt.Fprintf(out, "  Public URL:     %s\n", cfg.Server.PublicBaseURL)
		fmt.Fprintf(out, "  Storage:        %s\n", cfg.Storage.Backend)
		fmt.Fprintf(out, "  Rate limits:    %s\n", cfg.Limits.Backend)
		fmt.Fprintf(out, "  Sweeper:        %s\n", sweepSchedule(&cfg.Sweeper))
		return nil
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = a.ping(startCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("backend not reachable: %w", err)
	}

	allocator := bin.NewAllocator(a.store, bin.WithMaxAttempts(cfg.Bins.AllocatorAttempts))
	bins := lifecycle.NewManager(a.store, allocator, a.limits, lifecycle.Config{
		DefaultExpiryHours: cfg.Bins.DefaultExpiryHours,
		MinExpiryHours:     cfg.Bins.MinExpiryHours,
		MaxExpiryHours:     cfg.Bins.MaxExpiryHours,
		DefaultMaxRequests: cfg.Bins.DefaultMaxRequests,
		MinMaxRequests:     cfg.Bins.MinMaxRequests,
		MaxMaxRequests:     cfg.Bins.MaxMaxRequests,
		PublicBaseURL:      cfg.Server.PublicBaseURL,
	}, lifecycle.WithRecorder(a.collector))

	pipeline := capture.NewPipeline(a.store, a.limits,
		capture.WithMaxBodyBytes(cfg.Capture.MaxBodyBytes),
		capture.WithRecorder(a.collector),
	)

	deps := server.Deps{
		Bins:    bins,
		Capture: pipeline,
		Health:  newHealthChecker(cfg, a),
		Metrics: a.collector,
		Version: health.NewVersionInfo(Version, GitCommit, BuildDate),
		Logger:  slog.Default().With("component", "server"),
	}
	if cfg.Replay.Enabled {
		deps.Replayer = replay.New(bins, replay.Config{
			Timeout:          cfg.Replay.Timeout,
			RatePerSecond:    cfg.Replay.RatePerSecond,
			Burst:            cfg.Replay.Burst,
			MaxConcurrent:    cfg.Replay.MaxConcurrent,
			MaxResponseBytes: cfg.Replay.MaxResponseBytes,
		}, replay.WithRecorder(a.collector))
	}

	if cfg.Sweeper.Enabled {
		sched := sweeper.NewScheduler(a.newSweeper(), schedulerConfig(&cfg.Sweeper))
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start sweeper: %w", err)
		}
		defer sched.Stop()
	}

	if path := config.Path(); path != "" {
		watchConfig(ctx, path, logger.SetLevel)
	}

	srv := server.New(server.Config{
		Server:      cfg.Server,
		MetricsPath: cfg.Telemetry.Metrics.Path,
		Export: export.Options{
			JSONPretty: cfg.Export.JSONPretty,
			CSVHeader:  cfg.Export.CSVHeader,
		},
	}, deps)

	fmt.Fprintf(out, "✓ Sieve %s listening on %s\n", Version, cfg.Server.ListenAddress)
	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}

func newHealthChecker(cfg *config.Config, a *app) *health.Checker {
	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
	checker.RegisterCheck("storage", health.PingCheck(a.store))
	if a.redis != nil {
		checker.RegisterCheck("rate_limiter", health.PingCheck(a.redis))
	}
	return checker
}

// schedulerConfig maps the sweeper section onto the scheduler. "off"
// disables the statistics job.
func schedulerConfig(cfg *config.SweeperConfig) sweeper.Config {
	sc := sweeper.Config{
		Schedule:      cfg.Schedule,
		StatsSchedule: cfg.StatsSchedule,
		InitialDelay:  cfg.InitialDelay,
	}
	if sc.StatsSchedule == "off" {
		sc.StatsSchedule = ""
	}
	if sc.InitialDelay < 0 {
		sc.InitialDelay = 0
	}
	return sc
}

func sweepSchedule(cfg *config.SweeperConfig) string {
	if !cfg.Enabled {
		return "disabled"
	}
	return cfg.Schedule
}

// watchConfig reloads the configuration file on change and applies the
// log level. Other settings need a restart.
func watchConfig(ctx context.Context, path string, setLevel func(string) error) {
	w, err := config.NewWatcher(path, 0)
	if err != nil {
		slog.Warn("config hot reload disabled", "path", path, "error", err)
		return
	}
	w.OnChange(func(cfg *config.Config) {
		if err := setLevel(cfg.Telemetry.Logging.Level); err != nil {
			slog.Warn("ignoring reloaded log level", "level", cfg.Telemetry.Logging.Level, "error", err)
			return
		}
		slog.Info("configuration reloaded", "log_level", cfg.Telemetry.Logging.Level)
	})
	go func() {
		if err := w.Run(ctx); err != nil {
			slog.Warn("config watcher stopped", "error", err)
		}
	}()
}
