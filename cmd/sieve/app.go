package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"requestbin-hq/sieve/pkg/bin"
	"requestbin-hq/sieve/pkg/bin/storage"
	"requestbin-hq/sieve/pkg/cli"
	"requestbin-hq/sieve/pkg/config"
	"requestbin-hq/sieve/pkg/limits"
	"requestbin-hq/sieve/pkg/limits/ratelimit"
	"requestbin-hq/sieve/pkg/sweeper"
	"requestbin-hq/sieve/pkg/telemetry/logging"
	"requestbin-hq/sieve/pkg/telemetry/metrics"
)

// app holds the components shared by the run, sweep and stats commands.
type app struct {
	cfg       *config.Config
	store     bin.Store
	limiter   ratelimit.Limiter
	redis     *ratelimit.RedisLimiter
	collector *metrics.Collector
	limits    *limits.Manager
}

// loadConfig initializes the process configuration from --config and the
// environment, then applies override to the loaded copy.
func loadConfig(override func(*config.Config)) (*config.Config, error) {
	if err := config.Initialize(cfgFile); err != nil {
		return nil, cli.NewConfigError(cfgFile, err)
	}
	cfg := config.GetConfig()
	if override != nil {
		override(cfg)
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	return cfg, nil
}

func newLogger(cfg *config.LoggingConfig) (*logging.Logger, error) {
	logger, err := logging.New(logging.Config{
		Level:     cfg.Level,
		Format:    cfg.Format,
		AddSource: cfg.AddSource,
		Output:    cfg.Output,
		File: logging.FileConfig{
			Path:       cfg.File.Path,
			MaxSizeMB:  cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAgeDays: cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		},
	})
	if err != nil {
		return nil, cli.NewConfigError(cfgFile, err)
	}
	return logger, nil
}

// newApp opens the store and the rate limiter described by cfg. The
// caller owns the result and must Close it.
func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	store, err := openStore(&cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Storage.Backend, err)
	}
	a.store = store

	a.collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	switch cfg.Limits.Backend {
	case "redis":
		a.redis = newRedisLimiter(&cfg.Limits.Redis)
		a.limiter = a.redis
	default:
		a.limiter = ratelimit.NewRegistry(ratelimit.WithIdleTTL(cfg.Limits.IdleTTL))
	}

	a.limits = limits.NewManager(a.limiter, limits.Config{
		Creation: policyFrom("creation", cfg.Limits.Creation),
		Capture:  policyFrom("capture", cfg.Limits.Capture),
		FailOpen: cfg.Limits.FailOpen,
	}, limits.NewMetrics(a.collector.Registerer()))

	return a, nil
}

func openStore(cfg *config.StorageConfig) (bin.Store, error) {
	if cfg.Backend == "memory" {
		return storage.NewMemoryStore(), nil
	}
	return storage.NewSQLiteStore(&storage.SQLiteConfig{
		Path:               cfg.SQLite.Path,
		Driver:             cfg.SQLite.Driver,
		MaxOpenConns:       cfg.SQLite.MaxOpenConns,
		MaxIdleConns:       cfg.SQLite.MaxIdleConns,
		WALMode:            cfg.SQLite.WALMode,
		BusyTimeout:        cfg.SQLite.BusyTimeout,
		CheckpointInterval: cfg.SQLite.CheckpointInterval,
	})
}

func newRedisLimiter(cfg *config.RedisConfig) *ratelimit.RedisLimiter {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
	var opts []ratelimit.RedisOption
	if cfg.Prefix != "" {
		opts = append(opts, ratelimit.WithRedisPrefix(cfg.Prefix))
	}
	return ratelimit.NewRedisLimiter(client, opts...)
}

func policyFrom(name string, cfg config.RatePolicyConfig) ratelimit.Policy {
	return ratelimit.Policy{
		Name:           name,
		Capacity:       cfg.Capacity,
		RefillRate:     cfg.RefillRate,
		RefillInterval: cfg.RefillInterval,
	}
}

// newSweeper builds a sweeper that reports to the collector and evicts
// idle rate limit buckets after each run.
func (a *app) newSweeper() *sweeper.Sweeper {
	return sweeper.New(a.store,
		sweeper.WithRecorder(a.collector),
		sweeper.WithMaintainer(a.limits),
	)
}

// ping checks that the store and, when configured, redis are reachable.
func (a *app) ping(ctx context.Context) error {
	if err := a.store.Ping(ctx); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close releases the store and the redis client.
func (a *app) Close() error {
	var errs []error
	if c, ok := a.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		slog.Default().Warn("shutdown incomplete", "error", err)
		return err
	}
	return nil
}
