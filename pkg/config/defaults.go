package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultPublicBaseURL   = "http://localhost:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultRequestTimeout  = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB
	DefaultCORSMaxAge      = 3600

	// Storage defaults
	DefaultStorageBackend           = "sqlite"
	DefaultSQLitePath               = "data/sieve.db"
	DefaultSQLiteDriver             = "sqlite3"
	DefaultSQLiteMaxOpenConns       = 10
	DefaultSQLiteMaxIdleConns       = 5
	DefaultSQLiteBusyTimeout        = 5 * time.Second
	DefaultSQLiteCheckpointInterval = 5 * time.Minute

	// Limits defaults
	DefaultLimitsBackend          = "memory"
	DefaultCreationCapacity       = 10
	DefaultCreationRefillInterval = time.Hour
	DefaultCaptureCapacity        = 60
	DefaultCaptureRefillInterval  = time.Minute
	DefaultRedisAddr              = "localhost:6379"
	DefaultRedisPrefix            = "sieve:ratelimit"
	DefaultRedisDialTimeout       = 5 * time.Second

	// Bins defaults
	DefaultExpiryHours       = 24
	DefaultMinExpiryHours    = 1
	DefaultMaxExpiryHours    = 168
	DefaultMaxRequests       = 1000
	DefaultMinMaxRequests    = 10
	DefaultMaxMaxRequests    = 10000
	DefaultAllocatorAttempts = 5

	// Capture defaults
	DefaultMaxBodyBytes = int64(1048576)

	// Sweeper defaults
	DefaultSweepSchedule     = "@every 1h"
	DefaultStatsSchedule     = "@every 30m"
	DefaultSweepInitialDelay = time.Minute

	// Replay defaults
	DefaultReplayTimeout          = 30 * time.Second
	DefaultReplayRatePerSecond    = 5.0
	DefaultReplayBurst            = 10
	DefaultReplayMaxConcurrent    = 20
	DefaultReplayMaxResponseBytes = int64(65536)

	// Telemetry defaults
	DefaultLoggingLevel      = "info"
	DefaultLoggingFormat     = "json"
	DefaultLoggingOutput     = "stdout"
	DefaultLogFilePath       = "logs/sieve.log"
	DefaultLogFileMaxSizeMB  = 100
	DefaultLogFileMaxBackups = 5
	DefaultLogFileMaxAgeDays = 30
	DefaultPrometheusPath    = "/metrics"
	DefaultMetricsNamespace  = "sieve"
	DefaultTracingSampler    = "ratio"
	DefaultTracingRatio      = 0.1
	DefaultTracingEndpoint   = "localhost:4317"
	DefaultTracingService    = "sieve"
	DefaultTracingTimeout    = 10 * time.Second
	DefaultHealthTimeout     = 5 * time.Second
)

// NewDefault returns a Config with every default applied, including the
// boolean defaults that ApplyDefaults cannot infer from zero values.
// Files are decoded on top of it so omitted keys keep their defaults.
func NewDefault() *Config {
	cfg := &Config{}
	cfg.Server.CORS.Enabled = true
	cfg.Storage.SQLite.WALMode = true
	cfg.Sweeper.Enabled = true
	cfg.Replay.Enabled = true
	cfg.Export.JSONPretty = true
	cfg.Export.CSVHeader = true
	cfg.Telemetry.Metrics.Enabled = true
	cfg.Telemetry.Tracing.Insecure = true
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyStorageDefaults(&cfg.Storage)
	applyLimitsDefaults(&cfg.Limits)

	// Bins defaults
	b := &cfg.Bins
	setInt(&b.DefaultExpiryHours, DefaultExpiryHours)
	setInt(&b.MinExpiryHours, DefaultMinExpiryHours)
	setInt(&b.MaxExpiryHours, DefaultMaxExpiryHours)
	setInt(&b.DefaultMaxRequests, DefaultMaxRequests)
	setInt(&b.MinMaxRequests, DefaultMinMaxRequests)
	setInt(&b.MaxMaxRequests, DefaultMaxMaxRequests)
	setInt(&b.AllocatorAttempts, DefaultAllocatorAttempts)

	if cfg.Capture.MaxBodyBytes == 0 {
		cfg.Capture.MaxBodyBytes = DefaultMaxBodyBytes
	}

	// Sweeper defaults
	if cfg.Sweeper.Schedule == "" {
		cfg.Sweeper.Schedule = DefaultSweepSchedule
	}
	if cfg.Sweeper.StatsSchedule == "" {
		cfg.Sweeper.StatsSchedule = DefaultStatsSchedule
	}
	if cfg.Sweeper.InitialDelay == 0 {
		cfg.Sweeper.InitialDelay = DefaultSweepInitialDelay
	}

	// Replay defaults
	r := &cfg.Replay
	setDuration(&r.Timeout, DefaultReplayTimeout)
	if r.RatePerSecond == 0 {
		r.RatePerSecond = DefaultReplayRatePerSecond
	}
	setInt(&r.Burst, DefaultReplayBurst)
	setInt(&r.MaxConcurrent, DefaultReplayMaxConcurrent)
	if r.MaxResponseBytes == 0 {
		r.MaxResponseBytes = DefaultReplayMaxResponseBytes
	}

	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyServerDefaults(s *ServerConfig) {
	setString(&s.ListenAddress, DefaultListenAddress)
	setString(&s.PublicBaseURL, DefaultPublicBaseURL)
	setDuration(&s.ReadTimeout, DefaultReadTimeout)
	setDuration(&s.WriteTimeout, DefaultWriteTimeout)
	setDuration(&s.IdleTimeout, DefaultIdleTimeout)
	setDuration(&s.ShutdownTimeout, DefaultShutdownTimeout)
	setDuration(&s.RequestTimeout, DefaultRequestTimeout)
	setInt(&s.MaxHeaderBytes, DefaultMaxHeaderBytes)

	cors := &s.CORS
	if len(cors.AllowedOrigins) == 0 {
		cors.AllowedOrigins = []string{"*"}
	}
	if len(cors.AllowedMethods) == 0 {
		cors.AllowedMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	}
	if len(cors.AllowedHeaders) == 0 {
		cors.AllowedHeaders = []string{"Content-Type", "X-Request-ID"}
	}
	if len(cors.ExposedHeaders) == 0 {
		cors.ExposedHeaders = []string{
			"X-Request-ID", "Retry-After",
			"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset",
		}
	}
	setInt(&cors.MaxAge, DefaultCORSMaxAge)
}

func applyStorageDefaults(s *StorageConfig) {
	setString(&s.Backend, DefaultStorageBackend)
	sq := &s.SQLite
	setString(&sq.Path, DefaultSQLitePath)
	setString(&sq.Driver, DefaultSQLiteDriver)
	setInt(&sq.MaxOpenConns, DefaultSQLiteMaxOpenConns)
	setInt(&sq.MaxIdleConns, DefaultSQLiteMaxIdleConns)
	setDuration(&sq.BusyTimeout, DefaultSQLiteBusyTimeout)
	setDuration(&sq.CheckpointInterval, DefaultSQLiteCheckpointInterval)
}

func applyLimitsDefaults(l *LimitsConfig) {
	setString(&l.Backend, DefaultLimitsBackend)
	applyPolicyDefaults(&l.Creation, DefaultCreationCapacity, DefaultCreationRefillInterval)
	applyPolicyDefaults(&l.Capture, DefaultCaptureCapacity, DefaultCaptureRefillInterval)
	setString(&l.Redis.Addr, DefaultRedisAddr)
	setString(&l.Redis.Prefix, DefaultRedisPrefix)
	setDuration(&l.Redis.DialTimeout, DefaultRedisDialTimeout)
}

func applyPolicyDefaults(p *RatePolicyConfig, capacity int64, interval time.Duration) {
	if p.Capacity == 0 {
		p.Capacity = capacity
	}
	if p.RefillRate == 0 {
		p.RefillRate = p.Capacity
	}
	setDuration(&p.RefillInterval, interval)
}

func applyTelemetryDefaults(t *TelemetryConfig) {
	l := &t.Logging
	setString(&l.Level, DefaultLoggingLevel)
	setString(&l.Format, DefaultLoggingFormat)
	setString(&l.Output, DefaultLoggingOutput)
	setString(&l.File.Path, DefaultLogFilePath)
	setInt(&l.File.MaxSizeMB, DefaultLogFileMaxSizeMB)
	setInt(&l.File.MaxBackups, DefaultLogFileMaxBackups)
	setInt(&l.File.MaxAgeDays, DefaultLogFileMaxAgeDays)

	setString(&t.Metrics.Path, DefaultPrometheusPath)
	setString(&t.Metrics.Namespace, DefaultMetricsNamespace)

	tr := &t.Tracing
	setString(&tr.Sampler, DefaultTracingSampler)
	if tr.SampleRatio == 0 && tr.Sampler == "ratio" {
		tr.SampleRatio = DefaultTracingRatio
	}
	setString(&tr.Endpoint, DefaultTracingEndpoint)
	setString(&tr.ServiceName, DefaultTracingService)
	setDuration(&tr.Timeout, DefaultTracingTimeout)

	setDuration(&t.Health.CheckTimeout, DefaultHealthTimeout)
}

func setString(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if *dst == 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if *dst == 0 {
		*dst = v
	}
}
