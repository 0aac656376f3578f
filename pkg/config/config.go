package config

import "time"

// Config is the root configuration structure for sieve.
type Config struct {
	// Server contains HTTP server configuration including listen address,
	// public URL, timeouts and CORS.
	Server ServerConfig `yaml:"server"`

	// Storage selects and configures the bin store.
	Storage StorageConfig `yaml:"storage"`

	// Limits contains the creation and capture rate limit policies.
	Limits LimitsConfig `yaml:"limits"`

	// Bins bounds the lifetime and quota accepted at creation.
	Bins BinsConfig `yaml:"bins"`

	// Capture configures request capture.
	Capture CaptureConfig `yaml:"capture"`

	// Sweeper configures the expiry sweep schedule.
	Sweeper SweeperConfig `yaml:"sweeper"`

	// Replay configures resending captured requests to external targets.
	Replay ReplayConfig `yaml:"replay"`

	// Export configures JSON and CSV exports.
	Export ExportConfig `yaml:"export"`

	// Telemetry contains logging, metrics, tracing and health settings.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// PublicBaseURL is the externally visible base URL used to build
	// capture URLs.
	// Default: "http://localhost:8080"
	PublicBaseURL string `yaml:"public_base_url"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// RequestTimeout bounds handler execution.
	// Default: 30s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxHeaderBytes limits request header size.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// TrustedProxies lists the peer addresses or CIDR ranges whose
	// X-Forwarded-For header is believed when keying rate limits.
	// Empty trusts no proxy.
	TrustedProxies []string `yaml:"trusted_proxies"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS configuration for the management API.
type CORSConfig struct {
	// Enabled controls whether CORS headers are sent.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins lists allowed origins. ["*"] allows all.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods lists allowed methods.
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders lists allowed request headers.
	AllowedHeaders []string `yaml:"allowed_headers"`

	// ExposedHeaders lists headers readable by the client.
	ExposedHeaders []string `yaml:"exposed_headers"`

	// MaxAge is the preflight cache duration in seconds.
	// Default: 3600
	MaxAge int `yaml:"max_age"`
}

// StorageConfig selects the bin store.
type StorageConfig struct {
	// Backend is "sqlite" or "memory".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite configures the SQLite backend.
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig contains SQLite storage configuration.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/sieve.db"
	Path string `yaml:"path"`

	// Driver is "sqlite3" (cgo, mattn/go-sqlite3) or "sqlite" (pure Go,
	// modernc.org/sqlite).
	// Default: "sqlite3"
	Driver string `yaml:"driver"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long a writer waits for the database lock.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// CheckpointInterval is the WAL checkpoint period. Zero disables
	// periodic checkpoints.
	// Default: 5m
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
}

// LimitsConfig contains rate limiting configuration.
type LimitsConfig struct {
	// Backend is "memory" (in-process registry) or "redis" (shared).
	// Default: "memory"
	Backend string `yaml:"backend"`

	// FailOpen admits requests when the redis backend is unreachable.
	// Default: false
	FailOpen bool `yaml:"fail_open"`

	// IdleTTL evicts full buckets idle for longer than this. Zero keeps
	// buckets for the process lifetime.
	// Default: 0
	IdleTTL time.Duration `yaml:"idle_ttl"`

	// Creation limits bin creation per client IP.
	// Default: 10 tokens, 10 per hour
	Creation RatePolicyConfig `yaml:"creation"`

	// Capture limits captures per bin.
	// Default: 60 tokens, 60 per minute
	Capture RatePolicyConfig `yaml:"capture"`

	// Redis configures the redis backend.
	Redis RedisConfig `yaml:"redis"`
}

// RatePolicyConfig is one token bucket policy.
type RatePolicyConfig struct {
	Capacity       int64         `yaml:"capacity"`
	RefillRate     int64         `yaml:"refill_rate"`
	RefillInterval time.Duration `yaml:"refill_interval"`
}

// RedisConfig contains redis connection settings.
type RedisConfig struct {
	// Addr is "host:port".
	// Default: "localhost:6379"
	Addr string `yaml:"addr"`

	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// Prefix namespaces limiter keys.
	// Default: "sieve:ratelimit"
	Prefix string `yaml:"prefix"`

	// DialTimeout bounds connection setup.
	// Default: 5s
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// BinsConfig bounds bin creation parameters.
type BinsConfig struct {
	DefaultExpiryHours int `yaml:"default_expiry_hours"`
	MinExpiryHours     int `yaml:"min_expiry_hours"`
	MaxExpiryHours     int `yaml:"max_expiry_hours"`
	DefaultMaxRequests int `yaml:"default_max_requests"`
	MinMaxRequests     int `yaml:"min_max_requests"`
	MaxMaxRequests     int `yaml:"max_max_requests"`

	// AllocatorAttempts bounds public code generation retries.
	// Default: 5
	AllocatorAttempts int `yaml:"allocator_attempts"`
}

// CaptureConfig configures request capture.
type CaptureConfig struct {
	// MaxBodyBytes caps stored request bodies; longer bodies are truncated.
	// Default: 1048576 (1MB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// SweeperConfig configures expiry sweeps.
type SweeperConfig struct {
	// Enabled runs the scheduled sweeper inside the server.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Schedule is a cron expression or descriptor.
	// Default: "@every 1h"
	Schedule string `yaml:"schedule"`

	// StatsSchedule logs bin statistics. "off" disables it.
	// Default: "@every 30m"
	StatsSchedule string `yaml:"stats_schedule"`

	// InitialDelay runs a first sweep after start. A negative value
	// disables it.
	// Default: 1m
	InitialDelay time.Duration `yaml:"initial_delay"`
}

// ReplayConfig configures request replay.
type ReplayConfig struct {
	// Enabled exposes the replay endpoint.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Timeout bounds one outbound call.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`

	// RatePerSecond throttles outbound calls process-wide.
	// Default: 5
	RatePerSecond float64 `yaml:"rate_per_second"`

	// Burst is the throttle burst size.
	// Default: 10
	Burst int `yaml:"burst"`

	// MaxConcurrent bounds in-flight replays. Zero is unbounded.
	// Default: 20
	MaxConcurrent int `yaml:"max_concurrent"`

	// MaxResponseBytes caps the response body returned to the caller.
	// Default: 65536
	MaxResponseBytes int64 `yaml:"max_response_bytes"`
}

// ExportConfig configures exports.
type ExportConfig struct {
	// JSONPretty indents JSON exports.
	// Default: true
	JSONPretty bool `yaml:"json_pretty"`

	// CSVHeader writes a CSV header row.
	// Default: true
	CSVHeader bool `yaml:"csv_header"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Health contains health check configuration.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	AddSource bool `yaml:"add_source"`

	// Output is "stdout", "stderr" or "file".
	// Default: "stdout"
	Output string `yaml:"output"`

	// File configures rotation when Output is "file".
	File LogFileConfig `yaml:"file"`
}

// LogFileConfig configures rotating log files.
type LogFileConfig struct {
	// Path is the log file path.
	// Default: "logs/sieve.log"
	Path string `yaml:"path"`

	// MaxSizeMB triggers rotation.
	// Default: 100
	MaxSizeMB int `yaml:"max_size_mb"`

	// MaxBackups is the number of rotated files kept.
	// Default: 5
	MaxBackups int `yaml:"max_backups"`

	// MaxAgeDays is how long rotated files are kept.
	// Default: 30
	MaxAgeDays int `yaml:"max_age_days"`

	// Compress gzips rotated files.
	Compress bool `yaml:"compress"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "sieve"
	Namespace string `yaml:"namespace"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "sieve"
	ServiceName string `yaml:"service_name"`

	// Insecure disables TLS for the collector connection.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// Timeout is the export timeout.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// HealthConfig contains health check configuration.
type HealthConfig struct {
	// CheckTimeout bounds each readiness check.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}
