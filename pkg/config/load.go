package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SIEVE_"

// LoadConfig loads configuration from a YAML file at the specified path.
// Keys omitted from the file keep their defaults. An empty path yields the
// defaults. The configuration is not modified by environment variables; use
// LoadConfigWithEnvOverrides for that functionality.
func LoadConfig(path string) (*Config, error) {
	cfg := NewDefault()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention SIEVE_SECTION_FIELD (e.g., SIEVE_SERVER_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file over the defaults
// 2. Apply environment variable overrides
// 3. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// envBinding maps one environment variable onto a configuration field.
type envBinding struct {
	name string
	set  func(string) error
}

func bindString(dst *string) func(string) error {
	return func(v string) error { *dst = v; return nil }
}

func bindInt(dst *int) func(string) error {
	return func(v string) error {
		i, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = i
		return nil
	}
}

func bindInt64(dst *int64) func(string) error {
	return func(v string) error {
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		*dst = i
		return nil
	}
}

func bindFloat(dst *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst = f
		return nil
	}
}

func bindBool(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func bindDuration(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}

func bindList(dst *[]string) func(string) error {
	return func(v string) error {
		var out []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		*dst = out
		return nil
	}
}

func envBindings(cfg *Config) []envBinding {
	return []envBinding{
		// Server
		{"SERVER_LISTEN_ADDRESS", bindString(&cfg.Server.ListenAddress)},
		{"SERVER_PUBLIC_BASE_URL", bindString(&cfg.Server.PublicBaseURL)},
		{"SERVER_READ_TIMEOUT", bindDuration(&cfg.Server.ReadTimeout)},
		{"SERVER_WRITE_TIMEOUT", bindDuration(&cfg.Server.WriteTimeout)},
		{"SERVER_IDLE_TIMEOUT", bindDuration(&cfg.Server.IdleTimeout)},
		{"SERVER_SHUTDOWN_TIMEOUT", bindDuration(&cfg.Server.ShutdownTimeout)},
		{"SERVER_REQUEST_TIMEOUT", bindDuration(&cfg.Server.RequestTimeout)},
		{"SERVER_MAX_HEADER_BYTES", bindInt(&cfg.Server.MaxHeaderBytes)},
		{"SERVER_TRUSTED_PROXIES", bindList(&cfg.Server.TrustedProxies)},
		{"SERVER_CORS_ENABLED", bindBool(&cfg.Server.CORS.Enabled)},
		{"SERVER_CORS_ALLOWED_ORIGINS", bindList(&cfg.Server.CORS.AllowedOrigins)},

		// Storage
		{"STORAGE_BACKEND", bindString(&cfg.Storage.Backend)},
		{"STORAGE_SQLITE_PATH", bindString(&cfg.Storage.SQLite.Path)},
		{"STORAGE_SQLITE_DRIVER", bindString(&cfg.Storage.SQLite.Driver)},
		{"STORAGE_SQLITE_MAX_OPEN_CONNS", bindInt(&cfg.Storage.SQLite.MaxOpenConns)},
		{"STORAGE_SQLITE_WAL_MODE", bindBool(&cfg.Storage.SQLite.WALMode)},
		{"STORAGE_SQLITE_BUSY_TIMEOUT", bindDuration(&cfg.Storage.SQLite.BusyTimeout)},

		// Limits
		{"LIMITS_BACKEND", bindString(&cfg.Limits.Backend)},
		{"LIMITS_FAIL_OPEN", bindBool(&cfg.Limits.FailOpen)},
		{"LIMITS_IDLE_TTL", bindDuration(&cfg.Limits.IdleTTL)},
		{"LIMITS_CREATION_CAPACITY", bindInt64(&cfg.Limits.Creation.Capacity)},
		{"LIMITS_CREATION_REFILL_RATE", bindInt64(&cfg.Limits.Creation.RefillRate)},
		{"LIMITS_CREATION_REFILL_INTERVAL", bindDuration(&cfg.Limits.Creation.RefillInterval)},
		{"LIMITS_CAPTURE_CAPACITY", bindInt64(&cfg.Limits.Capture.Capacity)},
		{"LIMITS_CAPTURE_REFILL_RATE", bindInt64(&cfg.Limits.Capture.RefillRate)},
		{"LIMITS_CAPTURE_REFILL_INTERVAL", bindDuration(&cfg.Limits.Capture.RefillInterval)},
		{"LIMITS_REDIS_ADDR", bindString(&cfg.Limits.Redis.Addr)},
		{"LIMITS_REDIS_PASSWORD", bindString(&cfg.Limits.Redis.Password)},
		{"LIMITS_REDIS_DB", bindInt(&cfg.Limits.Redis.DB)},

		// Bins and capture
		{"BINS_DEFAULT_EXPIRY_HOURS", bindInt(&cfg.Bins.DefaultExpiryHours)},
		{"BINS_DEFAULT_MAX_REQUESTS", bindInt(&cfg.Bins.DefaultMaxRequests)},
		{"CAPTURE_MAX_BODY_BYTES", bindInt64(&cfg.Capture.MaxBodyBytes)},

		// Sweeper
		{"SWEEPER_ENABLED", bindBool(&cfg.Sweeper.Enabled)},
		{"SWEEPER_SCHEDULE", bindString(&cfg.Sweeper.Schedule)},
		{"SWEEPER_STATS_SCHEDULE", bindString(&cfg.Sweeper.StatsSchedule)},
		{"SWEEPER_INITIAL_DELAY", bindDuration(&cfg.Sweeper.InitialDelay)},

		// Replay
		{"REPLAY_ENABLED", bindBool(&cfg.Replay.Enabled)},
		{"REPLAY_TIMEOUT", bindDuration(&cfg.Replay.Timeout)},
		{"REPLAY_RATE_PER_SECOND", bindFloat(&cfg.Replay.RatePerSecond)},
		{"REPLAY_BURST", bindInt(&cfg.Replay.Burst)},

		// Telemetry
		{"TELEMETRY_LOGGING_LEVEL", bindString(&cfg.Telemetry.Logging.Level)},
		{"TELEMETRY_LOGGING_FORMAT", bindString(&cfg.Telemetry.Logging.Format)},
		{"TELEMETRY_LOGGING_OUTPUT", bindString(&cfg.Telemetry.Logging.Output)},
		{"TELEMETRY_LOGGING_FILE_PATH", bindString(&cfg.Telemetry.Logging.File.Path)},
		{"TELEMETRY_METRICS_ENABLED", bindBool(&cfg.Telemetry.Metrics.Enabled)},
		{"TELEMETRY_TRACING_ENABLED", bindBool(&cfg.Telemetry.Tracing.Enabled)},
		{"TELEMETRY_TRACING_ENDPOINT", bindString(&cfg.Telemetry.Tracing.Endpoint)},
		{"TELEMETRY_TRACING_SAMPLE_RATIO", bindFloat(&cfg.Telemetry.Tracing.SampleRatio)},
	}
}

// applyEnvOverrides applies SIEVE_* environment variables. Unparsable
// values are reported as a ValidationError naming the variable.
func applyEnvOverrides(cfg *Config) error {
	var errs []FieldError
	for _, b := range envBindings(cfg) {
		name := EnvPrefix + b.name
		val, ok := os.LookupEnv(name)
		if !ok || val == "" {
			continue
		}
		if err := b.set(val); err != nil {
			errs = append(errs, FieldError{Field: name, Message: fmt.Sprintf("invalid value %q: %v", val, err)})
		}
	}
	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}
