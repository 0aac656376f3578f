package config

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateLimits(&cfg.Limits)...)
	errs = append(errs, validateBins(&cfg.Bins)...)
	errs = append(errs, validateSweeper(&cfg.Sweeper)...)
	errs = append(errs, validateReplay(&cfg.Replay)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if cfg.Capture.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{Field: "capture.max_body_bytes", Message: "must not be negative"})
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if !strings.Contains(cfg.ListenAddress, ":") {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("must be host:port, got %q", cfg.ListenAddress),
		})
	}

	u, err := url.Parse(cfg.PublicBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, FieldError{
			Field:   "server.public_base_url",
			Message: fmt.Sprintf("must be an absolute http(s) URL, got %q", cfg.PublicBaseURL),
		})
	}

	for field, d := range map[string]int64{
		"server.read_timeout":     int64(cfg.ReadTimeout),
		"server.write_timeout":    int64(cfg.WriteTimeout),
		"server.idle_timeout":     int64(cfg.IdleTimeout),
		"server.shutdown_timeout": int64(cfg.ShutdownTimeout),
		"server.request_timeout":  int64(cfg.RequestTimeout),
	} {
		if d < 0 {
			errs = append(errs, FieldError{Field: field, Message: "must not be negative"})
		}
	}

	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_header_bytes", Message: "must not be negative"})
	}
	for i, entry := range cfg.TrustedProxies {
		if !validProxy(entry) {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("server.trusted_proxies[%d]", i),
				Message: fmt.Sprintf("must be an IP address or CIDR range, got %q", entry),
			})
		}
	}
	return errs
}

func validProxy(entry string) bool {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "/") {
		_, err := netip.ParsePrefix(entry)
		return err == nil
	}
	_, err := netip.ParseAddr(entry)
	return err == nil
}

func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "storage.sqlite.path", Message: "is required for the sqlite backend"})
		}
		if cfg.SQLite.Driver != "sqlite3" && cfg.SQLite.Driver != "sqlite" {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.driver",
				Message: fmt.Sprintf("must be sqlite3 or sqlite, got %q", cfg.SQLite.Driver),
			})
		}
		if cfg.SQLite.MaxOpenConns < 1 {
			errs = append(errs, FieldError{Field: "storage.sqlite.max_open_conns", Message: "must be at least 1"})
		}
		if cfg.SQLite.BusyTimeout < 0 {
			errs = append(errs, FieldError{Field: "storage.sqlite.busy_timeout", Message: "must not be negative"})
		}
	case "memory":
	default:
		errs = append(errs, FieldError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("must be sqlite or memory, got %q", cfg.Backend),
		})
	}
	return errs
}

func validateLimits(cfg *LimitsConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "redis":
		if cfg.Redis.Addr == "" {
			errs = append(errs, FieldError{Field: "limits.redis.addr", Message: "is required for the redis backend"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "limits.backend",
			Message: fmt.Sprintf("must be memory or redis, got %q", cfg.Backend),
		})
	}

	if cfg.IdleTTL < 0 {
		errs = append(errs, FieldError{Field: "limits.idle_ttl", Message: "must not be negative"})
	}

	errs = append(errs, validatePolicy("limits.creation", &cfg.Creation)...)
	errs = append(errs, validatePolicy("limits.capture", &cfg.Capture)...)
	return errs
}

func validatePolicy(prefix string, p *RatePolicyConfig) []FieldError {
	var errs []FieldError
	if p.Capacity <= 0 {
		errs = append(errs, FieldError{Field: prefix + ".capacity", Message: "must be positive"})
	}
	if p.RefillRate <= 0 {
		errs = append(errs, FieldError{Field: prefix + ".refill_rate", Message: "must be positive"})
	}
	if p.RefillInterval <= 0 {
		errs = append(errs, FieldError{Field: prefix + ".refill_interval", Message: "must be positive"})
	}
	return errs
}

func validateBins(cfg *BinsConfig) []FieldError {
	var errs []FieldError

	if cfg.MinExpiryHours < 1 || cfg.MinExpiryHours > cfg.MaxExpiryHours {
		errs = append(errs, FieldError{
			Field:   "bins.min_expiry_hours",
			Message: "must be at least 1 and not above max_expiry_hours",
		})
	}
	if cfg.DefaultExpiryHours < cfg.MinExpiryHours || cfg.DefaultExpiryHours > cfg.MaxExpiryHours {
		errs = append(errs, FieldError{
			Field:   "bins.default_expiry_hours",
			Message: fmt.Sprintf("must be between %d and %d", cfg.MinExpiryHours, cfg.MaxExpiryHours),
		})
	}
	if cfg.MinMaxRequests < 1 || cfg.MinMaxRequests > cfg.MaxMaxRequests {
		errs = append(errs, FieldError{
			Field:   "bins.min_max_requests",
			Message: "must be at least 1 and not above max_max_requests",
		})
	}
	if cfg.DefaultMaxRequests < cfg.MinMaxRequests || cfg.DefaultMaxRequests > cfg.MaxMaxRequests {
		errs = append(errs, FieldError{
			Field:   "bins.default_max_requests",
			Message: fmt.Sprintf("must be between %d and %d", cfg.MinMaxRequests, cfg.MaxMaxRequests),
		})
	}
	if cfg.AllocatorAttempts < 1 {
		errs = append(errs, FieldError{Field: "bins.allocator_attempts", Message: "must be at least 1"})
	}
	return errs
}

func validateSweeper(cfg *SweeperConfig) []FieldError {
	var errs []FieldError
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	if _, err := parser.Parse(cfg.Schedule); err != nil {
		errs = append(errs, FieldError{
			Field:   "sweeper.schedule",
			Message: fmt.Sprintf("invalid cron expression %q: %v", cfg.Schedule, err),
		})
	}
	if cfg.StatsSchedule != "off" {
		if _, err := parser.Parse(cfg.StatsSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "sweeper.stats_schedule",
				Message: fmt.Sprintf("invalid cron expression %q: %v", cfg.StatsSchedule, err),
			})
		}
	}
	return errs
}

func validateReplay(cfg *ReplayConfig) []FieldError {
	var errs []FieldError
	if cfg.Timeout <= 0 {
		errs = append(errs, FieldError{Field: "replay.timeout", Message: "must be positive"})
	}
	if cfg.RatePerSecond <= 0 {
		errs = append(errs, FieldError{Field: "replay.rate_per_second", Message: "must be positive"})
	}
	if cfg.Burst < 1 {
		errs = append(errs, FieldError{Field: "replay.burst", Message: "must be at least 1"})
	}
	if cfg.MaxConcurrent < 0 {
		errs = append(errs, FieldError{Field: "replay.max_concurrent", Message: "must not be negative"})
	}
	if cfg.MaxResponseBytes <= 0 {
		errs = append(errs, FieldError{Field: "replay.max_response_bytes", Message: "must be positive"})
	}
	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("must be debug, info, warn or error, got %q", cfg.Logging.Level),
		})
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text", "console":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("must be json or text, got %q", cfg.Logging.Format),
		})
	}

	switch strings.ToLower(cfg.Logging.Output) {
	case "stdout", "stderr":
	case "file":
		if cfg.Logging.File.Path == "" {
			errs = append(errs, FieldError{Field: "telemetry.logging.file.path", Message: "is required for file output"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.output",
			Message: fmt.Sprintf("must be stdout, stderr or file, got %q", cfg.Logging.Output),
		})
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "must start with /"})
	}

	if cfg.Tracing.Enabled {
		switch cfg.Tracing.Sampler {
		case "always", "never", "ratio":
		default:
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sampler",
				Message: fmt.Sprintf("must be always, never or ratio, got %q", cfg.Tracing.Sampler),
			})
		}
		if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
			errs = append(errs, FieldError{Field: "telemetry.tracing.sample_ratio", Message: "must be between 0 and 1"})
		}
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "is required when tracing is enabled"})
		}
	}
	return errs
}
