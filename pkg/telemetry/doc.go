// Package telemetry groups the observability packages for sieve.
//
//   - logging: slog setup, request-scoped attributes, header redaction
//   - metrics: Prometheus collector for bins, captures, sweeps and HTTP
//   - tracing: OpenTelemetry provider and HTTP middleware
//   - health: liveness and readiness probes
package telemetry
