// Package tracing installs the OpenTelemetry tracer provider and the HTTP
// middleware that continues W3C trace context from callers.
//
// Spans are exported over OTLP gRPC. The sampler is one of always, never
// or ratio, always wrapped in ParentBased:
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    sampler: ratio
//	    sample_ratio: 0.1
//	    endpoint: localhost:4317
//
// Packages emit spans through otel.Tracer, so they pick up whatever
// provider New installed, or the global noop when tracing is disabled.
package tracing
