package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Extract returns ctx carrying the W3C trace context found in headers.
func Extract(ctx context.Context, headers http.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(headers))
}

// Inject writes the trace context of ctx into headers.
func Inject(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}

// StatusRecorder is implemented by response writers that remember the
// status they wrote.
type StatusRecorder interface {
	Status() int
}

// Middleware starts a server span per request as a child of any incoming
// traceparent. route is called after the handler returns so routers can
// report the matched pattern; it may be nil.
func Middleware(route func(*http.Request) string) func(http.Handler) http.Handler {
	tracer := otel.Tracer(instrumentationName + "/pkg/telemetry/tracing")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := Extract(r.Context(), r.Header)
			ctx, span := tracer.Start(ctx, r.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.target", r.URL.Path),
				),
			)
			defer span.End()

			if sc := span.SpanContext(); sc.IsValid() {
				w.Header().Set("X-Trace-ID", sc.TraceID().String())
			}

			next.ServeHTTP(w, r.WithContext(ctx))

			if route != nil {
				if pattern := route(r); pattern != "" {
					span.SetName(r.Method + " " + pattern)
					span.SetAttributes(attribute.String("http.route", pattern))
				}
			}
			if sr, ok := w.(StatusRecorder); ok && sr.Status() != 0 {
				span.SetAttributes(attribute.Int("http.status_code", sr.Status()))
				if sr.Status() >= http.StatusInternalServerError {
					span.SetStatus(codes.Error, http.StatusText(sr.Status()))
				}
			}
		})
	}
}
