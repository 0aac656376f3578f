// Package metrics exposes sieve's Prometheus metrics.
//
// Collector owns a dedicated registry (github.com/prometheus/client_golang)
// and records bin, capture, sweep, replay and HTTP metrics. It satisfies
// the recorder interfaces of the capture, lifecycle, sweeper and replay
// packages, so wiring is a matter of passing the collector:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	pipeline := capture.NewPipeline(store, limiter, capture.WithRecorder(collector))
//	router.Method(http.MethodGet, "/metrics", collector.Handler())
//
// Rate limiter metrics live in package limits and register through
// Collector.Registerer.
package metrics
