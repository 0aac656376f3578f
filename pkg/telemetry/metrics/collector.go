package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"requestbin-hq/sieve/pkg/config"
)

// Collector owns the Prometheus registry and every sieve metric outside
// the rate limiter. It implements the recorder interfaces of the capture,
// lifecycle, sweeper and replay packages.
//
// When metrics are disabled all Record methods are no-ops.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	binMetrics    *BinMetrics
	replayMetrics *ReplayMetrics
	httpMetrics   *HTTPMetrics
}

// NewCollector creates a collector registering into registry. A nil
// registry creates a dedicated one with Go runtime and process collectors.
//
// Example:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	limitsMetrics := limits.NewMetrics(collector.Registerer())
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}

	return &Collector{
		config:        cfg,
		registry:      registry,
		binMetrics:    NewBinMetrics(cfg, registry),
		replayMetrics: NewReplayMetrics(cfg, registry),
		httpMetrics:   NewHTTPMetrics(cfg, registry),
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Registerer returns the registerer other packages use for their own
// metrics. It is nil when metrics are disabled.
func (c *Collector) Registerer() prometheus.Registerer {
	if !c.config.Enabled {
		return nil
	}
	return c.registry
}

// Enabled reports whether metrics collection is active.
func (c *Collector) Enabled() bool {
	return c.config.Enabled
}

// RecordCapture records one capture attempt by outcome.
func (c *Collector) RecordCapture(outcome string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.binMetrics.RecordCapture(outcome, duration)
}

// RecordBinCreated counts a created bin.
func (c *Collector) RecordBinCreated() {
	if !c.config.Enabled {
		return
	}
	c.binMetrics.created.Inc()
}

// RecordBinDeleted counts a deleted bin. reason is "owner" or "expired".
func (c *Collector) RecordBinDeleted(reason string) {
	if !c.config.Enabled {
		return
	}
	c.binMetrics.deleted.WithLabelValues(reason).Inc()
}

// RecordSweep records a sweep result.
func (c *Collector) RecordSweep(result string, deleted int) {
	if !c.config.Enabled {
		return
	}
	c.binMetrics.RecordSweep(result, deleted)
}

// SetBinCounts publishes the bin population.
func (c *Collector) SetBinCounts(active, expired, requests int64) {
	if !c.config.Enabled {
		return
	}
	c.binMetrics.SetCounts(active, expired, requests)
}

// RecordReplay records one replay.
func (c *Collector) RecordReplay(result string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.replayMetrics.Record(result, duration)
}

// RecordHTTPRequest records one served HTTP request. route is the router
// pattern, not the raw path.
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.httpMetrics.Record(method, route, status, duration)
}
