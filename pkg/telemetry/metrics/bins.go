package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"requestbin-hq/sieve/pkg/config"
)

// BinMetrics tracks bin lifecycle and capture metrics.
//
// Metrics:
//   - sieve_bins_created_total
//   - sieve_bins_deleted_total{reason}
//   - sieve_captures_total{outcome}
//   - sieve_capture_duration_seconds
//   - sieve_bins{state}
//   - sieve_captured_requests
//   - sieve_sweeps_total{result}
//   - sieve_swept_bins_total
type BinMetrics struct {
	created         prometheus.Counter
	deleted         *prometheus.CounterVec
	captures        *prometheus.CounterVec
	captureDuration prometheus.Histogram
	bins            *prometheus.GaugeVec
	requests        prometheus.Gauge
	sweeps          *prometheus.CounterVec
	swept           prometheus.Counter
}

// NewBinMetrics creates and registers bin metrics with the provided registry.
func NewBinMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *BinMetrics {
	bm := &BinMetrics{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "bins_created_total",
			Help:      "Total number of bins created",
		}),
		deleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "bins_deleted_total",
			Help:      "Total number of bins deleted by reason",
		}, []string{"reason"}),
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "captures_total",
			Help:      "Total number of capture attempts by outcome",
		}, []string{"outcome"}),
		captureDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "capture_duration_seconds",
			Help:      "Duration of the capture pipeline in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		bins: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "bins",
			Help:      "Number of stored bins by state",
		}, []string{"state"}),
		requests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "captured_requests",
			Help:      "Number of stored captured requests",
		}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "sweeps_total",
			Help:      "Total number of expiry sweeps by result",
		}, []string{"result"}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "swept_bins_total",
			Help:      "Total number of expired bins removed by sweeps",
		}),
	}

	registry.MustRegister(
		bm.created, bm.deleted, bm.captures, bm.captureDuration,
		bm.bins, bm.requests, bm.sweeps, bm.swept,
	)
	return bm
}

// RecordCapture records one capture attempt.
func (bm *BinMetrics) RecordCapture(outcome string, duration time.Duration) {
	bm.captures.WithLabelValues(outcome).Inc()
	bm.captureDuration.Observe(duration.Seconds())
}

// RecordSweep records one sweep.
func (bm *BinMetrics) RecordSweep(result string, deleted int) {
	bm.sweeps.WithLabelValues(result).Inc()
	bm.swept.Add(float64(deleted))
}

// SetCounts publishes the bin population gauges.
func (bm *BinMetrics) SetCounts(active, expired, requests int64) {
	bm.bins.WithLabelValues("active").Set(float64(active))
	bm.bins.WithLabelValues("expired").Set(float64(expired))
	bm.requests.Set(float64(requests))
}
