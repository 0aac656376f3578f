package limits

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for admission control.
type Metrics struct {
	decisions     *prometheus.CounterVec
	backendErrors *prometheus.CounterVec
	buckets       *prometheus.GaugeVec
	evictions     prometheus.Counter
	checkDuration *prometheus.HistogramVec
}

// NewMetrics creates the admission metrics and registers them with reg.
// A nil reg registers nothing, which keeps tests isolated.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sieve_ratelimit_decisions_total",
				Help: "Total number of rate limit decisions by policy and outcome",
			},
			[]string{"policy", "decision"},
		),

		backendErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sieve_ratelimit_backend_errors_total",
				Help: "Total number of rate limiter backend failures",
			},
			[]string{"policy"},
		),

		buckets: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sieve_ratelimit_buckets",
				Help: "Number of in-memory token buckets per policy",
			},
			[]string{"policy"},
		),

		evictions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sieve_ratelimit_bucket_evictions_total",
				Help: "Total number of idle token buckets evicted",
			},
		),

		checkDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sieve_ratelimit_check_duration_seconds",
				Help:    "Latency of rate limit checks",
				Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1},
			},
			[]string{"policy"},
		),
	}
}

// RecordDecision records one admission decision.
func (m *Metrics) RecordDecision(policy string, allowed bool, seconds float64) {
	if m == nil {
		return
	}
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	m.decisions.WithLabelValues(policy, decision).Inc()
	m.checkDuration.WithLabelValues(policy).Observe(seconds)
}

// RecordBackendError records a limiter backend failure.
func (m *Metrics) RecordBackendError(policy string) {
	if m == nil {
		return
	}
	m.backendErrors.WithLabelValues(policy).Inc()
}

// SetBuckets records the current number of buckets for a policy.
func (m *Metrics) SetBuckets(policy string, n int) {
	if m == nil {
		return
	}
	m.buckets.WithLabelValues(policy).Set(float64(n))
}

// RecordEvictions adds evicted buckets to the eviction counter.
func (m *Metrics) RecordEvictions(n int) {
	if m == nil || n == 0 {
		return
	}
	m.evictions.Add(float64(n))
}
