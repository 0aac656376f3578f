package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"requestbin-hq/sieve/pkg/config"
)

// HTTPMetrics tracks served HTTP requests.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics creates and registers HTTP metrics.
func NewHTTPMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *HTTPMetrics {
	hm := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	registry.MustRegister(hm.requests, hm.duration)
	return hm
}

// Record records one request.
func (hm *HTTPMetrics) Record(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	hm.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	hm.duration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ReplayMetrics tracks outbound replays.
type ReplayMetrics struct {
	replays  *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewReplayMetrics creates and registers replay metrics.
func NewReplayMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ReplayMetrics {
	rm := &ReplayMetrics{
		replays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "replays_total",
			Help:      "Total number of replayed requests by result",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "replay_duration_seconds",
			Help:      "Duration of outbound replay calls in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
	registry.MustRegister(rm.replays, rm.duration)
	return rm
}

// Record records one replay.
func (rm *ReplayMetrics) Record(result string, duration time.Duration) {
	rm.replays.WithLabelValues(result).Inc()
	rm.duration.Observe(duration.Seconds())
}
