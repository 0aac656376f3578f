package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"requestbin-hq/sieve/pkg/config"
)

func newTestCollector(enabled bool) *Collector {
	return NewCollector(&config.MetricsConfig{Enabled: enabled, Namespace: "sieve"}, prometheus.NewRegistry())
}

func TestCollector_Captures(t *testing.T) {
	c := newTestCollector(true)

	c.RecordCapture("captured", 2*time.Millisecond)
	c.RecordCapture("captured", time.Millisecond)
	c.RecordCapture("expired", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.binMetrics.captures.WithLabelValues("captured")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.binMetrics.captures.WithLabelValues("expired")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.binMetrics.captureDuration))
}

func TestCollector_BinLifecycle(t *testing.T) {
	c := newTestCollector(true)

	c.RecordBinCreated()
	c.RecordBinCreated()
	c.RecordBinDeleted("owner")
	c.RecordBinDeleted("expired")
	c.RecordSweep("success", 3)
	c.SetBinCounts(5, 2, 40)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.binMetrics.created))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.binMetrics.deleted.WithLabelValues("owner")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.binMetrics.swept))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.binMetrics.bins.WithLabelValues("active")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.binMetrics.bins.WithLabelValues("expired")))
	assert.Equal(t, 40.0, testutil.ToFloat64(c.binMetrics.requests))
}

func TestCollector_Disabled(t *testing.T) {
	c := newTestCollector(false)

	c.RecordCapture("captured", time.Millisecond)
	c.RecordBinCreated()
	c.RecordReplay("success", time.Second)
	c.RecordHTTPRequest("GET", "/bins/{code}", 200, time.Millisecond)

	assert.Equal(t, 0.0, testutil.ToFloat64(c.binMetrics.captures.WithLabelValues("captured")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.binMetrics.created))
	assert.Nil(t, c.Registerer())
	assert.False(t, c.Enabled())
}

func TestCollector_HTTPAndReplay(t *testing.T) {
	c := newTestCollector(true)

	c.RecordHTTPRequest("GET", "/bins/{code}", 404, time.Millisecond)
	c.RecordHTTPRequest("GET", "", 404, time.Millisecond)
	c.RecordReplay("transport_error", time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpMetrics.requests.WithLabelValues("GET", "/bins/{code}", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpMetrics.requests.WithLabelValues("GET", "unmatched", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.replayMetrics.replays.WithLabelValues("transport_error")))
}

func TestCollector_Handler(t *testing.T) {
	c := newTestCollector(true)
	c.RecordBinCreated()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "sieve_bins_created_total 1"))
}

func TestNewCollector_DefaultRegistry(t *testing.T) {
	c := NewCollector(&config.MetricsConfig{Enabled: true}, nil)
	require.NotNil(t, c.Registry())
	assert.Equal(t, "sieve", c.config.Namespace)

	families, err := c.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
