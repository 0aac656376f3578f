package server

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"requestbin-hq/sieve/pkg/bin"
	"requestbin-hq/sieve/pkg/bin/storage"
	"requestbin-hq/sieve/pkg/capture"
	"requestbin-hq/sieve/pkg/config"
	"requestbin-hq/sieve/pkg/export"
	"requestbin-hq/sieve/pkg/lifecycle"
	"requestbin-hq/sieve/pkg/limits"
	"requestbin-hq/sieve/pkg/limits/ratelimit"
	"requestbin-hq/sieve/pkg/replay"
	"requestbin-hq/sieve/pkg/telemetry/health"
	"requestbin-hq/sieve/pkg/telemetry/metrics"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testServer struct {
	*Server
	store *storage.MemoryStore
	clock *clock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, nil)
}

func newTestServerWith(t *testing.T, configure func(*Config)) *testServer {
	t.Helper()

	clk := &clock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	store := storage.NewMemoryStore()
	lm := limits.NewManager(ratelimit.NewRegistry(ratelimit.WithClock(clk.Now)), limits.DefaultConfig(), nil)
	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true, Path: "/metrics"}, nil)

	bins := lifecycle.NewManager(store, bin.NewAllocator(store), lm, lifecycle.DefaultConfig(),
		lifecycle.WithClock(clk.Now), lifecycle.WithRecorder(collector))
	pipeline := capture.NewPipeline(store, lm, capture.WithClock(clk.Now), capture.WithRecorder(collector))

	checker := health.New(time.Second)
	checker.RegisterCheck("storage", health.PingCheck(store))

	cfg := Config{
		Server: config.ServerConfig{
			CORS: config.CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}, AllowedMethods: []string{"GET", "POST", "DELETE"}},
		},
		MetricsPath: "/metrics",
		Export:      export.DefaultOptions(),
	}
	if configure != nil {
		configure(&cfg)
	}

	srv := New(cfg, Deps{
		Bins:     bins,
		Capture:  pipeline,
		Replayer: replay.New(bins, replay.Config{}, replay.WithRecorder(collector)),
		Health:   checker,
		Metrics:  collector,
		Version:  health.NewVersionInfo("test", "abc", "now"),
		Now:      clk.Now,
	})
	return &testServer{Server: srv, store: store, clock: clk}
}

func (ts *testServer) do(t *testing.T, method, target string, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	return ts.doFrom(t, "", method, target, body, header...)
}

// doFrom sends the request from the given transport peer ("host:port").
func (ts *testServer) doFrom(t *testing.T, peer, method, target string, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	if peer != "" {
		req.RemoteAddr = peer
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) createBin(t *testing.T, body string) binSummary {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/bins", body, "Content-Type", "application/json")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var env struct {
		Status int        `json:"status"`
		Data   binSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, http.StatusCreated, env.Status)
	return env.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestCreateBin(t *testing.T) {
	ts := newTestServer(t)

	b := ts.createBin(t, "")
	assert.Len(t, b.PublicCode, bin.CodeLength)
	assert.Equal(t, "http://localhost:8080/capture/"+b.PublicCode, b.FullURL)
	assert.Equal(t, 1000, b.MaxRequests)
	assert.Equal(t, ts.clock.Now().Add(24*time.Hour), b.ExpiresAt)

	b = ts.createBin(t, `{"expiryHours": 2, "maxRequests": 10}`)
	assert.Equal(t, 10, b.MaxRequests)
	assert.Equal(t, ts.clock.Now().Add(2*time.Hour), b.ExpiresAt)
}

func TestCreateBin_Validation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/bins", `{"expiryHours": 500, "maxRequests": 5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeError(t, rec)
	assert.Equal(t, "validation_failed", body.Reason)
	assert.Equal(t, "Bad Request", body.Error)
	assert.Equal(t, "/bins", body.Path)
	require.Len(t, body.FieldErrors, 2)
	assert.Equal(t, "expiryHours", body.FieldErrors[0].Field)
	assert.Equal(t, "maxRequests", body.FieldErrors[1].Field)

	rec = ts.do(t, http.MethodPost, "/bins", `{"expiryHours": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "body", decodeError(t, rec).FieldErrors[0].Field)
}

func TestCreateBin_RateLimited(t *testing.T) {
	ts := newTestServer(t)
	const peer = "198.51.100.4:5000"

	// Rotating X-Forwarded-For does not give an untrusted peer new buckets.
	for i := 0; i < 10; i++ {
		rec := ts.doFrom(t, peer, http.MethodPost, "/bins", "", "X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := ts.doFrom(t, peer, http.MethodPost, "/bins", "", "X-Forwarded-For", "10.0.0.99")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limit_exceeded", decodeError(t, rec).Reason)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec = ts.doFrom(t, "198.51.100.5:5000", http.MethodPost, "/bins", "")
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateBin_TrustedProxy(t *testing.T) {
	ts := newTestServerWith(t, func(cfg *Config) {
		cfg.Server.TrustedProxies = []string{"10.0.0.1"}
	})
	const proxy = "10.0.0.1:443"

	for i := 0; i < 10; i++ {
		rec := ts.doFrom(t, proxy, http.MethodPost, "/bins", "", "X-Forwarded-For", "203.0.113.7")
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	// A spoofed leftmost entry does not change the hop the proxy appended.
	rec := ts.doFrom(t, proxy, http.MethodPost, "/bins", "", "X-Forwarded-For", "1.1.1.1, 203.0.113.7")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = ts.doFrom(t, proxy, http.MethodPost, "/bins", "", "X-Forwarded-For", "203.0.113.8")
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestGetBin(t *testing.T) {
	ts := newTestServer(t)
	b := ts.createBin(t, "")

	rec := ts.do(t, http.MethodGet, "/bins/"+b.PublicCode, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "Bin retrieved successfully", env.Message)

	rec = ts.do(t, http.MethodGet, "/bins/nosuch01", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "bin_not_found", decodeError(t, rec).Reason)
}

func TestCaptureAndDetails(t *testing.T) {
	ts := newTestServer(t)
	b := ts.createBin(t, "")

	rec := ts.do(t, http.MethodPost, "/capture/"+b.PublicCode+"?a=1&a=2", `{"hello":"world"}`,
		"X-Forwarded-For", "203.0.113.7, 10.0.0.1", "Content-Type", "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var ack captureAck
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.Equal(t, "success", ack.Status)
	assert.Equal(t, "Request captured", ack.Message)
	assert.NotEmpty(t, ack.RequestID)
	assert.Equal(t, "60", rec.Header().Get("X-RateLimit-Limit"))

	ts.clock.Advance(time.Second)
	rec = ts.do(t, http.MethodOptions, "/capture/"+b.PublicCode+"/deep/path", "",
		"Access-Control-Request-Method", "POST")
	require.Equal(t, http.StatusOK, rec.Code, "OPTIONS on a capture URL is captured, not a preflight")

	rec = ts.do(t, http.MethodGet, "/bins/"+b.PublicCode+"/details", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Data binDetails `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, 2, env.Data.RequestCount)
	require.Len(t, env.Data.Requests, 2)

	newest, oldest := env.Data.Requests[0], env.Data.Requests[1]
	assert.Equal(t, http.MethodOptions, newest.Method)
	assert.Equal(t, "/capture/"+b.PublicCode+"/deep/path", newest.Path)
	assert.Equal(t, ack.RequestID, oldest.ID)
	assert.Equal(t, "1", oldest.QueryParams["a"])
	assert.Equal(t, "203.0.113.7", oldest.IPAddress)
	assert.Equal(t, `{"hello":"world"}`, oldest.Body)
}

func TestCapture_LimitExceeded(t *testing.T) {
	ts := newTestServer(t)
	b := ts.createBin(t, `{"maxRequests": 10}`)

	for i := 0; i < 10; i++ {
		rec := ts.do(t, http.MethodGet, "/capture/"+b.PublicCode, "")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := ts.do(t, http.MethodGet, "/capture/"+b.PublicCode, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "bin_limit_exceeded", decodeError(t, rec).Reason)

	count, err := ts.store.CountRequests(context.Background(), 1)
	require.NoError(t, err)
	assert.EqualValues(t, 10, count)
}

func TestExpiredBin(t *testing.T) {
	ts := newTestServer(t)
	b := ts.createBin(t, `{"expiryHours": 1}`)

	ts.clock.Advance(time.Hour)

	rec := ts.do(t, http.MethodGet, "/bins/"+b.PublicCode, "")
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, "bin_expired", decodeError(t, rec).Reason)

	rec = ts.do(t, http.MethodPost, "/capture/"+b.PublicCode, "late")
	assert.Equal(t, http.StatusGone, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/bins/"+b.PublicCode, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeleteBin(t *testing.T) {
	ts := newTestServer(t)
	b := ts.createBin(t, "")
	ts.do(t, http.MethodPut, "/capture/"+b.PublicCode, "x")

	rec := ts.do(t, http.MethodDelete, "/bins/"+b.PublicCode, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var env map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Contains(t, env, "data")
	assert.Nil(t, env["data"])

	rec = ts.do(t, http.MethodGet, "/bins/"+b.PublicCode, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(t, http.MethodDelete, "/bins/"+b.PublicCode, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExport(t *testing.T) {
	ts := newTestServer(t)
	b := ts.createBin(t, "")
	ts.do(t, http.MethodPost, "/capture/"+b.PublicCode+"?k=v", "payload")

	rec := ts.do(t, http.MethodGet, "/bins/"+b.PublicCode+"/export/csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="bin-`+b.PublicCode+`.csv"`, rec.Header().Get("Content-Disposition"))

	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "payload", rows[1][7])

	rec = ts.do(t, http.MethodGet, "/bins/"+b.PublicCode+"/export/json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var records []bin.CapturedRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "v", records[0].QueryParams["k"])

	rec = ts.do(t, http.MethodGet, "/bins/"+b.PublicCode+"/export/xml", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "format", decodeError(t, rec).FieldErrors[0].Field)
}

func TestReplay(t *testing.T) {
	var gotMethod, gotBody string
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotMethod, gotBody = r.Method, string(body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer target.Close()

	ts := newTestServer(t)
	b := ts.createBin(t, "")
	rec := ts.do(t, http.MethodPatch, "/capture/"+b.PublicCode, "original")
	var ack captureAck
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))

	rec = ts.do(t, http.MethodPost, "/bins/"+b.PublicCode+"/requests/"+ack.RequestID+"/replay",
		`{"targetUrl": "`+target.URL+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var env struct {
		Data replay.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.True(t, env.Data.Success)
	assert.Equal(t, http.StatusCreated, env.Data.StatusCode)
	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "original", gotBody)

	rec = ts.do(t, http.MethodPost, "/bins/"+b.PublicCode+"/requests/"+ack.RequestID+"/replay", `{"targetUrl": "nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflightOnBins(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodOptions, "/bins", "",
		"Origin", "https://app.example", "Access-Control-Request-Method", "POST")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRoutingErrors(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "route_not_found", decodeError(t, rec).Reason)

	rec = ts.do(t, http.MethodPut, "/bins", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestOperationalRoutes(t *testing.T) {
	ts := newTestServer(t)
	ts.createBin(t, "")

	rec := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/version", "")
	assert.Contains(t, rec.Body.String(), `"version":"test"`)

	rec = ts.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sieve_bins_created_total")
	assert.Contains(t, rec.Body.String(), "sieve_http_requests_total")
}

type panicBins struct{ BinService }

func (panicBins) Get(context.Context, string) (*bin.Bin, error) { panic("boom") }

func TestRecoveryWritesGenericError(t *testing.T) {
	srv := New(Config{}, Deps{Bins: panicBins{}})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bins/abcd1234", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal_error", body.Reason)
	assert.Equal(t, genericErrorMessage, body.Message)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestStatusFor(t *testing.T) {
	for kind, want := range map[bin.Kind]int{
		bin.KindNotFound:            404,
		bin.KindExpired:             410,
		bin.KindLimitExceeded:       429,
		bin.KindRateLimited:         429,
		bin.KindAllocationExhausted: 500,
		bin.KindValidation:          400,
		bin.KindStorage:             500,
		bin.KindInternal:            500,
	} {
		assert.Equal(t, want, statusFor(kind), kind.String())
	}
	assert.Equal(t, "internal_error", reasonFor(bin.KindStorage))
}

func TestStartAndShutdown(t *testing.T) {
	srv := New(Config{Server: config.ServerConfig{ListenAddress: "127.0.0.1:0", ShutdownTimeout: time.Second}}, Deps{
		Health: health.New(time.Second),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	require.Eventually(t, func() bool { return srv.Addr() != nil }, time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + srv.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
