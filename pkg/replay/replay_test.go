package replay

import (
	"context"
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
)

type fakeSource struct {
	requests map[string]*bin.CapturedRequest
}

func (f *fakeSource) Request(_ context.Context, code, requestID string) (*bin.CapturedRequest, error) {
	if code != "abcd1234" {
		return nil, bin.NotFound(code)
	}
	req, ok := f.requests[requestID]
	if !ok {
		return nil, &bin.Error{Kind: bin.KindNotFound, Code: code, Message: "request not found"}
	}
	return req, nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	results []string
}

func (f *fakeRecorder) RecordReplay(result string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, result)
}

func newSource() *fakeSource {
	return &fakeSource{requests: map[string]*bin.CapturedRequest{
		"req-1": {
			ID:     "req-1",
			Method: http.MethodPut,
			Path:   "/capture/abcd1234/hook",
			Headers: map[string]string{
				"Content-Type":   "application/json",
				"X-Signature":    "sig",
				"Host":           "sieve.example",
				"Content-Length": "13",
				"Connection":     "keep-alive, X-Drop-Me",
				"X-Drop-Me":      "1",
				"Keep-Alive":     "timeout=5",
			},
			Body: `{"event":"a"}`,
		},
	}}
}

type seen struct {
	method string
	header http.Header
	body   string
}

func echoServer(t *testing.T, status int, reply string) (*httptest.Server, *seen) {
	t.Helper()
	got := &seen{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got.method = r.Method
		got.header = r.Header.Clone()
		got.body = string(body)
		w.Header().Set("X-Reply", "yes")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestReplay_ForwardsCapturedRequest(t *testing.T) {
	srv, got := echoServer(t, http.StatusAccepted, "ok")
	rec := &fakeRecorder{}
	r := New(newSource(), Config{}, WithRecorder(rec))

	res, err := r.Replay(context.Background(), "abcd1234", "req-1", Options{
		TargetURL:         srv.URL + "/hooks",
		AdditionalHeaders: map[string]string{"X-Signature": "override", "X-Extra": "1"},
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, http.StatusAccepted, res.StatusCode)
	assert.Equal(t, "ok", res.ResponseBody)
	assert.Equal(t, "yes", res.ResponseHeaders["X-Reply"])
	assert.Equal(t, "req-1", res.OriginalRequestID)
	assert.Empty(t, res.Error)

	assert.Equal(t, http.MethodPut, got.method)
	assert.Equal(t, `{"event":"a"}`, got.body)
	assert.Equal(t, "application/json", got.header.Get("Content-Type"))
	assert.Equal(t, "override", got.header.Get("X-Signature"))
	assert.Equal(t, "1", got.header.Get("X-Extra"))
	assert.Empty(t, got.header.Get("X-Drop-Me"))
	assert.Empty(t, got.header.Get("Keep-Alive"))

	assert.Equal(t, []string{ResultSuccess}, rec.results)
}

func TestReplay_OverrideBody(t *testing.T) {
	srv, got := echoServer(t, http.StatusOK, "")
	r := New(newSource(), Config{})

	empty := ""
	_, err := r.Replay(context.Background(), "abcd1234", "req-1", Options{TargetURL: srv.URL, OverrideBody: &empty})
	require.NoError(t, err)
	assert.Empty(t, got.body)

	replaced := "replaced"
	_, err = r.Replay(context.Background(), "abcd1234", "req-1", Options{TargetURL: srv.URL, OverrideBody: &replaced})
	require.NoError(t, err)
	assert.Equal(t, "replaced", got.body)
}

func TestReplay_Non2xx(t *testing.T) {
	srv, _ := echoServer(t, http.StatusBadGateway, "upstream down")
	rec := &fakeRecorder{}
	r := New(newSource(), Config{}, WithRecorder(rec))

	res, err := r.Replay(context.Background(), "abcd1234", "req-1", Options{TargetURL: srv.URL})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, http.StatusBadGateway, res.StatusCode)
	assert.Equal(t, "upstream down", res.ResponseBody)
	assert.Contains(t, res.Error, "502")
	assert.Equal(t, []string{ResultNon2xx}, rec.results)
}

func TestReplay_TransportFailure(t *testing.T) {
	srv, _ := echoServer(t, http.StatusOK, "")
	target := srv.URL
	srv.Close()

	rec := &fakeRecorder{}
	r := New(newSource(), Config{Timeout: time.Second}, WithRecorder(rec))

	res, err := r.Replay(context.Background(), "abcd1234", "req-1", Options{TargetURL: target})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Zero(t, res.StatusCode)
	assert.NotEmpty(t, res.Error)
	assert.Equal(t, target, res.TargetURL)
	assert.Equal(t, []string{ResultFailed}, rec.results)
}

func TestReplay_ResponseCapped(t *testing.T) {
	srv, _ := echoServer(t, http.StatusOK, strings.Repeat("x", 100))
	r := New(newSource(), Config{MaxResponseBytes: 10})

	res, err := r.Replay(context.Background(), "abcd1234", "req-1", Options{TargetURL: srv.URL})
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Len(t, res.ResponseBody, 10)
}

func TestReplay_InvalidTarget(t *testing.T) {
	r := New(newSource(), Config{})

	for _, target := range []string{"", "  ", "/relative", "ftp://host/x", "http://"} {
		t.Run(target, func(t *testing.T) {
			_, err := r.Replay(context.Background(), "abcd1234", "req-1", Options{TargetURL: target})
			require.Error(t, err)
			assert.Equal(t, bin.KindValidation, bin.KindOf(err))
		})
	}
}

func TestReplay_UnknownRequest(t *testing.T) {
	srv, _ := echoServer(t, http.StatusOK, "")
	r := New(newSource(), Config{})

	_, err := r.Replay(context.Background(), "zzzz9999", "req-1", Options{TargetURL: srv.URL})
	assert.Equal(t, bin.KindNotFound, bin.KindOf(err))

	_, err = r.Replay(context.Background(), "abcd1234", "missing", Options{TargetURL: srv.URL})
	assert.Equal(t, bin.KindNotFound, bin.KindOf(err))
}

func TestReplay_ConcurrencyBound(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		entered <- struct{}{}
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rec := &fakeRecorder{}
	r := New(newSource(), Config{MaxConcurrent: 1}, WithRecorder(rec))

	done := make(chan error, 1)
	go func() {
		_, err := r.Replay(context.Background(), "abcd1234", "req-1", Options{TargetURL: srv.URL})
		done <- err
	}()
	<-entered

	_, err := r.Replay(context.Background(), "abcd1234", "req-1", Options{TargetURL: srv.URL})
	require.Error(t, err)
	assert.Equal(t, bin.KindRateLimited, bin.KindOf(err))

	close(release)
	require.NoError(t, <-done)
	assert.ElementsMatch(t, []string{ResultThrottled, ResultSuccess}, rec.results)
}

func TestReplay_ThrottleWaitsWithinTimeout(t *testing.T) {
	srv, _ := echoServer(t, http.StatusOK, "")
	r := New(newSource(), Config{RatePerSecond: 0.001, Burst: 1, Timeout: 50 * time.Millisecond})

	_, err := r.Replay(context.Background(), "abcd1234", "req-1", Options{TargetURL: srv.URL})
	require.NoError(t, err)

	_, err = r.Replay(context.Background(), "abcd1234", "req-1", Options{TargetURL: srv.URL})
	assert.Equal(t, bin.KindRateLimited, bin.KindOf(err))
}
