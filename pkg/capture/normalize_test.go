package capture

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_RepeatedValues(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/capture/abcdEFGH?a=1&a=2&b=", strings.NewReader("hello"))
	r.Header.Add("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	r.Header.Add("X-Dup", "first")
	r.Header.Add("X-Dup", "second")

	body, err := ReadBody(r, 0)
	require.NoError(t, err)
	req := Normalize(r, body)

	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/capture/abcdEFGH", req.Path)
	assert.Equal(t, map[string]string{"a": "1", "b": ""}, req.QueryParams)
	assert.Equal(t, "second", req.Headers["X-Dup"])
	assert.Equal(t, "example.com", req.Headers["Host"])
	assert.Equal(t, "hello", req.Body)
	assert.Equal(t, "203.0.113.5", req.IPAddress)
}

func TestReadBody(t *testing.T) {
	t.Run("nil body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Body = nil
		body, err := ReadBody(r, 10)
		require.NoError(t, err)
		assert.Equal(t, "", body)
	})

	t.Run("no body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		body, err := ReadBody(r, 10)
		require.NoError(t, err)
		assert.Equal(t, "", body)
	})

	t.Run("truncated", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789abcdef"))
		body, err := ReadBody(r, 10)
		require.NoError(t, err)
		assert.Equal(t, "0123456789", body)
	})

	t.Run("read failure", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", errReader{})
		body, err := ReadBody(r, 10)
		assert.Error(t, err)
		assert.Equal(t, "", body)
	})
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{
			name:       "remote addr only",
			remoteAddr: "192.0.2.1:1234",
			want:       "192.0.2.1",
		},
		{
			name:       "forwarded for first entry",
			headers:    map[string]string{"X-Forwarded-For": " 198.51.100.7 , 10.0.0.2"},
			remoteAddr: "192.0.2.1:1234",
			want:       "198.51.100.7",
		},
		{
			name: "unknown forwarded for falls through",
			headers: map[string]string{
				"X-Forwarded-For": "unknown",
				"Proxy-Client-IP": "198.51.100.8",
			},
			remoteAddr: "192.0.2.1:1234",
			want:       "198.51.100.8",
		},
		{
			name: "weblogic proxy header",
			headers: map[string]string{
				"Proxy-Client-IP":    "UNKNOWN",
				"WL-Proxy-Client-IP": "198.51.100.9",
			},
			remoteAddr: "192.0.2.1:1234",
			want:       "198.51.100.9",
		},
		{
			name:       "empty forwarded entry",
			headers:    map[string]string{"X-Forwarded-For": ", 10.0.0.3"},
			remoteAddr: "192.0.2.1:1234",
			want:       "192.0.2.1",
		},
		{
			name:       "ipv6 remote addr",
			remoteAddr: "[2001:db8::1]:443",
			want:       "2001:db8::1",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "192.0.2.10",
			want:       "192.0.2.10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(r))
		})
	}
}

func TestTrustedProxies(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 192.0.2.10 ", "2001:db8::/32"})
	require.NoError(t, err)

	assert.True(t, trusted.Contains("10.4.5.6"))
	assert.True(t, trusted.Contains("192.0.2.10"))
	assert.True(t, trusted.Contains("::ffff:10.0.0.1"))
	assert.True(t, trusted.Contains("2001:db8::1"))
	assert.False(t, trusted.Contains("192.0.2.11"))
	assert.False(t, trusted.Contains("not-an-ip"))

	_, err = ParseTrustedProxies([]string{"proxy.internal"})
	assert.Error(t, err)

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{"untrusted peer", "198.51.100.1:80", "203.0.113.5", "198.51.100.1"},
		{"trusted peer", "10.0.0.1:80", "203.0.113.5", "203.0.113.5"},
		{"rightmost untrusted hop", "10.0.0.1:80", "6.6.6.6, 203.0.113.5, 10.2.2.2", "203.0.113.5"},
		{"all hops trusted", "10.0.0.1:80", "10.3.3.3", "10.3.3.3"},
		{"no header", "10.0.0.1:80", "", "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, trusted.ClientIP(r))
		})
	}

	var none TrustedProxies
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:80"
	r.Header.Set("X-Forwarded-For", "203.0.113.5")
	assert.Equal(t, "10.0.0.1", none.ClientIP(r))
}
