package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ContextFieldsAreAdded(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "info", Format: "json", Writer: &buf})
	require.NoError(t, err)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithBinCode(ctx, "abcdEFGH")
	logger.Slog().InfoContext(ctx, "bin created", "max_requests", 10)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "bin created", entry["msg"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "abcdEFGH", entry["bin_code"])
	assert.EqualValues(t, 10, entry["max_requests"])
}

func TestLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "warn", Format: "text", Writer: &buf})
	require.NoError(t, err)

	logger.Slog().Info("hidden")
	assert.Empty(t, buf.String())

	require.NoError(t, logger.SetLevel("debug"))
	assert.Equal(t, slog.LevelDebug, logger.Level())

	child := logger.With("component", "test")
	child.Slog().Debug("visible")
	assert.Contains(t, buf.String(), "visible")
	assert.Contains(t, buf.String(), "component=test")

	assert.Error(t, logger.SetLevel("loud"))
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Config{Level: "verbose"})
	assert.Error(t, err)

	_, err = New(Config{Format: "xml"})
	assert.Error(t, err)

	_, err = New(Config{Output: "file"})
	assert.Error(t, err)

	_, err = New(Config{Output: "syslog"})
	assert.Error(t, err)
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sieve.log")
	logger, err := New(Config{
		Output: "file",
		File:   FileConfig{Path: path, MaxSizeMB: 1, MaxBackups: 1},
	})
	require.NoError(t, err)

	logger.Slog().Info("to file")
	require.NoError(t, logger.Shutdown())
	assert.FileExists(t, path)
}

func TestRedactHeaders(t *testing.T) {
	in := map[string]string{
		"Authorization": "Bearer abc.def.ghi",
		"Cookie":        "session=1",
		"X-Api-Key":     "k",
		"Content-Type":  "application/json",
		"X-Note":        "forwarded Bearer xyz123",
	}

	out := RedactHeaders(in)
	assert.Equal(t, redacted, out["Authorization"])
	assert.Equal(t, redacted, out["Cookie"])
	assert.Equal(t, redacted, out["X-Api-Key"])
	assert.Equal(t, "application/json", out["Content-Type"])
	assert.Equal(t, "forwarded Bearer "+redacted, out["X-Note"])

	// Input untouched.
	assert.Equal(t, "Bearer abc.def.ghi", in["Authorization"])
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
