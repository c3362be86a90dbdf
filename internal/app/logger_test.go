package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", slog.String("k", "v"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "v", entry["k"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, parseLevel(nil))
	assert.Equal(t, slog.LevelDebug, parseLevel(&Config{LogLevel: "DEBUG"}))
	assert.Equal(t, slog.LevelWarn, parseLevel(&Config{LogLevel: "warning"}))
	assert.Equal(t, slog.LevelError, parseLevel(&Config{LogLevel: "error"}))
	assert.Equal(t, slog.LevelInfo, parseLevel(&Config{LogLevel: "chatty"}))
}

func TestRefreshTestMode(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	assert.True(t, InTestMode())

	t.Setenv(testModeEnv, "0")
	RefreshTestMode()
	assert.False(t, InTestMode())
}
