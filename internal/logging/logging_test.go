package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixeltennis/pixeltennis/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(&buf, config.LogConfig{Level: "warn"})
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("flush_complete")
	logger.Warn("flush_op_failed", "key", "log-1")

	out := buf.String()
	assert.NotContains(t, out, "flush_complete")
	assert.Contains(t, out, "flush_op_failed")
	assert.Contains(t, out, "key=log-1")
}

func TestNewTeesIntoFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "pt.log")
	logger, closer, err := New(&buf, config.LogConfig{Level: "info", File: path, MaxSizeMB: 1, MaxBackups: 1})
	require.NoError(t, err)

	logger.Info("daemon_started", "online", true)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "daemon_started")
	assert.Contains(t, buf.String(), "daemon_started")
}
