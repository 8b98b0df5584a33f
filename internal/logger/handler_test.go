package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jack-wz/utest/internal/middleware"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var logMap map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logMap), buf.String())
	return logMap
}

func TestContextHandler_Handle(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo)

	ctx := middleware.WithCorrelationID(context.Background(), "test-correlation-id")
	logger.InfoContext(ctx, "test message")

	assert.Equal(t, "test-correlation-id", decode(t, &buf)["correlation_id"])
}

func TestContextHandler_WithAttrsKeepsCorrelation(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo).With("component", "engine")

	ctx := middleware.WithCorrelationID(context.Background(), "corr-2")
	logger.InfoContext(ctx, "stage completed")

	logMap := decode(t, &buf)
	assert.Equal(t, "engine", logMap["component"])
	assert.Equal(t, "corr-2", logMap["correlation_id"])
}

func TestContextHandler_NoCorrelation(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, slog.LevelInfo).InfoContext(context.Background(), "plain")

	assert.NotContains(t, decode(t, &buf), "correlation_id")
}

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelWarn)
	logger.Info("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn("kept")
	assert.Equal(t, "kept", decode(t, &buf)["msg"])
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}
