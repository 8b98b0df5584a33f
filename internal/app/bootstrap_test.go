package app_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/jack-wz/utest/internal/app"
	"github.com/jack-wz/utest/internal/config"
	"github.com/jack-wz/utest/internal/vector"
)

func TestRetry_Success(t *testing.T) {
	calls := 0
	err := app.Retry(context.Background(), "op", 1, time.Millisecond, func() error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_Retries(t *testing.T) {
	calls := 0
	err := app.Retry(context.Background(), "op", 5, time.Millisecond, func() error {
		calls++
		if calls <= 2 {
			return errors.New("not ready")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_Fail(t *testing.T) {
	calls := 0
	err := app.Retry(context.Background(), "op", 3, time.Millisecond, func() error {
		calls++
		return errors.New("permanent error")
	})
	assert.EqualError(t, err, "permanent error")
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := app.Retry(ctx, "op", 10, time.Hour, func() error {
		calls++
		return errors.New("down")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBootstrap_MemoryBackends(t *testing.T) {
	cfg := &config.Config{StoreBackend: config.BackendMemory, VectorBackend: config.BackendMemory}

	deps, err := app.Bootstrap(context.Background(), cfg)
	require.NoError(t, err)
	defer deps.Close()

	assert.Nil(t, deps.DB)
	assert.Nil(t, deps.NSQProducer)
	assert.IsType(t, &vector.MemoryStore{}, deps.Vectors)
	assert.NotNil(t, deps.Encoder)
	require.NotNil(t, deps.Meters)
	assert.Same(t, deps.Meters.Provider, otel.GetMeterProvider())
}

func TestBootstrap_SQLiteBackend(t *testing.T) {
	cfg := &config.Config{
		StoreBackend:  config.BackendMemory,
		VectorBackend: config.BackendSQLite,
		SQLitePath:    filepath.Join(t.TempDir(), "nested", "vectors.db"),
	}

	deps, err := app.Bootstrap(context.Background(), cfg)
	require.NoError(t, err)
	defer deps.Close()

	ctx := context.Background()
	require.NoError(t, deps.Vectors.Upsert(ctx, "docs", []vector.Record{{ID: "r1", Text: "t", Vector: []float32{1, 0}}}))
	info, err := deps.Vectors.Collection(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, 2, info.Dimension)
}

func TestBootstrap_DBDown(t *testing.T) {
	cfg := &config.Config{
		StoreBackend:               config.BackendPostgres,
		DBHost:                     "localhost",
		DBPort:                     54322, // Random port likely closed
		DBUser:                     "test",
		DBPass:                     "test",
		DBName:                     "test",
		VectorBackend:              config.BackendMemory,
		BootstrapRetryAttempts:     1,
		BootstrapRetryDelaySeconds: 0,
	}

	start := time.Now()
	deps, err := app.Bootstrap(context.Background(), cfg)

	assert.Error(t, err)
	assert.Nil(t, deps)
	assert.Contains(t, err.Error(), "failed to ping db")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestBootstrap_WeaviateDown(t *testing.T) {
	cfg := &config.Config{
		StoreBackend:               config.BackendMemory,
		VectorBackend:              config.BackendWeaviate,
		WeaviateHost:               "localhost:54323",
		WeaviateScheme:             "http",
		BootstrapRetryAttempts:     2,
		BootstrapRetryDelaySeconds: 0,
	}

	deps, err := app.Bootstrap(context.Background(), cfg)
	assert.Error(t, err)
	assert.Nil(t, deps)
	assert.Contains(t, err.Error(), "weaviate unreachable")
}
