package gemini_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/jack-wz/utest/internal/adapter/gemini"
)

func TestNewEmbedder_MissingKey(t *testing.T) {
	_, err := gemini.NewEmbedder(context.Background(), "", nil)
	assert.ErrorContains(t, err, "gemini api key not configured")
}

func TestEmbedder_Encode(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"embedding": map[string]interface{}{
				"values": []float32{0.1, 0.2, 0.3},
			},
		})
	}))
	defer ts.Close()

	ctx := context.Background()
	e, err := gemini.NewEmbedder(ctx, "test-key", []option.ClientOption{option.WithEndpoint(ts.URL)},
		gemini.WithRetry(1, time.Millisecond))
	require.NoError(t, err)
	defer e.Close()

	vecs, err := e.Encode(ctx, []string{"hello", "world"}, "gemini")
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, float32(0.1), vecs[0][0])
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmbedder_EmptyIsPermanent(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"embedding": map[string]interface{}{"values": []float32{}}})
	}))
	defer ts.Close()

	ctx := context.Background()
	e, err := gemini.NewEmbedder(ctx, "test-key", []option.ClientOption{option.WithEndpoint(ts.URL)},
		gemini.WithRetry(3, time.Millisecond))
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Embed(ctx, "hello")
	assert.ErrorIs(t, err, gemini.ErrEmptyEmbedding)
	assert.Equal(t, int32(1), calls.Load())
}
