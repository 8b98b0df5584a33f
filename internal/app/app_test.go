package app

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jack-wz/utest/internal/config"
	"github.com/jack-wz/utest/internal/embedding"
	"github.com/jack-wz/utest/internal/telemetry"
	"github.com/jack-wz/utest/internal/vector"
)

func testConfig() *config.Config {
	return &config.Config{
		StoreBackend:        config.BackendMemory,
		VectorBackend:       config.BackendMemory,
		WorkerPoolSize:      2,
		StageTimeoutSeconds: 10,
		ServerPort:          0,
		MaxUploadSizeMB:     1,
		UploadDir:           "/uploads",
	}
}

func newTestApp(t *testing.T) (*App, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/uploads/manual.txt", []byte(strings.Repeat("b", 2500)), 0o644))

	a, err := New(testConfig(), &Dependencies{
		Vectors: vector.NewMemoryStore(),
		Encoder: embedding.NewRouter(nil),
		Fs:      fsys,
		Meters:  telemetry.NewMeters(false),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = a.Orchestrator.Shutdown(ctx)
	})
	return a, fsys
}

func do(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w, resp
}

func TestNew(t *testing.T) {
	a, _ := newTestApp(t)
	assert.NotNil(t, a.Handler)
	assert.NotNil(t, a.Orchestrator)
	assert.NotNil(t, a.RunConsumer)

	w, resp := do(t, a.Handler, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
	data := resp["data"].(map[string]any)
	assert.Equal(t, "healthy", data["status"])
	assert.Equal(t, config.BackendMemory, data["storage_type"])
}

func TestApp_WorkflowRunEndToEnd(t *testing.T) {
	a, _ := newTestApp(t)

	w, resp := do(t, a.Handler, http.MethodPost, "/workflows", map[string]any{
		"name": "manuals",
		"nodes": []map[string]any{
			{"id": "src", "type": "datasource", "data": map[string]any{"file_path": "manual.txt", "strategy": "auto"}},
			{"id": "chunk", "type": "chunking", "data": map[string]any{"chunk_size": 1000}},
			{"id": "emb", "type": "embedding", "data": map[string]any{"provider": "bedrock"}},
			{"id": "vec", "type": "connector", "data": map[string]any{"collection_name": "manuals"}},
		},
		"edges": []map[string]any{
			{"id": "e1", "source": "src", "target": "chunk"},
			{"id": "e2", "source": "chunk", "target": "emb"},
			{"id": "e3", "source": "emb", "target": "vec"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	wfID := resp["data"].(map[string]any)["id"].(string)
	require.NotEmpty(t, wfID)

	w, resp = do(t, a.Handler, http.MethodPost, "/workflows/"+wfID+"/run", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	execID := resp["data"].(map[string]any)["execution_id"].(string)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := a.Orchestrator.Wait(ctx, execID)
	require.NoError(t, err)

	w, resp = do(t, a.Handler, http.MethodGet, "/executions/"+execID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	exec := resp["data"].(map[string]any)
	assert.Equal(t, "completed", exec["status"])
	assert.EqualValues(t, 100, exec["progress"])

	w, resp = do(t, a.Handler, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := resp["data"].(map[string]any)
	assert.EqualValues(t, 1, stats["workflows"])
	assert.EqualValues(t, 1, stats["collections"])
	assert.EqualValues(t, 3, stats["stored_vectors"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var metrics struct {
		Data []telemetry.Point `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metrics))
	assert.Equal(t, 1.0, telemetry.Value(metrics.Data, "engine.executions", map[string]string{"status": "completed"}))
	assert.Equal(t, 3.0, telemetry.Value(metrics.Data, "engine.vectors.stored", nil))
	assert.Equal(t, 4.0, telemetry.Value(metrics.Data, "engine.stage.runs", map[string]string{"outcome": "completed"}))

	w, _ = do(t, a.Handler, http.MethodPost, "/executions/"+execID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestApp_ProcessAndChunkDocument(t *testing.T) {
	a, _ := newTestApp(t)

	w, resp := do(t, a.Handler, http.MethodPost, "/documents/process", map[string]any{
		"file_path": "manual.txt",
		"strategy":  "fast",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	docID := resp["data"].(map[string]any)["id"].(string)

	w, resp = do(t, a.Handler, http.MethodPost, "/documents/"+docID+"/chunks", map[string]any{
		"strategy":   "fixed_size",
		"chunk_size": 1500,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	chunks := resp["data"].([]any)
	require.Len(t, chunks, 2)

	chunkID := chunks[0].(map[string]any)["chunk_id"].(string)
	w, resp = do(t, a.Handler, http.MethodPut, "/chunks/"+chunkID, map[string]any{"text": "edited", "reason": "typo"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, resp["data"].(map[string]any)["is_edited"])

	w, _ = do(t, a.Handler, http.MethodGet, "/documents/"+docID+"/visualization", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, a.Handler, http.MethodGet, "/documents/"+docID+"/comparison", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestApp_UploadThenRun_RelativeUploadDir(t *testing.T) {
	cfg := testConfig()
	cfg.UploadDir = "./uploads"
	a, err := New(cfg, &Dependencies{
		Vectors: vector.NewMemoryStore(),
		Encoder: embedding.NewRouter(nil),
		Fs:      afero.NewMemMapFs(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Orchestrator.Shutdown(context.Background()) })

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "guide.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte(strings.Repeat("g", 1800)))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var uploaded struct {
		Data struct {
			Path string `json:"file_path"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &uploaded))
	require.NotEmpty(t, uploaded.Data.Path)

	w, resp := do(t, a.Handler, http.MethodPost, "/workflows", map[string]any{
		"name": "uploaded",
		"nodes": []map[string]any{
			{"id": "src", "type": "datasource", "data": map[string]any{"file_path": uploaded.Data.Path, "strategy": "fast"}},
			{"id": "chunk", "type": "chunking", "data": map[string]any{"strategy": "fixed_size", "chunk_size": 1500}},
		},
		"edges": []map[string]any{{"id": "e1", "source": "src", "target": "chunk"}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	wfID := resp["data"].(map[string]any)["id"].(string)

	w, resp = do(t, a.Handler, http.MethodPost, "/workflows/"+wfID+"/run", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	execID := resp["data"].(map[string]any)["execution_id"].(string)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exec, err := a.Orchestrator.Wait(ctx, execID)
	require.NoError(t, err)
	assert.Equal(t, "completed", string(exec.Status), exec.ErrorMessage)
	assert.Equal(t, 2, exec.Results.ElementsProcessed)
}

func TestApp_RegisteredModelServesEmbeddingNode(t *testing.T) {
	a, _ := newTestApp(t)

	w, _ := do(t, a.Handler, http.MethodPost, "/models", map[string]any{
		"name": "house-embedder", "type": "embedding", "provider": "local",
		"config": map[string]any{"dimensions": 96},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, resp := do(t, a.Handler, http.MethodGet, "/models", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp["data"].([]any), 1)

	w, resp = do(t, a.Handler, http.MethodPost, "/workflows", map[string]any{
		"name": "custom-model",
		"nodes": []map[string]any{
			{"id": "src", "type": "datasource", "data": map[string]any{"file_path": "manual.txt"}},
			{"id": "emb", "type": "embedding", "data": map[string]any{"provider": "house-embedder"}},
			{"id": "vec", "type": "connector", "data": map[string]any{"collection_name": "house"}},
		},
		"edges": []map[string]any{
			{"id": "e1", "source": "src", "target": "emb"},
			{"id": "e2", "source": "emb", "target": "vec"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	wfID := resp["data"].(map[string]any)["id"].(string)

	w, resp = do(t, a.Handler, http.MethodPost, "/workflows/"+wfID+"/run", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	execID := resp["data"].(map[string]any)["execution_id"].(string)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exec, err := a.Orchestrator.Wait(ctx, execID)
	require.NoError(t, err)
	require.Equal(t, "completed", string(exec.Status), exec.ErrorMessage)
	assert.EqualValues(t, 96, exec.Results.Stages[1].Details["dimensions"])
}

func TestApp_NotFound(t *testing.T) {
	a, _ := newTestApp(t)

	w, resp := do(t, a.Handler, http.MethodGet, "/workflows/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", resp["error"].(map[string]any)["code"])
	assert.NotEmpty(t, resp["correlationId"])
}
