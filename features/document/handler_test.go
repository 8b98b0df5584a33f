package document_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docs "github.com/jack-wz/utest/features/document"
)

func multipartBody(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestHandler_Upload(t *testing.T) {
	svc, _ := newService(t, nil)
	h := docs.NewHandler(svc, 1)

	body, contentType := multipartBody(t, "notes.txt", "hello world")
	req := httptest.NewRequest(http.MethodPost, "/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.Upload(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"filename":"notes.txt"`)

	body, contentType = multipartBody(t, "tool.exe", "MZ")
	req = httptest.NewRequest(http.MethodPost, "/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec = httptest.NewRecorder()
	h.Upload(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_ProcessChunkEdit(t *testing.T) {
	svc, _ := newService(t, map[string]string{"doc.txt": strings.Repeat("z", 3000)})
	h := docs.NewHandler(svc, 0)

	rec := httptest.NewRecorder()
	h.Process(rec, httptest.NewRequest(http.MethodPost, "/documents/process", strings.NewReader(`{"file_path":"doc.txt","strategy":"fast"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var processed struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &processed))
	docID := processed.Data.ID

	req := httptest.NewRequest(http.MethodPost, "/documents/"+docID+"/chunks", strings.NewReader(`{"strategy":"fixed_size","chunk_size":1500}`))
	req.SetPathValue("id", docID)
	rec = httptest.NewRecorder()
	h.Chunk(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var chunked struct {
		Data []struct {
			ID string `json:"chunk_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chunked))
	require.Len(t, chunked.Data, 2)

	req = httptest.NewRequest(http.MethodPut, "/chunks/"+chunked.Data[0].ID, strings.NewReader(`{"text":"rewritten","reason":"review"}`))
	req.SetPathValue("id", chunked.Data[0].ID)
	rec = httptest.NewRecorder()
	h.EditChunk(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"is_edited":true`)

	req = httptest.NewRequest(http.MethodGet, "/documents/"+docID+"/visualization", nil)
	req.SetPathValue("id", docID)
	rec = httptest.NewRecorder()
	h.Visualize(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "original_layout")
}

func TestHandler_NotFound(t *testing.T) {
	svc, _ := newService(t, nil)
	h := docs.NewHandler(svc, 0)

	req := httptest.NewRequest(http.MethodGet, "/documents/missing/comparison", nil)
	req = req.WithContext(context.Background())
	req.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()
	h.Compare(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")
}
