package document

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/jack-wz/utest/internal/apperr"
	"github.com/jack-wz/utest/internal/document"
	"github.com/jack-wz/utest/internal/middleware"
)

type Handler struct {
	service       *Service
	maxUploadSize int64
}

func NewHandler(service *Service, maxUploadSizeMB int64) *Handler {
	if maxUploadSizeMB <= 0 {
		maxUploadSizeMB = 50
	}
	return &Handler{service: service, maxUploadSize: maxUploadSizeMB << 20}
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		h.writeError(ctx, w, "BAD_REQUEST", "File too large", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(ctx, w, "BAD_REQUEST", "Unable to retrieve file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	obj, err := h.service.Upload(ctx, header.Filename, file)
	if err != nil {
		h.fail(ctx, w, "failed to store upload", err)
		return
	}
	h.writeData(ctx, w, http.StatusCreated, obj)
}

func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	doc, err := h.service.Process(ctx, req)
	if err != nil {
		h.fail(ctx, w, "failed to process document", err)
		return
	}
	h.writeData(ctx, w, http.StatusCreated, doc)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doc, err := h.service.GetDocument(ctx, r.PathValue("id"))
	if err != nil {
		h.fail(ctx, w, "failed to get document", err)
		return
	}
	h.writeData(ctx, w, http.StatusOK, doc)
}

func (h *Handler) Chunk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ChunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	chunks, err := h.service.Chunk(ctx, r.PathValue("id"), req)
	if err != nil {
		h.fail(ctx, w, "failed to chunk document", err)
		return
	}
	h.writeList(ctx, w, http.StatusCreated, chunks)
}

func (h *Handler) ListChunks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chunks, err := h.service.ListChunks(ctx, r.PathValue("id"))
	if err != nil {
		h.fail(ctx, w, "failed to list chunks", err)
		return
	}
	h.writeList(ctx, w, http.StatusOK, chunks)
}

func (h *Handler) EditChunk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req EditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	c, err := h.service.EditChunk(ctx, r.PathValue("id"), req)
	if err != nil {
		h.fail(ctx, w, "failed to edit chunk", err)
		return
	}
	h.writeData(ctx, w, http.StatusOK, c)
}

func (h *Handler) Visualize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v, err := h.service.Visualize(ctx, r.PathValue("id"))
	if err != nil {
		h.fail(ctx, w, "failed to visualize document", err)
		return
	}
	h.writeData(ctx, w, http.StatusOK, v)
}

func (h *Handler) Compare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := h.service.Compare(ctx, r.PathValue("id"))
	if err != nil {
		h.fail(ctx, w, "failed to compare document", err)
		return
	}
	h.writeData(ctx, w, http.StatusOK, c)
}

func (h *Handler) writeList(ctx context.Context, w http.ResponseWriter, status int, chunks []document.Chunk) {
	if chunks == nil {
		chunks = []document.Chunk{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := map[string]interface{}{
		"data": chunks,
		"meta": map[string]int{"count": len(chunks)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, msg, "error", err)
	} else {
		slog.WarnContext(ctx, msg, "error", err)
	}
	h.writeError(ctx, w, apperr.Code(err), err.Error(), status)
}

func (h *Handler) writeData(ctx context.Context, w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": data}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
