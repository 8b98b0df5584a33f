package workflow

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/jack-wz/utest/internal/apperr"
	"github.com/jack-wz/utest/internal/graph"
	"github.com/jack-wz/utest/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	wf, err := h.service.Create(ctx, req)
	if err != nil {
		h.fail(ctx, w, "failed to create workflow", err)
		return
	}
	h.writeData(ctx, w, http.StatusCreated, wf)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	wf, err := h.service.Update(ctx, id, req)
	if err != nil {
		h.fail(ctx, w, "failed to update workflow", err)
		return
	}
	h.writeData(ctx, w, http.StatusOK, wf)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wf, err := h.service.Get(ctx, r.PathValue("id"))
	if err != nil {
		h.fail(ctx, w, "failed to get workflow", err)
		return
	}
	h.writeData(ctx, w, http.StatusOK, wf)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workflows, err := h.service.List(ctx)
	if err != nil {
		h.fail(ctx, w, "failed to list workflows", err)
		return
	}
	if workflows == nil {
		workflows = []graph.Workflow{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": workflows,
		"meta": map[string]int{"count": len(workflows)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// Run starts an execution and answers 202 with its id.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	execID, err := h.service.Run(ctx, id)
	if err != nil {
		h.fail(ctx, w, "failed to start workflow", err)
		return
	}
	slog.InfoContext(ctx, "workflow run accepted", "workflow_id", id, "execution_id", execID)
	h.writeData(ctx, w, http.StatusAccepted, map[string]string{
		"execution_id": execID,
		"workflow_id":  id,
		"status":       "pending",
	})
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
