package execution

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/jack-wz/utest/internal/apperr"
	"github.com/jack-wz/utest/internal/engine"
	"github.com/jack-wz/utest/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	exec, err := h.service.Get(ctx, id)
	if err != nil {
		h.fail(ctx, w, "failed to get execution", err)
		return
	}
	h.writeData(ctx, w, http.StatusOK, exec)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workflowID := r.URL.Query().Get("workflow_id")

	executions, err := h.service.List(ctx, workflowID)
	if err != nil {
		h.fail(ctx, w, "failed to list executions", err)
		return
	}
	if executions == nil {
		executions = []engine.Execution{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": executions,
		"meta": map[string]int{"count": len(executions)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	force := r.URL.Query().Get("force") == "true"

	slog.InfoContext(ctx, "retrying execution", "execution_id", id, "force", force)

	newID, err := h.service.Retry(ctx, id, force)
	if err != nil {
		h.fail(ctx, w, "failed to retry execution", err)
		return
	}
	h.writeData(ctx, w, http.StatusAccepted, map[string]string{
		"execution_id":          newID,
		"previous_execution_id": id,
		"status":                string(engine.StatusPending),
	})
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	if err := h.service.Cancel(ctx, id); err != nil {
		h.fail(ctx, w, "failed to cancel execution", err)
		return
	}
	h.writeData(ctx, w, http.StatusAccepted, "execution cancel requested")
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slog.InfoContext(ctx, "getting stats")

	stats, err := h.service.Stats(ctx)
	if err != nil {
		h.fail(ctx, w, "failed to get stats", err)
		return
	}
	h.writeData(ctx, w, http.StatusOK, stats)
}

// Health answers 503 when the vector store cannot be listed.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	health := h.service.Health(ctx)
	status := http.StatusOK
	if health.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	h.writeData(ctx, w, status, health)
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
