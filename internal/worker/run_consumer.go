package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"github.com/jack-wz/utest/internal/apperr"
	"github.com/jack-wz/utest/internal/graph"
	"github.com/jack-wz/utest/internal/middleware"
)

type WorkflowGetter interface {
	Get(ctx context.Context, id string) (*graph.Workflow, error)
}

type Runner interface {
	Start(ctx context.Context, w *graph.Workflow) (string, error)
}

// RunConsumer starts a run for each workflow.run message. Messages that can
// never succeed are dropped; storage failures are requeued by NSQ.
type RunConsumer struct {
	workflows WorkflowGetter
	runner    Runner
	timeout   time.Duration
}

func NewRunConsumer(w WorkflowGetter, r Runner) *RunConsumer {
	return &RunConsumer{workflows: w, runner: r, timeout: 30 * time.Second}
}

func (h *RunConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload RunPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		// Poison Pill: Invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}

	correlationID := payload.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	if payload.WorkflowID == "" {
		slog.ErrorContext(ctx, "missing workflow_id, dropping")
		return nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	w, err := h.workflows.Get(lookupCtx, payload.WorkflowID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			slog.WarnContext(ctx, "workflow not found, dropping run request", "workflow_id", payload.WorkflowID)
			return nil
		}
		slog.ErrorContext(ctx, "failed to load workflow", "workflow_id", payload.WorkflowID, "error", err)
		return err
	}

	// The run is detached from lookupCtx inside Start; only the values carry over.
	execID, err := h.runner.Start(lookupCtx, w)
	if err != nil {
		if errors.Is(err, apperr.ErrValidation) {
			slog.ErrorContext(ctx, "invalid workflow, dropping run request", "workflow_id", w.ID, "error", err)
			return nil
		}
		slog.ErrorContext(ctx, "failed to start workflow", "workflow_id", w.ID, "error", err)
		return err
	}

	slog.InfoContext(ctx, "workflow run started from queue", "workflow_id", w.ID, "execution_id", execID, "attempts", m.Attempts)
	return nil
}
