package engine

import (
	"context"
	"time"

	"github.com/jack-wz/utest/internal/document"
)

// ExecutionStore persists executions. Update must reject, with an error
// wrapping apperr.ErrStale, any write for which CanAdvance(stored, next)
// is false.
type ExecutionStore interface {
	Create(ctx context.Context, e *Execution) error
	Get(ctx context.Context, id string) (*Execution, error)
	Update(ctx context.Context, e *Execution) error
}

// DocumentStore persists the documents and chunks produced by a run.
// SaveDocument upserts by id. SaveChunks makes the given chunks the current
// set of a document, upserting them by id. Chunks left out are marked
// superseded, never removed.
type DocumentStore interface {
	SaveDocument(ctx context.Context, doc *document.ProcessedDocument) error
	SaveChunks(ctx context.Context, documentID string, chunks []document.Chunk) error
}

// Event is a lifecycle notification for one execution.
type Event struct {
	ExecutionID  string    `json:"execution_id"`
	WorkflowID   string    `json:"workflow_id"`
	Status       Status    `json:"status"`
	Progress     int       `json:"progress"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Notifier publishes lifecycle events. Failures are logged, never fatal.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) error { return nil }
