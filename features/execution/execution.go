package execution

import (
	"context"

	"github.com/jack-wz/utest/internal/engine"
	"github.com/jack-wz/utest/internal/graph"
)

type Repository interface {
	engine.ExecutionStore
	List(ctx context.Context, workflowID string) ([]engine.Execution, error)
	CountByStatus(ctx context.Context) (map[engine.Status]int, error)
}

// Engine is the part of the orchestrator the execution API drives.
type Engine interface {
	Start(ctx context.Context, w *graph.Workflow) (string, error)
	Cancel(ctx context.Context, id string) error
}

type WorkflowSource interface {
	Get(ctx context.Context, id string) (*graph.Workflow, error)
	Count(ctx context.Context) (int, error)
}

// Stats is the dashboard summary of the engine.
type Stats struct {
	Workflows     int                   `json:"workflows"`
	Executions    map[engine.Status]int `json:"executions"`
	Collections   int                   `json:"collections"`
	StoredVectors int                   `json:"stored_vectors"`
	VectorBackend string                `json:"vector_backend"`
	VectorStatus  string                `json:"vector_status"`
}
