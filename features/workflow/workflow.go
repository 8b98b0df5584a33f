package workflow

import (
	"context"

	"github.com/jack-wz/utest/internal/graph"
)

type Repository interface {
	Save(ctx context.Context, w *graph.Workflow) error
	Update(ctx context.Context, w *graph.Workflow) error
	Get(ctx context.Context, id string) (*graph.Workflow, error)
	List(ctx context.Context) ([]graph.Workflow, error)
	Count(ctx context.Context) (int, error)
}

// Runner starts an asynchronous run of a workflow and returns its execution id.
type Runner interface {
	Start(ctx context.Context, w *graph.Workflow) (string, error)
}

// Request is the create/update payload.
type Request struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Nodes       []graph.Node `json:"nodes"`
	Edges       []graph.Edge `json:"edges"`
}
