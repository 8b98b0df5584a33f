package worker

import (
	"time"

	"github.com/jack-wz/utest/internal/engine"
)

// RunPayload asks the engine to run a stored workflow.
type RunPayload struct {
	WorkflowID    string `json:"workflow_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// ExecutionEvent is published on every execution lifecycle transition.
type ExecutionEvent struct {
	ExecutionID   string        `json:"execution_id"`
	WorkflowID    string        `json:"workflow_id"`
	Status        engine.Status `json:"status"`
	Progress      int           `json:"progress"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
	CorrelationID string        `json:"correlation_id,omitempty"`
}
