package engine

import (
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Rank orders statuses along the state machine. Both terminal states share
// the highest rank.
func (s Status) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusRunning:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	}
	return -1
}

// Execution is one tracked run of a workflow.
type Execution struct {
	ID           string     `json:"id"`
	WorkflowID   string     `json:"workflow_id"`
	Status       Status     `json:"status"`
	Progress     int        `json:"progress"`
	Results      *Results   `json:"results,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Retryable    bool       `json:"retryable"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// CanAdvance reports whether next may overwrite stored. Terminal executions
// are final, status never moves back along the state machine and progress
// never decreases. Completion requires progress 100.
func CanAdvance(stored, next *Execution) bool {
	if stored.Status.Terminal() {
		return false
	}
	if next.Status.Rank() < stored.Status.Rank() {
		return false
	}
	if next.Progress < stored.Progress || next.Progress > 100 {
		return false
	}
	if next.Status == StatusCompleted && next.Progress != 100 {
		return false
	}
	return true
}

// StageResult summarizes one executed stage.
type StageResult struct {
	Stage      string         `json:"stage"`
	NodeIDs    []string       `json:"node_ids"`
	Status     string         `json:"status"`
	DurationMS int64          `json:"duration_ms"`
	Details    map[string]any `json:"details,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// SkippedStage records a pipeline stage left out of the plan.
type SkippedStage struct {
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// Results aggregates the stage summaries of a run. It is persisted after
// every stage, so a failed run keeps the work of its earlier stages.
type Results struct {
	Stages            []StageResult  `json:"stages"`
	Skipped           []SkippedStage `json:"skipped,omitempty"`
	ElementsProcessed int            `json:"elements_processed"`
	ChunksCreated     int            `json:"chunks_created"`
	VectorsStored     int            `json:"vectors_stored"`
	DocumentIDs       []string       `json:"document_ids,omitempty"`
	Collection        string         `json:"collection,omitempty"`
	ProcessingSummary string         `json:"processing_summary,omitempty"`
}

func (r *Results) clone() *Results {
	if r == nil {
		return nil
	}
	out := *r
	out.Stages = append([]StageResult(nil), r.Stages...)
	out.Skipped = append([]SkippedStage(nil), r.Skipped...)
	out.DocumentIDs = append([]string(nil), r.DocumentIDs...)
	return &out
}
