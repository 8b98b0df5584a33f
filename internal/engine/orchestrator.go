// Package engine runs workflows: it plans the pipeline stages a workflow
// enables, dispatches each run in the background on a bounded pool and
// records progress and results on the execution as stages finish.
//
// State machine: pending -> running -> completed | failed. Stages of one
// run execute strictly in sequence; separate runs share the pool and the
// vector store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/jack-wz/utest/internal/apperr"
	"github.com/jack-wz/utest/internal/embedding"
	"github.com/jack-wz/utest/internal/extract"
	"github.com/jack-wz/utest/internal/graph"
	"github.com/jack-wz/utest/internal/vector"
)

const DefaultStageTimeout = 5 * time.Minute

// ErrCancelled is recorded on executions stopped through Cancel or Shutdown.
var ErrCancelled = errors.New("execution cancelled")

type Deps struct {
	Executions ExecutionStore
	Documents  DocumentStore
	Extractor  *extract.Extractor
	Encoder    embedding.Encoder
	Vectors    vector.Store
	Notifier   Notifier
}

type Option func(*Orchestrator)

func WithStageTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.stageTimeout = d }
}

func WithPoolSize(n int64) Option {
	return func(o *Orchestrator) { o.scheduler = NewScheduler(n) }
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *Orchestrator) { o.meterProvider = mp }
}

type Orchestrator struct {
	executions ExecutionStore
	documents  DocumentStore
	extractor  *extract.Extractor
	encoder    embedding.Encoder
	vectors    vector.Store
	notifier   Notifier

	scheduler     *Scheduler
	stageTimeout  time.Duration
	meterProvider metric.MeterProvider
	metrics       *metrics
	runners       map[string]stageFunc
	now           func() time.Time
}

func New(deps Deps, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		executions:   deps.Executions,
		documents:    deps.Documents,
		extractor:    deps.Extractor,
		encoder:      deps.Encoder,
		vectors:      deps.Vectors,
		notifier:     deps.Notifier,
		scheduler:    NewScheduler(4),
		stageTimeout: DefaultStageTimeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.executions == nil || o.documents == nil || o.extractor == nil || o.vectors == nil {
		return nil, fmt.Errorf("engine: executions, documents, extractor and vectors are required")
	}
	if o.encoder == nil {
		o.encoder = embedding.HashEncoder{}
	}
	if o.notifier == nil {
		o.notifier = nopNotifier{}
	}
	if o.meterProvider == nil {
		o.meterProvider = otel.GetMeterProvider()
	}
	m, err := newMetrics(o.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("engine metrics: %w", err)
	}
	o.metrics = m
	o.runners = map[string]stageFunc{
		StageExtraction:    o.runExtraction,
		StageCleaning:      o.runCleaning,
		StageChunking:      o.runChunking,
		StageEmbedding:     o.runEmbedding,
		StageVectorStorage: o.runVectorStorage,
	}
	return o, nil
}

// Start validates w, records a pending execution and dispatches the run. It
// returns the execution id without waiting for any stage.
func (o *Orchestrator) Start(ctx context.Context, w *graph.Workflow) (string, error) {
	if err := graph.Validate(w); err != nil {
		return "", err
	}

	now := o.now()
	exec := &Execution{
		ID:         uuid.NewString(),
		WorkflowID: w.ID,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := o.executions.Create(ctx, exec); err != nil {
		return "", fmt.Errorf("create execution: %w", err)
	}

	// exec belongs to the run goroutine once dispatched.
	id := exec.ID

	// The run outlives the request but keeps its values (correlation id).
	runCtx := context.WithoutCancel(ctx)
	wf := snapshot(w)
	if _, err := o.scheduler.Go(runCtx, id, func(ctx context.Context) error {
		return o.run(ctx, wf, exec)
	}); err != nil {
		o.finish(runCtx, exec, nil, err)
		return "", err
	}

	slog.InfoContext(ctx, "execution started", "execution_id", id, "workflow_id", w.ID)
	return id, nil
}

// Status returns the stored state of an execution.
func (o *Orchestrator) Status(ctx context.Context, id string) (*Execution, error) {
	return o.executions.Get(ctx, id)
}

// Cancel stops an in-flight execution. The run records FAILED with
// ErrCancelled once its current stage returns.
func (o *Orchestrator) Cancel(ctx context.Context, id string) error {
	if t, ok := o.scheduler.Task(id); ok {
		t.Cancel()
		slog.InfoContext(ctx, "execution cancel requested", "execution_id", id)
		return nil
	}
	exec, err := o.executions.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("execution %s is %s: %w", id, exec.Status, apperr.ErrStale)
}

// Wait blocks until the execution finishes or ctx ends and returns its
// stored state.
func (o *Orchestrator) Wait(ctx context.Context, id string) (*Execution, error) {
	if t, ok := o.scheduler.Task(id); ok {
		select {
		case <-t.Done():
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return o.executions.Get(ctx, id)
}

// Shutdown stops accepting runs and waits for in-flight ones, cancelling
// them when ctx ends first.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	return o.scheduler.Shutdown(ctx)
}

func (o *Orchestrator) run(ctx context.Context, w *graph.Workflow, exec *Execution) error {
	plan := BuildPlan(w)
	st := &runState{workflow: w, executionID: exec.ID}
	results := &Results{Stages: []StageResult{}, Skipped: plan.Skipped}

	o.advance(ctx, exec, StatusRunning, ProgressStarted, results)
	o.notify(ctx, exec)
	slog.InfoContext(ctx, "execution running", "execution_id", exec.ID, "stages", plan.Names())

	for _, step := range plan.Steps {
		started := time.Now()
		details, err := o.runStage(ctx, step, st)
		elapsed := time.Since(started)

		sr := StageResult{
			Stage:      step.Name,
			NodeIDs:    nodeIDs(step.Nodes),
			DurationMS: elapsed.Milliseconds(),
			Details:    details,
		}
		if err != nil {
			sr.Status = "failed"
			sr.Error = err.Error()
			results.Stages = append(results.Stages, sr)
			o.metrics.stage(ctx, step.Name, "failed", elapsed)
			slog.ErrorContext(ctx, "stage failed", "execution_id", exec.ID, "stage", step.Name, "error", err)
			o.finish(ctx, exec, results, err)
			return err
		}

		sr.Status = "completed"
		results.Stages = append(results.Stages, sr)
		st.totals(results)
		o.metrics.stage(ctx, step.Name, "completed", elapsed)
		slog.InfoContext(ctx, "stage completed", "execution_id", exec.ID, "stage", step.Name, "duration_ms", sr.DurationMS)
		o.advance(ctx, exec, StatusRunning, step.Milestone, results)
	}

	results.ProcessingSummary = fmt.Sprintf("processed %d elements into %d chunks and stored %d vectors",
		results.ElementsProcessed, results.ChunksCreated, results.VectorsStored)
	o.finish(ctx, exec, results, nil)
	return nil
}

// runStage executes one step on the pool under the stage deadline and maps
// deadline and cancellation to their error kinds.
func (o *Orchestrator) runStage(ctx context.Context, step Step, st *runState) (map[string]any, error) {
	runner, ok := o.runners[step.Name]
	if !ok {
		return nil, &apperr.ProcessingError{Stage: step.Name, Err: errors.New("no runner registered")}
	}

	stageCtx, cancel := context.WithTimeout(ctx, o.stageTimeout)
	defer cancel()

	var details map[string]any
	err := o.scheduler.Do(stageCtx, func(ctx context.Context) error {
		var err error
		details, err = runner(ctx, step, st)
		return err
	})
	switch {
	case err == nil:
		return details, nil
	case ctx.Err() != nil:
		return nil, ErrCancelled
	case errors.Is(err, context.DeadlineExceeded) && stageCtx.Err() != nil:
		return nil, &apperr.TimeoutError{Stage: step.Name, After: o.stageTimeout.String()}
	case errors.Is(err, apperr.ErrProcessing):
		return nil, err
	default:
		return nil, &apperr.ProcessingError{Stage: step.Name, Err: err}
	}
}

// advance writes a non-terminal transition. Stale writes are dropped.
func (o *Orchestrator) advance(ctx context.Context, exec *Execution, status Status, progress int, results *Results) {
	next := *exec
	next.Status = status
	next.Progress = max(progress, exec.Progress)
	next.Results = results.clone()
	next.UpdatedAt = o.now()
	o.write(ctx, exec, &next)
}

// finish writes the terminal transition: completed with progress 100 when
// err is nil, failed with the error message otherwise. Results gathered so
// far are kept either way.
func (o *Orchestrator) finish(ctx context.Context, exec *Execution, results *Results, err error) {
	next := *exec
	now := o.now()
	next.UpdatedAt = now
	next.CompletedAt = &now
	next.Results = results.clone()
	if err == nil {
		next.Status = StatusCompleted
		next.Progress = ProgressCompleted
	} else {
		next.Status = StatusFailed
		next.ErrorMessage = err.Error()
		next.Retryable = apperr.Retryable(err)
	}

	if o.write(ctx, exec, &next) {
		o.metrics.finished(ctx, next.Status)
		o.notify(ctx, exec)
		slog.InfoContext(ctx, "execution finished", "execution_id", exec.ID, "status", exec.Status, "error", exec.ErrorMessage)
	}
}

func (o *Orchestrator) write(ctx context.Context, exec, next *Execution) bool {
	// Bookkeeping must land even when the run itself was cancelled.
	ctx = context.WithoutCancel(ctx)
	if err := o.executions.Update(ctx, next); err != nil {
		if errors.Is(err, apperr.ErrStale) {
			slog.WarnContext(ctx, "stale execution update rejected", "execution_id", exec.ID, "status", next.Status, "progress", next.Progress)
		} else {
			slog.ErrorContext(ctx, "failed to update execution", "execution_id", exec.ID, "error", err)
		}
		return false
	}
	*exec = *next
	return true
}

func (o *Orchestrator) notify(ctx context.Context, exec *Execution) {
	ctx = context.WithoutCancel(ctx)
	err := o.notifier.Notify(ctx, Event{
		ExecutionID:  exec.ID,
		WorkflowID:   exec.WorkflowID,
		Status:       exec.Status,
		Progress:     exec.Progress,
		ErrorMessage: exec.ErrorMessage,
		Timestamp:    o.now(),
	})
	if err != nil {
		slog.WarnContext(ctx, "failed to publish execution event", "execution_id", exec.ID, "error", err)
	}
}

func snapshot(w *graph.Workflow) *graph.Workflow {
	cp := *w
	cp.Nodes = append([]graph.Node(nil), w.Nodes...)
	cp.Edges = append([]graph.Edge(nil), w.Edges...)
	return &cp
}

func nodeIDs(nodes []graph.Node) []string {
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	return ids
}
