package execution

import (
	"context"
	"log/slog"

	"github.com/jack-wz/utest/internal/apperr"
	"github.com/jack-wz/utest/internal/engine"
	"github.com/jack-wz/utest/internal/vector"
)

type Service struct {
	repo        Repository
	engine      Engine
	workflows   WorkflowSource
	vectors     vector.Store
	storageType string
}

func NewService(repo Repository, eng Engine, workflows WorkflowSource, vectors vector.Store, storageType string) *Service {
	return &Service{repo: repo, engine: eng, workflows: workflows, vectors: vectors, storageType: storageType}
}

func (s *Service) Get(ctx context.Context, id string) (*engine.Execution, error) {
	return s.repo.Get(ctx, id)
}

// List returns executions newest first, optionally narrowed to one workflow.
func (s *Service) List(ctx context.Context, workflowID string) ([]engine.Execution, error) {
	return s.repo.List(ctx, workflowID)
}

func (s *Service) Cancel(ctx context.Context, id string) error {
	return s.engine.Cancel(ctx, id)
}

// Retry starts a new execution of the workflow behind a failed one. Only
// retryable failures are retried unless force is set.
func (s *Service) Retry(ctx context.Context, id string, force bool) (string, error) {
	prev, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if prev.Status != engine.StatusFailed {
		return "", apperr.Validation("execution %s is %s, only failed executions can be retried", id, prev.Status)
	}
	if !prev.Retryable && !force {
		return "", apperr.Validation("execution %s failed with a non-retryable error", id)
	}

	w, err := s.workflows.Get(ctx, prev.WorkflowID)
	if err != nil {
		return "", err
	}
	newID, err := s.engine.Start(ctx, w)
	if err != nil {
		return "", err
	}
	slog.InfoContext(ctx, "execution retried", "previous_execution_id", id, "execution_id", newID, "forced", force)
	return newID, nil
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	workflows, err := s.workflows.Count(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	health := vector.Summarize(ctx, s.vectors, s.storageType)
	if health.Error != "" {
		slog.WarnContext(ctx, "vector store unhealthy", "error", health.Error)
	}
	return &Stats{
		Workflows:     workflows,
		Executions:    counts,
		Collections:   health.Collections,
		StoredVectors: health.TotalDocuments,
		VectorBackend: health.StorageType,
		VectorStatus:  health.Status,
	}, nil
}

// Health reports the vector store summary.
func (s *Service) Health(ctx context.Context) vector.Health {
	return vector.Summarize(ctx, s.vectors, s.storageType)
}
