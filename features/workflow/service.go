package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jack-wz/utest/internal/apperr"
	"github.com/jack-wz/utest/internal/graph"
)

type Service struct {
	repo   Repository
	runner Runner
	now    func() time.Time
}

func NewService(repo Repository, runner Runner) *Service {
	return &Service{repo: repo, runner: runner, now: func() time.Time { return time.Now().UTC() }}
}

// Create validates the graph and stores it under a new id.
func (s *Service) Create(ctx context.Context, req Request) (*graph.Workflow, error) {
	now := s.now()
	w := &graph.Workflow{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		Nodes:       req.Nodes,
		Edges:       req.Edges,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.prepare(w); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, w); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "workflow created", "workflow_id", w.ID, "nodes", len(w.Nodes), "hash", w.Hash)
	return w, nil
}

// Update replaces the name, description and graph of an existing workflow.
func (s *Service) Update(ctx context.Context, id string, req Request) (*graph.Workflow, error) {
	w, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	w.Name = req.Name
	w.Description = req.Description
	w.Nodes = req.Nodes
	w.Edges = req.Edges
	w.UpdatedAt = s.now()
	if err := s.prepare(w); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, w); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "workflow updated", "workflow_id", w.ID, "hash", w.Hash)
	return w, nil
}

func (s *Service) Get(ctx context.Context, id string) (*graph.Workflow, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]graph.Workflow, error) {
	return s.repo.List(ctx)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Run loads the stored workflow and starts a run of it.
func (s *Service) Run(ctx context.Context, id string) (string, error) {
	w, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return s.runner.Start(ctx, w)
}

func (s *Service) prepare(w *graph.Workflow) error {
	if w.Name == "" {
		return &apperr.ValidationError{Field: "name", Msg: "is required"}
	}
	if err := graph.Validate(w); err != nil {
		return err
	}
	hash, err := graph.Hash(w)
	if err != nil {
		return err
	}
	w.Hash = hash
	return nil
}
