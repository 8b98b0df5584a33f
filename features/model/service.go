package model

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jack-wz/utest/internal/apperr"
	"github.com/jack-wz/utest/internal/embedding"
)

var validTypes = map[string]bool{TypeEmbedding: true, TypeLLM: true, TypeOCR: true}

type Service struct {
	repo     Repository
	encoders Registrar
	now      func() time.Time
}

// NewService returns a model service. A nil encoders keeps models as records
// only.
func NewService(repo Repository, encoders Registrar) *Service {
	return &Service{repo: repo, encoders: encoders, now: func() time.Time { return time.Now().UTC() }}
}

// Create validates and stores a model. Embedding models are installed in the
// encoder registry before Create returns.
func (s *Service) Create(ctx context.Context, req Request) (*Model, error) {
	m := &Model{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Type:      req.Type,
		Provider:  req.Provider,
		Config:    req.Config,
		CreatedAt: s.now(),
	}
	if m.Config == nil {
		m.Config = map[string]any{}
	}
	if err := validate(m); err != nil {
		return nil, err
	}
	enc, err := s.encoderFor(m)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, m); err != nil {
		return nil, err
	}
	if enc != nil {
		s.encoders.Register(m.Name, enc)
	}
	slog.InfoContext(ctx, "model registered", "model_id", m.ID, "name", m.Name, "type", m.Type, "provider", m.Provider)
	return m, nil
}

func (s *Service) List(ctx context.Context) ([]Model, error) {
	return s.repo.List(ctx)
}

// Restore installs every stored embedding model, oldest first, so a later
// model wins a name clash.
func (s *Service) Restore(ctx context.Context) error {
	models, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	restored := 0
	for i := len(models) - 1; i >= 0; i-- {
		m := &models[i]
		enc, err := s.encoderFor(m)
		if err != nil {
			slog.WarnContext(ctx, "skipping stored model", "model_id", m.ID, "name", m.Name, "error", err)
			continue
		}
		if enc != nil {
			s.encoders.Register(m.Name, enc)
			restored++
		}
	}
	slog.InfoContext(ctx, "models restored", "embedding_models", restored, "total", len(models))
	return nil
}

// encoderFor returns nil for models that do not embed. A provider already
// served by the registry is reused under the model name; anything else gets
// a hash encoder of the configured or provider default dimensionality.
func (s *Service) encoderFor(m *Model) (embedding.Encoder, error) {
	if m.Type != TypeEmbedding || s.encoders == nil {
		return nil, nil
	}
	dim, set, err := dimensions(m.Config)
	if err != nil {
		return nil, err
	}
	if !set {
		if enc, ok := s.encoders.Lookup(m.Provider); ok {
			return enc, nil
		}
		dim = embedding.Dimensions(m.Provider)
	}
	return embedding.SizedEncoder{Dim: dim}, nil
}

func validate(m *Model) error {
	if m.Name == "" {
		return &apperr.ValidationError{Field: "name", Msg: "is required"}
	}
	if !validTypes[m.Type] {
		return &apperr.ValidationError{Field: "type", Msg: fmt.Sprintf("unknown model type %q", m.Type)}
	}
	if m.Provider == "" {
		return &apperr.ValidationError{Field: "provider", Msg: "is required"}
	}
	if _, _, err := dimensions(m.Config); err != nil {
		return err
	}
	return nil
}

func dimensions(cfg map[string]any) (int, bool, error) {
	v, ok := cfg["dimensions"]
	if !ok {
		return 0, false, nil
	}
	var n int
	switch d := v.(type) {
	case int:
		n = d
	case int64:
		n = int(d)
	case float64:
		if d != float64(int(d)) {
			return 0, false, &apperr.ValidationError{Field: "config.dimensions", Msg: "must be a whole number"}
		}
		n = int(d)
	default:
		return 0, false, &apperr.ValidationError{Field: "config.dimensions", Msg: "must be a number"}
	}
	if n <= 0 {
		return 0, false, &apperr.ValidationError{Field: "config.dimensions", Msg: "must be positive"}
	}
	return n, true, nil
}
