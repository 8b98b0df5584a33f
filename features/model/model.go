package model

import (
	"context"
	"time"

	"github.com/jack-wz/utest/internal/embedding"
)

const (
	TypeEmbedding = "embedding"
	TypeLLM       = "llm"
	TypeOCR       = "ocr"
)

// Model is a named provider configuration. Embedding models become
// selectable as the provider of an embedding node under their name.
type Model struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Type      string         `json:"type"`
	Provider  string         `json:"provider"`
	Config    map[string]any `json:"config"`
	CreatedAt time.Time      `json:"created_at"`
}

type Request struct {
	Name     string         `json:"name"`
	Type     string         `json:"type"`
	Provider string         `json:"provider"`
	Config   map[string]any `json:"config"`
}

type Repository interface {
	Save(ctx context.Context, m *Model) error
	List(ctx context.Context) ([]Model, error)
}

// Registrar is the encoder registry embedding models are installed into.
type Registrar interface {
	Register(provider string, enc embedding.Encoder)
	Lookup(provider string) (embedding.Encoder, bool)
}
