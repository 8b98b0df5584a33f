package document

import (
	"context"

	"github.com/jack-wz/utest/internal/document"
	"github.com/jack-wz/utest/internal/engine"
	"github.com/jack-wz/utest/internal/graph"
)

type Repository interface {
	engine.DocumentStore
	GetDocument(ctx context.Context, id string) (*document.ProcessedDocument, error)
	GetChunk(ctx context.Context, id string) (*document.Chunk, error)
	ListChunks(ctx context.Context, documentID string) ([]document.Chunk, error)
	// UpdateChunk applies fn to the stored chunk and persists the result
	// atomically with respect to other updates of the same chunk.
	UpdateChunk(ctx context.Context, id string, fn func(*document.Chunk) error) (*document.Chunk, error)
}

type ProcessRequest struct {
	FilePath string                `json:"file_path"`
	Strategy string                `json:"strategy"`
	Metadata graph.MetadataOptions `json:"metadata"`
}

type ChunkRequest struct {
	Strategy     string `json:"strategy"`
	ChunkSize    int    `json:"chunk_size"`
	ContextMerge bool   `json:"context_merge"`
}

type EditRequest struct {
	Text   string `json:"text"`
	Reason string `json:"reason"`
}
