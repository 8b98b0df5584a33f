// Package vector stores embedded records in named collections.
//
// Only the ingestion path exists: collections are created and records are
// upserted into them. There is no delete and no similarity search. A
// collection's dimensionality is fixed by the first batch stored into it.
package vector

import (
	"context"
	"fmt"
	"time"

	"github.com/jack-wz/utest/internal/apperr"
)

// Record is one stored vector with its source text.
type Record struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Vector   []float32      `json:"vector"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CollectionInfo summarizes a collection. Dimension is 0 until the first
// batch is stored.
type CollectionInfo struct {
	Name          string    `json:"name"`
	Dimension     int       `json:"dimension"`
	DocumentCount int       `json:"document_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Store is implemented by every vector backend.
type Store interface {
	// CreateCollection is a no-op for an existing collection.
	CreateCollection(ctx context.Context, name string) error
	// Upsert creates the collection on demand and inserts or replaces
	// records by id.
	Upsert(ctx context.Context, name string, records []Record) error
	Collection(ctx context.Context, name string) (*CollectionInfo, error)
	Collections(ctx context.Context) ([]CollectionInfo, error)
}

// Health is the store summary exposed by the health endpoint.
type Health struct {
	Status         string `json:"status"`
	Collections    int    `json:"collections"`
	TotalDocuments int    `json:"total_documents"`
	StorageType    string `json:"storage_type"`
	Error          string `json:"error,omitempty"`
}

// Summarize reports the collection and record totals of s.
func Summarize(ctx context.Context, s Store, storageType string) Health {
	infos, err := s.Collections(ctx)
	if err != nil {
		return Health{Status: "unhealthy", StorageType: storageType, Error: err.Error()}
	}
	h := Health{Status: "healthy", Collections: len(infos), StorageType: storageType}
	for _, info := range infos {
		h.TotalDocuments += info.DocumentCount
	}
	return h
}

// CheckBatch returns the dimension shared by every record of the batch.
func CheckBatch(name string, records []Record) (int, error) {
	dim := 0
	for _, r := range records {
		if r.ID == "" {
			return 0, &apperr.StorageError{Op: "upsert", Err: fmt.Errorf("record without id in collection %q", name)}
		}
		if len(r.Vector) == 0 {
			return 0, &apperr.StorageError{Op: "upsert", Err: fmt.Errorf("record %q has no vector", r.ID)}
		}
		if dim == 0 {
			dim = len(r.Vector)
		} else if len(r.Vector) != dim {
			return 0, &apperr.StorageError{Op: "upsert", Err: fmt.Errorf("mixed dimensions %d and %d in one batch", dim, len(r.Vector))}
		}
	}
	return dim, nil
}

func DimensionMismatch(name string, have, got int) error {
	return &apperr.StorageError{
		Op:  "upsert",
		Err: fmt.Errorf("collection %q has dimension %d, got %d", name, have, got),
	}
}

func validName(name string) error {
	if name == "" {
		return apperr.Validation("collection name is required")
	}
	return nil
}
