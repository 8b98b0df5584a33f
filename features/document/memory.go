package document

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/jack-wz/utest/internal/apperr"
	"github.com/jack-wz/utest/internal/document"
)

// MemoryRepo keeps documents and chunks in process. Values are copied in
// and out.
type MemoryRepo struct {
	mu        sync.RWMutex
	documents map[string]*document.ProcessedDocument
	chunks    map[string]*document.Chunk
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		documents: make(map[string]*document.ProcessedDocument),
		chunks:    make(map[string]*document.Chunk),
	}
}

func (r *MemoryRepo) SaveDocument(ctx context.Context, doc *document.ProcessedDocument) error {
	var cp document.ProcessedDocument
	if err := copyJSON(doc, &cp); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.documents[doc.ID] = &cp
	return nil
}

func (r *MemoryRepo) GetDocument(ctx context.Context, id string) (*document.ProcessedDocument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.documents[id]
	if !ok {
		return nil, apperr.NotFound("document", id)
	}
	var cp document.ProcessedDocument
	if err := copyJSON(doc, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (r *MemoryRepo) SaveChunks(ctx context.Context, documentID string, chunks []document.Chunk) error {
	copies := make([]*document.Chunk, len(chunks))
	keep := make(map[string]bool, len(chunks))
	for i := range chunks {
		var cp document.Chunk
		if err := copyJSON(&chunks[i], &cp); err != nil {
			return err
		}
		cp.DocumentID = documentID
		cp.Superseded = false
		copies[i] = &cp
		keep[cp.ID] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.chunks {
		if c.DocumentID == documentID && !keep[id] {
			c.Superseded = true
		}
	}
	for _, c := range copies {
		r.chunks[c.ID] = c
	}
	return nil
}

func (r *MemoryRepo) GetChunk(ctx context.Context, id string) (*document.Chunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.chunks[id]
	if !ok {
		return nil, apperr.NotFound("chunk", id)
	}
	var cp document.Chunk
	if err := copyJSON(c, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (r *MemoryRepo) ListChunks(ctx context.Context, documentID string) ([]document.Chunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []document.Chunk
	for _, c := range r.chunks {
		if c.DocumentID != documentID || c.Superseded {
			continue
		}
		var cp document.Chunk
		if err := copyJSON(c, &cp); err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

// UpdateChunk holds the write lock while fn runs.
func (r *MemoryRepo) UpdateChunk(ctx context.Context, id string, fn func(*document.Chunk) error) (*document.Chunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.chunks[id]
	if !ok {
		return nil, apperr.NotFound("chunk", id)
	}
	var work document.Chunk
	if err := copyJSON(stored, &work); err != nil {
		return nil, err
	}
	if err := fn(&work); err != nil {
		return nil, err
	}
	var keep, out document.Chunk
	if err := copyJSON(&work, &keep); err != nil {
		return nil, err
	}
	if err := copyJSON(&work, &out); err != nil {
		return nil, err
	}
	r.chunks[id] = &keep
	return &out, nil
}

func copyJSON(in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
