package workflow

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/jack-wz/utest/internal/apperr"
	"github.com/jack-wz/utest/internal/graph"
)

// MemoryRepo keeps workflows in process. Stored values are deep copies.
type MemoryRepo struct {
	mu        sync.RWMutex
	workflows map[string]*graph.Workflow
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{workflows: make(map[string]*graph.Workflow)}
}

func (r *MemoryRepo) Save(ctx context.Context, w *graph.Workflow) error {
	cp, err := deepCopy(w)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflows[w.ID] = cp
	return nil
}

func (r *MemoryRepo) Update(ctx context.Context, w *graph.Workflow) error {
	cp, err := deepCopy(w)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.workflows[w.ID]
	if !ok {
		return apperr.NotFound("workflow", w.ID)
	}
	cp.CreatedAt = old.CreatedAt
	r.workflows[w.ID] = cp
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (*graph.Workflow, error) {
	r.mu.RLock()
	w, ok := r.workflows[id]
	r.mu.RUnlock()
	if !ok {
		return nil, apperr.NotFound("workflow", id)
	}
	return deepCopy(w)
}

func (r *MemoryRepo) List(ctx context.Context) ([]graph.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]graph.Workflow, 0, len(r.workflows))
	for _, w := range r.workflows {
		cp, err := deepCopy(w)
		if err != nil {
			return nil, err
		}
		out = append(out, *cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workflows), nil
}

// deepCopy isolates the opaque node data bags from the caller.
func deepCopy(w *graph.Workflow) (*graph.Workflow, error) {
	raw, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	var cp graph.Workflow
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}
