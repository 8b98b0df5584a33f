package model

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// MemoryRepo keeps models in process. List is newest first, ties broken by
// insertion order.
type MemoryRepo struct {
	mu     sync.RWMutex
	models []Model
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{}
}

func (r *MemoryRepo) Save(ctx context.Context, m *Model) error {
	cp, err := copyModel(m)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models = append(r.models, *cp)
	return nil
}

func (r *MemoryRepo) List(ctx context.Context) ([]Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Model, 0, len(r.models))
	for i := len(r.models) - 1; i >= 0; i-- {
		cp, err := copyModel(&r.models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func copyModel(m *Model) (*Model, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var cp Model
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}
