package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/jack-wz/utest/internal/apperr"
	"github.com/jack-wz/utest/internal/engine"
)

// MemoryRepo keeps executions in process and applies engine.CanAdvance
// under its lock.
type MemoryRepo struct {
	mu         sync.RWMutex
	executions map[string]*engine.Execution
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{executions: make(map[string]*engine.Execution)}
}

func (r *MemoryRepo) Create(ctx context.Context, e *engine.Execution) error {
	cp, err := clone(e)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.executions[e.ID]; ok {
		return apperr.Validation("execution %s already exists", e.ID)
	}
	r.executions[e.ID] = cp
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (*engine.Execution, error) {
	r.mu.RLock()
	e, ok := r.executions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, apperr.NotFound("execution", id)
	}
	return clone(e)
}

func (r *MemoryRepo) Update(ctx context.Context, e *engine.Execution) error {
	cp, err := clone(e)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.executions[e.ID]
	if !ok {
		return apperr.NotFound("execution", e.ID)
	}
	if !engine.CanAdvance(stored, e) {
		return fmt.Errorf("execution %s: %s/%d -> %s/%d: %w", e.ID, stored.Status, stored.Progress, e.Status, e.Progress, apperr.ErrStale)
	}
	cp.WorkflowID = stored.WorkflowID
	cp.CreatedAt = stored.CreatedAt
	r.executions[e.ID] = cp
	return nil
}

func (r *MemoryRepo) List(ctx context.Context, workflowID string) ([]engine.Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []engine.Execution
	for _, e := range r.executions {
		if workflowID != "" && e.WorkflowID != workflowID {
			continue
		}
		cp, err := clone(e)
		if err != nil {
			return nil, err
		}
		out = append(out, *cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) CountByStatus(ctx context.Context) (map[engine.Status]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := map[engine.Status]int{}
	for _, e := range r.executions {
		counts[e.Status]++
	}
	return counts, nil
}

// clone goes through JSON so the results' detail maps are not shared.
func clone(e *engine.Execution) (*engine.Execution, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	var cp engine.Execution
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}
