package vector

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jack-wz/utest/internal/apperr"
)

type memCollection struct {
	info    CollectionInfo
	records []Record
	index   map[string]int
}

// MemoryStore keeps collections in process memory behind a RWMutex.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
	now         func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*memCollection),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) CreateCollection(ctx context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure(name)
	return nil
}

// ensure must be called with the write lock held.
func (s *MemoryStore) ensure(name string) *memCollection {
	c, ok := s.collections[name]
	if !ok {
		now := s.now()
		c = &memCollection{
			info:  CollectionInfo{Name: name, CreatedAt: now, UpdatedAt: now},
			index: make(map[string]int),
		}
		s.collections[name] = c
	}
	return c
}

func (s *MemoryStore) Upsert(ctx context.Context, name string, records []Record) error {
	if err := validName(name); err != nil {
		return err
	}
	dim, err := CheckBatch(name, records)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.ensure(name)
	if len(records) == 0 {
		return nil
	}
	if c.info.Dimension != 0 && c.info.Dimension != dim {
		return DimensionMismatch(name, c.info.Dimension, dim)
	}
	c.info.Dimension = dim

	for _, r := range records {
		r.Vector = append([]float32(nil), r.Vector...)
		if i, ok := c.index[r.ID]; ok {
			c.records[i] = r
			continue
		}
		c.index[r.ID] = len(c.records)
		c.records = append(c.records, r)
	}
	c.info.DocumentCount = len(c.records)
	c.info.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) Collection(ctx context.Context, name string) (*CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, apperr.NotFound("collection", name)
	}
	info := c.info
	return &info, nil
}

func (s *MemoryStore) Collections(ctx context.Context) ([]CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CollectionInfo, 0, len(s.collections))
	for _, c := range s.collections {
		out = append(out, c.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Records returns a copy of the records of a collection in insertion order.
func (s *MemoryStore) Records(name string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil
	}
	return append([]Record(nil), c.records...)
}

// Reset drops every collection.
func (s *MemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections = make(map[string]*memCollection)
}

var _ Store = (*MemoryStore)(nil)
