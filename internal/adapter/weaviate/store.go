// Package weaviate stores vector collections as Weaviate classes.
package weaviate

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/jack-wz/utest/internal/apperr"
	"github.com/jack-wz/utest/internal/vector"
)

// Store implements vector.Store on a Weaviate instance. Each collection maps
// to one class named by ClassName; the collection name is kept in the class
// description.
//
// Weaviate does not expose a class's vector length, so collection
// dimensions are tracked for the lifetime of the process.
type Store struct {
	client *weaviate.Client

	mu      sync.Mutex
	dims    map[string]int
	created map[string]time.Time
	updated map[string]time.Time
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{
		client:  client,
		dims:    make(map[string]int),
		created: make(map[string]time.Time),
		updated: make(map[string]time.Time),
	}
}

// ClassName maps a collection name onto a valid Weaviate class name.
func ClassName(collection string) string {
	var b strings.Builder
	for i, r := range collection {
		switch {
		case i == 0 && unicode.IsLetter(r) && r < unicode.MaxASCII:
			b.WriteRune(unicode.ToUpper(r))
		case i == 0:
			b.WriteString("C")
			if r < unicode.MaxASCII && (unicode.IsDigit(r) || r == '_') {
				b.WriteRune(r)
			} else {
				b.WriteRune('_')
			}
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// objectID maps a record id onto the UUID Weaviate requires. Ids that are
// already UUIDs are kept; anything else gets a stable name-based UUID.
func objectID(collection, id string) strfmt.UUID {
	if u, err := uuid.Parse(id); err == nil {
		return strfmt.UUID(u.String())
	}
	return strfmt.UUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(collection+"/"+id)).String())
}

func (s *Store) ClassExists(ctx context.Context, className string) (bool, error) {
	return s.client.Schema().ClassExistenceChecker().WithClassName(className).Do(ctx)
}

func (s *Store) CreateClass(ctx context.Context, class *models.Class) error {
	return s.client.Schema().ClassCreator().WithClass(class).Do(ctx)
}

func (s *Store) GetClass(ctx context.Context, className string) (*models.Class, error) {
	return s.client.Schema().ClassGetter().WithClassName(className).Do(ctx)
}

func (s *Store) AddProperty(ctx context.Context, className string, property *models.Property) error {
	return s.client.Schema().PropertyCreator().WithClassName(className).WithProperty(property).Do(ctx)
}

func (s *Store) CreateCollection(ctx context.Context, name string) error {
	if name == "" {
		return apperr.Validation("collection name is required")
	}
	if err := EnsureClass(ctx, s, ClassName(name), name); err != nil {
		return &apperr.StorageError{Op: "create collection", Err: err}
	}
	s.mu.Lock()
	if _, ok := s.created[name]; !ok {
		now := time.Now().UTC()
		s.created[name] = now
		s.updated[name] = now
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) Upsert(ctx context.Context, name string, records []vector.Record) error {
	dim, err := vector.CheckBatch(name, records)
	if err != nil {
		return err
	}
	if err := s.CreateCollection(ctx, name); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	have := s.dims[name]
	s.mu.Unlock()
	if have != 0 && have != dim {
		return vector.DimensionMismatch(name, have, dim)
	}

	className := ClassName(name)
	objects := make([]*models.Object, 0, len(records))
	for _, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return &apperr.StorageError{Op: "upsert", Err: fmt.Errorf("encode metadata of %q: %w", r.ID, err)}
		}
		props := map[string]interface{}{
			"content":  r.Text,
			"recordId": r.ID,
			"metadata": string(meta),
		}
		if docID, ok := r.Metadata["document_id"].(string); ok {
			props["documentId"] = docID
		}
		if idx, ok := r.Metadata["chunk_index"].(int); ok {
			props["chunkIndex"] = idx
		}
		objects = append(objects, &models.Object{
			Class:      className,
			ID:         objectID(name, r.ID),
			Properties: props,
			Vector:     r.Vector,
		})
	}

	res, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return &apperr.StorageError{Op: "upsert", Err: err}
	}
	for _, o := range res {
		if o.Result != nil && o.Result.Errors != nil && len(o.Result.Errors.Error) > 0 {
			return &apperr.StorageError{Op: "upsert", Err: fmt.Errorf("object %s: %s", o.ID, o.Result.Errors.Error[0].Message)}
		}
	}

	s.mu.Lock()
	s.dims[name] = dim
	s.updated[name] = time.Now().UTC()
	s.mu.Unlock()
	return nil
}

func (s *Store) Collection(ctx context.Context, name string) (*vector.CollectionInfo, error) {
	className := ClassName(name)
	exists, err := s.ClassExists(ctx, className)
	if err != nil {
		return nil, &apperr.StorageError{Op: "read collection", Err: err}
	}
	if !exists {
		return nil, apperr.NotFound("collection", name)
	}

	count, err := s.count(ctx, className)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return &vector.CollectionInfo{
		Name:          name,
		Dimension:     s.dims[name],
		DocumentCount: count,
		CreatedAt:     s.created[name],
		UpdatedAt:     s.updated[name],
	}, nil
}

func (s *Store) Collections(ctx context.Context) ([]vector.CollectionInfo, error) {
	dump, err := s.client.Schema().Getter().Do(ctx)
	if err != nil {
		return nil, &apperr.StorageError{Op: "list collections", Err: err}
	}

	var out []vector.CollectionInfo
	for _, class := range dump.Classes {
		name := class.Description
		if name == "" || ClassName(name) != class.Class {
			continue // not created by this store
		}
		info, err := s.Collection(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) count(ctx context.Context, className string) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(className).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, &apperr.StorageError{Op: "count", Err: err}
	}
	if len(res.Errors) > 0 {
		return 0, &apperr.StorageError{Op: "count", Err: fmt.Errorf("graphql error: %v", res.Errors[0].Message)}
	}

	agg, ok := res.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	rows, ok := agg[className].([]interface{})
	if !ok || len(rows) == 0 {
		return 0, nil
	}
	row, _ := rows[0].(map[string]interface{})
	meta, _ := row["meta"].(map[string]interface{})
	if c, ok := meta["count"].(float64); ok {
		return int(c), nil
	}
	return 0, nil
}

var _ vector.Store = (*Store)(nil)
