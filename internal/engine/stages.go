package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jack-wz/utest/internal/apperr"
	"github.com/jack-wz/utest/internal/clean"
	"github.com/jack-wz/utest/internal/document"
	"github.com/jack-wz/utest/internal/extract"
	"github.com/jack-wz/utest/internal/graph"
	"github.com/jack-wz/utest/internal/text"
	"github.com/jack-wz/utest/internal/vector"
)

type stageFunc func(ctx context.Context, step Step, st *runState) (map[string]any, error)

// unit is one embeddable text: a chunk when chunking ran, an element otherwise.
type unit struct {
	id         string
	documentID string
	text       string
	index      int
	chunk      *document.Chunk
}

// runState carries the artifacts of one run between stages. It is owned by
// the run goroutine.
type runState struct {
	workflow    *graph.Workflow
	executionID string

	docs       []*document.ProcessedDocument
	chunks     map[string][]document.Chunk
	units      []unit
	vectors    [][]float32
	stored     int
	collection string
}

func (st *runState) elementCount() int {
	n := 0
	for _, d := range st.docs {
		n += len(d.Elements)
	}
	return n
}

func (st *runState) chunkCount() int {
	n := 0
	for _, cs := range st.chunks {
		n += len(cs)
	}
	return n
}

func (st *runState) totals(r *Results) {
	r.ElementsProcessed = st.elementCount()
	r.ChunksCreated = st.chunkCount()
	r.VectorsStored = st.stored
	r.Collection = st.collection
	r.DocumentIDs = r.DocumentIDs[:0]
	for _, d := range st.docs {
		r.DocumentIDs = append(r.DocumentIDs, d.ID)
	}
}

// config parses the configuration of the first node of a step.
func config[T graph.NodeConfig](step Step) (T, error) {
	var zero T
	cfg, err := graph.ParseConfig(step.Nodes[0])
	if err != nil {
		return zero, err
	}
	typed, ok := cfg.(T)
	if !ok {
		return zero, fmt.Errorf("node %q: unexpected configuration type %T", step.Nodes[0].ID, cfg)
	}
	return typed, nil
}

func (o *Orchestrator) runExtraction(ctx context.Context, step Step, st *runState) (map[string]any, error) {
	placeholders := 0
	for _, n := range step.Nodes {
		cfg, err := graph.ParseConfig(n)
		if err != nil {
			return nil, err
		}
		src := cfg.(graph.DataSourceConfig)
		if src.FilePath == "" {
			slog.WarnContext(ctx, "datasource has no file path", "execution_id", st.executionID, "node_id", n.ID)
			continue
		}

		doc, err := o.extractor.Extract(ctx, src.FilePath, extract.Options{Strategy: src.Strategy, Metadata: src.Metadata})
		if err != nil {
			if !src.DemoMode || ctx.Err() != nil {
				return nil, fmt.Errorf("extract %s: %w", src.FilePath, err)
			}
			slog.WarnContext(ctx, "source unreadable, using demo placeholder", "node_id", n.ID, "path", src.FilePath, "error", err)
			doc = extract.Placeholder(src.FilePath, src.Strategy)
			placeholders++
		}
		if src.Filename != "" {
			doc.Filename = src.Filename
		}
		doc.ExecutionID = st.executionID
		if err := o.documents.SaveDocument(ctx, doc); err != nil {
			return nil, &apperr.StorageError{Op: "save document", Err: err}
		}
		st.docs = append(st.docs, doc)
	}

	return map[string]any{
		"documents":    len(st.docs),
		"elements":     st.elementCount(),
		"placeholders": placeholders,
	}, nil
}

func (o *Orchestrator) runCleaning(ctx context.Context, step Step, st *runState) (map[string]any, error) {
	cfg, err := config[graph.CleaningConfig](step)
	if err != nil {
		return nil, err
	}

	before := st.elementCount()
	for _, doc := range st.docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		elements := clean.Clean(doc.Elements, cfg.MinLength)
		if cfg.MergeElements {
			elements = clean.Merge(elements)
		}
		doc.Elements = elements
		if err := o.documents.SaveDocument(ctx, doc); err != nil {
			return nil, &apperr.StorageError{Op: "save document", Err: err}
		}
	}

	after := st.elementCount()
	return map[string]any{
		"elements_before": before,
		"elements_after":  after,
		"removed":         before - after,
		"merged":          cfg.MergeElements,
	}, nil
}

func (o *Orchestrator) runChunking(ctx context.Context, step Step, st *runState) (map[string]any, error) {
	cfg, err := config[graph.ChunkingConfig](step)
	if err != nil {
		return nil, err
	}

	st.chunks = make(map[string][]document.Chunk, len(st.docs))
	for _, doc := range st.docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunks := text.Chunk(doc.ID, doc.Elements, text.Options{
			Strategy:     cfg.Strategy,
			ChunkSize:    cfg.ChunkSize,
			ContextMerge: cfg.ContextMerge,
		})
		if err := o.documents.SaveChunks(ctx, doc.ID, chunks); err != nil {
			return nil, &apperr.StorageError{Op: "save chunks", Err: err}
		}
		st.chunks[doc.ID] = chunks
	}

	return map[string]any{
		"strategy":   cfg.Strategy,
		"chunk_size": cfg.ChunkSize,
		"chunks":     st.chunkCount(),
	}, nil
}

func (o *Orchestrator) runEmbedding(ctx context.Context, step Step, st *runState) (map[string]any, error) {
	cfg, err := config[graph.EmbeddingConfig](step)
	if err != nil {
		return nil, err
	}

	st.units = st.units[:0]
	source := ArtifactChunks
	if st.chunks != nil {
		for _, doc := range st.docs {
			cs := st.chunks[doc.ID]
			for i := range cs {
				st.units = append(st.units, unit{id: cs[i].ID, documentID: doc.ID, text: cs[i].Text, index: cs[i].ChunkIndex, chunk: &cs[i]})
			}
		}
	} else {
		source = ArtifactElements
		for _, doc := range st.docs {
			for i, el := range doc.Elements {
				st.units = append(st.units, unit{id: el.ID, documentID: doc.ID, text: el.Text, index: i})
			}
		}
	}

	texts := make([]string, len(st.units))
	for i, u := range st.units {
		texts[i] = u.text
	}
	st.vectors = nil
	if len(texts) > 0 {
		st.vectors, err = o.encoder.Encode(ctx, texts, cfg.Provider)
		if err != nil {
			return nil, err
		}
		if len(st.vectors) != len(texts) {
			return nil, fmt.Errorf("encoder returned %d vectors for %d texts", len(st.vectors), len(texts))
		}
	}

	for i, u := range st.units {
		if u.chunk != nil {
			u.chunk.Embedding = st.vectors[i]
		}
	}
	if source == ArtifactChunks {
		for docID, cs := range st.chunks {
			if err := o.documents.SaveChunks(ctx, docID, cs); err != nil {
				return nil, &apperr.StorageError{Op: "save chunks", Err: err}
			}
		}
	}

	dim := 0
	if len(st.vectors) > 0 {
		dim = len(st.vectors[0])
	}
	return map[string]any{
		"provider":   cfg.Provider,
		"source":     string(source),
		"vectors":    len(st.vectors),
		"dimensions": dim,
	}, nil
}

func (o *Orchestrator) runVectorStorage(ctx context.Context, step Step, st *runState) (map[string]any, error) {
	cfg, err := config[graph.ConnectorConfig](step)
	if err != nil {
		return nil, err
	}

	name := cfg.CollectionName
	if name == "" {
		name = DefaultCollection(st.workflow.ID)
	}
	if err := o.vectors.CreateCollection(ctx, name); err != nil {
		return nil, storageErr("create collection", err)
	}
	st.collection = name

	records := make([]vector.Record, len(st.units))
	for i, u := range st.units {
		records[i] = vector.Record{
			ID:     u.id,
			Text:   u.text,
			Vector: st.vectors[i],
			Metadata: map[string]any{
				"document_id":  u.documentID,
				"chunk_index":  u.index,
				"execution_id": st.executionID,
				"workflow_id":  st.workflow.ID,
			},
		}
	}
	if len(records) > 0 {
		if err := o.vectors.Upsert(ctx, name, records); err != nil {
			return nil, storageErr("upsert", err)
		}
	}
	st.stored = len(records)
	o.metrics.vectors.Add(ctx, int64(len(records)))

	return map[string]any{
		"collection":     name,
		"connector_type": cfg.ConnectorType,
		"records":        len(records),
	}, nil
}

// DefaultCollection names the collection of a workflow without a configured one.
func DefaultCollection(workflowID string) string {
	return "workflow_" + strings.ReplaceAll(workflowID, " ", "_")
}

func storageErr(op string, err error) error {
	if errors.Is(err, apperr.ErrStorage) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &apperr.StorageError{Op: op, Err: err}
}
