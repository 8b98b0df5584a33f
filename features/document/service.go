package document

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/jack-wz/utest/internal/blob"
	"github.com/jack-wz/utest/internal/document"
	"github.com/jack-wz/utest/internal/extract"
	"github.com/jack-wz/utest/internal/graph"
	"github.com/jack-wz/utest/internal/text"
	"github.com/jack-wz/utest/internal/visual"
)

// Uploader stores uploaded files where the extractor can read them.
type Uploader interface {
	Save(filename string, r io.Reader) (*blob.Object, error)
}

type Service struct {
	repo      Repository
	extractor *extract.Extractor
	uploads   Uploader
	now       func() time.Time
}

func NewService(repo Repository, extractor *extract.Extractor, uploads Uploader) *Service {
	return &Service{repo: repo, extractor: extractor, uploads: uploads, now: time.Now}
}

// Process extracts a single file outside any workflow and stores the result.
func (s *Service) Process(ctx context.Context, req ProcessRequest) (*document.ProcessedDocument, error) {
	cfg, err := graph.ParseConfig(graph.Node{ID: "process", Type: graph.NodeDataSource, Data: map[string]any{
		"file_path": req.FilePath,
		"strategy":  req.Strategy,
	}})
	if err != nil {
		return nil, err
	}
	src := cfg.(graph.DataSourceConfig)

	doc, err := s.extractor.Extract(ctx, req.FilePath, extract.Options{Strategy: src.Strategy, Metadata: req.Metadata})
	if err != nil {
		return nil, err
	}
	if err := s.repo.SaveDocument(ctx, doc); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "document processed", "document_id", doc.ID, "strategy", doc.Strategy, "elements", len(doc.Elements))
	return doc, nil
}

// Chunk re-chunks a stored document, replacing its previous chunks.
func (s *Service) Chunk(ctx context.Context, documentID string, req ChunkRequest) ([]document.Chunk, error) {
	cfg, err := graph.ParseConfig(graph.Node{ID: "chunk", Type: graph.NodeChunking, Data: map[string]any{
		"strategy":      req.Strategy,
		"chunk_size":    req.ChunkSize,
		"context_merge": req.ContextMerge,
	}})
	if err != nil {
		return nil, err
	}
	opts := cfg.(graph.ChunkingConfig)

	doc, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	chunks := text.Chunk(doc.ID, doc.Elements, text.Options{
		Strategy:     opts.Strategy,
		ChunkSize:    opts.ChunkSize,
		ContextMerge: opts.ContextMerge,
	})
	if err := s.repo.SaveChunks(ctx, doc.ID, chunks); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "document chunked", "document_id", doc.ID, "strategy", opts.Strategy, "chunks", len(chunks))
	return chunks, nil
}

// EditChunk replaces the text of a stored chunk and records the edit.
func (s *Service) EditChunk(ctx context.Context, chunkID string, req EditRequest) (*document.Chunk, error) {
	at := s.now()
	c, err := s.repo.UpdateChunk(ctx, chunkID, func(c *document.Chunk) error {
		edited, err := text.EditChunk(*c, req.Text, req.Reason, at)
		if err != nil {
			return err
		}
		*c = edited
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "chunk edited", "chunk_id", chunkID, "edits", len(c.EditHistory))
	return c, nil
}

func (s *Service) GetDocument(ctx context.Context, id string) (*document.ProcessedDocument, error) {
	return s.repo.GetDocument(ctx, id)
}

func (s *Service) ListChunks(ctx context.Context, documentID string) ([]document.Chunk, error) {
	if _, err := s.repo.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	return s.repo.ListChunks(ctx, documentID)
}

func (s *Service) Visualize(ctx context.Context, documentID string) (*visual.Visualization, error) {
	doc, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return visual.Visualize(doc), nil
}

func (s *Service) Compare(ctx context.Context, documentID string) (*visual.Comparison, error) {
	doc, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return visual.Compare(doc), nil
}

// Upload stores an uploaded file. The returned path can be used as the
// file_path of a datasource node.
func (s *Service) Upload(ctx context.Context, filename string, r io.Reader) (*blob.Object, error) {
	obj, err := s.uploads.Save(filename, r)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "file uploaded", "filename", obj.Filename, "path", obj.Path, "size", obj.Size)
	return obj, nil
}
