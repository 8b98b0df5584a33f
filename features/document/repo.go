package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/jack-wz/utest/internal/apperr"
	"github.com/jack-wz/utest/internal/document"
	"github.com/jack-wz/utest/internal/vector"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const chunkColumns = `id, document_id, chunk_index, text, metadata, source_elements, token_count, embedding, is_edited, edit_history, superseded`

func (r *PostgresRepo) SaveDocument(ctx context.Context, doc *document.ProcessedDocument) error {
	elements, err := json.Marshal(nonNil(doc.Elements))
	if err != nil {
		return fmt.Errorf("encode elements: %w", err)
	}
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	query := `INSERT INTO documents (id, execution_id, filename, source_path, strategy, elements, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET elements = EXCLUDED.elements, metadata = EXCLUDED.metadata, filename = EXCLUDED.filename`
	_, err = r.db.ExecContext(ctx, query, doc.ID, doc.ExecutionID, doc.Filename, doc.SourcePath, doc.Strategy, elements, meta, doc.CreatedAt)
	return err
}

func (r *PostgresRepo) GetDocument(ctx context.Context, id string) (*document.ProcessedDocument, error) {
	var doc document.ProcessedDocument
	var elements, meta []byte
	query := `SELECT id, execution_id, filename, source_path, strategy, elements, metadata, created_at FROM documents WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&doc.ID, &doc.ExecutionID, &doc.Filename, &doc.SourcePath, &doc.Strategy, &elements, &meta, &doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("document", id)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(elements, &doc.Elements); err != nil {
		return nil, fmt.Errorf("decode elements of document %s: %w", id, err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of document %s: %w", id, err)
		}
	}
	return &doc, nil
}

func (r *PostgresRepo) SaveChunks(ctx context.Context, documentID string, chunks []document.Chunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	if _, err := tx.ExecContext(ctx, `UPDATE chunks SET superseded = TRUE WHERE document_id = $1 AND NOT superseded AND NOT (id = ANY($2))`, documentID, pq.Array(ids)); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks (`+chunkColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET chunk_index = EXCLUDED.chunk_index, text = EXCLUDED.text, metadata = EXCLUDED.metadata,
		source_elements = EXCLUDED.source_elements, token_count = EXCLUDED.token_count, embedding = EXCLUDED.embedding,
		is_edited = EXCLUDED.is_edited, edit_history = EXCLUDED.edit_history, superseded = EXCLUDED.superseded`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		c.DocumentID = documentID
		c.Superseded = false
		args, err := chunkArgs(&c)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("save chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

func (r *PostgresRepo) GetChunk(ctx context.Context, id string) (*document.Chunk, error) {
	c, err := scanChunk(r.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("chunk", id)
	}
	return c, err
}

func (r *PostgresRepo) ListChunks(ctx context.Context, documentID string) ([]document.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE document_id = $1 AND NOT superseded ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []document.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *c)
	}
	return chunks, rows.Err()
}

// UpdateChunk locks the row for the duration of fn.
func (r *PostgresRepo) UpdateChunk(ctx context.Context, id string, fn func(*document.Chunk) error) (*document.Chunk, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	c, err := scanChunk(tx.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("chunk", id)
	}
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return nil, err
	}

	args, err := chunkArgs(c)
	if err != nil {
		return nil, err
	}
	query := `UPDATE chunks SET document_id = $2, chunk_index = $3, text = $4, metadata = $5, source_elements = $6,
		token_count = $7, embedding = $8, is_edited = $9, edit_history = $10, superseded = $11 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return c, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChunk(row scanner) (*document.Chunk, error) {
	var c document.Chunk
	var meta, sources, embedding, history []byte
	if err := row.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Text, &meta, &sources, &c.TokenCount, &embedding, &c.IsEdited, &history, &c.Superseded); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &c.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of chunk %s: %w", c.ID, err)
		}
	}
	if err := json.Unmarshal(sources, &c.SourceElements); err != nil {
		return nil, fmt.Errorf("decode source elements of chunk %s: %w", c.ID, err)
	}
	if err := json.Unmarshal(history, &c.EditHistory); err != nil {
		return nil, fmt.Errorf("decode edit history of chunk %s: %w", c.ID, err)
	}
	if len(embedding) > 0 {
		vec, err := vector.DecodeVector(embedding)
		if err != nil {
			return nil, fmt.Errorf("decode embedding of chunk %s: %w", c.ID, err)
		}
		c.Embedding = vec
	}
	return &c, nil
}

func chunkArgs(c *document.Chunk) ([]any, error) {
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode chunk metadata: %w", err)
	}
	sources, err := json.Marshal(nonNil(c.SourceElements))
	if err != nil {
		return nil, err
	}
	history, err := json.Marshal(nonNil(c.EditHistory))
	if err != nil {
		return nil, err
	}
	var embedding []byte
	if len(c.Embedding) > 0 {
		embedding = vector.EncodeVector(c.Embedding)
	}
	return []any{c.ID, c.DocumentID, c.ChunkIndex, c.Text, meta, sources, c.TokenCount, embedding, c.IsEdited, history, c.Superseded}, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
