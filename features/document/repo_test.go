package document_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docs "github.com/jack-wz/utest/features/document"
	"github.com/jack-wz/utest/internal/apperr"
	"github.com/jack-wz/utest/internal/document"
	"github.com/jack-wz/utest/internal/vector"
)

var chunkCols = []string{"id", "document_id", "chunk_index", "text", "metadata", "source_elements", "token_count", "embedding", "is_edited", "edit_history", "superseded"}

func TestPostgresRepo_SaveDocument(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	doc := &document.ProcessedDocument{ID: "doc-1", ExecutionID: "ex-1", Filename: "a.txt", SourcePath: "a.txt", Strategy: "auto", CreatedAt: now}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
		WithArgs("doc-1", "ex-1", "a.txt", "a.txt", "auto", []byte("[]"), []byte("null"), now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, docs.NewPostgresRepo(db).SaveDocument(context.Background(), doc))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_GetDocument_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM documents WHERE id = $1")).WithArgs("x").WillReturnError(sql.ErrNoRows)

	_, err = docs.NewPostgresRepo(db).GetDocument(context.Background(), "x")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestPostgresRepo_SaveChunks(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	chunks := []document.Chunk{
		{ID: "c1", Text: "one", SourceElements: []string{"e1"}, ChunkIndex: 0, TokenCount: 1, Embedding: []float32{0.5}},
		{ID: "c2", Text: "two", SourceElements: []string{"e2"}, ChunkIndex: 1, TokenCount: 1},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE chunks SET superseded = TRUE WHERE document_id = $1 AND NOT superseded AND NOT (id = ANY($2))")).
		WithArgs("doc-1", pq.Array([]string{"c1", "c2"})).
		WillReturnResult(sqlmock.NewResult(0, 2))
	stmt := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO chunks"))
	stmt.ExpectExec().
		WithArgs("c1", "doc-1", 0, "one", []byte("null"), []byte(`["e1"]`), 1, vector.EncodeVector([]float32{0.5}), false, []byte("[]"), false).
		WillReturnResult(sqlmock.NewResult(1, 1))
	stmt.ExpectExec().
		WithArgs("c2", "doc-1", 1, "two", []byte("null"), []byte(`["e2"]`), 1, nil, false, []byte("[]"), false).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, docs.NewPostgresRepo(db).SaveChunks(context.Background(), "doc-1", chunks))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_UpdateChunk(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM chunks WHERE id = $1 FOR UPDATE")).WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(chunkCols).AddRow("c1", "doc-1", 0, "old", []byte(`{"page_number":1}`),
			[]byte(`["e1"]`), 1, vector.EncodeVector([]float32{1, 2}), false, []byte("[]"), false))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE chunks SET document_id = $2")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	c, err := docs.NewPostgresRepo(db).UpdateChunk(context.Background(), "c1", func(c *document.Chunk) error {
		assert.Equal(t, []float32{1, 2}, c.Embedding)
		c.Text = "new"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "new", c.Text)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_UpdateChunk_RollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(chunkCols).AddRow("c1", "doc-1", 0, "old", nil, []byte(`[]`), 1, nil, false, []byte("[]"), false))
	mock.ExpectRollback()

	_, err = docs.NewPostgresRepo(db).UpdateChunk(context.Background(), "c1", func(c *document.Chunk) error {
		return apperr.Validation("text must not be empty")
	})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_ListChunks_SkipsSuperseded(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM chunks WHERE document_id = $1 AND NOT superseded ORDER BY chunk_index")).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows(chunkCols).AddRow("c2", "doc-1", 0, "current", nil, []byte(`["e1"]`), 1, nil, false, []byte("[]"), false))

	chunks, err := docs.NewPostgresRepo(db).ListChunks(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "c2", chunks[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_GetChunk_Superseded(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM chunks WHERE id = $1")).WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(chunkCols).AddRow("c1", "doc-1", 0, "old", nil, []byte(`[]`), 1, nil, true,
			[]byte(`[{"timestamp":"2026-01-02T03:04:05Z","previous_text":"a","new_text":"old","reason":"typo"}]`), true))

	c, err := docs.NewPostgresRepo(db).GetChunk(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, c.Superseded)
	assert.Len(t, c.EditHistory, 1)
}
