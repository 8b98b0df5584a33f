package vector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jack-wz/utest/internal/apperr"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS vector_collections (
    name TEXT PRIMARY KEY,
    dimension INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS vector_records (
    collection TEXT NOT NULL REFERENCES vector_collections(name),
    id TEXT NOT NULL,
    content TEXT,
    meta TEXT,
    embedding BLOB,
    PRIMARY KEY (collection, id)
);
`

// SQLiteStore persists collections in a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the database at path with the pure-Go
// driver. Writes are serialized through a single connection.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// NewSQLiteStore ensures the schema exists in db.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("vector: db is nil")
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("ensure sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *SQLiteStore) CreateCollection(ctx context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	now := s.now().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO vector_collections(name, dimension, created_at, updated_at) VALUES(?, 0, ?, ?)`,
		name, now, now)
	if err != nil {
		return &apperr.StorageError{Op: "create collection", Err: err}
	}
	return nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, name string, records []Record) error {
	if err := validName(name); err != nil {
		return err
	}
	dim, err := CheckBatch(name, records)
	if err != nil {
		return err
	}
	if err := s.CreateCollection(ctx, name); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &apperr.StorageError{Op: "upsert", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	var have int
	if err := tx.QueryRowContext(ctx, `SELECT dimension FROM vector_collections WHERE name = ?`, name).Scan(&have); err != nil {
		return &apperr.StorageError{Op: "upsert", Err: err}
	}
	if have != 0 && have != dim {
		return DimensionMismatch(name, have, dim)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vector_records(collection, id, content, meta, embedding) VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET content = excluded.content, meta = excluded.meta, embedding = excluded.embedding`)
	if err != nil {
		return &apperr.StorageError{Op: "upsert", Err: err}
	}
	defer stmt.Close()

	for _, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return &apperr.StorageError{Op: "upsert", Err: fmt.Errorf("encode metadata of %q: %w", r.ID, err)}
		}
		if _, err := stmt.ExecContext(ctx, name, r.ID, r.Text, string(meta), EncodeVector(r.Vector)); err != nil {
			return &apperr.StorageError{Op: "upsert", Err: err}
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE vector_collections SET dimension = ?, updated_at = ? WHERE name = ?`,
		dim, s.now().Format(time.RFC3339Nano), name); err != nil {
		return &apperr.StorageError{Op: "upsert", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &apperr.StorageError{Op: "upsert", Err: err}
	}
	return nil
}

const collectionQuery = `
SELECT c.name, c.dimension, c.created_at, c.updated_at,
       (SELECT COUNT(*) FROM vector_records r WHERE r.collection = c.name)
FROM vector_collections c`

func (s *SQLiteStore) Collection(ctx context.Context, name string) (*CollectionInfo, error) {
	row := s.db.QueryRowContext(ctx, collectionQuery+` WHERE c.name = ?`, name)
	info, err := scanCollection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("collection", name)
	}
	if err != nil {
		return nil, &apperr.StorageError{Op: "read collection", Err: err}
	}
	return info, nil
}

func (s *SQLiteStore) Collections(ctx context.Context) ([]CollectionInfo, error) {
	rows, err := s.db.QueryContext(ctx, collectionQuery+` ORDER BY c.name`)
	if err != nil {
		return nil, &apperr.StorageError{Op: "list collections", Err: err}
	}
	defer rows.Close()

	var out []CollectionInfo
	for rows.Next() {
		info, err := scanCollection(rows)
		if err != nil {
			return nil, &apperr.StorageError{Op: "list collections", Err: err}
		}
		out = append(out, *info)
	}
	return out, rows.Err()
}

// Records returns the stored records of a collection in insertion order.
func (s *SQLiteStore) Records(ctx context.Context, name string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, meta, embedding FROM vector_records WHERE collection = ? ORDER BY rowid`, name)
	if err != nil {
		return nil, &apperr.StorageError{Op: "read records", Err: err}
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r    Record
			meta sql.NullString
			blob []byte
		)
		if err := rows.Scan(&r.ID, &r.Text, &meta, &blob); err != nil {
			return nil, err
		}
		if meta.Valid && meta.String != "" && meta.String != "null" {
			if err := json.Unmarshal([]byte(meta.String), &r.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of %q: %w", r.ID, err)
			}
		}
		if r.Vector, err = DecodeVector(blob); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCollection(row scanner) (*CollectionInfo, error) {
	var (
		info             CollectionInfo
		created, updated string
	)
	if err := row.Scan(&info.Name, &info.Dimension, &created, &updated, &info.DocumentCount); err != nil {
		return nil, err
	}
	var err error
	if info.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, err
	}
	if info.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, err
	}
	return &info, nil
}

var _ Store = (*SQLiteStore)(nil)
