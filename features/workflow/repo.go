package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jack-wz/utest/internal/apperr"
	"github.com/jack-wz/utest/internal/graph"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Save(ctx context.Context, w *graph.Workflow) error {
	nodes, edges, err := marshalGraph(w)
	if err != nil {
		return err
	}
	query := `INSERT INTO workflows (id, name, description, nodes, edges, hash, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = r.db.ExecContext(ctx, query, w.ID, w.Name, w.Description, nodes, edges, w.Hash, w.CreatedAt, w.UpdatedAt)
	return err
}

func (r *PostgresRepo) Update(ctx context.Context, w *graph.Workflow) error {
	nodes, edges, err := marshalGraph(w)
	if err != nil {
		return err
	}
	query := `UPDATE workflows SET name = $1, description = $2, nodes = $3, edges = $4, hash = $5, updated_at = $6 WHERE id = $7`
	res, err := r.db.ExecContext(ctx, query, w.Name, w.Description, nodes, edges, w.Hash, w.UpdatedAt, w.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("workflow", w.ID)
	}
	return nil
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*graph.Workflow, error) {
	query := `SELECT id, name, description, nodes, edges, hash, created_at, updated_at FROM workflows WHERE id = $1`
	w, err := scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("workflow", id)
	}
	return w, err
}

func (r *PostgresRepo) List(ctx context.Context) ([]graph.Workflow, error) {
	query := `SELECT id, name, description, nodes, edges, hash, created_at, updated_at FROM workflows ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workflows []graph.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, *w)
	}
	return workflows, rows.Err()
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workflows`).Scan(&count)
	return count, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row scanner) (*graph.Workflow, error) {
	var w graph.Workflow
	var nodes, edges []byte
	if err := row.Scan(&w.ID, &w.Name, &w.Description, &nodes, &edges, &w.Hash, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(nodes, &w.Nodes); err != nil {
		return nil, fmt.Errorf("decode nodes of workflow %s: %w", w.ID, err)
	}
	if err := json.Unmarshal(edges, &w.Edges); err != nil {
		return nil, fmt.Errorf("decode edges of workflow %s: %w", w.ID, err)
	}
	return &w, nil
}

func marshalGraph(w *graph.Workflow) ([]byte, []byte, error) {
	nodes := w.Nodes
	if nodes == nil {
		nodes = []graph.Node{}
	}
	edges := w.Edges
	if edges == nil {
		edges = []graph.Edge{}
	}
	n, err := json.Marshal(nodes)
	if err != nil {
		return nil, nil, fmt.Errorf("encode nodes: %w", err)
	}
	e, err := json.Marshal(edges)
	if err != nil {
		return nil, nil, fmt.Errorf("encode edges: %w", err)
	}
	return n, e, nil
}
