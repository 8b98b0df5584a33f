package execution

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jack-wz/utest/internal/apperr"
	"github.com/jack-wz/utest/internal/engine"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const selectColumns = `SELECT id, workflow_id, status, progress, results, error_message, retryable, created_at, updated_at, completed_at FROM executions`

func (r *PostgresRepo) Create(ctx context.Context, e *engine.Execution) error {
	results, err := marshalResults(e.Results)
	if err != nil {
		return err
	}
	query := `INSERT INTO executions (id, workflow_id, status, progress, results, error_message, retryable, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = r.db.ExecContext(ctx, query, e.ID, e.WorkflowID, string(e.Status), e.Progress, results, e.ErrorMessage, e.Retryable, e.CreatedAt, e.UpdatedAt)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*engine.Execution, error) {
	e, err := scanExecution(r.db.QueryRowContext(ctx, selectColumns+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("execution", id)
	}
	return e, err
}

// Update applies e only when it advances the stored row: the stored status
// is not terminal, its rank and progress do not exceed the new ones. The
// guard runs inside the UPDATE so concurrent writers cannot interleave.
func (r *PostgresRepo) Update(ctx context.Context, e *engine.Execution) error {
	if e.Progress > 100 || (e.Status == engine.StatusCompleted && e.Progress != 100) {
		return fmt.Errorf("execution %s: %w", e.ID, apperr.ErrStale)
	}
	results, err := marshalResults(e.Results)
	if err != nil {
		return err
	}
	var completedAt sql.NullTime
	if e.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *e.CompletedAt, Valid: true}
	}

	query := `UPDATE executions SET status = $1, progress = $2, results = $3, error_message = $4, retryable = $5, updated_at = $6, completed_at = $7
		WHERE id = $8 AND status IN ('pending', 'running') AND progress <= $2
		AND (CASE status WHEN 'pending' THEN 0 ELSE 1 END) <= $9`
	res, err := r.db.ExecContext(ctx, query, string(e.Status), e.Progress, results, e.ErrorMessage, e.Retryable, e.UpdatedAt, completedAt, e.ID, e.Status.Rank())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM executions WHERE id = $1)`, e.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return apperr.NotFound("execution", e.ID)
	}
	return fmt.Errorf("execution %s: %w", e.ID, apperr.ErrStale)
}

func (r *PostgresRepo) List(ctx context.Context, workflowID string) ([]engine.Execution, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if workflowID == "" {
		rows, err = r.db.QueryContext(ctx, selectColumns+` ORDER BY created_at DESC`)
	} else {
		rows, err = r.db.QueryContext(ctx, selectColumns+` WHERE workflow_id = $1 ORDER BY created_at DESC`, workflowID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) CountByStatus(ctx context.Context) (map[engine.Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM executions GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[engine.Status]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[engine.Status(status)] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExecution(row scanner) (*engine.Execution, error) {
	var e engine.Execution
	var status string
	var results []byte
	var completedAt sql.NullTime
	if err := row.Scan(&e.ID, &e.WorkflowID, &status, &e.Progress, &results, &e.ErrorMessage, &e.Retryable, &e.CreatedAt, &e.UpdatedAt, &completedAt); err != nil {
		return nil, err
	}
	e.Status = engine.Status(status)
	if completedAt.Valid {
		t := completedAt.Time
		e.CompletedAt = &t
	}
	if len(results) > 0 {
		e.Results = &engine.Results{}
		if err := json.Unmarshal(results, e.Results); err != nil {
			return nil, fmt.Errorf("decode results of execution %s: %w", e.ID, err)
		}
	}
	return &e, nil
}

func marshalResults(r *engine.Results) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode results: %w", err)
	}
	return b, nil
}
