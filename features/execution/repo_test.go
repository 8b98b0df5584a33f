package execution_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jack-wz/utest/features/execution"
	"github.com/jack-wz/utest/internal/apperr"
	"github.com/jack-wz/utest/internal/engine"
)

var execColumns = []string{"id", "workflow_id", "status", "progress", "results", "error_message", "retryable", "created_at", "updated_at", "completed_at"}

const updatePrefix = "UPDATE executions SET status = $1, progress = $2"

func TestPostgresRepo_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := execution.NewPostgresRepo(db)
	now := time.Now()
	e := &engine.Execution{ID: "ex-1", WorkflowID: "wf-1", Status: engine.StatusPending, CreatedAt: now, UpdatedAt: now}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO executions")).
		WithArgs("ex-1", "wf-1", "pending", 0, nil, "", false, now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Create(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := execution.NewPostgresRepo(db)
	done := time.Now()

	t.Run("WithResults", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM executions WHERE id = $1")).WithArgs("ex-1").
			WillReturnRows(sqlmock.NewRows(execColumns).AddRow("ex-1", "wf-1", "completed", 100,
				[]byte(`{"stages":[{"stage":"extraction","node_ids":["n1"],"status":"completed","duration_ms":3}],"elements_processed":5,"chunks_created":0,"vectors_stored":0}`),
				"", false, time.Now(), time.Now(), done))

		e, err := repo.Get(context.Background(), "ex-1")
		require.NoError(t, err)
		assert.Equal(t, engine.StatusCompleted, e.Status)
		require.NotNil(t, e.Results)
		assert.Equal(t, 5, e.Results.ElementsProcessed)
		require.NotNil(t, e.CompletedAt)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM executions WHERE id = $1")).WithArgs("nope").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.Get(context.Background(), "nope")
		assert.True(t, errors.Is(err, apperr.ErrNotFound))
	})
}

func TestPostgresRepo_Update(t *testing.T) {
	ctx := context.Background()
	next := &engine.Execution{ID: "ex-1", Status: engine.StatusRunning, Progress: 40, UpdatedAt: time.Now()}

	t.Run("Advances", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(regexp.QuoteMeta(updatePrefix)).
			WithArgs("running", 40, nil, "", false, sqlmock.AnyArg(), sqlmock.AnyArg(), "ex-1", 1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, execution.NewPostgresRepo(db).Update(ctx, next))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Stale", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(regexp.QuoteMeta(updatePrefix)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM executions WHERE id = $1)")).
			WithArgs("ex-1").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		err = execution.NewPostgresRepo(db).Update(ctx, next)
		assert.True(t, errors.Is(err, apperr.ErrStale))
	})

	t.Run("Missing", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(regexp.QuoteMeta(updatePrefix)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		err = execution.NewPostgresRepo(db).Update(ctx, next)
		assert.True(t, errors.Is(err, apperr.ErrNotFound))
	})

	t.Run("CompletedBelowHundred", func(t *testing.T) {
		db, _, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		bad := &engine.Execution{ID: "ex-1", Status: engine.StatusCompleted, Progress: 95}
		err = execution.NewPostgresRepo(db).Update(ctx, bad)
		assert.True(t, errors.Is(err, apperr.ErrStale))
	})
}

func TestPostgresRepo_CountByStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) FROM executions GROUP BY status")).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).AddRow("completed", 3).AddRow("failed", 1))

	counts, err := execution.NewPostgresRepo(db).CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, counts[engine.StatusCompleted])
	assert.Equal(t, 1, counts[engine.StatusFailed])
}
