package model_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jack-wz/utest/features/model"
)

func TestPostgresRepo_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	m := &model.Model{ID: "m1", Name: "mini", Type: model.TypeEmbedding, Provider: "local",
		Config: map[string]any{"dimensions": 64}, CreatedAt: now}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO models (id, name, type, provider, config, created_at) VALUES ($1, $2, $3, $4, $5, $6)")).
		WithArgs("m1", "mini", "embedding", "local", []byte(`{"dimensions":64}`), now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, model.NewPostgresRepo(db).Save(context.Background(), m))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, type, provider, config, created_at FROM models ORDER BY created_at DESC")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "type", "provider", "config", "created_at"}).
			AddRow("m2", "chat", "llm", "ollama", []byte(`{}`), time.Now()).
			AddRow("m1", "mini", "embedding", "local", []byte(`{"dimensions":64}`), time.Now()))

	models, err := model.NewPostgresRepo(db).List(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "chat", models[0].Name)
	assert.Equal(t, float64(64), models[1].Config["dimensions"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_List_BadConfig(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM models")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "type", "provider", "config", "created_at"}).
			AddRow("m1", "mini", "embedding", "local", []byte(`{`), time.Now()))

	_, err = model.NewPostgresRepo(db).List(context.Background())
	assert.ErrorContains(t, err, "decode config of model m1")
}
