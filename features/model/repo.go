package model

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Save(ctx context.Context, m *Model) error {
	cfg, err := json.Marshal(m.Config)
	if err != nil {
		return fmt.Errorf("encode model config: %w", err)
	}
	query := `INSERT INTO models (id, name, type, provider, config, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = r.db.ExecContext(ctx, query, m.ID, m.Name, m.Type, m.Provider, cfg, m.CreatedAt)
	return err
}

func (r *PostgresRepo) List(ctx context.Context) ([]Model, error) {
	query := `SELECT id, name, type, provider, config, created_at FROM models ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var models []Model
	for rows.Next() {
		var m Model
		var cfg []byte
		if err := rows.Scan(&m.ID, &m.Name, &m.Type, &m.Provider, &cfg, &m.CreatedAt); err != nil {
			return nil, err
		}
		if len(cfg) > 0 {
			if err := json.Unmarshal(cfg, &m.Config); err != nil {
				return nil, fmt.Errorf("decode config of model %s: %w", m.ID, err)
			}
		}
		models = append(models, m)
	}
	return models, rows.Err()
}
