package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/spf13/afero"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/jack-wz/utest/internal/adapter/gemini"
	wstore "github.com/jack-wz/utest/internal/adapter/weaviate"
	"github.com/jack-wz/utest/internal/config"
	"github.com/jack-wz/utest/internal/embedding"
	"github.com/jack-wz/utest/internal/telemetry"
	"github.com/jack-wz/utest/internal/vector"
)

// Dependencies are the external resources the application runs on. DB is nil
// for the in-memory store and NSQProducer is nil when NSQ is disabled.
type Dependencies struct {
	DB          *sql.DB
	Vectors     vector.Store
	NSQProducer *nsq.Producer
	Encoder     *embedding.Router
	Fs          afero.Fs
	Meters      *telemetry.Meters

	closers []func() error
}

// Close releases every resource opened by Bootstrap, last opened first.
func (d *Dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			slog.Warn("failed to release dependency", "error", err)
		}
	}
	d.closers = nil
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	deps := &Dependencies{
		Encoder: embedding.NewRouter(embedding.HashEncoder{}),
		Fs:      afero.NewOsFs(),
		Meters:  telemetry.NewMeters(true),
	}
	deps.closers = append(deps.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return deps.Meters.Shutdown(ctx)
	})
	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second

	fail := func(err error) (*Dependencies, error) {
		deps.Close()
		return nil, err
	}

	// Database
	if cfg.StoreBackend == config.BackendPostgres {
		db, err := openPostgres(ctx, cfg, retryDelay)
		if err != nil {
			return fail(err)
		}
		deps.DB = db
		deps.closers = append(deps.closers, db.Close)
	}

	// Vector store
	vectors, closeVectors, err := openVectorStore(ctx, cfg, retryDelay)
	if err != nil {
		return fail(err)
	}
	deps.Vectors = vectors
	if closeVectors != nil {
		deps.closers = append(deps.closers, closeVectors)
	}

	// Gemini
	if cfg.GeminiAPIKey != "" {
		emb, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, nil, gemini.WithRetry(3, time.Second))
		if err != nil {
			return fail(fmt.Errorf("gemini client error: %w", err))
		}
		deps.Encoder.Register("gemini", emb)
		deps.closers = append(deps.closers, emb.Close)
		slog.Info("gemini embedding provider registered")
	}

	// NSQ Producer
	if cfg.NSQEnabled {
		producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
		if err != nil {
			return fail(fmt.Errorf("nsq producer error: %w", err))
		}
		deps.NSQProducer = producer
		deps.closers = append(deps.closers, func() error { producer.Stop(); return nil })

		createTopics(ctx, cfg.NSQDHTTP)
	}

	return deps, nil
}

func openPostgres(ctx context.Context, cfg *config.Config, retryDelay time.Duration) (*sql.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	err = Retry(ctx, "ping db", cfg.BootstrapRetryAttempts, retryDelay, func() error {
		return db.PingContext(ctx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	// Migrations
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		db.Close()
		return nil, fmt.Errorf("migration up error: %w", err)
	}
	slog.Info("migrations applied", "path", cfg.MigrationPath)
	return db, nil
}

func openVectorStore(ctx context.Context, cfg *config.Config, retryDelay time.Duration) (vector.Store, func() error, error) {
	switch cfg.VectorBackend {
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o750); err != nil {
			return nil, nil, fmt.Errorf("sqlite directory error: %w", err)
		}
		db, err := vector.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite open error: %w", err)
		}
		store, err := vector.NewSQLiteStore(db)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("sqlite schema error: %w", err)
		}
		return store, db.Close, nil

	case config.BackendWeaviate:
		client, err := weaviate.NewClient(weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme})
		if err != nil {
			return nil, nil, fmt.Errorf("weaviate client error: %w", err)
		}
		store := wstore.NewStore(client)
		err = Retry(ctx, "reach weaviate", cfg.BootstrapRetryAttempts, retryDelay, func() error {
			_, err := store.Collections(ctx)
			return err
		})
		if err != nil {
			return nil, nil, fmt.Errorf("weaviate unreachable: %w", err)
		}
		return store, nil, nil

	default:
		return vector.NewMemoryStore(), nil, nil
	}
}

// Retry runs fn up to attempts times with a constant delay between calls.
func Retry(ctx context.Context, op string, attempts int, delay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	try := 0
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts-1)), ctx)
	return backoff.Retry(func() error {
		try++
		err := fn()
		if err != nil && try < attempts {
			slog.Warn("bootstrap step failed, retrying", "op", op, "attempt", try, "max_attempts", attempts, "error", err)
		}
		return err
	}, b)
}

func createTopics(ctx context.Context, nsqdHTTP string) {
	client := &http.Client{Timeout: 5 * time.Second}
	for _, topic := range []string{config.TopicWorkflowRun, config.TopicExecutionEvents} {
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, topic)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
		if err != nil {
			slog.Warn("failed to build NSQ topic request", "topic", topic, "error", err)
			continue
		}
		resp, err := client.Do(req) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
			continue
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}
}
