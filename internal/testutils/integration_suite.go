package testutils

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/jack-wz/utest/internal/config"
)

// IntegrationSuite starts Postgres (migrated), NSQ and optionally Weaviate in
// containers. Tests using it are skipped under -short.
type IntegrationSuite struct {
	T        *testing.T
	DB       *sql.DB
	Weaviate *weaviate.Client
	NSQ      *nsq.Producer

	// WithWeaviate starts a Weaviate container during Setup.
	WithWeaviate bool

	connStr      string
	nsqdAddr     string
	weaviateHost string

	// Containers
	pgContainer       *postgres.PostgresContainer
	weaviateContainer testcontainers.Container
	nsqContainer      testcontainers.Container
}

const (
	dbName         = "workflow_test"
	dbUser         = "test"
	dbPass         = "test"
	startupTimeout = 60 * time.Second
)

func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	return &IntegrationSuite{T: t}
}

func (s *IntegrationSuite) Setup() {
	ctx := context.Background()
	s.startPostgres(ctx)
	s.startNSQ(ctx)
	if s.WithWeaviate {
		s.startWeaviate(ctx)
	}
}

func (s *IntegrationSuite) startPostgres(ctx context.Context) {
	c, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPass),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(startupTimeout)),
	)
	require.NoError(s.T, err)
	s.pgContainer = c

	s.connStr, err = c.ConnectionString(ctx, "sslmode=disable")
	require.NoError(s.T, err)

	s.DB, err = sql.Open("postgres", s.connStr)
	require.NoError(s.T, err)

	m, err := migrate.New(MigrationPath(), s.connStr)
	require.NoError(s.T, err)
	require.NoError(s.T, m.Up())
}

func (s *IntegrationSuite) startNSQ(ctx context.Context) {
	c := s.startGeneric(ctx, testcontainers.ContainerRequest{
		Image:        "nsqio/nsq:v1.3.0",
		ExposedPorts: []string{"4150/tcp", "4151/tcp"},
		Cmd:          []string{"/nsqd", "--broadcast-address=localhost"},
		WaitingFor:   wait.ForLog("TCP: listening on").WithStartupTimeout(startupTimeout),
	})
	s.nsqContainer = c
	var err error
	s.nsqdAddr, err = c.PortEndpoint(ctx, "4150/tcp", "")
	require.NoError(s.T, err)

	s.NSQ, err = nsq.NewProducer(s.nsqdAddr, nsq.NewConfig())
	require.NoError(s.T, err)
}

func (s *IntegrationSuite) startWeaviate(ctx context.Context) {
	c := s.startGeneric(ctx, testcontainers.ContainerRequest{
		Image:        "semitechnologies/weaviate:latest",
		ExposedPorts: []string{"8080/tcp", "50051/tcp"},
		Env: map[string]string{
			"AUTHENTICATION_ANONYMOUS_ACCESS_ENABLED": "true",
			"DEFAULT_VECTORIZER_MODULE":               "none",
			"PERSISTENCE_DATA_PATH":                   "/var/lib/weaviate",
		},
		WaitingFor: wait.ForHTTP("/v1/meta").WithPort("8080/tcp").WithStartupTimeout(startupTimeout),
	})
	s.weaviateContainer = c
	var err error
	s.weaviateHost, err = c.PortEndpoint(ctx, "8080/tcp", "")
	require.NoError(s.T, err)

	s.Weaviate, err = weaviate.NewClient(weaviate.Config{Host: s.weaviateHost, Scheme: "http"})
	require.NoError(s.T, err)
}

func (s *IntegrationSuite) startGeneric(ctx context.Context, req testcontainers.ContainerRequest) testcontainers.Container {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(s.T, err)
	return c
}

// GetAppConfig returns a configuration pointing at the suite's containers.
func (s *IntegrationSuite) GetAppConfig() *config.Config {
	host, _ := s.pgContainer.Host(context.Background())
	port, _ := s.pgContainer.MappedPort(context.Background(), "5432/tcp")

	cfg := &config.Config{
		StoreBackend:               config.BackendPostgres,
		DBHost:                     host,
		DBPort:                     port.Int(),
		DBUser:                     dbUser,
		DBPass:                     dbPass,
		DBName:                     dbName,
		MigrationPath:              MigrationPath(),
		VectorBackend:              config.BackendMemory,
		NSQEnabled:                 true,
		NSQDHost:                   s.nsqdAddr,
		WorkerPoolSize:             2,
		StageTimeoutSeconds:        30,
		MaxUploadSizeMB:            5,
		UploadDir:                  s.T.TempDir(),
		BootstrapRetryAttempts:     3,
		BootstrapRetryDelaySeconds: 1,
	}
	if s.weaviateHost != "" {
		cfg.VectorBackend = config.BackendWeaviate
		cfg.WeaviateHost = s.weaviateHost
		cfg.WeaviateScheme = "http"
	}
	return cfg
}

func (s *IntegrationSuite) Teardown() {
	ctx := context.Background()
	if s.NSQ != nil {
		s.NSQ.Stop()
	}
	if s.DB != nil {
		s.DB.Close()
	}
	if s.pgContainer != nil {
		s.pgContainer.Terminate(ctx)
	}
	if s.weaviateContainer != nil {
		s.weaviateContainer.Terminate(ctx)
	}
	if s.nsqContainer != nil {
		s.nsqContainer.Terminate(ctx)
	}
}

// MigrationPath is the file:// URL of the repository's migrations directory.
func MigrationPath() string {
	_, b, _, _ := runtime.Caller(0)
	return fmt.Sprintf("file://%s", filepath.Join(filepath.Dir(b), "..", "..", "migrations"))
}
