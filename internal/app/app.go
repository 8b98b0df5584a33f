package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/spf13/afero"

	"github.com/jack-wz/utest/features/document"
	"github.com/jack-wz/utest/features/execution"
	"github.com/jack-wz/utest/features/model"
	"github.com/jack-wz/utest/features/workflow"
	"github.com/jack-wz/utest/internal/blob"
	"github.com/jack-wz/utest/internal/config"
	"github.com/jack-wz/utest/internal/engine"
	"github.com/jack-wz/utest/internal/extract"
	"github.com/jack-wz/utest/internal/middleware"
	"github.com/jack-wz/utest/internal/vector"
	"github.com/jack-wz/utest/internal/worker"
)

const (
	shutdownTimeout = 30 * time.Second
	restoreTimeout  = 10 * time.Second
)

type App struct {
	Handler      http.Handler
	Orchestrator *engine.Orchestrator
	Workflows    *workflow.Service
	RunConsumer  *worker.RunConsumer

	port int
}

func New(cfg *config.Config, deps *Dependencies) (*App, error) {
	fsys := deps.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	vectors := deps.Vectors
	if vectors == nil {
		vectors = vector.NewMemoryStore()
	}

	// Stores
	var (
		workflowRepo  workflow.Repository
		executionRepo execution.Repository
		documentRepo  document.Repository
		modelRepo     model.Repository
	)
	if deps.DB != nil {
		workflowRepo = workflow.NewPostgresRepo(deps.DB)
		executionRepo = execution.NewPostgresRepo(deps.DB)
		documentRepo = document.NewPostgresRepo(deps.DB)
		modelRepo = model.NewPostgresRepo(deps.DB)
	} else {
		workflowRepo = workflow.NewMemoryRepo()
		executionRepo = execution.NewMemoryRepo()
		documentRepo = document.NewMemoryRepo()
		modelRepo = model.NewMemoryRepo()
	}

	files := blob.NewProvider(fsys, cfg.UploadDir)
	extractor := extract.New(files)

	// Engine
	var notifier engine.Notifier
	if deps.NSQProducer != nil {
		notifier = worker.NewNotifier(deps.NSQProducer)
	}
	engineDeps := engine.Deps{
		Executions: executionRepo,
		Documents:  documentRepo,
		Extractor:  extractor,
		Vectors:    vectors,
		Notifier:   notifier,
	}
	var encoders model.Registrar
	if deps.Encoder != nil {
		engineDeps.Encoder = deps.Encoder
		encoders = deps.Encoder
	}
	engineOpts := []engine.Option{
		engine.WithPoolSize(cfg.WorkerPoolSize),
		engine.WithStageTimeout(cfg.StageTimeout()),
	}
	if deps.Meters != nil {
		engineOpts = append(engineOpts, engine.WithMeterProvider(deps.Meters.Provider))
	}
	orch, err := engine.New(engineDeps, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("engine init: %w", err)
	}

	// Features
	workflowService := workflow.NewService(workflowRepo, orch)
	workflowHandler := workflow.NewHandler(workflowService)

	executionService := execution.NewService(executionRepo, orch, workflowRepo, vectors, cfg.VectorBackend)
	executionHandler := execution.NewHandler(executionService)

	documentService := document.NewService(documentRepo, extractor, files)
	documentHandler := document.NewHandler(documentService, cfg.MaxUploadSizeMB)

	modelService := model.NewService(modelRepo, encoders)
	restoreCtx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
	defer cancel()
	if err := modelService.Restore(restoreCtx); err != nil {
		return nil, fmt.Errorf("restore models: %w", err)
	}
	modelHandler := model.NewHandler(modelService)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Correlation-ID")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /workflows", middleware.CorrelationID(enableCORS(workflowHandler.Create)))
	mux.Handle("GET /workflows", middleware.CorrelationID(enableCORS(workflowHandler.List)))
	mux.Handle("GET /workflows/{id}", middleware.CorrelationID(enableCORS(workflowHandler.Get)))
	mux.Handle("PUT /workflows/{id}", middleware.CorrelationID(enableCORS(workflowHandler.Update)))
	mux.Handle("POST /workflows/{id}/run", middleware.CorrelationID(enableCORS(workflowHandler.Run)))

	mux.Handle("GET /executions", middleware.CorrelationID(enableCORS(executionHandler.List)))
	mux.Handle("GET /executions/{id}", middleware.CorrelationID(enableCORS(executionHandler.Get)))
	mux.Handle("POST /executions/{id}/retry", middleware.CorrelationID(enableCORS(executionHandler.Retry)))
	mux.Handle("POST /executions/{id}/cancel", middleware.CorrelationID(enableCORS(executionHandler.Cancel)))

	mux.Handle("POST /documents/upload", middleware.CorrelationID(enableCORS(documentHandler.Upload)))
	mux.Handle("POST /documents/process", middleware.CorrelationID(enableCORS(documentHandler.Process)))
	mux.Handle("GET /documents/{id}", middleware.CorrelationID(enableCORS(documentHandler.Get)))
	mux.Handle("POST /documents/{id}/chunks", middleware.CorrelationID(enableCORS(documentHandler.Chunk)))
	mux.Handle("GET /documents/{id}/chunks", middleware.CorrelationID(enableCORS(documentHandler.ListChunks)))
	mux.Handle("GET /documents/{id}/visualization", middleware.CorrelationID(enableCORS(documentHandler.Visualize)))
	mux.Handle("GET /documents/{id}/comparison", middleware.CorrelationID(enableCORS(documentHandler.Compare)))
	mux.Handle("PUT /chunks/{id}", middleware.CorrelationID(enableCORS(documentHandler.EditChunk)))

	mux.Handle("POST /models", middleware.CorrelationID(enableCORS(modelHandler.Create)))
	mux.Handle("GET /models", middleware.CorrelationID(enableCORS(modelHandler.List)))

	mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(executionHandler.GetStats)))
	mux.Handle("GET /health", middleware.CorrelationID(enableCORS(executionHandler.Health)))
	if deps.Meters != nil {
		mux.Handle("GET /metrics", middleware.CorrelationID(enableCORS(metricsHandler(deps.Meters))))
	}

	return &App{
		Handler:      mux,
		Orchestrator: orch,
		Workflows:    workflowService,
		RunConsumer:  worker.NewRunConsumer(workflowRepo, orch),
		port:         cfg.ServerPort,
	}, nil
}

// StartConsumer subscribes the run consumer to the workflow.run topic through
// nsqlookupd. The caller stops the returned consumer.
func (a *App) StartConsumer(lookupd string) (*nsq.Consumer, error) {
	consumer, err := nsq.NewConsumer(config.TopicWorkflowRun, config.ChannelEngine, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("nsq consumer error: %w", err)
	}
	consumer.AddHandler(a.RunConsumer)
	if err := consumer.ConnectToNSQLookupd(lookupd); err != nil {
		consumer.Stop()
		return nil, fmt.Errorf("connect to nsqlookupd: %w", err)
	}
	slog.Info("workflow run consumer connected", "topic", config.TopicWorkflowRun, "lookupd", lookupd)
	return consumer, nil
}

// Run serves HTTP until ctx is cancelled, then drains the server and the
// engine's in-flight runs.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.port),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
		if err := a.Orchestrator.Shutdown(shutdownCtx); err != nil {
			slog.Error("engine shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done
	return nil
}
