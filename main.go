package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jack-wz/utest/internal/app"
	"github.com/jack-wz/utest/internal/config"
	"github.com/jack-wz/utest/internal/engine"
	"github.com/jack-wz/utest/internal/graph"
	"github.com/jack-wz/utest/internal/logger"
)

func main() {
	// Initialize structured logger
	log := logger.New(os.Stdout, logger.ParseLevel(os.Getenv("LOG_LEVEL")))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(log).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(log *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "utest",
		Short:         "Document-to-vector workflow engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), log)
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the workflow.run consumer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), log)
		},
	})

	var workflowPath string
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a workflow definition file in-process and print the execution",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				log.Error("failed to load config", "error", err)
				return err
			}
			return runWorkflow(cmd.Context(), cfg, workflowPath, cmd.OutOrStdout())
		},
	}
	runCmd.Flags().StringVarP(&workflowPath, "workflow", "w", "", "workflow definition (.yaml, .yml or .json)")
	_ = runCmd.MarkFlagRequired("workflow")
	root.AddCommand(runCmd)

	return root
}

func serve(ctx context.Context, log *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load config", "error", err)
		return err
	}
	// LOG_LEVEL may come from .env, which is only read by config.Load.
	log = logger.New(os.Stdout, logger.ParseLevel(cfg.LogLevel))
	slog.SetDefault(log)
	return run(ctx, cfg, log)
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		log.Error("bootstrap failed", "error", err)
		return err
	}
	defer deps.Close()

	a, err := app.New(cfg, deps)
	if err != nil {
		log.Error("failed to initialize app", "error", err)
		return err
	}

	if cfg.NSQEnabled {
		consumer, err := a.StartConsumer(cfg.NSQLookupd)
		if err != nil {
			log.Error("failed to start workflow consumer", "error", err)
		} else {
			defer consumer.Stop()
		}
	}

	return a.Run(ctx)
}

func runWorkflow(ctx context.Context, cfg *config.Config, path string, out io.Writer) error {
	w, err := loadWorkflow(path)
	if err != nil {
		return err
	}

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	a, err := app.New(cfg, deps)
	if err != nil {
		return err
	}
	defer a.Orchestrator.Shutdown(context.WithoutCancel(ctx))

	execID, err := a.Orchestrator.Start(ctx, w)
	if err != nil {
		return err
	}
	exec, err := a.Orchestrator.Wait(ctx, execID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(exec); err != nil {
		return fmt.Errorf("print execution: %w", err)
	}
	if exec.Status == engine.StatusFailed {
		return fmt.Errorf("execution %s failed: %s", exec.ID, exec.ErrorMessage)
	}
	return nil
}

// loadWorkflow reads a workflow definition. JSON files are decoded as JSON,
// everything else as YAML.
func loadWorkflow(path string) (*graph.Workflow, error) {
	if path == "" {
		return nil, errors.New("workflow file is required")
	}
	data, err := os.ReadFile(path) // #nosec G304 -- path is an operator-supplied CLI flag
	if err != nil {
		return nil, fmt.Errorf("read workflow: %w", err)
	}

	var w graph.Workflow
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &w)
	} else {
		err = yaml.Unmarshal(data, &w)
	}
	if err != nil {
		return nil, fmt.Errorf("decode workflow %s: %w", path, err)
	}
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	return &w, nil
}
