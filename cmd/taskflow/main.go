// Package main provides the taskflow binary entry point.
// Taskflow is a project task orchestration service: it persists DAG
// project plans, materializes execution tasks as their preconditions
// complete, and runs position-based approval chains over submissions.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/crestline/taskflow/api"
	"github.com/crestline/taskflow/approval"
	"github.com/crestline/taskflow/config"
	"github.com/crestline/taskflow/directory"
	"github.com/crestline/taskflow/metrics"
	"github.com/crestline/taskflow/query"
	"github.com/crestline/taskflow/store"
	"github.com/crestline/taskflow/workflow"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "taskflow"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Project task orchestration and approval service",
		Long: `Taskflow persists DAG project plans, materializes execution tasks as
their predecessors complete, and routes task submissions through
position-based approval chains.`,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")

	cmd.AddCommand(serveCmd(&configPath))
	cmd.AddCommand(migrateCmd(&configPath))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			st, err := store.Open(ctx, cfg.Database.DSN, logger)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info("migrations applied")
			return nil
		},
	}
}

// setup loads configuration and installs the configured logger.
func setup(configPath string) (*config.Config, *slog.Logger, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
		if err == nil {
			err = cfg.Validate()
		}
	} else {
		cfg, err = config.NewLoader(nil).Load()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger := buildLogger(cfg.Logging)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func buildLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	st, err := store.Open(ctx, cfg.Database.DSN, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	if cfg.Database.MaxOpenConns > 0 {
		st.DB().SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	gen, err := approval.NewIDGenerator(cfg.Snowflake.DatacenterID, cfg.Snowflake.WorkerID)
	if err != nil {
		return fmt.Errorf("snowflake: %w", err)
	}

	registry := prometheus.NewRegistry()
	flows := workflow.NewService(st, approval.NewEngine(gen, logger), metrics.New(registry), logger)
	queries := query.NewService(st, directory.NewService(st, logger), logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewServer(flows, queries, registry, logger).Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(signalCtx)
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.Server.Addr, "version", Version)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
