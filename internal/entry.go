// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/nbsync/internal/api"
	"github.com/starford/nbsync/internal/docservice"
	"github.com/starford/nbsync/internal/index"
	"github.com/starford/nbsync/internal/mcpserver"
	"github.com/starford/nbsync/internal/notebook"
	"github.com/starford/nbsync/internal/runner"
	"github.com/starford/nbsync/internal/sse"
	"github.com/starford/nbsync/internal/storage"
	"github.com/starford/nbsync/internal/syncer"
)

// runtime holds the wired application components shared by all run modes.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	store  storage.Provider
	db     *index.DB
	sync   *syncer.Syncer
	svc    *docservice.Service
}

// newRuntime initializes logging, storage, the index, and the sync driver
// from the given options. logOut is where the structured logger writes; serve
// and sync modes use stdout, MCP mode must use stderr because stdout carries
// the protocol stream.
func newRuntime(logOut *os.File, notify syncer.EventCallback, opts ...Option) (*runtime, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
	}
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("workspace_path", cfg.Workspace.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("execution_enabled", cfg.Execution.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Workspace.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Workspace.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	var run runner.Runner = runner.Disabled{}
	if cfg.Execution.Enabled {
		run = &runner.Python{
			Interpreter: cfg.Execution.Python,
			Timeout:     cfg.Execution.Timeout(),
		}
	}

	defs := notebook.Defaults{
		KernelName:      cfg.Notebook.KernelName,
		DisplayName:     cfg.Notebook.DisplayName,
		Language:        cfg.Notebook.Language,
		LanguageVersion: cfg.Notebook.LanguageVersion,
	}

	sync := syncer.New(store, db, run, defs, logger, notify)
	svc := docservice.NewService(store, db, sync, defs)

	return &runtime{cfg: cfg, logger: logger, store: store, db: db, sync: sync, svc: svc}, nil
}

// Close releases the runtime's resources.
func (rt *runtime) Close() {
	if err := rt.db.Close(); err != nil {
		rt.logger.Error("index close error", slog.String("error", err.Error()))
	}
}

// RunSync performs a single reconciliation pass over the workspace and
// returns a non-nil error if any document failed.
func RunSync(ctx context.Context, opts ...Option) error {
	rt, err := newRuntime(os.Stdout, nil, opts...)
	if err != nil {
		return err
	}
	defer rt.Close()

	res, err := rt.sync.SyncAll(ctx)
	if err != nil {
		return err
	}
	rt.logger.Info("Sync pass finished",
		slog.Int("processed", res.Processed),
		slog.Int("conflicts", len(res.Conflicts)),
		slog.Int("failed", len(res.Failed)))
	return res.Err()
}

// RunWatch performs an initial pass and then keeps the workspace reconciled
// until a shutdown signal arrives.
func RunWatch(ctx context.Context, opts ...Option) error {
	rt, err := newRuntime(os.Stdout, nil, opts...)
	if err != nil {
		return err
	}
	defer rt.Close()

	if res, err := rt.sync.SyncAll(ctx); err != nil {
		rt.logger.Warn("initial sync failed", slog.String("error", err.Error()))
	} else if failErr := res.Err(); failErr != nil {
		rt.logger.Warn("initial sync incomplete", slog.String("error", failErr.Error()))
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return rt.sync.Watch(ctx, rt.cfg.Workspace.Path)
}

// RunMCP starts the MCP server on stdin/stdout. Logs go to stderr.
func RunMCP(_ context.Context, opts ...Option) error {
	rt, err := newRuntime(os.Stderr, nil, opts...)
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.logger.Info("Starting MCP server on stdio")
	return mcpserver.New(rt.svc).ServeStdio()
}

// Run starts the HTTP server together with the file watcher.
func Run(ctx context.Context, opts ...Option) error {
	broker := sse.NewBroker()
	rt, err := newRuntime(os.Stdout, broker.PublishSyncEvent, opts...)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := rt.cfg
	logger := rt.logger

	// Run initial sync.
	if res, err := rt.sync.SyncAll(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	} else if failErr := res.Err(); failErr != nil {
		logger.Warn("initial sync incomplete", slog.String("error", failErr.Error()))
	}

	apiRouter := api.NewRouter(rt.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Keep the workspace reconciled while serving.
	g.Go(func() error {
		if err := rt.sync.Watch(gCtx, cfg.Workspace.Path); err != nil {
			logger.Error("watcher error", slog.String("error", err.Error()))
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
