// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/starford/orbit/internal/api"
	"github.com/starford/orbit/internal/index"
	"github.com/starford/orbit/internal/mcpserver"
	"github.com/starford/orbit/internal/models"
	"github.com/starford/orbit/internal/orbit"
	"github.com/starford/orbit/internal/sse"
	"github.com/starford/orbit/internal/storage"
	"github.com/starford/orbit/internal/taxonomy"
	"github.com/starford/orbit/internal/templates"
	"github.com/starford/orbit/internal/watch"
)

// Run starts the watcher and the HTTP server with the given options and
// blocks until ctx is cancelled or a signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger, closeLog := app.newLogger()
	defer closeLog()
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Int("categories", len(cfg.Taxonomy.Categories)),
		slog.String("debounce", cfg.Watcher.Debounce.String()),
		slog.String("min_age", cfg.Watcher.MinAge.String()),
		slog.String("log_level", cfg.App.LogLevel.String()))

	store, err := app.openStore()
	if err != nil {
		return err
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	engine, err := app.newEngine(store, logger, orbit.WithCallback(func(ev orbit.Event) {
		broker.PublishChange(string(ev.Type), ev)
	}))
	if err != nil {
		return err
	}

	// Initialize SQLite index.
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer db.Close()

	if _, err := engine.Bootstrap(); err != nil {
		return fmt.Errorf("bootstrap vault: %w", err)
	}

	// Run initial sync.
	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	indexer := index.NewIndexer(db, store, logger, broker.PublishIndexChange)
	reconciler := orbit.NewReconciler(engine, cfg.Watcher.Debounce, logger)

	apiRouter := api.NewRouter(engine, db, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
		if !store.Exists("") {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"vault unavailable"}`))
			return
		}
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

	// Index first so the original path is recorded before the reconciler
	// moves the document away.
	g.Go(func() error {
		return watch.Watch(gCtx, cfg.Vault.Path, logger, indexer, reconciler)
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
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// Check audits the vault without changing it.
func Check(_ context.Context, opts ...Option) ([]orbit.Issue, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	logger, closeLog := app.newLogger()
	defer closeLog()

	store, err := storage.NewFS(app.config.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	engine, err := app.newEngine(store, logger)
	if err != nil {
		return nil, err
	}
	return engine.Audit()
}

// Setup scaffolds every category and refreshes the index, then exits.
func Setup(_ context.Context, opts ...Option) (orbit.BootstrapReport, error) {
	app, err := newApplication(opts)
	if err != nil {
		return orbit.BootstrapReport{}, err
	}
	logger, closeLog := app.newLogger()
	defer closeLog()

	store, err := app.openStore()
	if err != nil {
		return orbit.BootstrapReport{}, err
	}
	engine, err := app.newEngine(store, logger)
	if err != nil {
		return orbit.BootstrapReport{}, err
	}
	report, err := engine.Bootstrap()
	if err != nil {
		return report, fmt.Errorf("bootstrap vault: %w", err)
	}
	return report, app.syncIndex(store, logger)
}

// Promote turns the floating grouping at dir into a designated one and
// refreshes the index.
func Promote(_ context.Context, dir string, opts ...Option) (models.Grouping, error) {
	app, err := newApplication(opts)
	if err != nil {
		return models.Grouping{}, err
	}
	logger, closeLog := app.newLogger()
	defer closeLog()

	store, err := app.openStore()
	if err != nil {
		return models.Grouping{}, err
	}
	engine, err := app.newEngine(store, logger)
	if err != nil {
		return models.Grouping{}, err
	}
	g, err := engine.Promote(dir)
	if err != nil {
		return g, err
	}
	return g, app.syncIndex(store, logger)
}

// ServeMCP exposes the engine as MCP tools over stdio. Changes made through
// the tools are written to the index as they happen.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger, closeLog := app.newLogger()
	defer closeLog()
	slog.SetDefault(logger)

	store, err := app.openStore()
	if err != nil {
		return err
	}
	db, err := index.Open(app.config.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer db.Close()

	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	indexer := index.NewIndexer(db, store, logger, nil)
	engine, err := app.newEngine(store, logger, orbit.WithCallback(func(ev orbit.Event) {
		switch ev.Type {
		case orbit.EventMoved:
			indexer.Handle(ctx, watch.OpRemove, ev.From)
		case orbit.EventProcessed:
			indexer.Handle(ctx, watch.OpModify, ev.Path)
		case orbit.EventCreated:
			indexer.Handle(ctx, watch.OpCreate, ev.Path)
		case orbit.EventPromoted, orbit.EventScaffolded:
			indexer.Reconcile(ctx)
		}
	}))
	if err != nil {
		return err
	}
	if _, err := engine.Bootstrap(); err != nil {
		return fmt.Errorf("bootstrap vault: %w", err)
	}

	logger.Info("MCP server starting on stdio", slog.String("vault_path", app.config.Vault.Path))
	return mcpserver.New(engine, db).ServeStdio()
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logWriter: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// newLogger builds the structured JSON logger. When a log file is configured
// the stream is teed into a rotated file.
func (a *application) newLogger() (*slog.Logger, func()) {
	cfg := a.config.App
	w := a.logWriter
	closeFn := func() {}
	if cfg.LogFile != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		w = io.MultiWriter(w, rotated)
		closeFn = func() { _ = rotated.Close() }
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	return logger, closeFn
}

func (a *application) openStore() (*storage.FS, error) {
	// Ensure vault directory exists.
	if err := os.MkdirAll(a.config.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	store, err := storage.NewFS(a.config.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	return store, nil
}

func (a *application) newEngine(store storage.Provider, logger *slog.Logger, extra ...orbit.Option) (*orbit.Engine, error) {
	cfg := a.config
	renderer, err := templates.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("init templates: %w", err)
	}
	registry := taxonomy.New(store, renderer, cfg.Taxonomy.Categories, cfg.Taxonomy.Increment, logger)
	opts := []orbit.Option{
		orbit.WithLogger(logger),
		orbit.WithMinAge(cfg.Watcher.MinAge),
		orbit.WithStrict(cfg.Taxonomy.Strict),
		orbit.WithTemplatesDir(cfg.Vault.TemplatesDir),
	}
	return orbit.New(store, registry, renderer, append(opts, extra...)...), nil
}

func (a *application) syncIndex(store storage.Provider, logger *slog.Logger) error {
	db, err := index.Open(a.config.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer db.Close()
	return index.Sync(db, store, logger)
}
