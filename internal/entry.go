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
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"github.com/starford/commentmap/internal/api"
	"github.com/starford/commentmap/internal/commentservice"
	"github.com/starford/commentmap/internal/doctree"
	"github.com/starford/commentmap/internal/index"
	"github.com/starford/commentmap/internal/mcpserver"
	"github.com/starford/commentmap/internal/metrics"
	"github.com/starford/commentmap/internal/sse"
	"github.com/starford/commentmap/internal/storage"
)

// components are the long-lived parts shared by the HTTP and MCP modes.
type components struct {
	logger *slog.Logger
	docs   *doctree.Store
	db     *index.DB
}

func (a *application) init(opts []Option) error {
	for _, opt := range opts {
		opt(a)
	}
	if a.config == nil {
		return fmt.Errorf("config is required")
	}
	if a.logOutput == nil {
		a.logOutput = os.Stdout
	}
	return nil
}

// setup builds the logger, inbox, document store and index, then runs the
// initial sync. The caller closes c.db. m may be nil.
func (a *application) setup(events index.EventCallback, m *metrics.Metrics) (*components, *commentservice.Service, error) {
	cfg := a.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("document_path", cfg.Document.Path),
		slog.String("inbox_path", cfg.Inbox.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("fallback_label", cfg.Enrich.FallbackLabel),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure inbox directory exists.
	if err := os.MkdirAll(cfg.Inbox.Path, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create inbox dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Inbox.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}

	// A missing or broken document is not fatal: comments still index with
	// fallback labels until a valid export arrives.
	docs := doctree.NewStore(cfg.Document.Path)
	if _, err := docs.Load(); err != nil {
		logger.Warn("document not loaded", slog.String("path", cfg.Document.Path), slog.String("error", err.Error()))
	} else {
		sum := docs.Summary()
		logger.Info("document loaded", slog.String("name", sum.Name), slog.Int("nodes", sum.Nodes))
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init index: %w", err)
	}

	opts := []commentservice.Option{
		commentservice.WithLogger(logger),
		commentservice.WithFallbackLabel(cfg.Enrich.FallbackLabel),
		commentservice.WithMaxDepth(cfg.Enrich.MaxDepth),
	}
	if events != nil {
		opts = append(opts, commentservice.WithEvents(events))
	}
	if m != nil {
		opts = append(opts, commentservice.WithEnricherWrapper(m.Enricher))
	}
	svc := commentservice.NewService(store, db, docs, opts...)

	// Run initial sync. Forced so a changed document or fallback label is
	// reflected in rows stored by a previous run.
	if _, err := svc.Sync(context.Background(), true); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	return &components{logger: logger, docs: docs, db: db}, svc, nil
}

// Run starts the HTTP server, the SSE broker and the inbox watcher.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}
	if err := app.init(opts); err != nil {
		return err
	}
	cfg := app.config

	broker := sse.NewBroker(cfg.SSE.FramesThrottle)
	defer broker.Close()

	var m *metrics.Metrics
	var events index.EventCallback = broker.PublishChange
	if cfg.Metrics.Enabled {
		m = metrics.New()
		events = m.Events(broker.PublishChange)
	}

	c, svc, err := app.setup(events, m)
	if err != nil {
		return err
	}
	defer c.db.Close()
	logger := c.logger

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if m != nil {
		r.Use(m.Middleware)
	}
	if len(cfg.App.HTTP.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.App.HTTP.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "If-Match", "X-Request-Id"},
			ExposedHeaders: []string{"ETag", "X-Request-Id"},
			MaxAge:         300,
		}))
	}

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if c.docs.Tree() == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"document not loaded"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if m != nil {
		r.Handle(cfg.Metrics.Path, m.Handler())
	}

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher. It syncs through the service, which publishes the
	// resulting changes to SSE.
	g.Go(func() error {
		var docPath string
		if cfg.Document.Watch {
			docPath = c.docs.Path()
		}
		if err := index.Watch(gCtx, svc, cfg.Inbox.Path, docPath, logger); err != nil {
			logger.Error("watcher failed", slog.String("error", err.Error()))
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
		// SSE handlers block until their subscription closes.
		broker.Close()

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the errgroup context so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools over stdio until stdin closes.
func RunMCP(_ context.Context, opts ...Option) error {
	app := &application{}
	if err := app.init(append([]Option{WithLogOutput(os.Stderr)}, opts...)); err != nil {
		return err
	}

	c, svc, err := app.setup(nil, nil)
	if err != nil {
		return err
	}
	defer c.db.Close()

	c.logger.Info("MCP server starting on stdio")
	return mcpserver.New(svc).ServeStdio()
}
