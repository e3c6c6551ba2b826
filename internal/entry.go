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

	"github.com/starford/laguz/internal/api"
	"github.com/starford/laguz/internal/dataset"
	"github.com/starford/laguz/internal/index"
	"github.com/starford/laguz/internal/labels"
	"github.com/starford/laguz/internal/labelservice"
	"github.com/starford/laguz/internal/preview"
	"github.com/starford/laguz/internal/session"
	"github.com/starford/laguz/internal/sse"
	"github.com/starford/laguz/internal/storage"
	"github.com/starford/laguz/internal/watch"
)

const statsThrottle = 2 * time.Second

// Run starts the HTTP server and the image watcher with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config
	logger := app.logger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("dataset_root", cfg.Dataset.Root),
		slog.String("dataset_file", cfg.Dataset.File),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure the image root exists.
	if err := os.MkdirAll(cfg.Dataset.Root, 0o755); err != nil {
		return fmt.Errorf("create dataset root: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer db.Close()

	broker := sse.NewBroker(statsThrottle)
	defer broker.Close()

	svc, err := app.service(logger, db, broker)
	if err != nil {
		return err
	}
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
		if _, err := os.Stat(cfg.Dataset.Root); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"dataset root unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","session":%q,"sse_clients":%d}`,
			svc.State().Status, broker.ClientCount())
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	// Cancelled on shutdown so the watcher stops with the server.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	// Tell clients about images appearing under the root; a rescan picks them up.
	g.Go(func() error {
		err := watch.Watch(gCtx, cfg.Dataset.Root, logger, func(kind, path string) {
			broker.PublishImageEvent(kind, path)
		})
		if err != nil {
			logger.Warn("image watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

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
		cancel()

		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		if err := svc.Shutdown(shutdownCtx, cfg.Session.SaveOnExit); err != nil {
			logger.Error("session shutdown error", slog.String("error", err.Error()))
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

// logger builds the JSON logger and installs it as the default.
func (a *application) logger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(a.logOut, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// service assembles the labeling service from the configuration. db and
// events may be nil.
func (a *application) service(logger *slog.Logger, db index.Store, events *sse.Broker) (*labelservice.Service, error) {
	cfg := a.config

	vocab, err := cfg.Labels.Build()
	if err != nil {
		return nil, fmt.Errorf("init vocabulary: %w", err)
	}
	selection, err := labels.ParseSelectionPolicy(cfg.Policy.Selection)
	if err != nil {
		return nil, err
	}
	empty, err := labels.ParseEmptyPolicy(cfg.Policy.Empty)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewFS(cfg.Dataset.Root)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	renderer, err := preview.New(cfg.Preview.Renderer(), logger)
	if err != nil {
		return nil, fmt.Errorf("init preview: %w", err)
	}

	opts := []labelservice.Option{
		labelservice.WithLogger(logger),
		labelservice.WithFileName(cfg.Dataset.File),
		labelservice.WithRenderer(renderer),
		labelservice.WithSessionOptions(
			session.WithSelectionPolicy(selection),
			session.WithEmptyPolicy(empty),
			session.WithAutosave(cfg.Session.Autosave),
		),
		labelservice.WithTableOptions(dataset.WithWalkerOptions(cfg.Dataset.WalkerOptions()...)),
	}
	if db != nil {
		opts = append(opts, labelservice.WithIndex(db))
	}
	if events != nil {
		opts = append(opts, labelservice.WithEvents(events))
	}
	return labelservice.New(store, labels.NewCodec(vocab), opts...), nil
}
