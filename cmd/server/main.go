// Package main is the entrypoint for the floorcast API server.
package main

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

	"github.com/kiranshivaraju/floorcast/internal/api"
	"github.com/kiranshivaraju/floorcast/internal/api/handler"
	"github.com/kiranshivaraju/floorcast/internal/api/response"
	"github.com/kiranshivaraju/floorcast/internal/cache"
	"github.com/kiranshivaraju/floorcast/internal/catalog"
	"github.com/kiranshivaraju/floorcast/internal/config"
	"github.com/kiranshivaraju/floorcast/internal/generate"
	"github.com/kiranshivaraju/floorcast/internal/orchestrator"
	"github.com/kiranshivaraju/floorcast/internal/outputs"
	"github.com/kiranshivaraju/floorcast/internal/prompt"
	"github.com/kiranshivaraju/floorcast/internal/queue"
	"github.com/kiranshivaraju/floorcast/internal/resolver"
	"github.com/kiranshivaraju/floorcast/internal/store"
	"github.com/kiranshivaraju/floorcast/internal/uploads"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "generator", cfg.Generation.Provider, "env", cfg.Server.Env,
		"prompt_version", cfg.Jobs.PromptVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Load the reference catalog and open file stores
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	slog.Info("catalog loaded", "floors", len(cat.ListProducts()), "samples", len(cat.ListSamples()))

	uploadStore, err := uploads.NewStore(cfg.Storage.UploadDir, cfg.Storage.MaxUploadBytes)
	if err != nil {
		return fmt.Errorf("open upload store: %w", err)
	}
	outputStore, err := outputs.NewStore(cfg.Storage.OutputDir)
	if err != nil {
		return fmt.Errorf("open output store: %w", err)
	}

	// 6. Create image generator
	generator, err := generate.NewGenerator(cfg.Generation)
	if err != nil {
		return fmt.Errorf("create generator: %w", err)
	}
	slog.Info("generator initialized", "generator", generator.Name())

	// 7. Build the orchestrator and its queue
	pgStore := store.NewPostgresStore(pool)
	jobQueue := queue.New(cfg.Jobs.QueueSize)

	svc := orchestrator.New(orchestrator.Dependencies{
		Store:          pgStore,
		Cache:          redisCache,
		Resolver:       resolver.New(cat, uploadStore),
		Catalog:        cat,
		Composer:       prompt.NewComposer("", cfg.Jobs.PromptVersion),
		Generator:      generator,
		Outputs:        outputStore,
		Queue:          jobQueue,
		IdempotencyTTL: cfg.Jobs.IdempotencyTTL,
	})

	if err := svc.Recover(ctx); err != nil {
		return fmt.Errorf("recover jobs: %w", err)
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	jobQueue.Start(workerCtx, cfg.Jobs.WorkerConcurrency, svc.Execute)
	slog.Info("workers started", "count", cfg.Jobs.WorkerConcurrency, "queue_size", cfg.Jobs.QueueSize)

	// 8. Build router with dependencies
	router := api.NewRouter(routerDeps(svc, cat, uploadStore, outputStore, cfg.Storage.MaxUploadBytes,
		healthHandler(pgStore, redisCache)))

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	// Jobs already picked up run to completion; queued ones are
	// rescheduled by Recover on the next start.
	stopWorkers()
	if err := jobQueue.Wait(shutdownCtx); err != nil {
		slog.Warn("workers did not stop in time", "error", err, "queued", jobQueue.Len())
	}

	slog.Info("server stopped gracefully")
	return nil
}

// routerDeps wires the HTTP handlers to their services.
func routerDeps(svc handler.JobService, cat handler.CatalogLister, up handler.Uploader,
	out *outputs.Store, maxUpload int64, health http.HandlerFunc) api.Dependencies {
	return api.Dependencies{
		HealthHandler:      health,
		ListFloorsHandler:  handler.NewListFloorsHandler(cat),
		ListSamplesHandler: handler.NewListSamplesHandler(cat),
		UploadHandler:      handler.NewUploadHandler(up, maxUpload),
		CreateJobHandler:   handler.NewCreateJobHandler(svc, handler.NewValidator()),
		GetJobHandler:      handler.NewGetJobHandler(svc),
		OutputDir:          out.Dir(),
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database and cache connectivity.
func healthHandler(db, c pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
