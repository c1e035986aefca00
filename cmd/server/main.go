// Package main is the entrypoint for the creatorgen API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kiranshivaraju/creatorgen/internal/ai"
	"github.com/kiranshivaraju/creatorgen/internal/ai/providers"
	"github.com/kiranshivaraju/creatorgen/internal/api"
	"github.com/kiranshivaraju/creatorgen/internal/api/handler"
	mw "github.com/kiranshivaraju/creatorgen/internal/api/middleware"
	"github.com/kiranshivaraju/creatorgen/internal/cache"
	"github.com/kiranshivaraju/creatorgen/internal/config"
	"github.com/kiranshivaraju/creatorgen/internal/jobs"
	"github.com/kiranshivaraju/creatorgen/internal/queue"
	"github.com/kiranshivaraju/creatorgen/internal/queue/rabbitmq"
	"github.com/kiranshivaraju/creatorgen/internal/store"
	"github.com/kiranshivaraju/creatorgen/pkg/models"
)

const (
	shutdownTimeout = 30 * time.Second
	// memoryQueueDepth is the per-worker buffer of the in-process queue.
	memoryQueueDepth = 64
)

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
	slog.Info("config loaded",
		"ai_provider", cfg.AI.Provider,
		"queue_driver", cfg.Queue.Driver,
		"env", cfg.Server.Env,
	)

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
	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
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

	// 5. Create AI provider; missing credentials disable generation only
	gen, err := newGenerator(ctx, cfg.AI)
	if err != nil {
		return err
	}

	// 6. Create store and job queue
	pgStore := store.NewPostgresStore(pool)

	var (
		q        queue.Queue
		memQueue *queue.Memory
	)
	switch cfg.Queue.Driver {
	case "rabbitmq":
		pub, err := rabbitmq.NewPublisher(cfg.Queue.RabbitURL, cfg.Queue.Name)
		if err != nil {
			return fmt.Errorf("connect rabbitmq: %w", err)
		}
		defer pub.Close()
		q = pub
		slog.Info("rabbitmq publisher ready", "queue", cfg.Queue.Name)
	default:
		memQueue = queue.NewMemory(cfg.Worker.Concurrency*memoryQueueDepth, cfg.Worker.Concurrency)
		q = memQueue
	}

	// 7. In memory mode this process also runs the workers and the sweeper
	var workers sync.WaitGroup
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	if memQueue != nil {
		worker, err := jobs.NewWorker(pgStore, gen, redisCache, cfg.AI.InferenceTimeout.Duration)
		if err != nil {
			return fmt.Errorf("create worker: %w", err)
		}
		sweeper := jobs.NewSweeper(pgStore, redisCache, cfg.Worker.StaleAfter.Duration)
		if err := sweeper.Start(cfg.Worker.SweepSpec); err != nil {
			return fmt.Errorf("start sweeper: %w", err)
		}
		defer sweeper.Stop()

		workers.Add(1)
		go func() {
			defer workers.Done()
			memQueue.Consume(workerCtx, worker.Process)
		}()
		slog.Info("in-process workers started", "concurrency", cfg.Worker.Concurrency)
	}

	// 8. Build router with dependencies
	submitter := jobs.NewSubmitter(pgStore, q, gen, redisCache)

	deps := api.Dependencies{
		Auth:      mw.NewAuth(pgStore, cfg.Auth.JWTSecret),
		RateLimit: mw.NewRateLimit(redisCache, cfg.Server.RequestsPerMinute),

		HealthHandler:    handler.NewHealthHandler(pgStore, redisCache, gen),
		SubmitJobHandler: handler.NewSubmitJobHandler(submitter),
		ListJobsHandler:  handler.NewListJobsHandler(pgStore),
		GetJobHandler:    handler.NewGetJobHandler(pgStore),
		WatchJobHandler:  handler.NewWatchJobHandler(pgStore, redisCache, handler.WatchLimit),
		UsageHandler:     handler.NewUsageHandler(submitter.Quota()),
		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Long enough for a websocket watch to run its full course.
		WriteTimeout: handler.WatchLimit + 15*time.Second,
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

	// No new submissions can arrive; let the workers drain what is buffered.
	if memQueue != nil {
		memQueue.Close()
		if !waitTimeout(&workers, shutdownTimeout) {
			stopWorkers()
			slog.Warn("workers did not drain before shutdown timeout", "remaining", memQueue.Len())
		}
	}

	slog.Info("server stopped gracefully")
	return nil
}

// newGenerator builds the configured provider. A provider without credentials
// yields a nil generator and a warning; any other failure is fatal.
func newGenerator(ctx context.Context, cfg config.AIConfig) (models.Generator, error) {
	gen, err := providers.New(ctx, cfg, &http.Client{Timeout: cfg.InferenceTimeout.Duration})
	if errors.Is(err, ai.ErrNotConfigured) {
		slog.Warn("AI provider not configured, submissions will be rejected",
			"provider", cfg.Provider, "error", err)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", gen.Name(), "model", gen.Model())
	return gen, nil
}

// waitTimeout reports whether wg finished within d.
func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
