// Package main is the entrypoint for the creatorgen job worker. It consumes
// work items from RabbitMQ and runs the stale job sweeper.
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

	"github.com/kiranshivaraju/creatorgen/internal/ai"
	"github.com/kiranshivaraju/creatorgen/internal/ai/providers"
	"github.com/kiranshivaraju/creatorgen/internal/cache"
	"github.com/kiranshivaraju/creatorgen/internal/config"
	"github.com/kiranshivaraju/creatorgen/internal/jobs"
	"github.com/kiranshivaraju/creatorgen/internal/queue"
	"github.com/kiranshivaraju/creatorgen/internal/queue/rabbitmq"
	"github.com/kiranshivaraju/creatorgen/internal/store"
)

// errMemoryQueue is returned when the worker is started without a broker to
// consume from.
var errMemoryQueue = errors.New("worker requires QUEUE_DRIVER=rabbitmq; the memory queue runs inside the server")

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Queue.Driver != "rabbitmq" {
		return errMemoryQueue
	}
	slog.Info("config loaded",
		"ai_provider", cfg.AI.Provider,
		"queue", cfg.Queue.Name,
		"concurrency", cfg.Worker.Concurrency,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	pgStore := store.NewPostgresStore(pool)

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()
	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	// Jobs picked up without a provider fail with a clear message instead of
	// sitting in processing until the sweeper finds them.
	gen, err := providers.New(ctx, cfg.AI, &http.Client{Timeout: cfg.AI.InferenceTimeout.Duration})
	switch {
	case errors.Is(err, ai.ErrNotConfigured):
		slog.Warn("AI provider not configured, jobs will fail", "provider", cfg.AI.Provider, "error", err)
		gen = nil
	case err != nil:
		return fmt.Errorf("create AI provider: %w", err)
	default:
		slog.Info("AI provider initialized", "provider", gen.Name(), "model", gen.Model())
	}

	worker, err := jobs.NewWorker(pgStore, gen, redisCache, cfg.AI.InferenceTimeout.Duration)
	if err != nil {
		return fmt.Errorf("create worker: %w", err)
	}

	sweeper := jobs.NewSweeper(pgStore, redisCache, cfg.Worker.StaleAfter.Duration)
	if err := sweeper.Start(cfg.Worker.SweepSpec); err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}
	defer sweeper.Stop()

	consumer, err := rabbitmq.NewConsumer(cfg.Queue.RabbitURL, cfg.Queue.Name, cfg.Worker.Concurrency)
	if err != nil {
		return fmt.Errorf("connect rabbitmq: %w", err)
	}
	defer consumer.Close()

	slog.Info("worker consuming", "queue", cfg.Queue.Name)
	err = consumer.Consume(ctx, worker.Process)
	if errors.Is(err, queue.ErrClosed) {
		return fmt.Errorf("broker closed the delivery channel: %w", err)
	}
	if err != nil {
		return err
	}

	slog.Info("worker stopped gracefully")
	return nil
}
