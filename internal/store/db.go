package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/creatorgen/internal/config"
)

const (
	connectAttempts = 5
	// connectBackoff doubles after each failed ping.
	connectBackoff = 500 * time.Millisecond
	pingTimeout    = 5 * time.Second
)

// Connect opens a pgx pool sized from cfg. The server and worker usually start
// alongside Postgres, so the ping is retried with backoff before giving up.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pingWithRetry(ctx, pool.Ping, connectAttempts, connectBackoff); err != nil {
		pool.Close()
		return nil, err
	}

	slog.Info("database connected",
		"host", poolCfg.ConnConfig.Host,
		"database", poolCfg.ConnConfig.Database,
		"max_conns", poolCfg.MaxConns,
		"min_conns", poolCfg.MinConns,
	)
	return pool, nil
}

// poolConfig parses the URL and applies the pool limits. The idle floor never
// exceeds the ceiling.
func poolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolCfg.MinConns = min(int32(cfg.MaxIdleConns), poolCfg.MaxConns)
	}
	if cfg.ConnMaxLifetime.Duration > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime.Duration
	}
	return poolCfg, nil
}

func pingWithRetry(ctx context.Context, ping func(context.Context) error, attempts int, backoff time.Duration) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err = ping(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		slog.Warn("database not ready, retrying",
			"attempt", attempt, "backoff_ms", backoff.Milliseconds(), "error", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("ping database: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("ping database after %d attempts: %w", attempts, err)
}
