package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
)

// pingBackoff bounds how long New waits for a database that is still
// starting.
var pingBackoff = func() retry.Backoff {
	return retry.WithMaxRetries(4, retry.NewExponential(250*time.Millisecond))
}

// New creates a new PostgreSQL connection pool.
func New(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("platform/db: parse config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("platform/db: new pool: %w", err)
	}

	if err := waitReady(ctx, pool.Ping); err != nil {
		pool.Close()
		return nil, fmt.Errorf("platform/db: ping: %w", err)
	}

	return pool, nil
}

func waitReady(ctx context.Context, ping func(context.Context) error) error {
	return retry.Do(ctx, pingBackoff(), func(ctx context.Context) error {
		if err := ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
