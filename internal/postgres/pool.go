// Package postgres opens instrumented pgx connection pools: every query gets
// an OpenTelemetry span, a structured log line and an optional metrics
// callback.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Options tune the pool instrumentation.
type Options struct {
	Observer QueryObserver
	// SlowQuery suppresses log lines for successful queries faster than it.
	SlowQuery time.Duration
	// MaxConns overrides the pgx default when > 0.
	MaxConns int32
}

// NewPool parses databaseURL, installs the query tracer and verifies the
// connection.
func NewPool(ctx context.Context, databaseURL string, opts Options) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.ConnConfig.Tracer = &queryTracer{
		inner:     otelpgx.NewTracer(),
		observer:  opts.Observer,
		slowQuery: opts.SlowQuery,
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.NewWithConfig: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}
