// Package postgres builds the pgx connection pool shared by the stores,
// with OpenTelemetry spans and structured logging for every query.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/go-core/log"
)

// NewPool connects to PostgreSQL and verifies the connection.
func NewPool(ctx context.Context, databaseURL string, logger log.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if logger == nil {
		logger = log.Nop()
	}
	cfg.ConnConfig.Tracer = &loggingTracer{
		inner:  otelpgx.NewTracer(),
		logger: logger.With("component", "postgres"),
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

type startKey struct{}

// loggingTracer wraps another pgx.QueryTracer (otelpgx) and adds a
// structured log line for slow or failed queries.
type loggingTracer struct {
	inner  pgx.QueryTracer
	logger log.Logger
}

// slowQueryThreshold controls which successful queries get a log line.
const slowQueryThreshold = 250 * time.Millisecond

func (t *loggingTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	ctx = t.inner.TraceQueryStart(ctx, conn, data)
	return context.WithValue(ctx, startKey{}, time.Now())
}

func (t *loggingTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	t.inner.TraceQueryEnd(ctx, conn, data)

	var dur time.Duration
	if start, ok := ctx.Value(startKey{}).(time.Time); ok {
		dur = time.Since(start)
	}

	switch {
	case data.Err != nil:
		t.logger.Error(ctx, data.Err, "query failed", "duration", dur)
	case dur >= slowQueryThreshold:
		t.logger.Warn(ctx, "slow query", "duration", dur, "command", data.CommandTag.String())
	}
}
