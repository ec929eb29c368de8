// Package database owns the PostgreSQL connection pool and the schema
// migration run that must complete before the pool is handed to traffic.
package database

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pventura/tidepool/internal/logger"
	"github.com/pventura/tidepool/pkg/metrics/prometheus"
)

// Pool is a bounded set of reusable PostgreSQL connections.
//
// A Pool is created once at startup by Connect, shared (not owned) by every
// request, and closed exactly once at shutdown. It is safe for concurrent
// use; pgxpool serializes connection checkout internally.
type Pool struct {
	pool      *pgxpool.Pool
	cfg       Config
	closeOnce sync.Once
}

// Connect establishes the connection pool and verifies connectivity with a
// ping, bounded by the configured connect timeout.
//
// Returns a *ConnectError on parse, dial, authentication, or timeout
// failure. The pool is not usable for traffic until Migrate has succeeded.
func Connect(ctx context.Context, cfg Config) (*Pool, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, &ConnectError{Reason: "invalid configuration", Err: err}
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, &ConnectError{Reason: "invalid connection string", Err: err}
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	logger.Info("Creating PostgreSQL connection pool",
		"max_conns", cfg.MaxConns,
		"min_conns", cfg.MinConns,
		"connect_timeout", cfg.ConnectTimeout.String(),
	)

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, &ConnectError{Reason: "failed to create pool", Err: err}
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, &ConnectError{Reason: "connectivity probe failed", Err: err}
	}

	logger.Info("PostgreSQL connection pool ready")
	return &Pool{pool: pool, cfg: cfg}, nil
}

// Acquire borrows one connection from the pool, bounded by the configured
// acquire timeout.
//
// When the pool is saturated and the timeout elapses, Acquire returns
// ErrPoolExhausted rather than blocking indefinitely. Cancellation of the
// caller's context is propagated unchanged.
//
// Callers must Release the returned connection on every exit path; prefer
// WithConn for scoped use.
func (p *Pool) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()

	conn, err := p.pool.Acquire(acquireCtx)
	if err != nil {
		// The acquire deadline fired while the caller is still live:
		// every pooled connection was checked out for the whole window.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			prometheus.DBPoolExhausted.Inc()
			return nil, ErrPoolExhausted
		}
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	prometheus.DBAcquires.Inc()
	return conn, nil
}

// WithConn runs fn with a borrowed connection and guarantees the connection
// is returned to the pool on every exit path: success, error, panic, or
// context cancellation.
func (p *Pool) WithConn(ctx context.Context, fn func(context.Context, *pgxpool.Conn) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	return fn(ctx, conn)
}

// Healthcheck verifies the pool can reach the database.
func (p *Pool) Healthcheck(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// Stat returns a snapshot of pool usage.
func (p *Pool) Stat() *pgxpool.Stat {
	return p.pool.Stat()
}

// Close releases all pooled connections. Safe to call multiple times;
// only the first call has effect.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		logger.Info("Closing PostgreSQL connection pool")
		p.pool.Close()
	})
}
