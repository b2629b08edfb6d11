// Package postgres implements internal/store against pgx v5.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adelabdelgawad/meal-request-backend/internal/store"
)

// Config mirrors the pool tuning knobs exposed through the
// config struct.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Pool wraps a pgxpool.Pool and is the root store.Store implementation.
type Pool struct {
	*pgxpool.Pool
}

func NewPool(ctx context.Context, cfg Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	} else {
		poolCfg.MaxConns = 25
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	} else {
		poolCfg.MinConns = 5
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	} else {
		poolCfg.MaxConnLifetime = time.Hour
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	} else {
		poolCfg.MaxConnIdleTime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Pool{Pool: pool}, nil
}

func (p *Pool) Exec(ctx context.Context, sql string, args ...any) (store.CommandTag, error) {
	tag, err := p.Pool.Exec(ctx, sql, args...)
	return tag, err
}

func (p *Pool) Query(ctx context.Context, sql string, args ...any) (store.Rows, error) {
	return p.Pool.Query(ctx, sql, args...)
}

func (p *Pool) QueryRow(ctx context.Context, sql string, args ...any) store.Row {
	return p.Pool.QueryRow(ctx, sql, args...)
}

func (p *Pool) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := p.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &txWrapper{Tx: tx}, nil
}

// txWrapper adapts pgx.Tx to store.Tx; its Exec/Query/QueryRow already
// satisfy the store.Querier shapes structurally, this just narrows the
// return types so callers see the store interfaces, not pgx's.
type txWrapper struct {
	pgx.Tx
}

func (t *txWrapper) Exec(ctx context.Context, sql string, args ...any) (store.CommandTag, error) {
	return t.Tx.Exec(ctx, sql, args...)
}

func (t *txWrapper) Query(ctx context.Context, sql string, args ...any) (store.Rows, error) {
	return t.Tx.Query(ctx, sql, args...)
}

func (t *txWrapper) QueryRow(ctx context.Context, sql string, args ...any) store.Row {
	return t.Tx.QueryRow(ctx, sql, args...)
}
