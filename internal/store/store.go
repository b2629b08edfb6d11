// Package store is the C1 component: a transactional persistence
// abstraction. Every repository method takes an explicit Querier handle —
// either the pool itself for a one-shot call, or a Tx obtained from
// Store.Begin for anything that must be atomic, so no repository holds
// implicit per-instance session state.
package store

import (
	"context"
)

// Querier is satisfied by both a connection pool and a transaction —
// repositories are written against this so the same method works whether
// or not it is participating in a larger transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) Row
}

// CommandTag reports how many rows a statement affected.
type CommandTag interface {
	RowsAffected() int64
}

// Row is a single-row scan result (pgx.Row-compatible).
type Row interface {
	Scan(dest ...any) error
}

// Rows is a multi-row result set (pgx.Rows-compatible).
type Rows interface {
	Row
	Next() bool
	Close()
	Err() error
}

// Tx is a handle to an in-flight transaction. It embeds Querier so
// repository calls made with a Tx look identical to calls made directly
// against the pool.
type Tx interface {
	Querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store opens transactions. Concrete implementation lives in
// internal/store/postgres.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	Querier
}

// ChunkIDs splits ids into groups of at most size, so a single IN (...)
// clause never exceeds a safe parameter count even for 10,000+ elements.
func ChunkIDs(ids []string, size int) [][]string {
	if size <= 0 {
		size = 5000
	}
	var chunks [][]string
	for len(ids) > 0 {
		n := size
		if n > len(ids) {
			n = len(ids)
		}
		chunks = append(chunks, ids[:n])
		ids = ids[n:]
	}
	return chunks
}
