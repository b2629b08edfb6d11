package postgres

import (
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// timeNow is the one place this package reads the wall clock directly —
// every other comparison point is either a caller-supplied time.Time or a
// database-side now(). Kept to a single call so lock-expiry comparisons
// are easy to audit.
func timeNow() time.Time { return time.Now().UTC() }

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
