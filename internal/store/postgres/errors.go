package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/adelabdelgawad/meal-request-backend/internal/domain"
)

// pg error codes the repository layer already branches on, extended
// with the FK-violation and deadlock codes this domain's HRIS linking and
// lock-claim queries can hit.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeDeadlockDetected    = "40P01"
	codeSerializationFail   = "40001"
)

// translateErr turns a pgx/driver error into a *domain.Error carrying the
// right Kind, so callers above this package never branch on pgconn types.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return domain.Wrap(domain.KindConflict, pgErr.ConstraintName, err)
		case codeForeignKeyViolation:
			return domain.Wrap(domain.KindValidation, pgErr.ConstraintName, err)
		case codeDeadlockDetected, codeSerializationFail:
			return domain.Wrap(domain.KindLockHeld, "transaction could not complete, retry", err)
		}
	}
	return domain.Wrap(domain.KindDatabase, "store", err)
}
