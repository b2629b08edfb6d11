package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/adelabdelgawad/meal-request-backend/internal/domain"
)

func TestTranslateErr_Nil_ReturnsNil(t *testing.T) {
	if err := translateErr(nil); err != nil {
		t.Errorf("translateErr(nil) = %v, want nil", err)
	}
}

func TestTranslateErr_NoRows_ReturnsNotFound(t *testing.T) {
	err := translateErr(pgx.ErrNoRows)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestTranslateErr_UniqueViolation_ReturnsConflict(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"}
	err := translateErr(pgErr)
	if domain.KindOf(err) != domain.KindConflict {
		t.Errorf("Kind = %v, want KindConflict", domain.KindOf(err))
	}
}

func TestTranslateErr_ForeignKeyViolation_ReturnsValidation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23503", ConstraintName: "fk_department_id"}
	err := translateErr(pgErr)
	if domain.KindOf(err) != domain.KindValidation {
		t.Errorf("Kind = %v, want KindValidation", domain.KindOf(err))
	}
}

func TestTranslateErr_DeadlockDetected_ReturnsLockHeld(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "40P01"}
	err := translateErr(pgErr)
	if domain.KindOf(err) != domain.KindLockHeld {
		t.Errorf("Kind = %v, want KindLockHeld", domain.KindOf(err))
	}
}

func TestTranslateErr_SerializationFailure_ReturnsLockHeld(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "40001"}
	err := translateErr(pgErr)
	if domain.KindOf(err) != domain.KindLockHeld {
		t.Errorf("Kind = %v, want KindLockHeld", domain.KindOf(err))
	}
}

func TestTranslateErr_UnknownPgCode_ReturnsDatabase(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "99999"}
	err := translateErr(pgErr)
	if domain.KindOf(err) != domain.KindDatabase {
		t.Errorf("Kind = %v, want KindDatabase", domain.KindOf(err))
	}
}

func TestTranslateErr_UnrecognizedError_ReturnsDatabase(t *testing.T) {
	err := translateErr(errors.New("connection reset by peer"))
	if domain.KindOf(err) != domain.KindDatabase {
		t.Errorf("Kind = %v, want KindDatabase", domain.KindOf(err))
	}
}
