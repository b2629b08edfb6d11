package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure so transport adapters can translate it
// into a protocol-specific response without a long errors.Is chain.
type Kind string

const (
	KindNotFound             Kind = "not_found"
	KindValidation           Kind = "validation"
	KindConflict             Kind = "conflict"
	KindAuthorization        Kind = "authorization"
	KindAuthentication       Kind = "authentication"
	KindInvalidToken         Kind = "invalid_token"
	KindExpiredToken         Kind = "expired_token"
	KindRevokedToken         Kind = "revoked_token"
	KindStatusAlreadyChanged Kind = "status_already_changed"
	KindDatabase             Kind = "database"
	KindExternalUnavailable  Kind = "external_unavailable"
	KindLockHeld             Kind = "lock_held"
	KindTimeout              Kind = "timeout"
)

// Error is the one error type every component returns. Adapters at the
// transport boundary switch on Kind; nothing upstream of the boundary
// should need to know about HTTP status codes.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, domain.NewError(domain.KindNotFound, "x")) match on Kind+Message, and
// errors.Is(err, &Error{Kind: KindNotFound}) match on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message == "" {
		return t.Kind == e.Kind
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind of err, defaulting to KindDatabase for any
// error that isn't one of ours — an unclassified failure is assumed to be
// a persistence failure, never surfaced as a generic 500 with no kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindDatabase
}

var (
	ErrNotFound             = NewError(KindNotFound, "not found")
	ErrValidation           = NewError(KindValidation, "validation failed")
	ErrConflict             = NewError(KindConflict, "conflict")
	ErrUnauthorized         = NewError(KindAuthorization, "unauthorized")
	ErrInvalidCredentials   = NewError(KindAuthentication, "invalid credentials")
	ErrInvalidToken         = NewError(KindInvalidToken, "invalid token")
	ErrExpiredToken         = NewError(KindExpiredToken, "expired token")
	ErrRevokedToken         = NewError(KindRevokedToken, "revoked token")
	ErrStatusAlreadyChanged = NewError(KindStatusAlreadyChanged, "status already changed")
	ErrLockHeld             = NewError(KindLockHeld, "lock held")
	ErrTimeout              = NewError(KindTimeout, "timed out")
	ErrExternalUnavailable  = NewError(KindExternalUnavailable, "external system unavailable")
)
