package workout

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinels for errors.Is checks. The typed errors below unwrap to these.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")

	// ErrStaleEdit is returned when a set patch carries an edit sequence
	// number at or below one already applied to that set.
	ErrStaleEdit = errors.New("stale edit")

	// ErrStaleVersion is returned by a store when a session changed after
	// the copy being written was read.
	ErrStaleVersion = errors.New("stale session version")
)

// ValidationError reports a bad numeric or structural input on a set.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError reports an operation on an unknown or deleted entity.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError reports a state conflict, e.g. starting a second active
// session for a user. SessionID names the session that blocks the operation.
type ConflictError struct {
	SessionID uuid.UUID
	Reason    string
}

func (e *ConflictError) Error() string {
	if e.SessionID == uuid.Nil {
		return e.Reason
	}
	return fmt.Sprintf("%s (session %s)", e.Reason, e.SessionID)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// SessionNotFound is shorthand for a NotFoundError on a session ID.
func SessionNotFound(id uuid.UUID) error {
	return &NotFoundError{Kind: "session", ID: id.String()}
}
