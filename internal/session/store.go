package session

import (
	"context"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/workout"
	"github.com/google/uuid"
)

// Store persists sessions. Implementations must enforce at most one active
// (not ended, not deleted) session per user and report a violation as a
// *workout.ConflictError, so the guarantee holds across concurrent callers.
type Store interface {
	// Create inserts a new session and sets Version to 1. A non-nil log
	// change is applied in the same transaction.
	Create(ctx context.Context, row *models.SessionRow, log *models.SetLogChange) error
	// Get returns a session of userID, or a NotFoundError if it does not
	// exist, belongs to another user, or was deleted.
	Get(ctx context.Context, userID int, id uuid.UUID) (*models.SessionRow, error)
	// Active returns the user's active session, or nil if there is none.
	Active(ctx context.Context, userID int) (*models.SessionRow, error)
	// List returns the user's sessions, newest first.
	List(ctx context.Context, userID int, limit int) ([]models.SessionRow, error)
	// Update overwrites the whole session, increments Version and sets
	// UpdatedAt. It only writes if the stored version still equals
	// row.Version and otherwise returns an error wrapping
	// workout.ErrStaleVersion. A non-nil log change is applied in the same
	// transaction.
	Update(ctx context.Context, row *models.SessionRow, log *models.SetLogChange) error
	// Delete soft-deletes a session. Deleting an already deleted session is
	// a no-op; an unknown ID is a NotFoundError.
	Delete(ctx context.Context, userID int, id uuid.UUID) error
}

// Catalog resolves exercise metadata. A miss returns an error wrapping
// workout.ErrNotFound.
type Catalog interface {
	Lookup(ctx context.Context, exerciseID string) (workout.Exercise, error)
}

// Presets loads read-only workout templates.
type Presets interface {
	GetPreset(ctx context.Context, userID int, id uuid.UUID) (*workout.Preset, error)
}
