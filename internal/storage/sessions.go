package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/workout"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const sessionColumns = `id, user_id, preset_id, started_at, ended_at, notes, sets, version, updated_at`

// oneActiveIndex is the partial unique index allowing one active session per user.
const oneActiveIndex = "sessions_one_active"

// CreateSession inserts a session with version 1, applying log in the same
// transaction.
func (db *DB) CreateSession(ctx context.Context, row *models.SessionRow, log *models.SetLogChange) error {
	sets, err := json.Marshal(row.Sets)
	if err != nil {
		return fmt.Errorf("encoding sets: %w", err)
	}

	err = pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO sessions (id, user_id, preset_id, started_at, ended_at, notes, sets, version, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 1, NOW())
			RETURNING version, updated_at
		`, row.ID, row.UserID, row.PresetID, row.StartedAt, row.EndedAt, row.Notes, sets,
		).Scan(&row.Version, &row.UpdatedAt)
		if err != nil {
			return err
		}
		return applySetLog(ctx, tx, row.ID, log)
	})
	if err != nil {
		return db.sessionWriteError(ctx, row, "creating session", err)
	}
	return nil
}

// GetSession returns a non-deleted session owned by userID.
func (db *DB) GetSession(ctx context.Context, userID int, id uuid.UUID) (*models.SessionRow, error) {
	row, err := scanSession(db.Pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, workout.SessionNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return row, nil
}

// ActiveSession returns the user's active session, or nil.
func (db *DB) ActiveSession(ctx context.Context, userID int) (*models.SessionRow, error) {
	row, err := scanSession(db.Pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE user_id = $1 AND ended_at IS NULL AND deleted_at IS NULL`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying active session: %w", err)
	}
	return row, nil
}

// ListSessions returns the user's sessions, newest first.
func (db *DB) ListSessions(ctx context.Context, userID int, limit int) ([]models.SessionRow, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE user_id = $1 AND deleted_at IS NULL
		 ORDER BY started_at DESC
		 LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var result []models.SessionRow
	for rows.Next() {
		r, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		result = append(result, *r)
	}
	return result, rows.Err()
}

// UpdateSession overwrites a session, bumping its version. The write only
// applies on top of row.Version. Deleted sessions are not found, so late
// writes cannot bring them back.
func (db *DB) UpdateSession(ctx context.Context, row *models.SessionRow, log *models.SetLogChange) error {
	sets, err := json.Marshal(row.Sets)
	if err != nil {
		return fmt.Errorf("encoding sets: %w", err)
	}

	err = pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE sessions
			SET preset_id = $3, started_at = $4, ended_at = $5, notes = $6, sets = $7,
			    version = version + 1, updated_at = NOW()
			WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL AND version = $8
			RETURNING version, updated_at
		`, row.ID, row.UserID, row.PresetID, row.StartedAt, row.EndedAt, row.Notes, sets, row.Version,
		).Scan(&row.Version, &row.UpdatedAt)
		if err != nil {
			return err
		}
		return applySetLog(ctx, tx, row.ID, log)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return db.missedUpdate(ctx, row)
	}
	if err != nil {
		return db.sessionWriteError(ctx, row, "updating session", err)
	}
	return nil
}

// DeleteSession soft-deletes a session and drops its set log rows.
func (db *DB) DeleteSession(ctx context.Context, userID int, id uuid.UUID) error {
	return pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		var deleted bool
		err := tx.QueryRow(ctx,
			`SELECT deleted_at IS NOT NULL FROM sessions WHERE id = $1 AND user_id = $2 FOR UPDATE`,
			id, userID).Scan(&deleted)
		if errors.Is(err, pgx.ErrNoRows) {
			return workout.SessionNotFound(id)
		}
		if err != nil {
			return fmt.Errorf("locking session: %w", err)
		}
		if deleted {
			return nil
		}

		if _, err := tx.Exec(ctx, `UPDATE sessions SET deleted_at = NOW() WHERE id = $1`, id); err != nil {
			return fmt.Errorf("deleting session: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM set_log WHERE session_id = $1`, id); err != nil {
			return fmt.Errorf("deleting set log: %w", err)
		}
		return nil
	})
}

// missedUpdate tells a deleted or unknown session apart from one that was
// written since row was read.
func (db *DB) missedUpdate(ctx context.Context, row *models.SessionRow) error {
	var current int64
	err := db.Pool.QueryRow(ctx,
		`SELECT version FROM sessions WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`,
		row.ID, row.UserID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return workout.SessionNotFound(row.ID)
	}
	if err != nil {
		return fmt.Errorf("checking session version: %w", err)
	}
	return fmt.Errorf("session %s is at version %d, write based on %d: %w",
		row.ID, current, row.Version, workout.ErrStaleVersion)
}

// applySetLog removes logged sets that are no longer completed and upserts
// the new records.
func applySetLog(ctx context.Context, tx pgx.Tx, sessionID uuid.UUID, change *models.SetLogChange) error {
	if change == nil {
		return nil
	}

	keep := make([]string, len(change.Completed))
	for i, id := range change.Completed {
		keep[i] = id.String()
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM set_log WHERE session_id = $1 AND NOT (set_id = ANY($2::uuid[]))`,
		sessionID, keep); err != nil {
		return fmt.Errorf("pruning set log: %w", err)
	}

	batch := &pgx.Batch{}
	for _, l := range change.Upsert {
		var stages []byte
		if len(l.Stages) > 0 {
			b, err := json.Marshal(l.Stages)
			if err != nil {
				return fmt.Errorf("encoding stages: %w", err)
			}
			stages = b
		}
		batch.Queue(`
			INSERT INTO set_log (set_id, session_id, user_id, exercise_id, set_type, weight_kg, reps, stages, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (set_id) DO UPDATE
				SET exercise_id = EXCLUDED.exercise_id, set_type = EXCLUDED.set_type,
				    weight_kg = EXCLUDED.weight_kg, reps = EXCLUDED.reps,
				    stages = EXCLUDED.stages, completed_at = EXCLUDED.completed_at`,
			l.SetID, l.SessionID, l.UserID, l.ExerciseID, l.SetType, l.WeightKg, l.Reps, stages, l.CompletedAt)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("writing set log: %w", err)
	}
	return nil
}

// sessionWriteError turns a violation of the one-active index into a
// ConflictError naming the session that holds the slot.
func (db *DB) sessionWriteError(ctx context.Context, row *models.SessionRow, op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if pgErr.ConstraintName == oneActiveIndex {
			c := &workout.ConflictError{Reason: "an active session already exists"}
			if active, aerr := db.ActiveSession(ctx, row.UserID); aerr == nil && active != nil {
				c.SessionID = active.ID
			}
			return c
		}
		return &workout.ConflictError{SessionID: row.ID, Reason: "session already exists"}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func scanSession(r pgx.Row) (*models.SessionRow, error) {
	var (
		row  models.SessionRow
		sets []byte
	)
	if err := r.Scan(&row.ID, &row.UserID, &row.PresetID, &row.StartedAt, &row.EndedAt,
		&row.Notes, &sets, &row.Version, &row.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(sets, &row.Sets); err != nil {
		return nil, fmt.Errorf("decoding sets of %s: %w", row.ID, err)
	}
	return &row, nil
}

// SessionStore adapts DB to the session.Store interface.
type SessionStore struct{ DB *DB }

func (s SessionStore) Create(ctx context.Context, row *models.SessionRow, log *models.SetLogChange) error {
	return s.DB.CreateSession(ctx, row, log)
}

func (s SessionStore) Get(ctx context.Context, userID int, id uuid.UUID) (*models.SessionRow, error) {
	return s.DB.GetSession(ctx, userID, id)
}

func (s SessionStore) Active(ctx context.Context, userID int) (*models.SessionRow, error) {
	return s.DB.ActiveSession(ctx, userID)
}

func (s SessionStore) List(ctx context.Context, userID int, limit int) ([]models.SessionRow, error) {
	return s.DB.ListSessions(ctx, userID, limit)
}

func (s SessionStore) Update(ctx context.Context, row *models.SessionRow, log *models.SetLogChange) error {
	return s.DB.UpdateSession(ctx, row, log)
}

func (s SessionStore) Delete(ctx context.Context, userID int, id uuid.UUID) error {
	return s.DB.DeleteSession(ctx, userID, id)
}
