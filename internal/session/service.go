package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/claude/liftlog/internal/metrics"
	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/workout"
	"github.com/google/uuid"
)

// DefaultListLimit caps List when the caller passes no limit.
const DefaultListLimit = 50

// Service is the session repository: the only component that decides which
// session is a user's active one, and the one that keeps resume/finish
// cycles from creating duplicate records. Every call takes the user ID.
type Service struct {
	store   Store
	catalog Catalog
	presets Presets
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService creates a Service. catalog and presets may be nil; sets then
// get placeholder exercise names and starting from a preset fails.
func NewService(store Store, catalog Catalog, presets Presets, log *slog.Logger) *Service {
	return &Service{
		store:   store,
		catalog: catalog,
		presets: presets,
		log:     log,
		now:     time.Now,
	}
}

// SetMetrics enables operation counters.
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Start creates and persists a new active session, seeded from a preset when
// presetID is set. It fails with a ConflictError if the user already has an
// active session; callers must finish or delete that one first.
func (s *Service) Start(ctx context.Context, userID int, presetID *uuid.UUID) (_ *workout.Session, err error) {
	defer func() { s.metrics.ObserveOp("start", err) }()

	active, err := s.store.Active(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("checking active session: %w", err)
	}
	if active != nil {
		return nil, &workout.ConflictError{SessionID: active.ID, Reason: "an active session already exists"}
	}

	now := s.now()
	sess := workout.NewSession(userID, presetID, now)

	if presetID != nil {
		if s.presets == nil {
			return nil, &workout.NotFoundError{Kind: "preset", ID: presetID.String()}
		}
		preset, err := s.presets.GetPreset(ctx, userID, *presetID)
		if err != nil {
			return nil, fmt.Errorf("loading preset: %w", err)
		}
		for _, plan := range preset.Exercises {
			ex := s.lookup(ctx, plan.ExerciseID)
			if _, err := sess.AddExerciseGroup(ex, plan); err != nil {
				return nil, fmt.Errorf("preset %s exercise %s: %w", preset.ID, plan.ExerciseID, err)
			}
		}
	}

	sess.ID = uuid.New()
	row := sess.Row()
	if err := s.store.Create(ctx, &row, nil); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	sess.Version, sess.UpdatedAt = row.Version, row.UpdatedAt

	s.log.Info("session started", "session_id", sess.ID, "user_id", userID, "sets", sess.TotalCount())
	return sess, nil
}

// Active returns the user's active session, or nil if there is none.
func (s *Service) Active(ctx context.Context, userID int) (*workout.Session, error) {
	row, err := s.store.Active(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading active session: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	return s.fromRow(ctx, *row)
}

// Get loads one session of the user.
func (s *Service) Get(ctx context.Context, userID int, id uuid.UUID) (*workout.Session, error) {
	row, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.fromRow(ctx, *row)
}

// List returns the user's sessions, newest first. Deleted sessions are never
// included.
func (s *Service) List(ctx context.Context, userID int, limit int) ([]*workout.Session, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.store.List(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	out := make([]*workout.Session, 0, len(rows))
	for _, r := range rows {
		sess, err := s.fromRow(ctx, r)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

// UpdateSet applies a patch to one set of an active session and stores the
// result. A stale patch (see workout.Patch.Seq) is ignored and the current
// state is returned. Finished sessions must be resumed before editing.
func (s *Service) UpdateSet(ctx context.Context, userID int, sessionID, setID uuid.UUID, p workout.Patch) (_ *workout.Session, err error) {
	defer func() { s.metrics.ObserveOp("update_set", err) }()

	return s.mutate(ctx, userID, sessionID, func(sess *workout.Session) (*models.SetLogChange, error) {
		if !sess.IsActive() {
			return nil, &workout.ConflictError{SessionID: sessionID, Reason: "session is finished; resume it to edit"}
		}
		if _, err := sess.UpdateSet(setID, p, s.now()); err != nil {
			if errors.Is(err, workout.ErrStaleEdit) {
				s.log.Debug("stale set edit ignored", "session_id", sessionID, "set_id", setID, "seq", p.Seq)
				return nil, errUnchanged
			}
			return nil, err
		}
		return nil, nil
	})
}

// AddExercise appends planned sets for one exercise to an active session.
func (s *Service) AddExercise(ctx context.Context, userID int, sessionID uuid.UUID, plans ...workout.PlannedExercise) (_ *workout.Session, err error) {
	defer func() { s.metrics.ObserveOp("add_exercise", err) }()

	return s.mutate(ctx, userID, sessionID, func(sess *workout.Session) (*models.SetLogChange, error) {
		if !sess.IsActive() {
			return nil, &workout.ConflictError{SessionID: sessionID, Reason: "session is finished; resume it to edit"}
		}
		for _, plan := range plans {
			if _, err := sess.AddExerciseGroup(s.lookup(ctx, plan.ExerciseID), plan); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
}

// Finish ends a session and persists its current set list. An aggregate that
// has never been persisted is created as a new finished record; otherwise
// the existing record is updated in place, so start, finish, resume, finish
// always yields one record. Finishing an already finished session keeps its
// original end time. The passed aggregate is not modified; the finished
// session is returned.
//
// The sets and notes of a persisted aggregate replace the stored ones even
// if the stored session changed after the aggregate was read.
func (s *Service) Finish(ctx context.Context, userID int, agg *workout.Session) (_ *workout.Session, err error) {
	defer func() { s.metrics.ObserveOp("finish", err) }()

	src := agg.Clone()
	src.UserID = userID

	if !src.IsPersisted() {
		now := s.now()
		src.ID = uuid.New()
		src.EndedAt = &now
		change := logChange(src, now)
		src.MarkSaved()
		row := src.Row()
		if err := s.store.Create(ctx, &row, change); err != nil {
			return nil, fmt.Errorf("creating finished session: %w", err)
		}
		src.Version, src.UpdatedAt = row.Version, row.UpdatedAt
		s.log.Info("session finished", "session_id", src.ID, "user_id", userID, "completed", src.CompletedCount(), "new_record", true)
		return src, nil
	}

	return s.finish(ctx, userID, src.ID, func(sess *workout.Session) {
		sess.Sets = src.Clone().Sets
		sess.Notes = src.Notes
	})
}

// FinishByID finishes the stored state of a session.
func (s *Service) FinishByID(ctx context.Context, userID int, id uuid.UUID) (_ *workout.Session, err error) {
	defer func() { s.metrics.ObserveOp("finish", err) }()

	return s.finish(ctx, userID, id, nil)
}

// finish ends the stored session id, first letting take copy fields into it.
func (s *Service) finish(ctx context.Context, userID int, id uuid.UUID, take func(*workout.Session)) (*workout.Session, error) {
	sess, err := s.mutate(ctx, userID, id, func(sess *workout.Session) (*models.SetLogChange, error) {
		if take != nil {
			take(sess)
		}
		now := s.now()
		if sess.EndedAt == nil {
			sess.EndedAt = &now
		}
		change := logChange(sess, now)
		sess.MarkSaved()
		return change, nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("session finished", "session_id", sess.ID, "user_id", userID, "completed", sess.CompletedCount(), "total", sess.TotalCount())
	return sess, nil
}

// Resume makes a session editable again under its existing ID. Resuming an
// active session returns it unchanged. Resuming a finished session clears its
// end time, which fails with a ConflictError if another session is active.
func (s *Service) Resume(ctx context.Context, userID int, id uuid.UUID) (_ *workout.Session, err error) {
	defer func() { s.metrics.ObserveOp("resume", err) }()

	resumed := false
	sess, err := s.mutate(ctx, userID, id, func(sess *workout.Session) (*models.SetLogChange, error) {
		if sess.IsActive() {
			return nil, errUnchanged
		}
		active, err := s.store.Active(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("checking active session: %w", err)
		}
		if active != nil && active.ID != id {
			return nil, &workout.ConflictError{SessionID: active.ID, Reason: "another session is active"}
		}
		sess.EndedAt = nil
		resumed = true
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	if resumed {
		s.log.Info("session resumed", "session_id", id, "user_id", userID)
	}
	return sess, nil
}

// Delete removes a session whether or not it was finished. Deleting twice is
// not an error.
func (s *Service) Delete(ctx context.Context, userID int, id uuid.UUID) (err error) {
	defer func() { s.metrics.ObserveOp("delete", err) }()

	if err := s.store.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.log.Info("session deleted", "session_id", id, "user_id", userID)
	return nil
}

// maxWriteAttempts bounds how often mutate reloads a session that keeps
// changing under it.
const maxWriteAttempts = 5

// errUnchanged tells mutate that edit left the session as it was.
var errUnchanged = errors.New("session unchanged")

// mutate loads a session, applies edit and writes the result on top of the
// version it loaded. When another writer got there first, the session is
// reloaded and edit runs again on the newer state, so checks inside edit
// always see what is stored.
func (s *Service) mutate(ctx context.Context, userID int, id uuid.UUID, edit func(*workout.Session) (*models.SetLogChange, error)) (*workout.Session, error) {
	for attempt := 1; ; attempt++ {
		sess, err := s.Get(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		change, err := edit(sess)
		if errors.Is(err, errUnchanged) {
			return sess, nil
		}
		if err != nil {
			return nil, err
		}
		err = s.save(ctx, sess, change)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, workout.ErrStaleVersion) {
			return nil, err
		}
		if attempt == maxWriteAttempts {
			return nil, &workout.ConflictError{SessionID: id, Reason: "session is being changed concurrently; retry"}
		}
		s.log.Debug("session changed during write, retrying", "session_id", id, "attempt", attempt)
	}
}

// save writes sess on top of sess.Version and copies the new version back
// into it. sess is only changed if the write succeeds.
func (s *Service) save(ctx context.Context, sess *workout.Session, change *models.SetLogChange) error {
	row := sess.Row()
	if err := s.store.Update(ctx, &row, change); err != nil {
		return fmt.Errorf("saving session %s: %w", sess.ID, err)
	}
	sess.Version, sess.UpdatedAt = row.Version, row.UpdatedAt
	return nil
}

func (s *Service) fromRow(ctx context.Context, row models.SessionRow) (*workout.Session, error) {
	sess, err := workout.SessionFromRow(row)
	if err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", row.ID, err)
	}
	seen := make(map[string]workout.Exercise)
	sess.Hydrate(func(id string) (workout.Exercise, bool) {
		if ex, ok := seen[id]; ok {
			return ex, ex.Name != workout.PlaceholderExerciseName
		}
		ex := s.lookup(ctx, id)
		seen[id] = ex
		return ex, ex.Name != workout.PlaceholderExerciseName
	})
	return sess, nil
}

// lookup resolves exercise metadata. Failures never block logging: the
// exercise gets a placeholder name instead.
func (s *Service) lookup(ctx context.Context, exerciseID string) workout.Exercise {
	if s.catalog == nil {
		return workout.PlaceholderExercise(exerciseID)
	}
	ex, err := s.catalog.Lookup(ctx, exerciseID)
	if err != nil {
		s.log.Warn("exercise lookup failed", "exercise_id", exerciseID, "error", err)
		return workout.PlaceholderExercise(exerciseID)
	}
	return ex
}

func logChange(sess *workout.Session, asOf time.Time) *models.SetLogChange {
	change := &models.SetLogChange{}
	for _, rec := range sess.PendingRecords(asOf) {
		change.Upsert = append(change.Upsert, workout.LoggedSetRow(sess, rec))
	}
	for _, set := range sess.Sets {
		if set.IsCompleted() {
			change.Completed = append(change.Completed, set.Base().ID)
		}
	}
	return change
}
