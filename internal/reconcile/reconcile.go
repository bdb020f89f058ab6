package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/workout"
	"github.com/google/uuid"
)

// Source is the authoritative copy of a user's sessions, usually the HTTP
// client. Get returns an error wrapping workout.ErrNotFound for unknown or
// deleted sessions; Active returns nil when there is no active session.
type Source interface {
	Get(ctx context.Context, id uuid.UUID) (*models.SessionRow, error)
	Active(ctx context.Context) (*models.SessionRow, error)
}

// Outcome describes how a load was resolved.
type Outcome int

const (
	// UsedServer means the server copy was taken; local state matched or
	// was absent.
	UsedServer Outcome = iota
	// DiscardedLocal means the server copy was newer and unsynced local
	// edits were dropped.
	DiscardedLocal
	// KeptLocal means local edits sit on top of the current server version
	// and were replayed onto it; they still need to be pushed.
	KeptLocal
	// Gone means the server no longer has the session.
	Gone
)

func (o Outcome) String() string {
	switch o {
	case UsedServer:
		return "server"
	case DiscardedLocal:
		return "discarded_local"
	case KeptLocal:
		return "kept_local"
	case Gone:
		return "gone"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Resolve applies last-writer-wins at whole-session granularity. server is
// nil when the session no longer exists. The server copy is returned for
// KeptLocal too; the caller replays local.Pending onto it.
func Resolve(local *Entry, server *models.SessionRow) (*models.SessionRow, Outcome) {
	switch {
	case server == nil:
		return nil, Gone
	case local == nil:
		return server, UsedServer
	case server.Version > local.BaseVersion:
		if local.Dirty {
			return server, DiscardedLocal
		}
		return server, UsedServer
	case local.Dirty:
		return server, KeptLocal
	default:
		return server, UsedServer
	}
}

// Reconciler loads sessions for one user, comparing the device cache with
// the server on every read.
type Reconciler struct {
	cache  *Cache
	source Source
	userID int
	log    *slog.Logger
}

// New creates a Reconciler.
func New(cache *Cache, source Source, userID int, log *slog.Logger) *Reconciler {
	return &Reconciler{cache: cache, source: source, userID: userID, log: log}
}

// Load returns the reconciled state of a session. A session the server no
// longer has is removed from the cache and reported as not found. Pending
// local edits made on the current server version are applied to the
// returned session; ones that no longer apply are dropped.
func (r *Reconciler) Load(ctx context.Context, id uuid.UUID) (*workout.Session, Outcome, error) {
	local, err := r.cache.Get(id)
	if err != nil {
		return nil, 0, err
	}

	server, err := r.source.Get(ctx, id)
	if err != nil && !errors.Is(err, workout.ErrNotFound) {
		return nil, 0, fmt.Errorf("fetching session %s: %w", id, err)
	}

	row, outcome := Resolve(local, server)
	if err := r.store(id, local, server, row, outcome); err != nil {
		return nil, 0, err
	}
	if outcome == Gone {
		return nil, Gone, workout.SessionNotFound(id)
	}

	sess, err := workout.SessionFromRow(*row)
	if err != nil {
		return nil, 0, err
	}
	if outcome == KeptLocal {
		if err := r.replay(sess, local.Pending); err != nil {
			return nil, 0, err
		}
	}
	return sess, outcome, nil
}

// replay applies pending edits to sess in the order they were made.
func (r *Reconciler) replay(sess *workout.Session, edits []Edit) error {
	now := time.Now()
	for _, e := range edits {
		if _, err := sess.UpdateSet(e.SetID, e.Patch, now); err != nil {
			r.log.Warn("dropping local edit that no longer applies",
				"session_id", sess.ID, "set_id", e.SetID, "error", err)
			if err := r.cache.DropEdit(e.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// LoadActive returns the server's active session, or nil. Sessions this
// device cached as active are refreshed first, so one finished or deleted
// elsewhere is no longer shown as active.
func (r *Reconciler) LoadActive(ctx context.Context) (*workout.Session, Outcome, error) {
	server, err := r.source.Active(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("fetching active session: %w", err)
	}

	ids, err := r.cache.ActiveIDs(r.userID)
	if err != nil {
		return nil, 0, err
	}
	for _, id := range ids {
		if server != nil && id == server.ID {
			continue
		}
		if _, _, err := r.Load(ctx, id); err != nil && !errors.Is(err, workout.ErrNotFound) {
			return nil, 0, err
		}
	}

	if server == nil {
		return nil, UsedServer, nil
	}
	return r.Load(ctx, server.ID)
}

// Acknowledge records a copy the server has just returned from a write.
// setIDs name the sets whose pending edits that write carried; they are no
// longer pending. When the write was the only change since the cached copy,
// the remaining edits move onto the new version.
func (r *Reconciler) Acknowledge(row models.SessionRow, setIDs ...uuid.UUID) error {
	prev, err := r.cache.Get(row.ID)
	if err != nil {
		return err
	}
	if err := r.Delivered(row.ID, setIDs...); err != nil {
		return err
	}
	if prev != nil && row.Version == prev.Row.Version+1 {
		if err := r.cache.RebasePending(row.ID, prev.Row.Version, row.Version); err != nil {
			return err
		}
	}
	return r.cache.PutServer(row)
}

// Delivered marks the pending edits to setIDs of a session as received by
// the server.
func (r *Reconciler) Delivered(id uuid.UUID, setIDs ...uuid.UUID) error {
	if len(setIDs) == 0 {
		return nil
	}
	return r.cache.ClearPending(id, setIDs)
}

// Stage records an edit to one set that has not reached the server yet.
// sess is the state the edit was made on.
func (r *Reconciler) Stage(sess *workout.Session, setID uuid.UUID, p workout.Patch) error {
	p.Seq = 0
	return r.cache.AddPending(sess.ID, Edit{SetID: setID, Patch: p, BaseVersion: sess.Version})
}

// Pending returns the edits of a session still to be sent, oldest first.
func (r *Reconciler) Pending(id uuid.UUID) ([]Edit, error) {
	return r.cache.Pending(id)
}

// Forget drops a session from the cache, e.g. after deleting it.
func (r *Reconciler) Forget(id uuid.UUID) error {
	return r.cache.Forget(id)
}

func (r *Reconciler) store(id uuid.UUID, local *Entry, server, row *models.SessionRow, outcome Outcome) error {
	switch outcome {
	case Gone:
		if local != nil {
			r.log.Info("session removed on server, dropping local copy", "session_id", id)
		}
		return r.cache.Forget(id)
	case DiscardedLocal:
		r.log.Warn("server copy is newer, discarding local edits",
			"session_id", id, "local_base", local.BaseVersion, "server_version", server.Version,
			"edits", len(local.Pending))
		if err := r.cache.DropPending(id); err != nil {
			return err
		}
		return r.cache.PutServer(*row)
	default:
		return r.cache.PutServer(*row)
	}
}
