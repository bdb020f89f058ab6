package reconcile

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/workout"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Entry is a device-local copy of a session. Row is the last copy the
// server returned. Pending holds local edits the server has not
// acknowledged yet, oldest first; BaseVersion is the oldest server version
// they were made on, or Row.Version when there are none.
type Entry struct {
	Row         models.SessionRow
	BaseVersion int64
	Dirty       bool
	Pending     []Edit
	CachedAt    time.Time
}

// Edit is one unsent patch to a set, made on top of BaseVersion.
type Edit struct {
	ID          int64
	SetID       uuid.UUID
	Patch       workout.Patch
	BaseVersion int64
}

// Cache stores session snapshots and unsent edits in a SQLite database on
// the device.
type Cache struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS cached_sessions (
	session_id   TEXT PRIMARY KEY,
	user_id      INTEGER NOT NULL,
	snapshot     BLOB NOT NULL,
	base_version INTEGER NOT NULL,
	active       INTEGER NOT NULL DEFAULT 0,
	cached_at    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS pending_edits (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id   TEXT NOT NULL,
	set_id       TEXT NOT NULL,
	patch        BLOB NOT NULL,
	base_version INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS pending_edits_session ON pending_edits (session_id, id);
`

// OpenCache opens (or creates) the cache database at dir/sessions.db.
func OpenCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "sessions.db"))
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache tables: %w", err)
	}

	return &Cache{db: db}, nil
}

// Get returns the cached entry for a session, or nil if there is none.
func (c *Cache) Get(id uuid.UUID) (*Entry, error) {
	var (
		e        Entry
		snapshot []byte
		cachedAt int64
	)
	err := c.db.QueryRow(
		`SELECT snapshot, cached_at FROM cached_sessions WHERE session_id = ?`,
		id.String(),
	).Scan(&snapshot, &cachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cached session: %w", err)
	}
	if err := json.Unmarshal(snapshot, &e.Row); err != nil {
		return nil, fmt.Errorf("decoding cached session %s: %w", id, err)
	}
	e.CachedAt = time.Unix(0, cachedAt).UTC()

	e.Pending, err = c.Pending(id)
	if err != nil {
		return nil, err
	}
	e.BaseVersion = e.Row.Version
	for _, ed := range e.Pending {
		e.BaseVersion = min(e.BaseVersion, ed.BaseVersion)
	}
	e.Dirty = len(e.Pending) > 0
	return &e, nil
}

// PutServer stores a copy returned by the server. A copy older than the
// cached one is ignored, so acknowledgements arriving out of order keep the
// newest state. Pending edits are not touched.
func (c *Cache) PutServer(row models.SessionRow) error {
	snapshot, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	_, err = c.db.Exec(
		`INSERT INTO cached_sessions (session_id, user_id, snapshot, base_version, active, cached_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (session_id) DO UPDATE SET
			user_id = excluded.user_id,
			snapshot = excluded.snapshot,
			base_version = excluded.base_version,
			active = excluded.active,
			cached_at = excluded.cached_at
		 WHERE excluded.base_version >= cached_sessions.base_version`,
		row.ID.String(), row.UserID, snapshot, row.Version, boolInt(row.EndedAt == nil), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("caching session %s: %w", row.ID, err)
	}
	return nil
}

// AddPending records an unsent edit to a set of session sessionID.
func (c *Cache) AddPending(sessionID uuid.UUID, e Edit) error {
	patch, err := json.Marshal(e.Patch)
	if err != nil {
		return fmt.Errorf("encoding patch: %w", err)
	}
	_, err = c.db.Exec(
		`INSERT INTO pending_edits (session_id, set_id, patch, base_version) VALUES (?, ?, ?, ?)`,
		sessionID.String(), e.SetID.String(), patch, e.BaseVersion,
	)
	if err != nil {
		return fmt.Errorf("storing edit to set %s: %w", e.SetID, err)
	}
	return nil
}

// Pending returns the unsent edits of a session, oldest first.
func (c *Cache) Pending(sessionID uuid.UUID) ([]Edit, error) {
	rows, err := c.db.Query(
		`SELECT id, set_id, patch, base_version FROM pending_edits WHERE session_id = ? ORDER BY id`,
		sessionID.String())
	if err != nil {
		return nil, fmt.Errorf("querying pending edits: %w", err)
	}
	defer rows.Close()

	var edits []Edit
	for rows.Next() {
		var (
			e     Edit
			setID string
			patch []byte
		)
		if err := rows.Scan(&e.ID, &setID, &patch, &e.BaseVersion); err != nil {
			return nil, err
		}
		if e.SetID, err = uuid.Parse(setID); err != nil {
			return nil, fmt.Errorf("parsing pending set id: %w", err)
		}
		if err := json.Unmarshal(patch, &e.Patch); err != nil {
			return nil, fmt.Errorf("decoding pending edit %d: %w", e.ID, err)
		}
		edits = append(edits, e)
	}
	return edits, rows.Err()
}

// ClearPending removes the edits to the given sets of a session.
func (c *Cache) ClearPending(sessionID uuid.UUID, setIDs []uuid.UUID) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, id := range setIDs {
		if _, err := tx.Exec(`DELETE FROM pending_edits WHERE session_id = ? AND set_id = ?`,
			sessionID.String(), id.String()); err != nil {
			return fmt.Errorf("clearing edits to set %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// DropEdit removes one pending edit.
func (c *Cache) DropEdit(id int64) error {
	if _, err := c.db.Exec(`DELETE FROM pending_edits WHERE id = ?`, id); err != nil {
		return fmt.Errorf("dropping edit %d: %w", id, err)
	}
	return nil
}

// DropPending removes every pending edit of a session.
func (c *Cache) DropPending(sessionID uuid.UUID) error {
	if _, err := c.db.Exec(`DELETE FROM pending_edits WHERE session_id = ?`, sessionID.String()); err != nil {
		return fmt.Errorf("dropping edits of session %s: %w", sessionID, err)
	}
	return nil
}

// RebasePending moves the pending edits of a session made on version from
// onto version to.
func (c *Cache) RebasePending(sessionID uuid.UUID, from, to int64) error {
	_, err := c.db.Exec(
		`UPDATE pending_edits SET base_version = ? WHERE session_id = ? AND base_version = ?`,
		to, sessionID.String(), from)
	if err != nil {
		return fmt.Errorf("rebasing edits of session %s: %w", sessionID, err)
	}
	return nil
}

// Forget removes a session and its pending edits from the cache.
func (c *Cache) Forget(id uuid.UUID) error {
	if err := c.DropPending(id); err != nil {
		return err
	}
	if _, err := c.db.Exec(`DELETE FROM cached_sessions WHERE session_id = ?`, id.String()); err != nil {
		return fmt.Errorf("forgetting session %s: %w", id, err)
	}
	return nil
}

// ActiveIDs returns the sessions this device last saw as active.
func (c *Cache) ActiveIDs(userID int) ([]uuid.UUID, error) {
	rows, err := c.db.Query(
		`SELECT session_id FROM cached_sessions WHERE user_id = ? AND active = 1`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying cached sessions: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("parsing cached session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the cache database.
func (c *Cache) Close() error {
	return c.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
