package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/workout"
	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and by the server when no
// database is configured. It holds deep copies so callers cannot alias
// stored state.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*memRow
	log      map[uuid.UUID]models.LoggedSetRow
	now      func() time.Time

	// FailNext, when set, is returned by the next write and then cleared.
	FailNext error
}

type memRow struct {
	row     models.SessionRow
	deleted bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[uuid.UUID]*memRow),
		log:      make(map[uuid.UUID]models.LoggedSetRow),
		now:      time.Now,
	}
}

func (m *MemoryStore) Create(_ context.Context, row *models.SessionRow, log *models.SetLogChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return err
	}
	if _, ok := m.sessions[row.ID]; ok {
		return &workout.ConflictError{SessionID: row.ID, Reason: "session already exists"}
	}
	if row.EndedAt == nil {
		if active := m.activeLocked(row.UserID); active != nil {
			return &workout.ConflictError{SessionID: active.ID, Reason: "an active session already exists"}
		}
	}

	row.Version = 1
	row.UpdatedAt = m.now()
	m.sessions[row.ID] = &memRow{row: cloneRow(*row)}
	m.applyLog(row.ID, log)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, userID int, id uuid.UUID) (*models.SessionRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.sessions[id]
	if !ok || r.deleted || r.row.UserID != userID {
		return nil, workout.SessionNotFound(id)
	}
	out := cloneRow(r.row)
	return &out, nil
}

func (m *MemoryStore) Active(_ context.Context, userID int) (*models.SessionRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.activeLocked(userID)
	if r == nil {
		return nil, nil
	}
	out := cloneRow(*r)
	return &out, nil
}

func (m *MemoryStore) List(_ context.Context, userID int, limit int) ([]models.SessionRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.SessionRow
	for _, r := range m.sessions {
		if r.deleted || r.row.UserID != userID {
			continue
		}
		out = append(out, cloneRow(r.row))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Update(_ context.Context, row *models.SessionRow, log *models.SetLogChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return err
	}
	r, ok := m.sessions[row.ID]
	if !ok || r.deleted || r.row.UserID != row.UserID {
		return workout.SessionNotFound(row.ID)
	}
	if r.row.Version != row.Version {
		return fmt.Errorf("session %s is at version %d, write based on %d: %w",
			row.ID, r.row.Version, row.Version, workout.ErrStaleVersion)
	}
	if row.EndedAt == nil {
		if active := m.activeLocked(row.UserID); active != nil && active.ID != row.ID {
			return &workout.ConflictError{SessionID: active.ID, Reason: "an active session already exists"}
		}
	}

	row.Version = r.row.Version + 1
	row.UpdatedAt = m.now()
	r.row = cloneRow(*row)
	m.applyLog(row.ID, log)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, userID int, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return err
	}
	r, ok := m.sessions[id]
	if !ok || r.row.UserID != userID {
		return workout.SessionNotFound(id)
	}
	if r.deleted {
		return nil
	}
	r.deleted = true
	for setID, l := range m.log {
		if l.SessionID == id {
			delete(m.log, setID)
		}
	}
	return nil
}

// LoggedSets returns the set log rows of a session ordered by completion.
func (m *MemoryStore) LoggedSets(sessionID uuid.UUID) []models.LoggedSetRow {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.LoggedSetRow
	for _, l := range m.log {
		if l.SessionID == sessionID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.Before(out[j].CompletedAt) })
	return out
}

// Count returns the number of stored, non-deleted sessions of a user.
func (m *MemoryStore) Count(userID int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, r := range m.sessions {
		if !r.deleted && r.row.UserID == userID {
			n++
		}
	}
	return n
}

func (m *MemoryStore) takeFailure() error {
	err := m.FailNext
	m.FailNext = nil
	return err
}

func (m *MemoryStore) activeLocked(userID int) *models.SessionRow {
	for _, r := range m.sessions {
		if !r.deleted && r.row.UserID == userID && r.row.EndedAt == nil {
			return &r.row
		}
	}
	return nil
}

func (m *MemoryStore) applyLog(sessionID uuid.UUID, change *models.SetLogChange) {
	if change == nil {
		return
	}
	keep := make(map[uuid.UUID]bool, len(change.Completed))
	for _, id := range change.Completed {
		keep[id] = true
	}
	for setID, l := range m.log {
		if l.SessionID == sessionID && !keep[setID] {
			delete(m.log, setID)
		}
	}
	for _, l := range change.Upsert {
		m.log[l.SetID] = l
	}
}

// cloneRow deep-copies a row through its JSON form.
func cloneRow(r models.SessionRow) models.SessionRow {
	b, err := json.Marshal(r)
	if err != nil {
		panic(err)
	}
	var out models.SessionRow
	if err := json.Unmarshal(b, &out); err != nil {
		panic(err)
	}
	return out
}
