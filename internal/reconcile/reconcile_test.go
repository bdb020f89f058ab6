package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/workout"
	"github.com/google/uuid"
)

type fakeSource struct {
	sessions map[uuid.UUID]models.SessionRow
}

func (f *fakeSource) Get(_ context.Context, id uuid.UUID) (*models.SessionRow, error) {
	r, ok := f.sessions[id]
	if !ok {
		return nil, workout.SessionNotFound(id)
	}
	return &r, nil
}

func (f *fakeSource) Active(_ context.Context) (*models.SessionRow, error) {
	for _, r := range f.sessions {
		if r.EndedAt == nil {
			return &r, nil
		}
	}
	return nil, nil
}

var t0 = time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)

func sessionRow(id uuid.UUID, version int64, notes string) models.SessionRow {
	return models.SessionRow{ID: id, UserID: 1, StartedAt: t0, Notes: notes, Version: version, UpdatedAt: t0}
}

func newTestReconciler(t *testing.T, src *fakeSource) (*Reconciler, *Cache) {
	t.Helper()
	cache, err := OpenCache(t.TempDir())
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	t.Cleanup(func() { cache.Close() })
	return New(cache, src, 1, slog.New(slog.NewTextHandler(io.Discard, nil))), cache
}

// TestResolve verifies the last-writer-wins decision table.
func TestResolve(t *testing.T) {
	id := uuid.New()
	server := sessionRow(id, 3, "server")
	tests := []struct {
		name   string
		local  *Entry
		server *models.SessionRow
		want   Outcome
		notes  string
	}{
		{"no local", nil, &server, UsedServer, "server"},
		{"gone", &Entry{Row: sessionRow(id, 3, "local")}, nil, Gone, ""},
		{"newer server clean local", &Entry{Row: sessionRow(id, 2, "local"), BaseVersion: 2}, &server, UsedServer, "server"},
		{"newer server dirty local", &Entry{Row: sessionRow(id, 2, "local"), BaseVersion: 2, Dirty: true}, &server, DiscardedLocal, "server"},
		{"same version dirty local", &Entry{Row: sessionRow(id, 3, "local"), BaseVersion: 3, Dirty: true}, &server, KeptLocal, "server"},
		{"same version clean", &Entry{Row: sessionRow(id, 3, "local"), BaseVersion: 3}, &server, UsedServer, "server"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, got := Resolve(tt.local, tt.server)
			if got != tt.want {
				t.Fatalf("outcome = %v, want %v", got, tt.want)
			}
			if row != nil && row.Notes != tt.notes {
				t.Errorf("notes = %q, want %q", row.Notes, tt.notes)
			}
		})
	}
}

// withSets returns a session row holding two normal sets.
func withSets(t *testing.T, id uuid.UUID, version int64) models.SessionRow {
	t.Helper()
	sess := workout.NewSession(1, nil, t0)
	reps, kg := 5, 100.0
	_, err := sess.AddExerciseGroup(workout.Exercise{ID: "bench", Name: "Bench Press"},
		workout.PlannedExercise{ExerciseID: "bench", SetType: workout.SetNormal, Sets: 2, Reps: &reps, WeightKg: &kg})
	if err != nil {
		t.Fatalf("AddExerciseGroup: %v", err)
	}
	sess.ID, sess.Version, sess.UpdatedAt = id, version, t0
	return sess.Row()
}

func done() workout.Patch {
	v := true
	return workout.Patch{Completed: &v}
}

// TestLoadDiscardsStaleLocalEdits verifies a newer server copy replaces
// unsynced local edits, and that those edits are dropped.
func TestLoadDiscardsStaleLocalEdits(t *testing.T) {
	id := uuid.New()
	base := sessionRow(id, 4, "from phone")
	src := &fakeSource{sessions: map[uuid.UUID]models.SessionRow{id: sessionRow(id, 5, "from watch")}}
	r, cache := newTestReconciler(t, src)

	if err := cache.PutServer(base); err != nil {
		t.Fatalf("PutServer: %v", err)
	}
	if err := cache.AddPending(id, Edit{SetID: uuid.New(), Patch: done(), BaseVersion: 4}); err != nil {
		t.Fatalf("AddPending: %v", err)
	}

	sess, outcome, err := r.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if outcome != DiscardedLocal {
		t.Errorf("outcome = %v, want %v", outcome, DiscardedLocal)
	}
	if sess.Notes != "from watch" {
		t.Errorf("notes = %q, want %q", sess.Notes, "from watch")
	}

	e, err := cache.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e.Dirty || e.BaseVersion != 5 || len(e.Pending) != 0 {
		t.Errorf("cache entry dirty=%v base=%d pending=%d, want clean at 5", e.Dirty, e.BaseVersion, len(e.Pending))
	}
}

// TestLoadKeepsPendingEdits verifies local edits on the current server
// version are applied to the loaded session and stay pending.
func TestLoadKeepsPendingEdits(t *testing.T) {
	id := uuid.New()
	row := withSets(t, id, 2)
	src := &fakeSource{sessions: map[uuid.UUID]models.SessionRow{id: row}}
	r, cache := newTestReconciler(t, src)

	if err := cache.PutServer(row); err != nil {
		t.Fatalf("PutServer: %v", err)
	}
	local, err := workout.SessionFromRow(row)
	if err != nil {
		t.Fatalf("SessionFromRow: %v", err)
	}
	if err := r.Stage(local, local.Sets[1].Base().ID, done()); err != nil {
		t.Fatalf("Stage: %v", err)
	}

	sess, outcome, err := r.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if outcome != KeptLocal {
		t.Errorf("outcome = %v, want %v", outcome, KeptLocal)
	}
	if got := []bool{sess.Sets[0].IsCompleted(), sess.Sets[1].IsCompleted()}; got[0] || !got[1] {
		t.Errorf("completed = %v, want [false true]", got)
	}
	pending, err := r.Pending(id)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("pending = %d, want 1", len(pending))
	}
}

// TestPendingEditsSurviveOtherAcknowledgements verifies an unsent edit is
// neither lost nor overwritten when the server acknowledges a different
// write, and is cleared once its own write is acknowledged.
func TestPendingEditsSurviveOtherAcknowledgements(t *testing.T) {
	id := uuid.New()
	row := withSets(t, id, 2)
	src := &fakeSource{sessions: map[uuid.UUID]models.SessionRow{id: row}}
	r, cache := newTestReconciler(t, src)
	ctx := context.Background()

	if err := cache.PutServer(row); err != nil {
		t.Fatalf("PutServer: %v", err)
	}
	local, _, err := r.Load(ctx, id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	first, second := local.Sets[0].Base().ID, local.Sets[1].Base().ID
	if err := r.Stage(local, first, done()); err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if err := r.Stage(local, second, done()); err != nil {
		t.Fatalf("Stage: %v", err)
	}

	// The server applied the first edit only.
	applied, err := workout.SessionFromRow(row)
	if err != nil {
		t.Fatalf("SessionFromRow: %v", err)
	}
	if _, err := applied.UpdateSet(first, done(), t0); err != nil {
		t.Fatalf("UpdateSet: %v", err)
	}
	ack := applied.Row()
	ack.Version = 3
	src.sessions[id] = ack
	if err := r.Acknowledge(ack, first); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}

	pending, err := r.Pending(id)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 || pending[0].SetID != second || pending[0].BaseVersion != 3 {
		t.Fatalf("pending = %+v, want the second set's edit on version 3", pending)
	}

	sess, outcome, err := r.Load(ctx, id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if outcome != KeptLocal {
		t.Errorf("outcome = %v, want %v", outcome, KeptLocal)
	}
	if got := sess.CompletedCount(); got != 2 {
		t.Errorf("CompletedCount = %d, want 2", got)
	}

	if _, err := applied.UpdateSet(second, done(), t0); err != nil {
		t.Fatalf("UpdateSet: %v", err)
	}
	ack = applied.Row()
	ack.Version = 4
	src.sessions[id] = ack
	if err := r.Acknowledge(ack, second); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if pending, _ := r.Pending(id); len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}
	if _, outcome, _ := r.Load(ctx, id); outcome != UsedServer {
		t.Errorf("outcome = %v, want %v", outcome, UsedServer)
	}
}

// TestAcknowledgeKeepsNewestCopy verifies an older acknowledgement arriving
// late does not replace a newer cached copy.
func TestAcknowledgeKeepsNewestCopy(t *testing.T) {
	id := uuid.New()
	r, cache := newTestReconciler(t, &fakeSource{sessions: map[uuid.UUID]models.SessionRow{}})

	if err := r.Acknowledge(sessionRow(id, 5, "newer")); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if err := r.Acknowledge(sessionRow(id, 4, "older")); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	e, err := cache.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e.Row.Version != 5 || e.Row.Notes != "newer" {
		t.Errorf("cached version = %d notes = %q, want 5 %q", e.Row.Version, e.Row.Notes, "newer")
	}
}

// TestRemoteChangeDiscardsPendingEdits verifies edits made on a version the
// server has moved past are reported and dropped.
func TestRemoteChangeDiscardsPendingEdits(t *testing.T) {
	id := uuid.New()
	row := withSets(t, id, 2)
	src := &fakeSource{sessions: map[uuid.UUID]models.SessionRow{id: row}}
	r, cache := newTestReconciler(t, src)
	ctx := context.Background()

	if err := cache.PutServer(row); err != nil {
		t.Fatalf("PutServer: %v", err)
	}
	local, _, err := r.Load(ctx, id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := r.Stage(local, local.Sets[0].Base().ID, done()); err != nil {
		t.Fatalf("Stage: %v", err)
	}

	// Another device wrote twice in the meantime.
	remote := row
	remote.Version = 4
	remote.Notes = "from watch"
	src.sessions[id] = remote

	sess, outcome, err := r.Load(ctx, id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if outcome != DiscardedLocal {
		t.Errorf("outcome = %v, want %v", outcome, DiscardedLocal)
	}
	if sess.CompletedCount() != 0 || sess.Notes != "from watch" {
		t.Errorf("completed = %d notes = %q, want 0 %q", sess.CompletedCount(), sess.Notes, "from watch")
	}
	if pending, _ := r.Pending(id); len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}
}

// TestLoadDropsEditToRemovedSet verifies an edit to a set the server no
// longer has is dropped on load.
func TestLoadDropsEditToRemovedSet(t *testing.T) {
	id := uuid.New()
	row := withSets(t, id, 2)
	src := &fakeSource{sessions: map[uuid.UUID]models.SessionRow{id: row}}
	r, cache := newTestReconciler(t, src)

	if err := cache.PutServer(row); err != nil {
		t.Fatalf("PutServer: %v", err)
	}
	if err := cache.AddPending(id, Edit{SetID: uuid.New(), Patch: done(), BaseVersion: 2}); err != nil {
		t.Fatalf("AddPending: %v", err)
	}

	if _, _, err := r.Load(context.Background(), id); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if pending, _ := r.Pending(id); len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}
}

// TestForgetDropsPendingEdits verifies forgetting a session also removes its
// unsent edits.
func TestForgetDropsPendingEdits(t *testing.T) {
	id := uuid.New()
	r, cache := newTestReconciler(t, &fakeSource{sessions: map[uuid.UUID]models.SessionRow{}})
	if err := cache.PutServer(sessionRow(id, 1, "")); err != nil {
		t.Fatalf("PutServer: %v", err)
	}
	if err := cache.AddPending(id, Edit{SetID: uuid.New(), Patch: done(), BaseVersion: 1}); err != nil {
		t.Fatalf("AddPending: %v", err)
	}

	if err := r.Forget(id); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if pending, _ := r.Pending(id); len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}
}

// TestLoadDeletedSession verifies a session deleted on the server is dropped
// from the cache and reported as not found.
func TestLoadDeletedSession(t *testing.T) {
	id := uuid.New()
	r, cache := newTestReconciler(t, &fakeSource{sessions: map[uuid.UUID]models.SessionRow{}})
	if err := cache.PutServer(sessionRow(id, 1, "")); err != nil {
		t.Fatalf("PutServer: %v", err)
	}

	_, outcome, err := r.Load(context.Background(), id)
	if !errors.Is(err, workout.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if outcome != Gone {
		t.Errorf("outcome = %v, want %v", outcome, Gone)
	}
	if e, _ := cache.Get(id); e != nil {
		t.Error("cache still holds deleted session")
	}
}

// TestLoadActiveAfterRemoteFinish verifies a device that cached a session as
// active sees it finished once another device has finished it.
func TestLoadActiveAfterRemoteFinish(t *testing.T) {
	id := uuid.New()
	finished := sessionRow(id, 2, "")
	end := t0.Add(time.Hour)
	finished.EndedAt = &end
	src := &fakeSource{sessions: map[uuid.UUID]models.SessionRow{id: finished}}
	r, cache := newTestReconciler(t, src)

	if err := cache.PutServer(sessionRow(id, 1, "")); err != nil {
		t.Fatalf("PutServer: %v", err)
	}

	sess, _, err := r.LoadActive(context.Background())
	if err != nil {
		t.Fatalf("LoadActive: %v", err)
	}
	if sess != nil {
		t.Fatalf("active = %s, want none", sess.ID)
	}

	ids, err := cache.ActiveIDs(1)
	if err != nil {
		t.Fatalf("ActiveIDs: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("cached active = %v, want none", ids)
	}
	e, err := cache.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e == nil || e.Row.EndedAt == nil {
		t.Error("cached copy is not finished")
	}
}
