package main

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/claude/liftlog/internal/client"
	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/reconcile"
	"github.com/claude/liftlog/internal/workout"
	"github.com/google/uuid"
)

// TestMatchPrefix verifies set and session references resolve only when
// unambiguous.
func TestMatchPrefix(t *testing.T) {
	a := uuid.MustParse("3f2a0000-0000-4000-8000-000000000001")
	b := uuid.MustParse("3f2b0000-0000-4000-8000-000000000002")
	ids := []uuid.UUID{a, b}

	tests := []struct {
		prefix  string
		want    uuid.UUID
		wantErr bool
	}{
		{"3f2a", a, false},
		{"3F2B", b, false},
		{"3f2", uuid.Nil, true},
		{"ffff", uuid.Nil, true},
	}
	for _, tt := range tests {
		got, err := matchPrefix(tt.prefix, ids, "set")
		if (err != nil) != tt.wantErr {
			t.Fatalf("matchPrefix(%q) err = %v, wantErr %v", tt.prefix, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("matchPrefix(%q) = %v, want %v", tt.prefix, got, tt.want)
		}
	}
}

// TestSetDetail verifies each set type renders its values.
func TestSetDetail(t *testing.T) {
	w80, w60 := 80.0, 60.0
	r5, r8 := 5, 8

	tests := []struct {
		name string
		set  workout.Set
		want string
	}{
		{"warmup", workout.Warmup{Reps: &r8}, "warm-up 8"},
		{"normal", workout.Normal{WeightKg: &w80, Reps: &r5}, "80 kg x 5"},
		{"normal unset", workout.Normal{}, "- x -"},
		{"bodyweight", workout.Bodyweight{Reps: &r8}, "BW x 8"},
		{"dropdown", workout.Dropdown{Stages: []workout.Stage{
			{WeightKg: &w80, Reps: &r5, Completed: true},
			{WeightKg: &w60, Reps: &r8},
		}}, "80 kg x 5✓ → 60 kg x 8"},
	}
	for _, tt := range tests {
		if got := setDetail(tt.set); got != tt.want {
			t.Errorf("%s: got = %q, want %q", tt.name, got, tt.want)
		}
	}
}

// TestShortID verifies IDs are shortened to their first eight characters.
func TestShortID(t *testing.T) {
	id := uuid.MustParse("3f2a9c41-0000-4000-8000-000000000001")
	if got := shortID(id); got != "3f2a9c41" {
		t.Errorf("got = %q, want %q", got, "3f2a9c41")
	}
}

type noSource struct{}

func (noSource) Get(_ context.Context, id uuid.UUID) (*models.SessionRow, error) {
	return nil, workout.SessionNotFound(id)
}

func (noSource) Active(context.Context) (*models.SessionRow, error) { return nil, nil }

// countingUpdater answers every write with the next version of the session.
type countingUpdater struct {
	mu      sync.Mutex
	version int64
	sent    []uuid.UUID
}

func (u *countingUpdater) UpdateSet(_ context.Context, sessionID, setID uuid.UUID, _ workout.Patch) (*models.SessionRow, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.version++
	u.sent = append(u.sent, setID)
	return &models.SessionRow{ID: sessionID, UserID: 1, Version: u.version}, nil
}

func testReconciler(t *testing.T) (*reconcile.Reconciler, *reconcile.Cache, *slog.Logger) {
	t.Helper()
	c, err := reconcile.OpenCache(t.TempDir())
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	return reconcile.New(c, noSource{}, 1, l), c, l
}

func donePatch() workout.Patch {
	v := true
	return workout.Patch{Completed: &v}
}

// TestEditSenderClearsAcknowledgedEdits verifies every edit that reached the
// server stops being pending.
func TestEditSenderClearsAcknowledgedEdits(t *testing.T) {
	r, c, l := testReconciler(t)
	id, a, b := uuid.New(), uuid.New(), uuid.New()
	if err := c.PutServer(models.SessionRow{ID: id, UserID: 1, Version: 1}); err != nil {
		t.Fatalf("PutServer: %v", err)
	}
	for _, setID := range []uuid.UUID{a, b, a} {
		if err := c.AddPending(id, reconcile.Edit{SetID: setID, Patch: donePatch(), BaseVersion: 1}); err != nil {
			t.Fatalf("AddPending: %v", err)
		}
	}
	edits, err := r.Pending(id)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}

	u := &countingUpdater{version: 1}
	if err := newEditSender(u, r, time.Hour, l).send(context.Background(), id, edits); err != nil {
		t.Fatalf("send: %v", err)
	}

	if got := len(u.sent); got != 2 {
		t.Errorf("writes = %d, want 2", got)
	}
	if pending, _ := r.Pending(id); len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}
	e, err := c.Get(id)
	if err != nil || e == nil {
		t.Fatalf("Get = %v, %v", e, err)
	}
	if e.Row.Version != 3 {
		t.Errorf("cached version = %d, want 3", e.Row.Version)
	}
}

// TestEditSenderCancelsDeletedSession verifies a not-found answer stops
// further writes to that session and drops its cached copy.
func TestEditSenderCancelsDeletedSession(t *testing.T) {
	r, c, l := testReconciler(t)
	gone, other := uuid.New(), uuid.New()
	if err := c.PutServer(models.SessionRow{ID: gone, UserID: 1, Version: 1}); err != nil {
		t.Fatalf("PutServer: %v", err)
	}
	if err := c.AddPending(gone, reconcile.Edit{SetID: uuid.New(), Patch: donePatch(), BaseVersion: 1}); err != nil {
		t.Fatalf("AddPending: %v", err)
	}

	s := newEditSender(&countingUpdater{}, r, 0, l)
	s.handle(client.Result{SessionID: gone, SetID: uuid.New(), Err: workout.SessionNotFound(gone)})

	if s.w.Queue(gone, uuid.New(), donePatch()) {
		t.Error("edit to deleted session was queued")
	}
	if !s.w.Queue(other, uuid.New(), donePatch()) {
		t.Error("edit to other session was dropped")
	}
	if err := s.w.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if e, _ := c.Get(gone); e != nil {
		t.Error("deleted session still cached")
	}
	if pending, _ := r.Pending(gone); len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}
}
