package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/workout"
	"github.com/google/uuid"
)

// pausingStore holds the next pauses reads after they load a session until
// the test releases them.
type pausingStore struct {
	*MemoryStore

	mu      sync.Mutex
	pauses  int
	arrived chan struct{}
	release chan struct{}
}

func newPausingStore(pauses int) *pausingStore {
	return &pausingStore{
		MemoryStore: newStore(),
		pauses:      pauses,
		arrived:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (p *pausingStore) Get(ctx context.Context, userID int, id uuid.UUID) (*models.SessionRow, error) {
	row, err := p.MemoryStore.Get(ctx, userID, id)
	p.mu.Lock()
	hold := p.pauses > 0
	if hold {
		p.pauses--
	}
	p.mu.Unlock()
	if hold {
		p.arrived <- struct{}{}
		<-p.release
	}
	return row, err
}

// staleStore rejects every update as written on top of an old version.
type staleStore struct {
	*MemoryStore
}

func (s staleStore) Update(_ context.Context, row *models.SessionRow, _ *models.SetLogChange) error {
	return fmt.Errorf("session %s: %w", row.ID, workout.ErrStaleVersion)
}

type result struct {
	sess *workout.Session
	err  error
}

// startTwoSets starts a session with two normal sets through an unpaused
// service sharing store.
func startTwoSets(t *testing.T, store Store) *workout.Session {
	t.Helper()
	svc := NewService(store, benchCatalog(), nil, discardLogger())
	sess, err := svc.Start(testCtx(), 1, nil)
	noErr(t, err)
	sess, err = svc.AddExercise(testCtx(), 1, sess.ID,
		workout.PlannedExercise{ExerciseID: "bench", SetType: workout.SetNormal, Sets: 2, Reps: intPtr(5), WeightKg: floatPtr(100)})
	noErr(t, err)
	return sess
}

// TestParallelSetUpdatesBothKept verifies two edits to different sets that
// read the same version both end up stored.
func TestParallelSetUpdatesBothKept(t *testing.T) {
	store := newPausingStore(0)
	sess := startTwoSets(t, store)
	svc := NewService(store, benchCatalog(), nil, discardLogger())
	ctx := testCtx()

	store.mu.Lock()
	store.pauses = 1
	store.mu.Unlock()

	done := make(chan result, 1)
	go func() {
		s, err := svc.UpdateSet(ctx, 1, sess.ID, sess.Sets[0].Base().ID, completed())
		done <- result{s, err}
	}()
	<-store.arrived

	_, err := svc.UpdateSet(ctx, 1, sess.ID, sess.Sets[1].Base().ID, completed())
	noErr(t, err)
	close(store.release)

	res := <-done
	noErr(t, res.err)

	stored, err := svc.Get(ctx, 1, sess.ID)
	noErr(t, err)
	if got := stored.CompletedCount(); got != 2 {
		t.Errorf("CompletedCount = %d, want 2", got)
	}
	if got, want := stored.Version, sess.Version+2; got != want {
		t.Errorf("Version = %d, want %d", got, want)
	}
}

// TestEditAfterRemoteFinishRefused verifies an edit that loaded the session
// before another device finished it does not reopen or change it.
func TestEditAfterRemoteFinishRefused(t *testing.T) {
	store := newPausingStore(0)
	sess := startTwoSets(t, store)
	svc := NewService(store, benchCatalog(), nil, discardLogger())
	ctx := testCtx()

	store.mu.Lock()
	store.pauses = 1
	store.mu.Unlock()

	done := make(chan result, 1)
	go func() {
		s, err := svc.UpdateSet(ctx, 1, sess.ID, sess.Sets[0].Base().ID, completed())
		done <- result{s, err}
	}()
	<-store.arrived

	finished, err := svc.FinishByID(ctx, 1, sess.ID)
	noErr(t, err)
	close(store.release)

	res := <-done
	if !errors.Is(res.err, workout.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", res.err)
	}

	stored, err := svc.Get(ctx, 1, sess.ID)
	noErr(t, err)
	if stored.IsActive() {
		t.Error("late edit reopened the finished session")
	}
	if stored.Version != finished.Version {
		t.Errorf("Version = %d, want %d", stored.Version, finished.Version)
	}
	if got := stored.CompletedCount(); got != 0 {
		t.Errorf("CompletedCount = %d, want 0", got)
	}
	active, err := svc.Active(ctx, 1)
	noErr(t, err)
	if active != nil {
		t.Errorf("Active = %s, want none", active.ID)
	}
}

// TestStaleFinishedAggregateKeepsEndTime verifies finishing an aggregate read
// before a remote finish keeps the stored end time.
func TestStaleFinishedAggregateKeepsEndTime(t *testing.T) {
	store := newStore()
	sess := startTwoSets(t, store)
	svc := newTestService(store)
	ctx := testCtx()

	first, err := svc.FinishByID(ctx, 1, sess.ID)
	noErr(t, err)
	second, err := svc.Finish(ctx, 1, sess)
	noErr(t, err)

	if !second.EndedAt.Equal(*first.EndedAt) {
		t.Errorf("EndedAt = %v, want %v", second.EndedAt, first.EndedAt)
	}
	if second.Version != first.Version+1 {
		t.Errorf("Version = %d, want %d", second.Version, first.Version+1)
	}
}

// TestUpdateSetGivesUpOnContention verifies a write that keeps losing the
// version race ends in a ConflictError.
func TestUpdateSetGivesUpOnContention(t *testing.T) {
	mem := newStore()
	sess := startTwoSets(t, mem)
	svc := NewService(staleStore{mem}, benchCatalog(), nil, discardLogger())

	_, err := svc.UpdateSet(testCtx(), 1, sess.ID, sess.Sets[0].Base().ID, completed())
	var conflict *workout.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want ConflictError", err)
	}
	if conflict.SessionID != sess.ID {
		t.Errorf("conflict session = %s, want %s", conflict.SessionID, sess.ID)
	}
}

// TestMemoryStoreRejectsStaleVersion verifies an update based on an old
// version is refused.
func TestMemoryStoreRejectsStaleVersion(t *testing.T) {
	store := newStore()
	sess := startTwoSets(t, store)
	ctx := testCtx()

	row := sess.Row()
	row.Version--
	err := store.Update(ctx, &row, nil)
	if !errors.Is(err, workout.ErrStaleVersion) {
		t.Fatalf("err = %v, want ErrStaleVersion", err)
	}
	got, err := store.Get(ctx, 1, sess.ID)
	noErr(t, err)
	if got.Version != sess.Version {
		t.Errorf("Version = %d, want %d", got.Version, sess.Version)
	}
}
