package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/workout"
	"github.com/google/uuid"
)

// SetUpdater sends one set patch to the server.
type SetUpdater interface {
	UpdateSet(ctx context.Context, sessionID, setID uuid.UUID, p workout.Patch) (*models.SessionRow, error)
}

// Result reports the outcome of one write sent by a Writer.
type Result struct {
	SessionID uuid.UUID
	SetID     uuid.UUID
	Row       *models.SessionRow
	Err       error
}

// Writer batches rapid edits to a set and sends them in the background.
// Each set has at most one write in flight, and every write carries a
// sequence number greater than all earlier ones, so the last edit is the
// one that lands. Writes run on the Writer's own context and are not
// cancelled when the caller's request ends; Cancel drops the writes of a
// deleted session.
type Writer struct {
	updater  SetUpdater
	delay    time.Duration
	log      *slog.Logger
	onResult func(Result)

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sets     map[uuid.UUID]*pendingSet
	sessions map[uuid.UUID]*sessionWrites
	lastSeq  int64
	closed   bool
	// running counts send loops; idle is closed when it drops to zero.
	running int
	idle    chan struct{}
}

type pendingSet struct {
	sessionID uuid.UUID
	patches   []workout.Patch
	timer     *time.Timer
	inflight  bool
}

type sessionWrites struct {
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled bool
}

// NewWriter creates a Writer that waits delay after the last edit to a set
// before sending it. onResult may be nil.
func NewWriter(updater SetUpdater, delay time.Duration, log *slog.Logger, onResult func(Result)) *Writer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Writer{
		updater:  updater,
		delay:    delay,
		log:      log,
		onResult: onResult,
		ctx:      ctx,
		cancel:   cancel,
		sets:     make(map[uuid.UUID]*pendingSet),
		sessions: make(map[uuid.UUID]*sessionWrites),
	}
}

// Queue records an edit to a set and (re)starts its debounce timer. Edits to
// the same field of a set that have not been sent yet are merged. Edits to a
// cancelled session are dropped; Queue reports whether the edit was kept.
func (w *Writer) Queue(sessionID, setID uuid.UUID, p workout.Patch) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return false
	}
	sw := w.session(sessionID)
	if sw.cancelled {
		return false
	}

	ps := w.sets[setID]
	if ps == nil {
		ps = &pendingSet{sessionID: sessionID}
		w.sets[setID] = ps
	}
	ps.patches = appendPatch(ps.patches, p)

	if ps.timer != nil {
		ps.timer.Stop()
	}
	ps.timer = time.AfterFunc(w.delay, func() { w.fire(setID) })
	return true
}

// Flush sends every pending edit now and waits for all writes to finish or
// ctx to be done.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	for setID, ps := range w.sets {
		if ps.timer != nil {
			ps.timer.Stop()
			ps.timer = nil
		}
		w.startLocked(setID, ps)
	}
	w.mu.Unlock()
	return w.wait(ctx)
}

// wait blocks until no send loop is running.
func (w *Writer) wait(ctx context.Context) error {
	for {
		w.mu.Lock()
		if w.running == 0 {
			w.mu.Unlock()
			return nil
		}
		if w.idle == nil {
			w.idle = make(chan struct{})
		}
		idle := w.idle
		w.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Cancel drops pending edits for a session and aborts its in-flight writes.
// Later edits to the session are ignored.
func (w *Writer) Cancel(sessionID uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()

	sw := w.session(sessionID)
	sw.cancelled = true
	sw.cancel()
	for setID, ps := range w.sets {
		if ps.sessionID != sessionID {
			continue
		}
		if ps.timer != nil {
			ps.timer.Stop()
		}
		ps.patches = nil
		if !ps.inflight {
			delete(w.sets, setID)
		}
	}
}

// Pending reports whether any edit is queued or in flight.
func (w *Writer) Pending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.sets) > 0
}

// Close flushes pending edits, then stops the Writer.
func (w *Writer) Close(ctx context.Context) error {
	err := w.Flush(ctx)

	w.mu.Lock()
	w.closed = true
	for _, ps := range w.sets {
		if ps.timer != nil {
			ps.timer.Stop()
		}
	}
	w.mu.Unlock()

	w.cancel()
	if werr := w.wait(context.Background()); err == nil {
		err = werr
	}
	return err
}

func (w *Writer) fire(setID uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ps := w.sets[setID]
	if ps == nil || w.closed {
		return
	}
	ps.timer = nil
	w.startLocked(setID, ps)
}

// startLocked launches the send loop for a set unless one is running; a
// running loop picks up newly queued patches itself.
func (w *Writer) startLocked(setID uuid.UUID, ps *pendingSet) {
	if ps.inflight || len(ps.patches) == 0 {
		return
	}
	ps.inflight = true
	w.running++
	go w.send(setID, ps)
}

func (w *Writer) send(setID uuid.UUID, ps *pendingSet) {
	for {
		w.mu.Lock()
		if len(ps.patches) == 0 || ps.timer != nil || w.closed {
			ps.inflight = false
			if len(ps.patches) == 0 && w.sets[setID] == ps {
				delete(w.sets, setID)
			}
			w.running--
			if w.running == 0 && w.idle != nil {
				close(w.idle)
				w.idle = nil
			}
			w.mu.Unlock()
			return
		}
		p := ps.patches[0]
		ps.patches = ps.patches[1:]
		p.Seq = w.nextSeqLocked()
		ctx := w.session(ps.sessionID).ctx
		w.mu.Unlock()

		row, err := w.updater.UpdateSet(ctx, ps.sessionID, setID, p)
		if err != nil && ctx.Err() == nil {
			w.log.Warn("set write failed", "session_id", ps.sessionID, "set_id", setID, "seq", p.Seq, "error", err)
		}
		if w.onResult != nil && ctx.Err() == nil {
			w.onResult(Result{SessionID: ps.sessionID, SetID: setID, Row: row, Err: err})
		}
	}
}

// nextSeqLocked returns a sequence number from the wall clock, forced to be
// strictly increasing so it also orders writes across restarts.
func (w *Writer) nextSeqLocked() int64 {
	seq := time.Now().UnixNano()
	if seq <= w.lastSeq {
		seq = w.lastSeq + 1
	}
	w.lastSeq = seq
	return seq
}

func (w *Writer) session(id uuid.UUID) *sessionWrites {
	sw := w.sessions[id]
	if sw == nil {
		ctx, cancel := context.WithCancel(w.ctx)
		sw = &sessionWrites{ctx: ctx, cancel: cancel}
		w.sessions[id] = sw
	}
	return sw
}

// appendPatch merges p into the last queued patch when both target the same
// stage; otherwise it is queued after it.
func appendPatch(queue []workout.Patch, p workout.Patch) []workout.Patch {
	if len(queue) == 0 {
		return append(queue, p)
	}
	last := &queue[len(queue)-1]
	if !sameTarget(*last, p) {
		return append(queue, p)
	}
	if p.WeightKg != nil {
		last.WeightKg = p.WeightKg
		last.ClearWeight = false
	}
	if p.ClearWeight {
		last.WeightKg = nil
		last.ClearWeight = true
	}
	if p.Reps != nil {
		last.Reps = p.Reps
	}
	if p.Completed != nil {
		last.Completed = p.Completed
	}
	if p.Stages != nil {
		last.Stages = p.Stages
	}
	return queue
}

func sameTarget(a, b workout.Patch) bool {
	if a.Stages != nil || b.Stages != nil {
		return false
	}
	switch {
	case a.Stage == nil && b.Stage == nil:
		return true
	case a.Stage != nil && b.Stage != nil:
		return *a.Stage == *b.Stage
	default:
		return false
	}
}
