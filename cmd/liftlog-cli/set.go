package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/claude/liftlog/internal/client"
	"github.com/claude/liftlog/internal/reconcile"
	"github.com/claude/liftlog/internal/workout"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	setWeight      float64
	setClearWeight bool
	setReps        int
	setDone        bool
	setUndo        bool
	setStage       int
	setDebounce    time.Duration
)

var setCmd = &cobra.Command{
	Use:   "set <set-id>...",
	Short: "Edit sets of the active session",
	Long: `Edit one or more sets of the active session. A set is named by a unique
prefix of its ID, as shown by 'liftlog-cli active'.

Edits are checked here first; invalid numbers are never sent. They are then
kept on this device and sent in the background, together with any earlier
edits that did not reach the server, and the command waits until every edit
has been acknowledged. Edits that fail stay on this device until
'liftlog-cli sync' delivers them.

EXAMPLES:

  liftlog-cli set 3f2a --weight 82.5 --reps 6 --done
  liftlog-cli set 3f2a 9b1c --done
  liftlog-cli set 77d0 --stage 1 --weight 60 --reps 8 --done   # dropdown stage`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		if setDone && setUndo {
			return errors.New("--done and --undo are mutually exclusive")
		}
		patch := workout.Patch{ClearWeight: setClearWeight}
		if cmd.Flags().Changed("weight") {
			patch.WeightKg = &setWeight
		}
		if cmd.Flags().Changed("reps") {
			patch.Reps = &setReps
		}
		if setDone || setUndo {
			done := setDone
			patch.Completed = &done
		}
		if cmd.Flags().Changed("stage") {
			patch.Stage = &setStage
		}

		sess, outcome, err := rec.LoadActive(ctx)
		if err != nil {
			return err
		}
		if sess == nil {
			return errors.New("no active session; start one with 'liftlog-cli start'")
		}
		reportOutcome(outcome)

		setIDs := make([]uuid.UUID, 0, len(args))
		for _, ref := range args {
			id, err := matchPrefix(ref, setIDsOf(sess), "set")
			if err != nil {
				return err
			}
			// Validate locally before anything is queued.
			if _, err := sess.UpdateSet(id, patch, time.Now()); err != nil {
				return err
			}
			setIDs = append(setIDs, id)
		}
		for _, id := range setIDs {
			if err := rec.Stage(sess, id, patch); err != nil {
				return err
			}
		}

		return pushPending(ctx, sess.ID)
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync [session]",
	Short: "Send edits that have not reached the server (default: active session)",
	Long: `Send set edits this device made while the server could not be reached.
Edits made on a copy another device has changed since are dropped instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		id, err := sessionOrActive(ctx, firstArg(args))
		if err != nil {
			return err
		}
		sent, err := syncPending(ctx, id)
		if err != nil {
			return err
		}
		if !sent {
			color.Green("✓ Nothing to send")
		}
		return nil
	},
}

func init() {
	setCmd.Flags().Float64VarP(&setWeight, "weight", "w", 0, "weight in kg")
	setCmd.Flags().BoolVar(&setClearWeight, "clear-weight", false, "remove the entered weight")
	setCmd.Flags().IntVarP(&setReps, "reps", "r", 0, "repetitions")
	setCmd.Flags().BoolVarP(&setDone, "done", "d", false, "mark completed")
	setCmd.Flags().BoolVar(&setUndo, "undo", false, "mark not completed")
	setCmd.Flags().IntVar(&setStage, "stage", 0, "dropdown stage index, starting at 0")
	setCmd.Flags().DurationVar(&setDebounce, "debounce", 300*time.Millisecond, "delay before an edit is sent")
}

// syncPending reconciles a session with the server, dropping edits made on
// a copy that changed elsewhere, and sends the edits that remain. It
// reports whether there was anything to send.
func syncPending(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	_, outcome, err := rec.Load(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if outcome == reconcile.DiscardedLocal {
		reportOutcome(outcome)
	}
	edits, err := rec.Pending(sessionID)
	if err != nil || len(edits) == 0 {
		return false, err
	}
	return true, pushPending(ctx, sessionID)
}

// pushPending sends every edit this device holds for a session and waits
// until all of them are acknowledged or have failed.
func pushPending(ctx context.Context, sessionID uuid.UUID) error {
	edits, err := rec.Pending(sessionID)
	if err != nil {
		return err
	}
	return newEditSender(api, rec, setDebounce, log).send(ctx, sessionID, edits)
}

// editSender sends pending edits through a Writer. A set whose writes all
// succeeded has its edits cleared once sending is done; a set with a failed
// write keeps them pending.
type editSender struct {
	rec *reconcile.Reconciler
	w   *client.Writer

	mu     sync.Mutex
	failed map[uuid.UUID]bool
	acked  map[uuid.UUID]bool
	last   *workout.Session
}

func newEditSender(updater client.SetUpdater, r *reconcile.Reconciler, delay time.Duration, log *slog.Logger) *editSender {
	s := &editSender{rec: r, failed: make(map[uuid.UUID]bool), acked: make(map[uuid.UUID]bool)}
	s.w = client.NewWriter(updater, delay, log, s.handle)
	return s
}

func (s *editSender) handle(res client.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if res.Err != nil {
		s.failed[res.SetID] = true
		color.Red("✗ Set %s: %v", shortID(res.SetID), res.Err)
		if errors.Is(res.Err, workout.ErrNotFound) {
			// The session is gone; stop sending its other sets.
			s.w.Cancel(res.SessionID)
			if err := s.rec.Forget(res.SessionID); err != nil {
				color.Red("✗ %v", err)
			}
		}
		return
	}
	s.acked[res.SetID] = true
	if err := s.rec.Acknowledge(*res.Row); err != nil {
		color.Red("✗ Set %s: %v", shortID(res.SetID), err)
		return
	}
	sess, err := workout.SessionFromRow(*res.Row)
	if err != nil {
		color.Red("✗ Set %s: %v", shortID(res.SetID), err)
		return
	}
	if s.last == nil || sess.Version > s.last.Version {
		s.last = sess
	}
}

// send queues edits, which the Writer merges per set, and waits for the
// Writer to drain.
func (s *editSender) send(ctx context.Context, sessionID uuid.UUID, edits []reconcile.Edit) error {
	sets := make(map[uuid.UUID]bool)
	for _, e := range edits {
		s.w.Queue(sessionID, e.SetID, e.Patch)
		sets[e.SetID] = true
	}
	if err := s.w.Close(ctx); err != nil {
		return fmt.Errorf("sending edits: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var delivered []uuid.UUID
	for id := range s.acked {
		if !s.failed[id] {
			delivered = append(delivered, id)
		}
	}
	if err := s.rec.Delivered(sessionID, delivered...); err != nil {
		return err
	}
	if len(s.failed) > 0 {
		return fmt.Errorf("%d of %d set edits failed; 'liftlog-cli sync' retries them", len(s.failed), len(sets))
	}
	color.Green("✓ Updated %d set(s)", len(sets))
	if s.last != nil {
		printSession(os.Stdout, s.last)
	}
	return nil
}

func setIDsOf(sess *workout.Session) []uuid.UUID {
	ids := make([]uuid.UUID, len(sess.Sets))
	for i, s := range sess.Sets {
		ids[i] = s.Base().ID
	}
	return ids
}
