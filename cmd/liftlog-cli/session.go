package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/claude/liftlog/internal/client"
	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/reconcile"
	"github.com/claude/liftlog/internal/workout"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	startPreset string
	listLimit   int

	addType     string
	addSets     int
	addWarmups  int
	addReps     int
	addWeight   float64
	addStages   int
	addSession  string
	suggestFrom string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new session",
	Long: `Start a new active session, optionally copying the plan of a preset.

Fails if you already have an active session. Finish, resume or delete that
one first; its ID is printed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		var presetID *uuid.UUID
		if startPreset != "" {
			id, err := uuid.Parse(startPreset)
			if err != nil {
				return fmt.Errorf("invalid preset ID: %w", err)
			}
			presetID = &id
		}

		row, err := api.Start(ctx, presetID)
		if err != nil {
			var apiErr *client.APIError
			if errors.As(err, &apiErr) && errors.Is(err, workout.ErrConflict) && apiErr.SessionID != uuid.Nil {
				color.Yellow("! Session %s is still active.", shortID(apiErr.SessionID))
				fmt.Printf("  Resume it with 'liftlog-cli active' or discard it with 'liftlog-cli delete %s'.\n", shortID(apiErr.SessionID))
			}
			return err
		}
		sess, err := acknowledge(*row)
		if err != nil {
			return err
		}
		color.Green("✓ Started session %s", shortID(sess.ID))
		printSession(os.Stdout, sess)
		return nil
	},
}

var activeCmd = &cobra.Command{
	Use:     "active",
	Aliases: []string{"a"},
	Short:   "Show the active session",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		sess, outcome, err := rec.LoadActive(ctx)
		if err != nil {
			return err
		}
		if sess == nil {
			fmt.Println("No active session.")
			return nil
		}
		reportOutcome(outcome)
		printSession(os.Stdout, sess)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <session>",
	Short: "Show one session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		id, err := resolveSession(ctx, args[0])
		if err != nil {
			return err
		}
		sess, outcome, err := rec.Load(ctx, id)
		if err != nil {
			return err
		}
		reportOutcome(outcome)
		printSession(os.Stdout, sess)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recent sessions",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		rows, err := api.List(ctx, listLimit)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}
		for _, row := range rows {
			sess, err := workout.SessionFromRow(row)
			if err != nil {
				return err
			}
			printSessionLine(os.Stdout, sess)
		}
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add <exercise-id>",
	Short: "Add an exercise to the active session",
	Long: `Append planned sets for one exercise to the active session.

EXAMPLES:

  liftlog-cli add bench_press --sets 3 --reps 8 --weight 80 --warmups 2
  liftlog-cli add dips --type bodyweight --sets 3 --reps 12
  liftlog-cli add lateral_raise --type dropdown --sets 1 --stages 3 --weight 12`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		id, err := sessionOrActive(ctx, addSession)
		if err != nil {
			return err
		}

		plan := workout.PlannedExercise{
			ExerciseID: args[0],
			SetType:    workout.SetType(addType),
			Sets:       addSets,
			WarmupSets: addWarmups,
			DropStages: addStages,
		}
		if cmd.Flags().Changed("reps") {
			plan.Reps = &addReps
			plan.WarmupReps = &addReps
		}
		if cmd.Flags().Changed("weight") {
			plan.WeightKg = &addWeight
		}
		// Invalid plans never reach the server.
		if err := plan.Validate(); err != nil {
			return err
		}

		row, err := api.AddExercise(ctx, id, plan)
		if err != nil {
			return err
		}
		sess, err := acknowledge(*row)
		if err != nil {
			return err
		}
		color.Green("✓ Added %s", args[0])
		printSession(os.Stdout, sess)
		return nil
	},
}

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Apply a parsed workout suggestion to the active session",
	Long: `Apply the JSON output of the AI parsing service to the active session.

The suggestion is applied whole or not at all. Malformed or low-confidence
suggestions add nothing and the reason is printed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		raw, err := readInput(suggestFrom)
		if err != nil {
			return err
		}
		id, err := sessionOrActive(ctx, addSession)
		if err != nil {
			return err
		}

		row, decision, err := api.ApplySuggestion(ctx, id, json.RawMessage(raw))
		if err != nil {
			return err
		}
		sess, err := acknowledge(*row)
		if err != nil {
			return err
		}
		if decision.Applied == 0 {
			color.Yellow("! Suggestion not applied: %s", decision.Reason)
			return nil
		}
		color.Green("✓ Added %d exercise(s) from suggestion", decision.Applied)
		printSession(os.Stdout, sess)
		return nil
	},
}

var finishCmd = &cobra.Command{
	Use:   "finish [session]",
	Short: "Finish a session (default: the active one)",
	Long: `Finish a session and log its completed sets. Edits this device has not
delivered yet are sent first. The command returns only after the server
has stored the finished session, so another device can start a new one
right away.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		id, err := sessionOrActive(ctx, firstArg(args))
		if err != nil {
			return err
		}
		if _, err := syncPending(ctx, id); err != nil {
			return err
		}
		row, err := api.Finish(ctx, id)
		if err != nil {
			return err
		}
		sess, err := acknowledge(*row)
		if err != nil {
			return err
		}
		color.Green("✓ Finished session %s: %d/%d sets, %.1f kg", shortID(sess.ID),
			sess.CompletedCount(), sess.TotalCount(), sess.WorkingVolume())
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <session>",
	Short: "Reopen a finished session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		id, err := resolveSession(ctx, args[0])
		if err != nil {
			return err
		}
		row, err := api.Resume(ctx, id)
		if err != nil {
			return err
		}
		sess, err := acknowledge(*row)
		if err != nil {
			return err
		}
		color.Green("✓ Resumed session %s", shortID(sess.ID))
		printSession(os.Stdout, sess)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <session>",
	Aliases: []string{"rm"},
	Short:   "Delete a session and its logged sets",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		id, err := resolveSession(ctx, args[0])
		if err != nil {
			return err
		}
		if err := api.Delete(ctx, id); err != nil {
			return err
		}
		if err := rec.Forget(id); err != nil {
			return err
		}
		color.Green("✓ Deleted session %s", shortID(id))
		return nil
	},
}

func init() {
	startCmd.Flags().StringVarP(&startPreset, "preset", "p", "", "preset ID to start from")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "number of sessions to show")

	addCmd.Flags().StringVarP(&addType, "type", "t", string(workout.SetNormal), "set type: normal, bodyweight, dropdown, warmup")
	addCmd.Flags().IntVarP(&addSets, "sets", "s", 3, "number of working sets")
	addCmd.Flags().IntVar(&addWarmups, "warmups", 0, "warm-up sets before the working sets")
	addCmd.Flags().IntVarP(&addReps, "reps", "r", 0, "target reps per set")
	addCmd.Flags().Float64VarP(&addWeight, "weight", "w", 0, "target weight in kg")
	addCmd.Flags().IntVar(&addStages, "stages", 0, "stages per dropdown set")
	addCmd.Flags().StringVar(&addSession, "session", "", "session to add to (default: active)")

	suggestCmd.Flags().StringVarP(&suggestFrom, "file", "f", "-", "suggestion JSON file, or - for stdin")
	suggestCmd.Flags().StringVar(&addSession, "session", "", "session to add to (default: active)")
}

// acknowledge caches a row the server just returned and converts it.
func acknowledge(row models.SessionRow) (*workout.Session, error) {
	if err := rec.Acknowledge(row); err != nil {
		return nil, err
	}
	return workout.SessionFromRow(row)
}

// sessionOrActive resolves ref, or the active session when ref is empty.
func sessionOrActive(ctx context.Context, ref string) (uuid.UUID, error) {
	if ref != "" {
		return resolveSession(ctx, ref)
	}
	row, err := api.Active(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	if row == nil {
		return uuid.Nil, errors.New("no active session; start one with 'liftlog-cli start'")
	}
	return row.ID, nil
}

// resolveSession accepts a full session ID or a unique prefix of a recent one.
func resolveSession(ctx context.Context, ref string) (uuid.UUID, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return id, nil
	}
	rows, err := api.List(ctx, 100)
	if err != nil {
		return uuid.Nil, err
	}
	ids := make([]uuid.UUID, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return matchPrefix(ref, ids, "session")
}

// matchPrefix finds the single ID starting with prefix.
func matchPrefix(prefix string, ids []uuid.UUID, kind string) (uuid.UUID, error) {
	prefix = strings.ToLower(prefix)
	var found []uuid.UUID
	for _, id := range ids {
		if strings.HasPrefix(id.String(), prefix) {
			found = append(found, id)
		}
	}
	switch len(found) {
	case 0:
		return uuid.Nil, fmt.Errorf("no %s matches %q", kind, prefix)
	case 1:
		return found[0], nil
	default:
		return uuid.Nil, fmt.Errorf("%q matches %d %ss; use more characters", prefix, len(found), kind)
	}
}

func reportOutcome(o reconcile.Outcome) {
	switch o {
	case reconcile.DiscardedLocal:
		color.Yellow("! This session changed on another device; unsent edits from here were dropped.")
	case reconcile.KeptLocal:
		color.Yellow("! Some edits from this device have not reached the server yet; send them with 'liftlog-cli sync'.")
	}
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
