package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/claude/liftlog/internal/workout"
	"github.com/fatih/color"
	"github.com/google/uuid"
)

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}

// printSession writes a session header followed by its sets grouped by
// exercise.
func printSession(w io.Writer, sess *workout.Session) {
	faint := color.New(color.Faint)
	bold := color.New(color.Bold)

	status := color.GreenString("active") + faint.Sprintf(", started %s", ago(sess.StartedAt))
	if !sess.IsActive() {
		status = faint.Sprintf("finished %s", sess.EndedAt.Local().Format("15:04"))
	}
	fmt.Fprintf(w, "%s  %s  %s\n", bold.Sprint("Session "+shortID(sess.ID)),
		sess.StartedAt.Local().Format("Mon 2006-01-02 15:04"), status)
	fmt.Fprintf(w, "%d/%d sets done, %.1f kg working volume\n",
		sess.CompletedCount(), sess.TotalCount(), sess.WorkingVolume())

	for _, g := range sess.Groups() {
		name := g.ExerciseName
		if name == "" {
			name = g.ExerciseID
		}
		fmt.Fprintf(w, "\n%s %s\n", bold.Sprint(name), faint.Sprintf("%d/%d", g.CompletedCount(), g.TotalCount()))
		for _, s := range g.Sets {
			mark := " "
			if s.IsCompleted() {
				mark = color.GreenString("✓")
			}
			fmt.Fprintf(w, "  %s %s %s %s\n", mark, padRight(s.Label(), 3), faint.Sprint(shortID(s.Base().ID)), setDetail(s))
		}
	}
}

// printSessionLine writes a one-line summary for listings.
func printSessionLine(w io.Writer, sess *workout.Session) {
	state := "      "
	if sess.IsActive() {
		state = color.GreenString("active")
	}
	fmt.Fprintf(w, "%s  %s  %s  %3d/%-3d sets  %8.1f kg\n", shortID(sess.ID), state,
		sess.StartedAt.Local().Format("2006-01-02 15:04"), sess.CompletedCount(), sess.TotalCount(), sess.WorkingVolume())
}

// setDetail renders the weight and reps of a set; unset values show as "-".
func setDetail(s workout.Set) string {
	switch v := s.(type) {
	case workout.Warmup:
		return "warm-up " + reps(v.Reps)
	case workout.Normal:
		return weight(v.WeightKg) + " x " + reps(v.Reps)
	case workout.Bodyweight:
		return "BW x " + reps(v.Reps)
	case workout.Dropdown:
		parts := make([]string, len(v.Stages))
		for i, st := range v.Stages {
			parts[i] = weight(st.WeightKg) + " x " + reps(st.Reps)
			if st.Completed {
				parts[i] += "✓"
			}
		}
		return strings.Join(parts, " → ")
	default:
		return string(s.Type())
	}
}

func weight(w *float64) string {
	if w == nil {
		return "-"
	}
	return strconv.FormatFloat(*w, 'f', -1, 64) + " kg"
}

func reps(r *int) string {
	if r == nil {
		return "-"
	}
	return strconv.Itoa(*r)
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}

func ago(t time.Time) string {
	d := time.Since(t).Round(time.Minute)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
}
