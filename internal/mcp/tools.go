package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/claude/liftlog/internal/session"
	"github.com/claude/liftlog/internal/workout"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

// timeRange reads optional start/end arguments. end defaults to now and
// start to back(end).
func timeRange(startStr, endStr string, back func(end time.Time) time.Time) (time.Time, time.Time, error) {
	end := time.Now()
	if endStr != "" {
		t, err := parseFlexTime(endStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end date: %w", err)
		}
		end = t
	}

	start := back(end)
	if startStr != "" {
		t, err := parseFlexTime(startStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start date: %w", err)
		}
		start = t
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, errors.New("start must be before end")
	}
	return start, end, nil
}

func monthsBack(n int) func(time.Time) time.Time {
	return func(end time.Time) time.Time { return end.AddDate(0, -n, 0) }
}

func daysBack(n int) func(time.Time) time.Time {
	return func(end time.Time) time.Time { return end.AddDate(0, 0, -n) }
}

func parseFlexTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse("2006-01-02", s)
	if err == nil {
		return t, nil
	}
	return time.Time{}, err
}

// --- Tool definitions ---

var toolStartSession = mcp.NewTool("start_session",
	mcp.WithDescription("Start a new workout session, optionally seeded from a preset. Fails if the user already has an active session; finish, resume or delete that one first."),
	mcp.WithString("preset_id", mcp.Description("Preset UUID to copy planned exercises from")),
)

var toolGetActiveSession = mcp.NewTool("get_active_session",
	mcp.WithDescription("Return the user's active (unfinished) session with per-exercise progress, or null if there is none."),
)

var toolGetSession = mcp.NewTool("get_session",
	mcp.WithDescription("Return one session by ID."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session UUID")),
)

var toolListSessions = mcp.NewTool("list_sessions",
	mcp.WithDescription("List the user's sessions, newest first. Deleted sessions are excluded."),
	mcp.WithNumber("limit", mcp.Description("Maximum sessions to return. Defaults to 50.")),
)

var toolUpdateSet = mcp.NewTool("update_set",
	mcp.WithDescription("Edit one set of an active session. Omitted fields are left unchanged. For dropdown sets, 'stage' selects the stage whose weight/reps/completed are edited."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session UUID")),
	mcp.WithString("set_id", mcp.Required(), mcp.Description("Set UUID")),
	mcp.WithNumber("weight_kg", mcp.Description("Weight in kg (0 to 1000)")),
	mcp.WithBoolean("clear_weight", mcp.Description("Remove the entered weight")),
	mcp.WithNumber("reps", mcp.Description("Repetitions (0 to 1000)")),
	mcp.WithBoolean("completed", mcp.Description("Mark the set (or stage) completed or not")),
	mcp.WithNumber("stage", mcp.Description("Dropdown stage index, starting at 0")),
)

var toolAddExercise = mcp.NewTool("add_exercise",
	mcp.WithDescription("Append planned sets for one exercise to an active session."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session UUID")),
	mcp.WithString("exercise_id", mcp.Required(), mcp.Description("Catalog exercise ID (e.g. 'bench_press')")),
	mcp.WithString("set_type", mcp.Required(), mcp.Description("Type of the working sets"), mcp.Enum("normal", "bodyweight", "dropdown", "warmup")),
	mcp.WithNumber("sets", mcp.Required(), mcp.Description("Number of working sets")),
	mcp.WithNumber("warmup_sets", mcp.Description("Warm-up sets to add before the working sets")),
	mcp.WithNumber("reps", mcp.Description("Target reps per set")),
	mcp.WithNumber("weight_kg", mcp.Description("Target weight in kg (top stage for dropdown sets)")),
	mcp.WithNumber("drop_stages", mcp.Description("Stages per dropdown set")),
)

var toolApplySuggestion = mcp.NewTool("apply_suggestion",
	mcp.WithDescription("Apply an AI-parsed workout suggestion to an active session. The suggestion is applied whole or not at all; low-confidence or malformed suggestions are rejected without changing the session."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session UUID")),
	mcp.WithString("suggestion", mcp.Required(), mcp.Description("Suggestion JSON: {\"confidence\": 0.9, \"exercises\": [{\"exercise_id\": ..., \"set_type\": ..., \"sets\": ...}]}")),
)

var toolFinishSession = mcp.NewTool("finish_session",
	mcp.WithDescription("Finish a session. Completed sets not logged by an earlier finish are written to the training log."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session UUID")),
)

var toolResumeSession = mcp.NewTool("resume_session",
	mcp.WithDescription("Reopen a finished session so it becomes the active one again. Fails if another session is active."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session UUID")),
)

var toolDeleteSession = mcp.NewTool("delete_session",
	mcp.WithDescription("Delete a session and its logged sets. Deleting an already deleted session is a no-op."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session UUID")),
)

var toolGetTrainingSummary = mcp.NewTool("get_training_summary",
	mcp.WithDescription("Weekly/monthly strength volume from finished sessions: working sets, warm-up sets, reps, tonnage and session counts per period. Dropdown sets count once; warm-ups are excluded from tonnage."),
	mcp.WithString("start", mcp.Description("Start date. Defaults to 6 months ago.")),
	mcp.WithString("end", mcp.Description("End date. Defaults to now.")),
	mcp.WithString("bucket", mcp.Description("Aggregation period. Defaults to 'month'."), mcp.Enum("week", "month")),
)

var toolGetExerciseProgression = mcp.NewTool("get_exercise_progression",
	mcp.WithDescription("Per-day top weight, tonnage and working set count for one exercise."),
	mcp.WithString("exercise_id", mcp.Required(), mcp.Description("Catalog exercise ID")),
	mcp.WithString("start", mcp.Description("Start date. Defaults to 90 days ago.")),
	mcp.WithString("end", mcp.Description("End date. Defaults to now.")),
)

// --- Tool handlers ---

func (h *handlers) startSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var presetID *uuid.UUID
	if raw := req.GetString("preset_id", ""); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return mcp.NewToolResultError("invalid preset_id: " + err.Error()), nil
		}
		presetID = &id
	}

	sess, err := h.sessions.Start(ctx, UserIDFromContext(ctx), presetID)
	return h.sessionResult("start_session", sess, err)
}

func (h *handlers) getActiveSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := h.sessions.Active(ctx, UserIDFromContext(ctx))
	return h.sessionResult("get_active_session", sess, err)
}

func (h *handlers) getSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := requireUUID(req, "session_id")
	if errResult != nil {
		return errResult, nil
	}
	sess, err := h.sessions.Get(ctx, UserIDFromContext(ctx), id)
	return h.sessionResult("get_session", sess, err)
}

func (h *handlers) listSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", session.DefaultListLimit)
	sessions, err := h.sessions.List(ctx, UserIDFromContext(ctx), limit)
	if err != nil {
		return h.toolError("list_sessions", err), nil
	}
	return jsonResult(session.NewViews(sessions))
}

func (h *handlers) updateSet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, errResult := requireUUID(req, "session_id")
	if errResult != nil {
		return errResult, nil
	}
	setID, errResult := requireUUID(req, "set_id")
	if errResult != nil {
		return errResult, nil
	}

	args := req.GetArguments()
	p := workout.Patch{ClearWeight: req.GetBool("clear_weight", false)}
	if _, ok := args["weight_kg"]; ok {
		w := req.GetFloat("weight_kg", 0)
		p.WeightKg = &w
	}
	if _, ok := args["reps"]; ok {
		r := req.GetInt("reps", 0)
		p.Reps = &r
	}
	if _, ok := args["completed"]; ok {
		c := req.GetBool("completed", false)
		p.Completed = &c
	}
	if _, ok := args["stage"]; ok {
		st := req.GetInt("stage", 0)
		p.Stage = &st
	}

	sess, err := h.sessions.UpdateSet(ctx, UserIDFromContext(ctx), sessionID, setID, p)
	return h.sessionResult("update_set", sess, err)
}

func (h *handlers) addExercise(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, errResult := requireUUID(req, "session_id")
	if errResult != nil {
		return errResult, nil
	}
	exerciseID, err := req.RequireString("exercise_id")
	if err != nil {
		return mcp.NewToolResultError("exercise_id parameter is required"), nil
	}
	setType, err := req.RequireString("set_type")
	if err != nil {
		return mcp.NewToolResultError("set_type parameter is required"), nil
	}
	sets, err := req.RequireInt("sets")
	if err != nil {
		return mcp.NewToolResultError("sets parameter is required"), nil
	}

	args := req.GetArguments()
	plan := workout.PlannedExercise{
		ExerciseID: exerciseID,
		SetType:    workout.SetType(setType),
		Sets:       sets,
		WarmupSets: req.GetInt("warmup_sets", 0),
		DropStages: req.GetInt("drop_stages", 0),
	}
	if _, ok := args["reps"]; ok {
		r := req.GetInt("reps", 0)
		plan.Reps = &r
	}
	if _, ok := args["weight_kg"]; ok {
		w := req.GetFloat("weight_kg", 0)
		plan.WeightKg = &w
	}

	sess, err := h.sessions.AddExercise(ctx, UserIDFromContext(ctx), sessionID, plan)
	return h.sessionResult("add_exercise", sess, err)
}

func (h *handlers) applySuggestion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, errResult := requireUUID(req, "session_id")
	if errResult != nil {
		return errResult, nil
	}
	raw, err := req.RequireString("suggestion")
	if err != nil {
		return mcp.NewToolResultError("suggestion parameter is required"), nil
	}

	plans, decision := h.gate.Plans(json.RawMessage(raw))
	if decision.Applied == 0 {
		return mcp.NewToolResultError("suggestion not applied: " + decision.Reason), nil
	}

	sess, err := h.sessions.AddExercise(ctx, UserIDFromContext(ctx), sessionID, plans...)
	return h.sessionResult("apply_suggestion", sess, err)
}

func (h *handlers) finishSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := requireUUID(req, "session_id")
	if errResult != nil {
		return errResult, nil
	}
	sess, err := h.sessions.FinishByID(ctx, UserIDFromContext(ctx), id)
	return h.sessionResult("finish_session", sess, err)
}

func (h *handlers) resumeSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := requireUUID(req, "session_id")
	if errResult != nil {
		return errResult, nil
	}
	sess, err := h.sessions.Resume(ctx, UserIDFromContext(ctx), id)
	return h.sessionResult("resume_session", sess, err)
}

func (h *handlers) deleteSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := requireUUID(req, "session_id")
	if errResult != nil {
		return errResult, nil
	}
	if err := h.sessions.Delete(ctx, UserIDFromContext(ctx), id); err != nil {
		return h.toolError("delete_session", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("session %s deleted", id)), nil
}

func (h *handlers) getTrainingSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := timeRange(req.GetString("start", ""), req.GetString("end", ""), monthsBack(6))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	bucket := req.GetString("bucket", "month")
	summary, err := h.training.GetTrainingSummary(ctx, start, end, bucket, UserIDFromContext(ctx))
	if err != nil {
		return h.toolError("get_training_summary", err), nil
	}
	return jsonResult(summary)
}

func (h *handlers) getExerciseProgression(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	exerciseID, err := req.RequireString("exercise_id")
	if err != nil {
		return mcp.NewToolResultError("exercise_id parameter is required"), nil
	}

	start, end, err := timeRange(req.GetString("start", ""), req.GetString("end", ""), daysBack(90))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	points, err := h.training.GetExerciseProgression(ctx, start, end, UserIDFromContext(ctx), exerciseID)
	if err != nil {
		return h.toolError("get_exercise_progression", err), nil
	}
	return jsonResult(points)
}

// --- Helpers ---

func requireUUID(req mcp.CallToolRequest, name string) (uuid.UUID, *mcp.CallToolResult) {
	raw, err := req.RequireString(name)
	if err != nil {
		return uuid.Nil, mcp.NewToolResultError(name + " parameter is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, mcp.NewToolResultError("invalid " + name + ": " + err.Error())
	}
	return id, nil
}

func (h *handlers) sessionResult(tool string, sess *workout.Session, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return h.toolError(tool, err), nil
	}
	return jsonResult(session.NewView(sess))
}

// toolError reports domain errors to the model as tool errors. Unexpected
// failures are logged; expected ones are the model's to correct.
func (h *handlers) toolError(tool string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, workout.ErrValidation),
		errors.Is(err, workout.ErrNotFound),
		errors.Is(err, workout.ErrConflict):
		return mcp.NewToolResultError(err.Error())
	default:
		h.log.Error("mcp "+tool, "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error())
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(v)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
