package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/claude/liftlog/internal/session"
	"github.com/claude/liftlog/internal/suggest"
	"github.com/claude/liftlog/internal/workout"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	info := userInfoFromContext(r)
	info.UserID = userIDFromContext(r)
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}

	var body struct {
		PresetID *uuid.UUID `json:"preset_id"`
	}
	if err := decodeBody(r, &body, true); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	sess, err := s.sessions.Start(r.Context(), uid, body.PresetID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session.NewView(sess))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	limit := session.DefaultListLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	sessions, err := s.sessions.List(r.Context(), uid, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.NewViews(sessions))
}

func (s *Server) handleActiveSession(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	sess, err := s.sessions.Active(r.Context(), uid)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if sess == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, session.NewView(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	uid, id, ok := sessionParams(w, r)
	if !ok {
		return
	}
	sess, err := s.sessions.Get(r.Context(), uid, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.NewView(sess))
}

func (s *Server) handleUpdateSet(w http.ResponseWriter, r *http.Request) {
	uid, id, ok := sessionParams(w, r)
	if !ok {
		return
	}
	setID, err := uuid.Parse(chi.URLParam(r, "setID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid set ID"})
		return
	}

	var patch workout.Patch
	if err := decodeBody(r, &patch, false); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	sess, err := s.sessions.UpdateSet(r.Context(), uid, id, setID, patch)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.NewView(sess))
}

func (s *Server) handleAddExercise(w http.ResponseWriter, r *http.Request) {
	uid, id, ok := sessionParams(w, r)
	if !ok {
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reading body: " + err.Error()})
		return
	}
	// Accept one planned exercise or a list of them.
	var plans []workout.PlannedExercise
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '{' {
		var plan workout.PlannedExercise
		err = json.Unmarshal(trimmed, &plan)
		plans = append(plans, plan)
	} else {
		err = json.Unmarshal(trimmed, &plans)
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if len(plans) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no exercises given"})
		return
	}

	sess, err := s.sessions.AddExercise(r.Context(), uid, id, plans...)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.NewView(sess))
}

// suggestionResponse is the session after a suggestion, with the gate's
// decision. A rejected suggestion leaves the session unchanged.
type suggestionResponse struct {
	*session.View
	Suggestion suggest.Decision `json:"suggestion"`
}

func (s *Server) handleApplySuggestion(w http.ResponseWriter, r *http.Request) {
	uid, id, ok := sessionParams(w, r)
	if !ok {
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reading body: " + err.Error()})
		return
	}

	plans, decision := s.gate.Plans(raw)
	var sess *workout.Session
	if decision.Applied > 0 {
		sess, err = s.sessions.AddExercise(r.Context(), uid, id, plans...)
	} else {
		sess, err = s.sessions.Get(r.Context(), uid, id)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestionResponse{View: session.NewView(sess), Suggestion: decision})
}

func (s *Server) handleFinishSession(w http.ResponseWriter, r *http.Request) {
	uid, id, ok := sessionParams(w, r)
	if !ok {
		return
	}
	sess, err := s.sessions.FinishByID(r.Context(), uid, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.NewView(sess))
}

func (s *Server) handleResumeSession(w http.ResponseWriter, r *http.Request) {
	uid, id, ok := sessionParams(w, r)
	if !ok {
		return
	}
	sess, err := s.sessions.Resume(r.Context(), uid, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.NewView(sess))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	uid, id, ok := sessionParams(w, r)
	if !ok {
		return
	}
	if err := s.sessions.Delete(r.Context(), uid, id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	if s.presets == nil {
		writeJSON(w, http.StatusOK, []*workout.Preset{})
		return
	}
	presets, err := s.presets.ListPresets(r.Context(), uid)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if presets == nil {
		presets = []*workout.Preset{}
	}
	writeJSON(w, http.StatusOK, presets)
}

func (s *Server) handleGetPreset(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid preset ID"})
		return
	}
	if s.presets == nil {
		s.writeError(w, &workout.NotFoundError{Kind: "preset", ID: id.String()})
		return
	}
	p, err := s.presets.GetPreset(r.Context(), uid, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleTrainingSummary(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	if s.training == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "training log requires a database"})
		return
	}

	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if r.URL.Query().Get("start") == "" {
		start = end.AddDate(0, -6, 0)
	}
	bucket := r.URL.Query().Get("bucket")
	if bucket == "" {
		bucket = "month"
	}

	summary, err := s.training.GetTrainingSummary(r.Context(), start, end, bucket, uid)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleExerciseProgression(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	if s.training == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "training log requires a database"})
		return
	}

	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if r.URL.Query().Get("start") == "" {
		start = end.AddDate(0, 0, -90)
	}

	points, err := s.training.GetExerciseProgression(r.Context(), start, end, uid, chi.URLParam(r, "exerciseID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// sessionParams returns the caller and the {id} URL parameter.
func sessionParams(w http.ResponseWriter, r *http.Request) (int, uuid.UUID, bool) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return 0, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session ID"})
		return 0, uuid.Nil, false
	}
	return uid, id, true
}

// decodeBody decodes a JSON request body. An empty body is accepted when
// optional is set.
func decodeBody(r *http.Request, v any, optional bool) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if optional && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// conflictBody names the session blocking the request so a client can offer
// to resume or discard it.
type conflictBody struct {
	Error     string     `json:"error"`
	SessionID *uuid.UUID `json:"session_id,omitempty"`
}

// writeError maps domain errors to status codes. Anything unexpected is
// logged and reported as 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var conflict *workout.ConflictError
	switch {
	case errors.As(err, &conflict):
		body := conflictBody{Error: conflict.Error()}
		if conflict.SessionID != uuid.Nil {
			id := conflict.SessionID
			body.SessionID = &id
		}
		writeJSON(w, http.StatusConflict, body)
	case errors.Is(err, workout.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, workout.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, workout.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		s.log.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func parseTimeRange(r *http.Request) (start, end time.Time, err error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if startStr == "" {
		// Default: last 7 days
		end = time.Now()
		start = end.AddDate(0, 0, -7)
		return
	}

	start, err = time.Parse(time.RFC3339, startStr)
	if err != nil {
		start, err = time.Parse("2006-01-02", startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}

	if endStr == "" {
		end = time.Now()
	} else {
		end, err = time.Parse(time.RFC3339, endStr)
		if err != nil {
			end, err = time.Parse("2006-01-02", endStr)
			if err != nil {
				return time.Time{}, time.Time{}, err
			}
			// End of day for date-only
			end = end.Add(24 * time.Hour)
		}
	}
	return
}
