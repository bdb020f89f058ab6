package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionRow is a workout session as stored in the sessions table and sent
// over the wire. Sets are stored as a JSONB array in slice order.
type SessionRow struct {
	ID        uuid.UUID  `json:"id"`
	UserID    int        `json:"user_id"`
	PresetID  *uuid.UUID `json:"preset_id,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Notes     string     `json:"notes"`
	Version   int64      `json:"version"`
	UpdatedAt time.Time  `json:"updated_at"`
	Sets      []SetRow   `json:"sets"`
}

// SetRow is one set of a session. Weight/reps are nil when the set type does
// not carry them or they have not been entered yet. Stages is only populated
// for dropdown sets.
type SetRow struct {
	ID           uuid.UUID  `json:"id"`
	ExerciseID   string     `json:"exercise_id"`
	ExerciseName string     `json:"exercise_name"`
	SetType      string     `json:"set_type"`
	Position     int        `json:"position"`
	WeightKg     *float64   `json:"weight_kg,omitempty"`
	Reps         *int       `json:"reps,omitempty"`
	Stages       []StageRow `json:"stages,omitempty"`
	Completed    bool       `json:"completed"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	AlreadySaved bool       `json:"already_saved"`
	EditSeq      int64      `json:"edit_seq"`
}

// StageRow is one weight-reduction stage of a dropdown set.
type StageRow struct {
	WeightKg  *float64 `json:"weight_kg,omitempty"`
	Reps      *int     `json:"reps,omitempty"`
	Completed bool     `json:"completed"`
}

// LoggedSetRow is a row of the set_log table, written once per completed set
// when its session is finished.
type LoggedSetRow struct {
	SetID       uuid.UUID  `json:"set_id"`
	SessionID   uuid.UUID  `json:"session_id"`
	UserID      int        `json:"user_id"`
	ExerciseID  string     `json:"exercise_id"`
	SetType     string     `json:"set_type"`
	WeightKg    *float64   `json:"weight_kg,omitempty"`
	Reps        *int       `json:"reps,omitempty"`
	Stages      []StageRow `json:"stages,omitempty"`
	CompletedAt time.Time  `json:"completed_at"`
}

// PresetRow is a row of the presets table. Plan holds the JSONB exercise plan.
type PresetRow struct {
	ID        uuid.UUID `json:"id"`
	UserID    int       `json:"user_id"`
	Name      string    `json:"name"`
	DayOfWeek string    `json:"day_of_week,omitempty"`
	Plan      []byte    `json:"-"`
}

// ExerciseRow is a row of the exercises catalog table.
type ExerciseRow struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Category     string   `json:"category"`
	MuscleGroups []string `json:"muscle_groups"`
	Equipment    string   `json:"equipment"`
}

// SetLogChange describes how a finish updates the set log for one session:
// Upsert rows are written by set ID, and logged rows of the session whose set
// ID is not in Completed are removed (the set was un-completed or deleted).
type SetLogChange struct {
	Upsert    []LoggedSetRow
	Completed []uuid.UUID
}
