package workout

import (
	"encoding/json"
	"fmt"

	"github.com/claude/liftlog/internal/models"
	"github.com/google/uuid"
)

// Preset is a read-only template for a day's training. Starting a session
// from a preset copies its plan; the preset itself is never modified.
type Preset struct {
	ID        uuid.UUID         `json:"id"`
	UserID    int               `json:"user_id"`
	Name      string            `json:"name"`
	DayOfWeek string            `json:"day_of_week,omitempty"`
	Exercises []PlannedExercise `json:"exercises"`
}

// PlannedExercise describes the sets to create for one exercise: WarmupSets
// warm-ups followed by Sets sets of SetType. Dropdown sets get DropStages
// stages each, with WeightKg as the top-stage weight.
type PlannedExercise struct {
	ExerciseID string   `json:"exercise_id"`
	WarmupSets int      `json:"warmup_sets,omitempty"`
	WarmupReps *int     `json:"warmup_reps,omitempty"`
	SetType    SetType  `json:"set_type"`
	Sets       int      `json:"sets"`
	Reps       *int     `json:"reps,omitempty"`
	WeightKg   *float64 `json:"weight_kg,omitempty"`
	DropStages int      `json:"drop_stages,omitempty"`
}

// Validate checks the plan before any sets are built from it.
func (p PlannedExercise) Validate() error {
	if p.ExerciseID == "" {
		return &ValidationError{Field: "exercise_id", Reason: "required"}
	}
	if !p.SetType.IsValid() {
		return &ValidationError{Field: "set_type", Reason: fmt.Sprintf("unknown set type %q", p.SetType)}
	}
	if p.WarmupSets < 0 {
		return &ValidationError{Field: "warmup_sets", Reason: "must be >= 0"}
	}
	if p.Sets < 0 {
		return &ValidationError{Field: "sets", Reason: "must be >= 0"}
	}
	if p.WarmupSets+p.Sets == 0 {
		return &ValidationError{Field: "sets", Reason: "plan has no sets"}
	}
	if p.SetType == SetDropdown && p.Sets > 0 && p.DropStages < 1 {
		return &ValidationError{Field: "drop_stages", Reason: "dropdown set needs at least one stage"}
	}
	if (p.SetType == SetWarmup || p.SetType == SetBodyweight) && p.WeightKg != nil {
		return &ValidationError{Field: "weight_kg", Reason: fmt.Sprintf("%s sets do not carry weight", p.SetType)}
	}
	if err := validateWeight("weight_kg", p.WeightKg); err != nil {
		return err
	}
	if err := validateReps("reps", p.Reps); err != nil {
		return err
	}
	return validateReps("warmup_reps", p.WarmupReps)
}

// PlannedCount is the number of logical sets the plan will create.
func (p Preset) PlannedCount() int {
	n := 0
	for _, ex := range p.Exercises {
		n += ex.WarmupSets + ex.Sets
	}
	return n
}

// PresetFromRow decodes a preset's JSONB plan.
func PresetFromRow(r models.PresetRow) (*Preset, error) {
	p := &Preset{
		ID:        r.ID,
		UserID:    r.UserID,
		Name:      r.Name,
		DayOfWeek: r.DayOfWeek,
	}
	if len(r.Plan) > 0 {
		if err := json.Unmarshal(r.Plan, &p.Exercises); err != nil {
			return nil, fmt.Errorf("decoding preset plan: %w", err)
		}
	}
	return p, nil
}
