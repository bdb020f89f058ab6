package workout

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// SetType tags the four loggable set kinds.
type SetType string

const (
	SetWarmup     SetType = "warmup"
	SetNormal     SetType = "normal"
	SetBodyweight SetType = "bodyweight"
	SetDropdown   SetType = "dropdown"
)

// IsValid reports whether t is one of the known set types.
func (t SetType) IsValid() bool {
	switch t {
	case SetWarmup, SetNormal, SetBodyweight, SetDropdown:
		return true
	default:
		return false
	}
}

// Exercise is catalog metadata used to label sets.
type Exercise struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Category     string   `json:"category,omitempty"`
	MuscleGroups []string `json:"muscle_groups,omitempty"`
	Equipment    string   `json:"equipment,omitempty"`
}

// PlaceholderExerciseName labels sets whose exercise the catalog could not resolve.
const PlaceholderExerciseName = "Unknown exercise"

// PlaceholderExercise returns metadata for an unresolved exercise ID.
func PlaceholderExercise(id string) Exercise {
	return Exercise{ID: id, Name: PlaceholderExerciseName}
}

// SetBase holds the fields every set kind shares.
type SetBase struct {
	ID           uuid.UUID
	ExerciseID   string
	ExerciseName string
	// Exercise is hydrated from the catalog on load; nil if unresolved.
	Exercise    *Exercise
	Position    int
	Completed   bool
	CompletedAt *time.Time
	// AlreadySaved marks sets that were written to the set log by a
	// previous finish, so a later finish does not log them again.
	AlreadySaved bool
	// EditSeq is the highest patch sequence number applied to this set.
	EditSeq int64
}

// LoggedSet is the persistable form of a completed set.
type LoggedSet struct {
	SetID       uuid.UUID
	ExerciseID  string
	Type        SetType
	WeightKg    *float64
	Reps        *int
	Stages      []Stage
	CompletedAt time.Time
}

// Set is implemented by Warmup, Normal, Bodyweight and Dropdown. All methods
// are pure: mutators return a new value and leave the receiver untouched.
type Set interface {
	Type() SetType
	Base() SetBase

	// IsCompleted applies the type's completion rule.
	IsCompleted() bool
	// CompletedContribution is 1 if the set is done, else 0. A dropdown set
	// contributes at most 1 regardless of its stage count.
	CompletedContribution() int
	MarkCompleted(at time.Time) Set
	MarkIncomplete() Set

	// PersistableRecord returns zero records if the set is not completed or
	// was already saved, otherwise exactly one.
	PersistableRecord(asOf time.Time) []LoggedSet

	// IsWorking is false for warm-ups, which are excluded from working volume.
	IsWorking() bool
	// Volume is weight x reps summed over the set (stages for dropdowns).
	Volume() float64
	// Label is the short display tag for the set within its exercise.
	Label() string

	Validate() error

	withBase(SetBase) Set
	apply(p Patch, now time.Time) (Set, error)
}

// Patch is a partial update to one set. Nil fields are left unchanged.
type Patch struct {
	// Seq orders edits to the same set. Zero means unsequenced.
	Seq         int64    `json:"seq,omitempty"`
	WeightKg    *float64 `json:"weight_kg,omitempty"`
	ClearWeight bool     `json:"clear_weight,omitempty"`
	Reps        *int     `json:"reps,omitempty"`
	Completed   *bool    `json:"completed,omitempty"`
	// Stage targets one dropdown stage by index; Stages replaces all of them.
	Stage  *int    `json:"stage,omitempty"`
	Stages []Stage `json:"stages,omitempty"`
}

// Stage is one weight-reduction step of a dropdown set.
type Stage struct {
	WeightKg  *float64 `json:"weight_kg,omitempty"`
	Reps      *int     `json:"reps,omitempty"`
	Completed bool     `json:"completed"`
}

func validateWeight(field string, w *float64) error {
	if w == nil {
		return nil
	}
	if math.IsNaN(*w) || math.IsInf(*w, 0) || *w < 0 {
		return &ValidationError{Field: field, Reason: "must be >= 0"}
	}
	return nil
}

func validateReps(field string, r *int) error {
	if r != nil && *r <= 0 {
		return &ValidationError{Field: field, Reason: "must be a positive integer"}
	}
	return nil
}

// completedBase stamps the completion time, also when the set was already
// completed.
func completedBase(b SetBase, at time.Time) SetBase {
	b.Completed = true
	t := at
	b.CompletedAt = &t
	return b
}

func incompleteBase(b SetBase) SetBase {
	b.Completed = false
	b.CompletedAt = nil
	b.AlreadySaved = false
	return b
}

// applyCompletion handles the Completed field of a patch for single-unit sets.
func applyCompletion(s Set, p Patch, now time.Time) Set {
	if p.Completed == nil {
		return s
	}
	if *p.Completed {
		return s.MarkCompleted(now)
	}
	return s.MarkIncomplete()
}

func logged(b SetBase, t SetType, asOf time.Time) LoggedSet {
	at := asOf
	if b.CompletedAt != nil {
		at = *b.CompletedAt
	}
	return LoggedSet{SetID: b.ID, ExerciseID: b.ExerciseID, Type: t, CompletedAt: at}
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int { return &v }

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	return floatPtr(*p)
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	return intPtr(*p)
}

func product(w *float64, r *int) float64 {
	if w == nil || r == nil {
		return 0
	}
	return *w * float64(*r)
}
