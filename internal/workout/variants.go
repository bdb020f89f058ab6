package workout

import (
	"fmt"
	"time"
)

// Warmup is a reps-only set excluded from working volume.
type Warmup struct {
	SetBase
	Reps *int
}

// NewWarmup validates and returns a warm-up set.
func NewWarmup(base SetBase, reps *int) (Warmup, error) {
	s := Warmup{SetBase: base, Reps: copyInt(reps)}
	return s, s.Validate()
}

func (s Warmup) Type() SetType { return SetWarmup }
func (s Warmup) Base() SetBase { return s.SetBase }
func (s Warmup) IsCompleted() bool { return s.Completed }
func (s Warmup) IsWorking() bool { return false }
func (s Warmup) Volume() float64 { return 0 }
func (s Warmup) Label() string { return "W" }
func (s Warmup) Validate() error { return validateReps("reps", s.Reps) }
func (s Warmup) withBase(b SetBase) Set { s.SetBase = b; return s }

func (s Warmup) CompletedContribution() int {
	if s.IsCompleted() {
		return 1
	}
	return 0
}

func (s Warmup) MarkCompleted(at time.Time) Set {
	s.SetBase = completedBase(s.SetBase, at)
	return s
}

func (s Warmup) MarkIncomplete() Set {
	s.SetBase = incompleteBase(s.SetBase)
	return s
}

func (s Warmup) PersistableRecord(asOf time.Time) []LoggedSet {
	if !s.IsCompleted() || s.AlreadySaved {
		return nil
	}
	rec := logged(s.SetBase, SetWarmup, asOf)
	rec.Reps = copyInt(s.Reps)
	return []LoggedSet{rec}
}

func (s Warmup) apply(p Patch, now time.Time) (Set, error) {
	if p.WeightKg != nil {
		return nil, &ValidationError{Field: "weight_kg", Reason: "warm-up sets do not carry weight"}
	}
	if p.Stage != nil || p.Stages != nil {
		return nil, &ValidationError{Field: "stages", Reason: "only dropdown sets have stages"}
	}
	if p.Reps != nil {
		s.Reps = copyInt(p.Reps)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return applyCompletion(s, p, now), nil
}

// Normal is the canonical weighted strength set.
type Normal struct {
	SetBase
	WeightKg *float64
	Reps     *int
}

// NewNormal validates and returns a normal set.
func NewNormal(base SetBase, weightKg *float64, reps *int) (Normal, error) {
	s := Normal{SetBase: base, WeightKg: copyFloat(weightKg), Reps: copyInt(reps)}
	return s, s.Validate()
}

func (s Normal) Type() SetType { return SetNormal }
func (s Normal) Base() SetBase { return s.SetBase }
func (s Normal) IsCompleted() bool { return s.Completed }
func (s Normal) IsWorking() bool { return true }
func (s Normal) Volume() float64 { return product(s.WeightKg, s.Reps) }
func (s Normal) Label() string { return "N" }
func (s Normal) withBase(b SetBase) Set { s.SetBase = b; return s }

func (s Normal) Validate() error {
	if err := validateWeight("weight_kg", s.WeightKg); err != nil {
		return err
	}
	return validateReps("reps", s.Reps)
}

func (s Normal) CompletedContribution() int {
	if s.IsCompleted() {
		return 1
	}
	return 0
}

func (s Normal) MarkCompleted(at time.Time) Set {
	s.SetBase = completedBase(s.SetBase, at)
	return s
}

func (s Normal) MarkIncomplete() Set {
	s.SetBase = incompleteBase(s.SetBase)
	return s
}

func (s Normal) PersistableRecord(asOf time.Time) []LoggedSet {
	if !s.IsCompleted() || s.AlreadySaved {
		return nil
	}
	rec := logged(s.SetBase, SetNormal, asOf)
	rec.WeightKg = copyFloat(s.WeightKg)
	rec.Reps = copyInt(s.Reps)
	return []LoggedSet{rec}
}

func (s Normal) apply(p Patch, now time.Time) (Set, error) {
	if p.Stage != nil || p.Stages != nil {
		return nil, &ValidationError{Field: "stages", Reason: "only dropdown sets have stages"}
	}
	switch {
	case p.ClearWeight:
		s.WeightKg = nil
	case p.WeightKg != nil:
		s.WeightKg = copyFloat(p.WeightKg)
	}
	if p.Reps != nil {
		s.Reps = copyInt(p.Reps)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return applyCompletion(s, p, now), nil
}

// Bodyweight is a reps-only working set; weight is intrinsically absent.
type Bodyweight struct {
	SetBase
	Reps *int
}

// NewBodyweight validates and returns a bodyweight set.
func NewBodyweight(base SetBase, reps *int) (Bodyweight, error) {
	s := Bodyweight{SetBase: base, Reps: copyInt(reps)}
	return s, s.Validate()
}

// IsBodyweight is always true; it lets display code branch without a type switch.
func (s Bodyweight) IsBodyweight() bool { return true }

func (s Bodyweight) Type() SetType { return SetBodyweight }
func (s Bodyweight) Base() SetBase { return s.SetBase }
func (s Bodyweight) IsCompleted() bool { return s.Completed }
func (s Bodyweight) IsWorking() bool { return true }
func (s Bodyweight) Volume() float64 { return 0 }
func (s Bodyweight) Label() string { return "BW" }
func (s Bodyweight) Validate() error { return validateReps("reps", s.Reps) }
func (s Bodyweight) withBase(b SetBase) Set { s.SetBase = b; return s }

func (s Bodyweight) CompletedContribution() int {
	if s.IsCompleted() {
		return 1
	}
	return 0
}

func (s Bodyweight) MarkCompleted(at time.Time) Set {
	s.SetBase = completedBase(s.SetBase, at)
	return s
}

func (s Bodyweight) MarkIncomplete() Set {
	s.SetBase = incompleteBase(s.SetBase)
	return s
}

func (s Bodyweight) PersistableRecord(asOf time.Time) []LoggedSet {
	if !s.IsCompleted() || s.AlreadySaved {
		return nil
	}
	rec := logged(s.SetBase, SetBodyweight, asOf)
	rec.Reps = copyInt(s.Reps)
	return []LoggedSet{rec}
}

func (s Bodyweight) apply(p Patch, now time.Time) (Set, error) {
	if p.WeightKg != nil {
		return nil, &ValidationError{Field: "weight_kg", Reason: "bodyweight sets do not carry weight"}
	}
	if p.Stage != nil || p.Stages != nil {
		return nil, &ValidationError{Field: "stages", Reason: "only dropdown sets have stages"}
	}
	if p.Reps != nil {
		s.Reps = copyInt(p.Reps)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return applyCompletion(s, p, now), nil
}

// Dropdown is one logical set made of consecutive weight-reduced stages.
// It is completed only when every stage is completed.
type Dropdown struct {
	SetBase
	Stages []Stage
}

// NewDropdown validates and returns a dropdown set. At least one stage is required.
func NewDropdown(base SetBase, stages []Stage) (Dropdown, error) {
	s := Dropdown{SetBase: base, Stages: copyStages(stages)}
	s.SetBase = s.syncCompletion(s.SetBase.CompletedAt)
	return s, s.Validate()
}

func (s Dropdown) Type() SetType { return SetDropdown }
func (s Dropdown) Base() SetBase { return s.SetBase }
func (s Dropdown) IsWorking() bool { return true }
func (s Dropdown) Label() string { return "D" }
func (s Dropdown) withBase(b SetBase) Set { s.SetBase = b; return s }

func (s Dropdown) IsCompleted() bool {
	if len(s.Stages) == 0 {
		return false
	}
	for _, st := range s.Stages {
		if !st.Completed {
			return false
		}
	}
	return true
}

func (s Dropdown) CompletedContribution() int {
	if s.IsCompleted() {
		return 1
	}
	return 0
}

func (s Dropdown) Volume() float64 {
	var v float64
	for _, st := range s.Stages {
		v += product(st.WeightKg, st.Reps)
	}
	return v
}

func (s Dropdown) Validate() error {
	if len(s.Stages) == 0 {
		return &ValidationError{Field: "stages", Reason: "dropdown set needs at least one stage"}
	}
	for i, st := range s.Stages {
		if err := validateWeight(fmt.Sprintf("stages[%d].weight_kg", i), st.WeightKg); err != nil {
			return err
		}
		if err := validateReps(fmt.Sprintf("stages[%d].reps", i), st.Reps); err != nil {
			return err
		}
	}
	return nil
}

// MarkCompleted completes every stage.
func (s Dropdown) MarkCompleted(at time.Time) Set {
	s.Stages = copyStages(s.Stages)
	for i := range s.Stages {
		s.Stages[i].Completed = true
	}
	s.SetBase = completedBase(s.SetBase, at)
	return s
}

func (s Dropdown) MarkIncomplete() Set {
	s.Stages = copyStages(s.Stages)
	for i := range s.Stages {
		s.Stages[i].Completed = false
	}
	s.SetBase = incompleteBase(s.SetBase)
	return s
}

func (s Dropdown) PersistableRecord(asOf time.Time) []LoggedSet {
	if !s.IsCompleted() || s.AlreadySaved {
		return nil
	}
	rec := logged(s.SetBase, SetDropdown, asOf)
	rec.Stages = copyStages(s.Stages)
	return []LoggedSet{rec}
}

func (s Dropdown) apply(p Patch, now time.Time) (Set, error) {
	if p.Stages != nil {
		s.Stages = copyStages(p.Stages)
	} else {
		s.Stages = copyStages(s.Stages)
	}

	if p.Stage != nil {
		i := *p.Stage
		if i < 0 || i >= len(s.Stages) {
			return nil, &ValidationError{Field: "stage", Reason: fmt.Sprintf("index %d out of range", i)}
		}
		st := &s.Stages[i]
		switch {
		case p.ClearWeight:
			st.WeightKg = nil
		case p.WeightKg != nil:
			st.WeightKg = copyFloat(p.WeightKg)
		}
		if p.Reps != nil {
			st.Reps = copyInt(p.Reps)
		}
		if p.Completed != nil {
			st.Completed = *p.Completed
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		s.SetBase = s.syncCompletion(&now)
		return s, nil
	}

	if p.WeightKg != nil || p.Reps != nil {
		return nil, &ValidationError{Field: "stage", Reason: "dropdown weight/reps edits must target a stage"}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if p.Completed != nil {
		return applyCompletion(s, p, now), nil
	}
	s.SetBase = s.syncCompletion(&now)
	return s, nil
}

// syncCompletion derives the base completion flag from the stages. at is
// used as the completion time when the set becomes complete.
func (s Dropdown) syncCompletion(at *time.Time) SetBase {
	b := s.SetBase
	if s.IsCompleted() {
		if b.CompletedAt == nil && at != nil {
			t := *at
			b.CompletedAt = &t
		}
		b.Completed = true
		return b
	}
	if b.Completed {
		return incompleteBase(b)
	}
	b.CompletedAt = nil
	return b
}

func copyStages(in []Stage) []Stage {
	if in == nil {
		return nil
	}
	out := make([]Stage, len(in))
	for i, st := range in {
		out[i] = Stage{WeightKg: copyFloat(st.WeightKg), Reps: copyInt(st.Reps), Completed: st.Completed}
	}
	return out
}
