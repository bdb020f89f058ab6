package workout

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

var t0 = time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)

func base(exerciseID string, pos int) SetBase {
	return SetBase{ID: uuid.New(), ExerciseID: exerciseID, ExerciseName: exerciseID, Position: pos}
}

func stages(n int) []Stage {
	out := make([]Stage, n)
	for i := range out {
		out[i] = Stage{WeightKg: floatPtr(float64(100 - 20*i)), Reps: intPtr(8)}
	}
	return out
}

// TestMarkCompletedIsPure verifies that completing a set returns a new value
// and leaves the original untouched.
func TestMarkCompletedIsPure(t *testing.T) {
	orig, err := NewNormal(base("bench", 0), floatPtr(80), intPtr(5))
	if err != nil {
		t.Fatalf("NewNormal: %v", err)
	}

	done := orig.MarkCompleted(t0)

	if orig.IsCompleted() {
		t.Error("original set was mutated")
	}
	if !done.IsCompleted() {
		t.Error("returned set is not completed")
	}
	if b := done.Base(); b.CompletedAt == nil || !b.CompletedAt.Equal(t0) {
		t.Errorf("CompletedAt = %v, want %v", b.CompletedAt, t0)
	}
}

// TestMarkCompletedStampsCallTime verifies completing an already completed
// set moves its completion time to the new call.
func TestMarkCompletedStampsCallTime(t *testing.T) {
	orig, err := NewBodyweight(base("dips", 0), intPtr(12))
	if err != nil {
		t.Fatalf("NewBodyweight: %v", err)
	}
	later := t0.Add(time.Hour)

	done := orig.MarkCompleted(t0).MarkCompleted(later)
	if b := done.Base(); b.CompletedAt == nil || !b.CompletedAt.Equal(later) {
		t.Errorf("CompletedAt = %v, want %v", b.CompletedAt, later)
	}

	d, err := NewDropdown(base("curl", 0), stages(2))
	if err != nil {
		t.Fatalf("NewDropdown: %v", err)
	}
	drop := d.MarkCompleted(t0).MarkCompleted(later)
	if b := drop.Base(); b.CompletedAt == nil || !b.CompletedAt.Equal(later) {
		t.Errorf("dropdown CompletedAt = %v, want %v", b.CompletedAt, later)
	}
}

// TestDropdownContributesOnce verifies that a dropdown set counts as exactly
// one completed set no matter how many stages it has.
func TestDropdownContributesOnce(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5} {
		d, err := NewDropdown(base("curl", 0), stages(n))
		if err != nil {
			t.Fatalf("n=%d: NewDropdown: %v", n, err)
		}
		if got := d.CompletedContribution(); got != 0 {
			t.Errorf("n=%d: incomplete contribution = %d, want 0", n, got)
		}
		if got := d.MarkCompleted(t0).CompletedContribution(); got != 1 {
			t.Errorf("n=%d: completed contribution = %d, want 1", n, got)
		}
	}
}

// TestDropdownCompletesOnlyWhenAllStagesDone verifies the all-stages rule when
// stages are completed one at a time.
func TestDropdownCompletesOnlyWhenAllStagesDone(t *testing.T) {
	d, err := NewDropdown(base("curl", 0), stages(3))
	if err != nil {
		t.Fatalf("NewDropdown: %v", err)
	}

	var s Set = d
	yes := true
	for i := range 3 {
		if s.IsCompleted() {
			t.Fatalf("completed after %d of 3 stages", i)
		}
		idx := i
		s, err = s.apply(Patch{Stage: &idx, Completed: &yes}, t0)
		if err != nil {
			t.Fatalf("stage %d: %v", i, err)
		}
	}
	if !s.IsCompleted() {
		t.Fatal("not completed after all stages")
	}
	if s.Base().CompletedAt == nil {
		t.Error("CompletedAt not set when the last stage completed")
	}
}

// TestPersistableRecord verifies the zero-or-one record rule: incomplete and
// already-saved sets produce nothing.
func TestPersistableRecord(t *testing.T) {
	n, _ := NewNormal(base("squat", 0), floatPtr(120), intPtr(5))

	if recs := n.PersistableRecord(t0); len(recs) != 0 {
		t.Errorf("incomplete set: %d records, want 0", len(recs))
	}

	done := n.MarkCompleted(t0)
	recs := done.PersistableRecord(t0.Add(time.Hour))
	if len(recs) != 1 {
		t.Fatalf("completed set: %d records, want 1", len(recs))
	}
	if recs[0].Type != SetNormal || *recs[0].WeightKg != 120 || *recs[0].Reps != 5 {
		t.Errorf("record = %+v", recs[0])
	}
	if !recs[0].CompletedAt.Equal(t0) {
		t.Errorf("CompletedAt = %v, want set completion time %v", recs[0].CompletedAt, t0)
	}

	b := done.Base()
	b.AlreadySaved = true
	if recs := done.withBase(b).PersistableRecord(t0); len(recs) != 0 {
		t.Errorf("already saved set: %d records, want 0", len(recs))
	}
}

// TestValidationNamesField verifies constructors reject out-of-range numbers
// with a ValidationError naming the field.
func TestValidationNamesField(t *testing.T) {
	tests := []struct {
		name  string
		build func() error
		field string
	}{
		{"negative weight", func() error {
			_, err := NewNormal(base("x", 0), floatPtr(-1), intPtr(5))
			return err
		}, "weight_kg"},
		{"zero reps", func() error {
			_, err := NewNormal(base("x", 0), floatPtr(20), intPtr(0))
			return err
		}, "reps"},
		{"negative warmup reps", func() error {
			_, err := NewWarmup(base("x", 0), intPtr(-3))
			return err
		}, "reps"},
		{"bodyweight zero reps", func() error {
			_, err := NewBodyweight(base("x", 0), intPtr(0))
			return err
		}, "reps"},
		{"dropdown without stages", func() error {
			_, err := NewDropdown(base("x", 0), nil)
			return err
		}, "stages"},
		{"dropdown stage weight", func() error {
			_, err := NewDropdown(base("x", 0), []Stage{{WeightKg: floatPtr(-5)}})
			return err
		}, "stages[0].weight_kg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build()
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("field = %q, want %q", ve.Field, tt.field)
			}
			if !errors.Is(err, ErrValidation) {
				t.Error("error does not unwrap to ErrValidation")
			}
		})
	}
}

// TestNoWeightOnWarmupOrBodyweight verifies weight patches are rejected for
// set kinds that never carry weight.
func TestNoWeightOnWarmupOrBodyweight(t *testing.T) {
	w, _ := NewWarmup(base("x", 0), intPtr(10))
	bw, _ := NewBodyweight(base("x", 1), intPtr(10))

	for _, s := range []Set{w, bw} {
		if _, err := s.apply(Patch{WeightKg: floatPtr(20)}, t0); !errors.Is(err, ErrValidation) {
			t.Errorf("%s: err = %v, want validation error", s.Type(), err)
		}
	}
	if !bw.IsBodyweight() {
		t.Error("IsBodyweight = false")
	}
}

// TestWarmupExcludedFromVolume verifies warm-ups never count as working volume.
func TestWarmupExcludedFromVolume(t *testing.T) {
	w, _ := NewWarmup(base("x", 0), intPtr(10))
	n, _ := NewNormal(base("x", 1), floatPtr(50), intPtr(10))
	d, _ := NewDropdown(base("x", 2), stages(2))

	if w.IsWorking() || w.Volume() != 0 {
		t.Errorf("warmup: working=%v volume=%v", w.IsWorking(), w.Volume())
	}
	if got := n.Volume(); got != 500 {
		t.Errorf("normal volume = %v, want 500", got)
	}
	if got := d.Volume(); got != 100*8+80*8 {
		t.Errorf("dropdown volume = %v, want %v", got, 100*8+80*8)
	}
}

// TestSetRowRoundTrip verifies every set type survives conversion to its
// stored form and back through the tag factory.
func TestSetRowRoundTrip(t *testing.T) {
	w, _ := NewWarmup(base("a", 0), intPtr(12))
	n, _ := NewNormal(base("a", 1), floatPtr(60), intPtr(8))
	bw, _ := NewBodyweight(base("b", 0), intPtr(15))
	d, _ := NewDropdown(base("c", 0), stages(2))

	for _, s := range []Set{w, n.MarkCompleted(t0), bw, d.MarkCompleted(t0)} {
		row := SetToRow(s)
		back, err := SetFromRow(row)
		if err != nil {
			t.Fatalf("%s: SetFromRow: %v", s.Type(), err)
		}
		if back.Type() != s.Type() {
			t.Errorf("type = %s, want %s", back.Type(), s.Type())
		}
		if !sameContent(s, back) {
			t.Errorf("%s: round trip changed content: %+v vs %+v", s.Type(), SetToRow(s), SetToRow(back))
		}
	}
}

// TestSetFromRowUnknownType verifies the factory rejects unknown tags.
func TestSetFromRowUnknownType(t *testing.T) {
	row := SetToRow(Normal{SetBase: base("a", 0)})
	row.SetType = "superset"
	if _, err := SetFromRow(row); !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
}
