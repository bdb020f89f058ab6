package workout

import (
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Session is the workout session aggregate: an ordered, flat list of sets
// spanning one or more exercises. It has no notion of which session is the
// user's active one; that is enforced by the session repository.
type Session struct {
	// ID is uuid.Nil until the session is first persisted.
	ID        uuid.UUID
	UserID    int
	PresetID  *uuid.UUID
	StartedAt time.Time
	EndedAt   *time.Time
	Notes     string
	Sets      []Set

	// Version increases on every stored write; UpdatedAt is the write time.
	Version   int64
	UpdatedAt time.Time
}

// NewSession returns an empty, unpersisted session started at now.
func NewSession(userID int, presetID *uuid.UUID, now time.Time) *Session {
	return &Session{
		UserID:    userID,
		PresetID:  presetID,
		StartedAt: now,
	}
}

// IsPersisted reports whether the session has ever been assigned a stored ID.
func (s *Session) IsPersisted() bool { return s.ID != uuid.Nil }

// IsActive reports whether the session has no end timestamp.
func (s *Session) IsActive() bool { return s.EndedAt == nil }

// Clone returns a copy that can be mutated without affecting s. Set values
// are immutable so the slice copy is enough.
func (s *Session) Clone() *Session {
	c := *s
	c.Sets = append([]Set(nil), s.Sets...)
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	if s.PresetID != nil {
		id := *s.PresetID
		c.PresetID = &id
	}
	return &c
}

// AddExerciseGroup appends the planned sets for one exercise, warm-ups first.
// Positions continue after any sets the exercise already has in the session.
func (s *Session) AddExerciseGroup(ex Exercise, plan PlannedExercise) ([]Set, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if ex.ID == "" {
		ex.ID = plan.ExerciseID
	}
	if ex.Name == "" {
		ex = PlaceholderExercise(plan.ExerciseID)
	}

	pos := 0
	for _, set := range s.Sets {
		if b := set.Base(); b.ExerciseID == plan.ExerciseID && b.Position >= pos {
			pos = b.Position + 1
		}
	}

	newBase := func() SetBase {
		meta := ex
		b := SetBase{
			ID:           uuid.New(),
			ExerciseID:   plan.ExerciseID,
			ExerciseName: ex.Name,
			Exercise:     &meta,
			Position:     pos,
		}
		pos++
		return b
	}

	added := make([]Set, 0, plan.WarmupSets+plan.Sets)
	for range plan.WarmupSets {
		w, err := NewWarmup(newBase(), plan.WarmupReps)
		if err != nil {
			return nil, err
		}
		added = append(added, w)
	}

	for range plan.Sets {
		var (
			set Set
			err error
		)
		switch plan.SetType {
		case SetWarmup:
			set, err = NewWarmup(newBase(), plan.Reps)
		case SetNormal:
			set, err = NewNormal(newBase(), plan.WeightKg, plan.Reps)
		case SetBodyweight:
			set, err = NewBodyweight(newBase(), plan.Reps)
		case SetDropdown:
			stages := make([]Stage, plan.DropStages)
			for i := range stages {
				stages[i].Reps = copyInt(plan.Reps)
			}
			stages[0].WeightKg = copyFloat(plan.WeightKg)
			set, err = NewDropdown(newBase(), stages)
		}
		if err != nil {
			return nil, err
		}
		added = append(added, set)
	}

	s.Sets = append(s.Sets, added...)
	return added, nil
}

// Set returns the set with the given ID.
func (s *Session) Set(id uuid.UUID) (Set, bool) {
	i := s.indexOf(id)
	if i < 0 {
		return nil, false
	}
	return s.Sets[i], true
}

// UpdateSet replaces one set with a patched copy. It returns a NotFoundError
// for an unknown set and ErrStaleEdit when p.Seq is not newer than the last
// applied sequence for that set. On error the session is unchanged.
func (s *Session) UpdateSet(id uuid.UUID, p Patch, now time.Time) (Set, error) {
	i := s.indexOf(id)
	if i < 0 {
		return nil, &NotFoundError{Kind: "set", ID: id.String()}
	}
	cur := s.Sets[i]
	if p.Seq != 0 && p.Seq <= cur.Base().EditSeq {
		return cur, ErrStaleEdit
	}

	next, err := cur.apply(p, now)
	if err != nil {
		return nil, err
	}

	b := next.Base()
	if p.Seq > b.EditSeq {
		b.EditSeq = p.Seq
	}
	// Any real change means the logged copy, if any, is out of date.
	if b.AlreadySaved && !sameContent(cur, next) {
		b.AlreadySaved = false
	}
	next = next.withBase(b)

	s.Sets[i] = next
	return next, nil
}

// RemoveSet drops a set from the session.
func (s *Session) RemoveSet(id uuid.UUID) error {
	i := s.indexOf(id)
	if i < 0 {
		return &NotFoundError{Kind: "set", ID: id.String()}
	}
	s.Sets = append(s.Sets[:i:i], s.Sets[i+1:]...)
	return nil
}

// CompletedCount sums CompletedContribution over all sets.
func (s *Session) CompletedCount() int {
	n := 0
	for _, set := range s.Sets {
		n += set.CompletedContribution()
	}
	return n
}

// TotalCount is the number of logical sets; a dropdown counts once.
func (s *Session) TotalCount() int { return len(s.Sets) }

// IsEmpty reports whether no set has been completed.
func (s *Session) IsEmpty() bool { return s.CompletedCount() == 0 }

// WorkingVolume is the weight x reps of completed working sets.
func (s *Session) WorkingVolume() float64 {
	var v float64
	for _, set := range s.Sets {
		if set.IsWorking() && set.IsCompleted() {
			v += set.Volume()
		}
	}
	return v
}

// PendingRecords collects persistable records for sets not yet logged.
func (s *Session) PendingRecords(asOf time.Time) []LoggedSet {
	var out []LoggedSet
	for _, set := range s.Sets {
		out = append(out, set.PersistableRecord(asOf)...)
	}
	return out
}

// MarkSaved flags every completed set as already logged.
func (s *Session) MarkSaved() {
	for i, set := range s.Sets {
		if !set.IsCompleted() {
			continue
		}
		b := set.Base()
		b.AlreadySaved = true
		s.Sets[i] = set.withBase(b)
	}
}

// Hydrate attaches catalog metadata to every set. lookup returns false for
// unknown exercises, which keep their stored name or get the placeholder.
func (s *Session) Hydrate(lookup func(exerciseID string) (Exercise, bool)) {
	for i, set := range s.Sets {
		b := set.Base()
		ex, ok := lookup(b.ExerciseID)
		if !ok {
			ex = PlaceholderExercise(b.ExerciseID)
			if b.ExerciseName != "" {
				ex.Name = b.ExerciseName
			}
		}
		b.Exercise = &ex
		if b.ExerciseName == "" || ok {
			b.ExerciseName = ex.Name
		}
		s.Sets[i] = set.withBase(b)
	}
}

func (s *Session) indexOf(id uuid.UUID) int {
	for i, set := range s.Sets {
		if set.Base().ID == id {
			return i
		}
	}
	return -1
}

// sameContent compares two versions of a set ignoring bookkeeping fields.
func sameContent(a, b Set) bool {
	ra, rb := SetToRow(a), SetToRow(b)
	ra.EditSeq, rb.EditSeq = 0, 0
	ra.AlreadySaved, rb.AlreadySaved = false, false
	return reflect.DeepEqual(ra, rb)
}
