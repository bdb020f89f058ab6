package workout

import (
	"fmt"

	"github.com/claude/liftlog/internal/models"
)

// SetFromRow maps a stored set back to its variant using the set_type tag.
func SetFromRow(r models.SetRow) (Set, error) {
	base := SetBase{
		ID:           r.ID,
		ExerciseID:   r.ExerciseID,
		ExerciseName: r.ExerciseName,
		Position:     r.Position,
		Completed:    r.Completed,
		CompletedAt:  r.CompletedAt,
		AlreadySaved: r.AlreadySaved,
		EditSeq:      r.EditSeq,
	}

	switch SetType(r.SetType) {
	case SetWarmup:
		return NewWarmup(base, r.Reps)
	case SetNormal:
		return NewNormal(base, r.WeightKg, r.Reps)
	case SetBodyweight:
		return NewBodyweight(base, r.Reps)
	case SetDropdown:
		stages := make([]Stage, len(r.Stages))
		for i, st := range r.Stages {
			stages[i] = Stage{WeightKg: st.WeightKg, Reps: st.Reps, Completed: st.Completed}
		}
		return NewDropdown(base, stages)
	default:
		return nil, &ValidationError{Field: "set_type", Reason: fmt.Sprintf("unknown set type %q", r.SetType)}
	}
}

// SetToRow converts a set variant into its stored form.
func SetToRow(s Set) models.SetRow {
	b := s.Base()
	row := models.SetRow{
		ID:           b.ID,
		ExerciseID:   b.ExerciseID,
		ExerciseName: b.ExerciseName,
		SetType:      string(s.Type()),
		Position:     b.Position,
		Completed:    s.IsCompleted(),
		CompletedAt:  b.CompletedAt,
		AlreadySaved: b.AlreadySaved,
		EditSeq:      b.EditSeq,
	}

	switch v := s.(type) {
	case Warmup:
		row.Reps = copyInt(v.Reps)
	case Normal:
		row.WeightKg = copyFloat(v.WeightKg)
		row.Reps = copyInt(v.Reps)
	case Bodyweight:
		row.Reps = copyInt(v.Reps)
	case Dropdown:
		row.Stages = stageRows(v.Stages)
	}
	return row
}

// LoggedSetRow converts a persistable record to a set_log row.
func LoggedSetRow(sess *Session, l LoggedSet) models.LoggedSetRow {
	return models.LoggedSetRow{
		SetID:       l.SetID,
		SessionID:   sess.ID,
		UserID:      sess.UserID,
		ExerciseID:  l.ExerciseID,
		SetType:     string(l.Type),
		WeightKg:    l.WeightKg,
		Reps:        l.Reps,
		Stages:      stageRows(l.Stages),
		CompletedAt: l.CompletedAt,
	}
}

// SessionFromRow rebuilds an aggregate from its stored form.
func SessionFromRow(r models.SessionRow) (*Session, error) {
	s := &Session{
		ID:        r.ID,
		UserID:    r.UserID,
		PresetID:  r.PresetID,
		StartedAt: r.StartedAt,
		EndedAt:   r.EndedAt,
		Notes:     r.Notes,
		Version:   r.Version,
		UpdatedAt: r.UpdatedAt,
		Sets:      make([]Set, 0, len(r.Sets)),
	}
	for i, sr := range r.Sets {
		set, err := SetFromRow(sr)
		if err != nil {
			return nil, fmt.Errorf("set %d (%s): %w", i, sr.ID, err)
		}
		s.Sets = append(s.Sets, set)
	}
	return s, nil
}

// Row converts the aggregate into its stored form.
func (s *Session) Row() models.SessionRow {
	row := models.SessionRow{
		ID:        s.ID,
		UserID:    s.UserID,
		PresetID:  s.PresetID,
		StartedAt: s.StartedAt,
		EndedAt:   s.EndedAt,
		Notes:     s.Notes,
		Version:   s.Version,
		UpdatedAt: s.UpdatedAt,
		Sets:      make([]models.SetRow, 0, len(s.Sets)),
	}
	for _, set := range s.Sets {
		row.Sets = append(row.Sets, SetToRow(set))
	}
	return row
}

func stageRows(stages []Stage) []models.StageRow {
	if stages == nil {
		return nil
	}
	out := make([]models.StageRow, len(stages))
	for i, st := range stages {
		out[i] = models.StageRow{WeightKg: copyFloat(st.WeightKg), Reps: copyInt(st.Reps), Completed: st.Completed}
	}
	return out
}
