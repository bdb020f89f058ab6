package workout

// ExerciseGroup is the ordered sets of one exercise within a session. It is
// derived from the session's flat set list and has no lifecycle of its own.
type ExerciseGroup struct {
	ExerciseID   string
	ExerciseName string
	Exercise     *Exercise
	Sets         []Set
}

// CompletedCount sums CompletedContribution over the group's sets.
func (g ExerciseGroup) CompletedCount() int {
	n := 0
	for _, s := range g.Sets {
		n += s.CompletedContribution()
	}
	return n
}

// TotalCount is the number of logical sets in the group.
func (g ExerciseGroup) TotalCount() int { return len(g.Sets) }

// Groups groups the session's sets by exercise, in order of first appearance.
// Sets keep their relative order within each group.
func (s *Session) Groups() []ExerciseGroup {
	var groups []ExerciseGroup
	index := make(map[string]int)

	for _, set := range s.Sets {
		b := set.Base()
		i, ok := index[b.ExerciseID]
		if !ok {
			i = len(groups)
			index[b.ExerciseID] = i
			groups = append(groups, ExerciseGroup{
				ExerciseID:   b.ExerciseID,
				ExerciseName: b.ExerciseName,
				Exercise:     b.Exercise,
			})
		}
		groups[i].Sets = append(groups[i].Sets, set)
	}
	return groups
}
