package session

import (
	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/workout"
)

// View is a session as rendered to API and MCP clients: the stored row plus
// the derived progress figures a client would otherwise recompute.
type View struct {
	models.SessionRow
	Active          bool        `json:"active"`
	CompletedCount  int         `json:"completed_count"`
	TotalCount      int         `json:"total_count"`
	WorkingVolumeKg float64     `json:"working_volume_kg"`
	Groups          []GroupView `json:"groups"`
}

// GroupView summarizes one exercise group. Labels follow the group's set order.
type GroupView struct {
	ExerciseID     string            `json:"exercise_id"`
	ExerciseName   string            `json:"exercise_name"`
	Exercise       *workout.Exercise `json:"exercise,omitempty"`
	CompletedCount int               `json:"completed_count"`
	TotalCount     int               `json:"total_count"`
	Labels         []string          `json:"labels"`
}

// NewView renders sess. A nil session renders as nil.
func NewView(sess *workout.Session) *View {
	if sess == nil {
		return nil
	}
	v := &View{
		SessionRow:      sess.Row(),
		Active:          sess.IsActive(),
		CompletedCount:  sess.CompletedCount(),
		TotalCount:      sess.TotalCount(),
		WorkingVolumeKg: sess.WorkingVolume(),
		Groups:          []GroupView{},
	}
	for _, g := range sess.Groups() {
		gv := GroupView{
			ExerciseID:     g.ExerciseID,
			ExerciseName:   g.ExerciseName,
			Exercise:       g.Exercise,
			CompletedCount: g.CompletedCount(),
			TotalCount:     g.TotalCount(),
			Labels:         make([]string, len(g.Sets)),
		}
		for i, s := range g.Sets {
			gv.Labels[i] = s.Label()
		}
		v.Groups = append(v.Groups, gv)
	}
	return v
}

// NewViews renders a list of sessions.
func NewViews(sessions []*workout.Session) []*View {
	out := make([]*View, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, NewView(s))
	}
	return out
}
