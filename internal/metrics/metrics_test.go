package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/claude/liftlog/internal/workout"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestOutcome verifies errors are bucketed by their sentinel, including
// when wrapped.
func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{&workout.ValidationError{Field: "reps"}, "invalid"},
		{fmt.Errorf("loading: %w", workout.SessionNotFound(uuid.New())), "not_found"},
		{&workout.ConflictError{Reason: "active"}, "conflict"},
		{workout.ErrStaleEdit, "stale"},
		{errors.New("connection reset"), "error"},
	}
	for _, tt := range tests {
		if got := Outcome(tt.err); got != tt.want {
			t.Errorf("Outcome(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

// TestObserveOp verifies the counter is incremented with op and outcome labels.
func TestObserveOp(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveOp("start", nil)
	m.ObserveOp("start", &workout.ConflictError{Reason: "active"})
	m.ObserveOp("start", &workout.ConflictError{Reason: "active"})

	if got := testutil.ToFloat64(m.SessionOps.WithLabelValues("start", "conflict")); got != 2 {
		t.Errorf("start/conflict = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SessionOps.WithLabelValues("start", "ok")); got != 1 {
		t.Errorf("start/ok = %v, want 1", got)
	}
}

// TestNilMetrics verifies a nil *Metrics can be used without checks.
func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveOp("finish", nil)
	m.ObserveRequest("GET", "200", time.Millisecond)
}
