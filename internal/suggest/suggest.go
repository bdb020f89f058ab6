// Package suggest turns output of the AI parsing service into planned
// exercises. Suggestions get no special trust: anything malformed, invalid or
// below the confidence threshold yields no plans at all.
package suggest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/claude/liftlog/internal/workout"
)

// DefaultMinConfidence is used when no threshold is configured.
const DefaultMinConfidence = 0.5

// Suggestion is the structured guess returned by the parsing service.
type Suggestion struct {
	Confidence float64             `json:"confidence"`
	Exercises  []SuggestedExercise `json:"exercises"`
}

// SuggestedExercise is one exercise of a suggestion. Confidence, when set,
// overrides the suggestion-level value for this exercise.
type SuggestedExercise struct {
	workout.PlannedExercise
	Name       string   `json:"name,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Decision explains why a suggestion was or was not used.
type Decision struct {
	Applied int    `json:"applied"`
	Reason  string `json:"reason,omitempty"`
}

// Gate validates suggestions against a confidence threshold.
type Gate struct {
	minConfidence float64
	log           *slog.Logger
}

// NewGate creates a Gate. A threshold outside (0, 1] uses DefaultMinConfidence.
func NewGate(minConfidence float64, log *slog.Logger) *Gate {
	if minConfidence <= 0 || minConfidence > 1 || math.IsNaN(minConfidence) {
		minConfidence = DefaultMinConfidence
	}
	return &Gate{minConfidence: minConfidence, log: log}
}

// MinConfidence returns the threshold in use.
func (g *Gate) MinConfidence() float64 { return g.minConfidence }

// Plans decodes raw service output. It returns the plans to add, or none
// with the reason they were rejected. It never returns a partial result.
func (g *Gate) Plans(raw []byte) ([]workout.PlannedExercise, Decision) {
	plans, err := g.plans(raw)
	if err != nil {
		g.log.Warn("suggestion rejected", "reason", err.Error())
		return nil, Decision{Reason: err.Error()}
	}
	return plans, Decision{Applied: len(plans)}
}

func (g *Gate) plans(raw []byte) ([]workout.PlannedExercise, error) {
	var s Suggestion
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("malformed suggestion: %w", err)
	}
	if len(s.Exercises) == 0 {
		return nil, fmt.Errorf("suggestion has no exercises")
	}
	if !validConfidence(s.Confidence) || s.Confidence < g.minConfidence {
		return nil, fmt.Errorf("confidence %.2f below %.2f", s.Confidence, g.minConfidence)
	}

	plans := make([]workout.PlannedExercise, 0, len(s.Exercises))
	for i, ex := range s.Exercises {
		if ex.Confidence != nil && (!validConfidence(*ex.Confidence) || *ex.Confidence < g.minConfidence) {
			return nil, fmt.Errorf("exercise %d: confidence %.2f below %.2f", i, *ex.Confidence, g.minConfidence)
		}
		if err := ex.PlannedExercise.Validate(); err != nil {
			return nil, fmt.Errorf("exercise %d: %w", i, err)
		}
		plans = append(plans, ex.PlannedExercise)
	}
	return plans, nil
}

func validConfidence(c float64) bool {
	return !math.IsNaN(c) && c >= 0 && c <= 1
}
