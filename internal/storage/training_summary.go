package storage

import (
	"context"
	"fmt"
	"time"
)

// StrengthVolumeSummary holds aggregated strength training stats for a period.
// Warm-ups are excluded; a dropdown counts as one set and its stages are
// summed for reps and tonnage.
type StrengthVolumeSummary struct {
	Period            string  `json:"period"`
	WorkingSets       int     `json:"working_sets"`
	WarmupSets        int     `json:"warmup_sets"`
	TotalReps         int     `json:"total_reps"`
	TonnageKg         float64 `json:"tonnage_kg"`
	Sessions          int     `json:"sessions"`
	AvgSetsPerSession float64 `json:"avg_sets_per_session"`
}

// ExerciseProgression holds one day's logged work for a single exercise.
type ExerciseProgression struct {
	Date      string  `json:"date"`
	MaxWeight float64 `json:"max_weight_kg"`
	TonnageKg float64 `json:"tonnage_kg"`
	Sets      int     `json:"sets"`
}

// Per-row reps and tonnage; dropdown rows carry them in stages.
const rowReps = `COALESCE(reps, (SELECT SUM((s->>'reps')::int) FROM jsonb_array_elements(stages) s), 0)`

const rowTonnage = `COALESCE(weight_kg * reps,
	(SELECT SUM((s->>'weight_kg')::float8 * (s->>'reps')::int) FROM jsonb_array_elements(stages) s), 0)`

const rowTopWeight = `COALESCE(weight_kg, (SELECT MAX((s->>'weight_kg')::float8) FROM jsonb_array_elements(stages) s), 0)`

// GetTrainingSummary returns strength volume per period from the set log.
func (db *DB) GetTrainingSummary(ctx context.Context, start, end time.Time, bucket string, userID int) ([]StrengthVolumeSummary, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT date_trunc($1, completed_at)::date AS period,
		        COUNT(*) FILTER (WHERE set_type <> 'warmup')::int AS working_sets,
		        COUNT(*) FILTER (WHERE set_type = 'warmup')::int AS warmup_sets,
		        COALESCE(SUM(`+rowReps+`) FILTER (WHERE set_type <> 'warmup'), 0)::int AS total_reps,
		        COALESCE(SUM(`+rowTonnage+`) FILTER (WHERE set_type <> 'warmup'), 0) AS tonnage,
		        COUNT(DISTINCT session_id)::int AS sessions
		 FROM set_log
		 WHERE completed_at >= $2 AND completed_at < $3 AND user_id = $4
		 GROUP BY period
		 ORDER BY period DESC`,
		truncInterval(bucket), start, end, userID)
	if err != nil {
		return nil, fmt.Errorf("querying strength summary: %w", err)
	}
	defer rows.Close()

	var result []StrengthVolumeSummary
	for rows.Next() {
		var periodTime time.Time
		var sv StrengthVolumeSummary
		if err := rows.Scan(&periodTime, &sv.WorkingSets, &sv.WarmupSets, &sv.TotalReps, &sv.TonnageKg, &sv.Sessions); err != nil {
			return nil, fmt.Errorf("scanning strength summary: %w", err)
		}
		sv.Period = periodTime.Format("2006-01-02")
		if sv.Sessions > 0 {
			sv.AvgSetsPerSession = float64(sv.WorkingSets) / float64(sv.Sessions)
		}
		result = append(result, sv)
	}
	return result, rows.Err()
}

// GetExerciseProgression returns per-day top weight and tonnage for one
// exercise, oldest first.
func (db *DB) GetExerciseProgression(ctx context.Context, start, end time.Time, userID int, exerciseID string) ([]ExerciseProgression, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT completed_at::date AS day,
		        MAX(`+rowTopWeight+`),
		        COALESCE(SUM(`+rowTonnage+`), 0),
		        COUNT(*)::int
		 FROM set_log
		 WHERE user_id = $1 AND exercise_id = $2 AND set_type <> 'warmup'
		   AND completed_at >= $3 AND completed_at < $4
		 GROUP BY day
		 ORDER BY day`,
		userID, exerciseID, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying exercise progression: %w", err)
	}
	defer rows.Close()

	var result []ExerciseProgression
	for rows.Next() {
		var day time.Time
		var p ExerciseProgression
		if err := rows.Scan(&day, &p.MaxWeight, &p.TonnageKg, &p.Sets); err != nil {
			return nil, fmt.Errorf("scanning exercise progression: %w", err)
		}
		p.Date = day.Format("2006-01-02")
		result = append(result, p)
	}
	return result, rows.Err()
}

// truncInterval converts bucket strings like "1 month" to the interval name
// that date_trunc expects (e.g. "month", "week").
func truncInterval(bucket string) string {
	switch bucket {
	case "1 week", "week":
		return "week"
	case "1 day", "day":
		return "day"
	default:
		return "month"
	}
}
