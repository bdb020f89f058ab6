package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/workout"
	"github.com/jackc/pgx/v5"
)

// Lookup returns catalog metadata for one exercise.
func (db *DB) Lookup(ctx context.Context, exerciseID string) (workout.Exercise, error) {
	var r models.ExerciseRow
	err := db.Pool.QueryRow(ctx,
		`SELECT id, name, category, muscle_groups, equipment FROM exercises WHERE id = $1`,
		exerciseID).Scan(&r.ID, &r.Name, &r.Category, &r.MuscleGroups, &r.Equipment)
	if errors.Is(err, pgx.ErrNoRows) {
		return workout.Exercise{}, &workout.NotFoundError{Kind: "exercise", ID: exerciseID}
	}
	if err != nil {
		return workout.Exercise{}, fmt.Errorf("querying exercise: %w", err)
	}
	return exerciseFromRow(r), nil
}

// ListExercises returns the whole catalog ordered by name.
func (db *DB) ListExercises(ctx context.Context) ([]workout.Exercise, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, name, category, muscle_groups, equipment FROM exercises ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying exercises: %w", err)
	}
	defer rows.Close()

	var result []workout.Exercise
	for rows.Next() {
		var r models.ExerciseRow
		if err := rows.Scan(&r.ID, &r.Name, &r.Category, &r.MuscleGroups, &r.Equipment); err != nil {
			return nil, fmt.Errorf("scanning exercise: %w", err)
		}
		result = append(result, exerciseFromRow(r))
	}
	return result, rows.Err()
}

// UpsertExercise inserts or replaces a catalog entry.
func (db *DB) UpsertExercise(ctx context.Context, ex workout.Exercise) error {
	groups := ex.MuscleGroups
	if groups == nil {
		groups = []string{}
	}
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO exercises (id, name, category, muscle_groups, equipment)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name, category = EXCLUDED.category,
			    muscle_groups = EXCLUDED.muscle_groups, equipment = EXCLUDED.equipment
	`, ex.ID, ex.Name, ex.Category, groups, ex.Equipment)
	if err != nil {
		return fmt.Errorf("upserting exercise %s: %w", ex.ID, err)
	}
	return nil
}

func exerciseFromRow(r models.ExerciseRow) workout.Exercise {
	return workout.Exercise{
		ID:           r.ID,
		Name:         r.Name,
		Category:     r.Category,
		MuscleGroups: r.MuscleGroups,
		Equipment:    r.Equipment,
	}
}
