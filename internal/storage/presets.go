package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/workout"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetPreset loads one of the user's presets.
func (db *DB) GetPreset(ctx context.Context, userID int, id uuid.UUID) (*workout.Preset, error) {
	var r models.PresetRow
	err := db.Pool.QueryRow(ctx,
		`SELECT id, user_id, name, day_of_week, plan FROM presets WHERE id = $1 AND user_id = $2`,
		id, userID).Scan(&r.ID, &r.UserID, &r.Name, &r.DayOfWeek, &r.Plan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &workout.NotFoundError{Kind: "preset", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("querying preset: %w", err)
	}
	return workout.PresetFromRow(r)
}

// ListPresets returns the user's presets ordered by name.
func (db *DB) ListPresets(ctx context.Context, userID int) ([]*workout.Preset, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, user_id, name, day_of_week, plan FROM presets WHERE user_id = $1 ORDER BY name`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("querying presets: %w", err)
	}
	defer rows.Close()

	var result []*workout.Preset
	for rows.Next() {
		var r models.PresetRow
		if err := rows.Scan(&r.ID, &r.UserID, &r.Name, &r.DayOfWeek, &r.Plan); err != nil {
			return nil, fmt.Errorf("scanning preset: %w", err)
		}
		p, err := workout.PresetFromRow(r)
		if err != nil {
			return nil, fmt.Errorf("preset %s: %w", r.ID, err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// SavePreset inserts or replaces a preset after validating its plan.
func (db *DB) SavePreset(ctx context.Context, p *workout.Preset) error {
	for _, ex := range p.Exercises {
		if err := ex.Validate(); err != nil {
			return err
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	plan, err := json.Marshal(p.Exercises)
	if err != nil {
		return fmt.Errorf("encoding plan: %w", err)
	}
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO presets (id, user_id, name, day_of_week, plan)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name, day_of_week = EXCLUDED.day_of_week, plan = EXCLUDED.plan
			WHERE presets.user_id = EXCLUDED.user_id
	`, p.ID, p.UserID, p.Name, p.DayOfWeek, plan)
	if err != nil {
		return fmt.Errorf("saving preset: %w", err)
	}
	return nil
}
