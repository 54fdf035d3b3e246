package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gearbox-hq/gearbox/internal/model"
)

// CreateTrajectory inserts one write-once supervisor trajectory.
func (db *DB) CreateTrajectory(ctx context.Context, t model.Trajectory) (model.Trajectory, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = time.Now().UTC()

	_, err := db.pool.Exec(ctx,
		`INSERT INTO trajectories (id, org_id, agent_name, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.OrgID, t.AgentName, t.Content, t.CreatedAt,
	)
	if err != nil {
		return model.Trajectory{}, fmt.Errorf("storage: create trajectory: %w", err)
	}
	return t, nil
}

// GetTrajectory retrieves a trajectory within an org.
func (db *DB) GetTrajectory(ctx context.Context, orgID, id uuid.UUID) (model.Trajectory, error) {
	var t model.Trajectory
	err := db.pool.QueryRow(ctx,
		`SELECT id, org_id, agent_name, content, created_at
		 FROM trajectories WHERE org_id = $1 AND id = $2`, orgID, id,
	).Scan(&t.ID, &t.OrgID, &t.AgentName, &t.Content, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Trajectory{}, fmt.Errorf("storage: trajectory %s: %w", id, ErrNotFound)
		}
		return model.Trajectory{}, fmt.Errorf("storage: get trajectory: %w", err)
	}
	return t, nil
}

// ListTrajectories returns an org's trajectories, newest first, optionally
// filtered by agent name.
func (db *DB) ListTrajectories(ctx context.Context, orgID uuid.UUID, agentName *string, limit, offset int) ([]model.Trajectory, error) {
	query := `SELECT id, org_id, agent_name, content, created_at FROM trajectories WHERE org_id = $1`
	args := []any{orgID}
	if agentName != nil {
		query += ` AND agent_name = $2`
		args = append(args, *agentName)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, offset)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list trajectories: %w", err)
	}
	defer rows.Close()

	var trajectories []model.Trajectory
	for rows.Next() {
		var t model.Trajectory
		if err := rows.Scan(&t.ID, &t.OrgID, &t.AgentName, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan trajectory: %w", err)
		}
		trajectories = append(trajectories, t)
	}
	return trajectories, rows.Err()
}
