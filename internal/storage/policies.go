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

// GetLatestPolicyVersion returns the newest policy snapshot for (org, agent),
// or ErrNotFound when the agent has never been trained.
func (db *DB) GetLatestPolicyVersion(ctx context.Context, orgID uuid.UUID, agentName string) (model.PolicyVersion, error) {
	var p model.PolicyVersion
	err := db.pool.QueryRow(ctx,
		`SELECT id, org_id, agent_name, version, metrics, created_at
		 FROM agent_policies WHERE org_id = $1 AND agent_name = $2
		 ORDER BY version DESC LIMIT 1`, orgID, agentName,
	).Scan(&p.ID, &p.OrgID, &p.AgentName, &p.Version, &p.Metrics, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PolicyVersion{}, fmt.Errorf("storage: policy for %q: %w", agentName, ErrNotFound)
		}
		return model.PolicyVersion{}, fmt.Errorf("storage: get latest policy: %w", err)
	}
	return p, nil
}

// BumpPolicyVersion appends the next policy version for (org, agent) and
// returns it. The current max version is read under FOR UPDATE inside one
// transaction so concurrent training runs cannot both write the same
// version number.
func (db *DB) BumpPolicyVersion(ctx context.Context, orgID uuid.UUID, agentName string, metrics map[string]any) (model.PolicyVersion, error) {
	if metrics == nil {
		metrics = map[string]any{}
	}

	// Concurrent training runs can still deadlock or hit serialization
	// failures under the row lock; those are transient, so retry the whole
	// transaction.
	var p model.PolicyVersion
	err := WithRetry(ctx, 3, 10*time.Millisecond, func() error {
		tx, err := db.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("storage: begin policy tx: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		var current int
		err = tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(version), 0) FROM agent_policies
			 WHERE org_id = $1 AND agent_name = $2 FOR UPDATE`,
			orgID, agentName,
		).Scan(&current)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("storage: read current policy version: %w", err)
		}

		p = model.PolicyVersion{
			ID:        uuid.New(),
			OrgID:     orgID,
			AgentName: agentName,
			Version:   current + 1,
			Metrics:   metrics,
			CreatedAt: time.Now().UTC(),
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO agent_policies (id, org_id, agent_name, version, metrics, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			p.ID, p.OrgID, p.AgentName, p.Version, p.Metrics, p.CreatedAt,
		); err != nil {
			return fmt.Errorf("storage: insert policy version: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("storage: commit policy tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.PolicyVersion{}, err
	}
	return p, nil
}

// RecordExperience appends one state/action/reward tuple.
func (db *DB) RecordExperience(ctx context.Context, e model.Experience) (model.Experience, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = time.Now().UTC()
	if e.State == nil {
		e.State = map[string]any{}
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO agent_experiences (id, org_id, agent_name, state, action, reward, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.OrgID, e.AgentName, e.State, e.Action, e.Reward, e.CreatedAt,
	)
	if err != nil {
		return model.Experience{}, fmt.Errorf("storage: record experience: %w", err)
	}
	return e, nil
}

// ListExperiences returns the newest experience tuples for (org, agent), up
// to limit. The training stub reads its batch through this.
func (db *DB) ListExperiences(ctx context.Context, orgID uuid.UUID, agentName string, limit int) ([]model.Experience, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, org_id, agent_name, state, action, reward, created_at
		 FROM agent_experiences WHERE org_id = $1 AND agent_name = $2
		 ORDER BY created_at DESC LIMIT $3`, orgID, agentName, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list experiences: %w", err)
	}
	defer rows.Close()

	var experiences []model.Experience
	for rows.Next() {
		var e model.Experience
		if err := rows.Scan(&e.ID, &e.OrgID, &e.AgentName, &e.State, &e.Action, &e.Reward, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan experience: %w", err)
		}
		experiences = append(experiences, e)
	}
	return experiences, rows.Err()
}
