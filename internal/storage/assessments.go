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

const assessmentColumns = `id, org_id, vehicle_id, assessor_id, component, severity, summary, findings, created_at`

func scanAssessment(row pgx.Row) (model.Assessment, error) {
	var a model.Assessment
	err := row.Scan(&a.ID, &a.OrgID, &a.VehicleID, &a.AssessorID, &a.Component, &a.Severity,
		&a.Summary, &a.Findings, &a.CreatedAt)
	return a, err
}

// CreateAssessment records a condition assessment for a vehicle.
func (db *DB) CreateAssessment(ctx context.Context, a model.Assessment) (model.Assessment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now().UTC()
	if a.Findings == nil {
		a.Findings = map[string]any{}
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO assessments (id, org_id, vehicle_id, assessor_id, component, severity, summary, findings, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.OrgID, a.VehicleID, a.AssessorID, a.Component, a.Severity, a.Summary, a.Findings, a.CreatedAt,
	)
	if err != nil {
		return model.Assessment{}, fmt.Errorf("storage: create assessment: %w", err)
	}
	return a, nil
}

// GetAssessment retrieves an assessment within an org.
func (db *DB) GetAssessment(ctx context.Context, orgID, id uuid.UUID) (model.Assessment, error) {
	a, err := scanAssessment(db.pool.QueryRow(ctx,
		`SELECT `+assessmentColumns+` FROM assessments WHERE org_id = $1 AND id = $2`, orgID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Assessment{}, fmt.Errorf("storage: assessment %s: %w", id, ErrNotFound)
		}
		return model.Assessment{}, fmt.Errorf("storage: get assessment: %w", err)
	}
	return a, nil
}

// ListAssessmentsByVehicle returns a vehicle's assessments, newest first.
func (db *DB) ListAssessmentsByVehicle(ctx context.Context, orgID, vehicleID uuid.UUID, limit int) ([]model.Assessment, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+assessmentColumns+` FROM assessments
		 WHERE org_id = $1 AND vehicle_id = $2
		 ORDER BY created_at DESC LIMIT $3`, orgID, vehicleID, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list assessments: %w", err)
	}
	defer rows.Close()

	var assessments []model.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan assessment: %w", err)
		}
		assessments = append(assessments, a)
	}
	return assessments, rows.Err()
}
