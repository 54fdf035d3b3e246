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

// CreateServiceRecord inserts a completed service job, including its
// embedding when the indexer has produced one.
func (db *DB) CreateServiceRecord(ctx context.Context, r model.ServiceRecord) (model.ServiceRecord, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.CreatedAt = time.Now().UTC()

	_, err := db.pool.Exec(ctx,
		`INSERT INTO service_history (id, org_id, vehicle_id, service_type, description, cost_cents, embedding, performed_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.OrgID, r.VehicleID, r.ServiceType, r.Description, r.CostCents, r.Embedding,
		r.PerformedAt, r.CreatedAt,
	)
	if err != nil {
		return model.ServiceRecord{}, fmt.Errorf("storage: create service record: %w", err)
	}
	return r, nil
}

// GetServiceRecords hydrates records by ID within an org, keyed for the
// search layer's re-scoring pass. IDs not found are simply absent.
func (db *DB) GetServiceRecords(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]model.ServiceRecord, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]model.ServiceRecord{}, nil
	}

	rows, err := db.pool.Query(ctx,
		`SELECT id, org_id, vehicle_id, service_type, description, cost_cents, performed_at, created_at
		 FROM service_history WHERE org_id = $1 AND id = ANY($2)`, orgID, ids)
	if err != nil {
		return nil, fmt.Errorf("storage: get service records: %w", err)
	}
	defer rows.Close()

	records := make(map[uuid.UUID]model.ServiceRecord, len(ids))
	for rows.Next() {
		var r model.ServiceRecord
		if err := rows.Scan(&r.ID, &r.OrgID, &r.VehicleID, &r.ServiceType, &r.Description,
			&r.CostCents, &r.PerformedAt, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan service record: %w", err)
		}
		records[r.ID] = r
	}
	return records, rows.Err()
}

// GetServiceRecord retrieves one record within an org.
func (db *DB) GetServiceRecord(ctx context.Context, orgID, id uuid.UUID) (model.ServiceRecord, error) {
	var r model.ServiceRecord
	err := db.pool.QueryRow(ctx,
		`SELECT id, org_id, vehicle_id, service_type, description, cost_cents, performed_at, created_at
		 FROM service_history WHERE org_id = $1 AND id = $2`, orgID, id,
	).Scan(&r.ID, &r.OrgID, &r.VehicleID, &r.ServiceType, &r.Description, &r.CostCents,
		&r.PerformedAt, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ServiceRecord{}, fmt.Errorf("storage: service record %s: %w", id, ErrNotFound)
		}
		return model.ServiceRecord{}, fmt.Errorf("storage: get service record: %w", err)
	}
	return r, nil
}

// ListServiceHistoryByVehicle returns a vehicle's service history, newest
// job first.
func (db *DB) ListServiceHistoryByVehicle(ctx context.Context, orgID, vehicleID uuid.UUID, limit int) ([]model.ServiceRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, org_id, vehicle_id, service_type, description, cost_cents, performed_at, created_at
		 FROM service_history WHERE org_id = $1 AND vehicle_id = $2
		 ORDER BY performed_at DESC LIMIT $3`, orgID, vehicleID, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list service history: %w", err)
	}
	defer rows.Close()

	var records []model.ServiceRecord
	for rows.Next() {
		var r model.ServiceRecord
		if err := rows.Scan(&r.ID, &r.OrgID, &r.VehicleID, &r.ServiceType, &r.Description,
			&r.CostCents, &r.PerformedAt, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan service record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
