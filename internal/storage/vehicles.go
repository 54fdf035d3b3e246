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

const vehicleColumns = `id, org_id, owner_id, vin, make, model, year, license_plate, mileage, metadata, created_at, updated_at`

func scanVehicle(row pgx.Row) (model.Vehicle, error) {
	var v model.Vehicle
	err := row.Scan(&v.ID, &v.OrgID, &v.OwnerID, &v.VIN, &v.Make, &v.Model, &v.Year,
		&v.LicensePlate, &v.Mileage, &v.Metadata, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

// CreateVehicle inserts a vehicle. (org_id, vin) is unique.
func (db *DB) CreateVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error) {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now
	if v.Metadata == nil {
		v.Metadata = map[string]any{}
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO vehicles (id, org_id, owner_id, vin, make, model, year, license_plate, mileage, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		v.ID, v.OrgID, v.OwnerID, v.VIN, v.Make, v.Model, v.Year, v.LicensePlate, v.Mileage,
		v.Metadata, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Vehicle{}, fmt.Errorf("storage: create vehicle: VIN %q exists: %w", v.VIN, ErrConflict)
		}
		return model.Vehicle{}, fmt.Errorf("storage: create vehicle: %w", err)
	}
	return v, nil
}

// GetVehicle retrieves a vehicle within an org.
func (db *DB) GetVehicle(ctx context.Context, orgID, id uuid.UUID) (model.Vehicle, error) {
	v, err := scanVehicle(db.pool.QueryRow(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE org_id = $1 AND id = $2`, orgID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Vehicle{}, fmt.Errorf("storage: vehicle %s: %w", id, ErrNotFound)
		}
		return model.Vehicle{}, fmt.Errorf("storage: get vehicle: %w", err)
	}
	return v, nil
}

// ListVehicles returns the org's vehicles, optionally filtered by owner.
func (db *DB) ListVehicles(ctx context.Context, orgID uuid.UUID, ownerID *uuid.UUID, limit, offset int) ([]model.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE org_id = $1`
	args := []any{orgID}
	if ownerID != nil {
		query += ` AND owner_id = $2`
		args = append(args, *ownerID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, offset)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []model.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan vehicle: %w", err)
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}

// UpdateVehicleMileage records a new odometer reading.
func (db *DB) UpdateVehicleMileage(ctx context.Context, orgID, id uuid.UUID, mileage int) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE vehicles SET mileage = $1, updated_at = $2 WHERE org_id = $3 AND id = $4`,
		mileage, time.Now().UTC(), orgID, id,
	)
	if err != nil {
		return fmt.Errorf("storage: update vehicle mileage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: vehicle %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteVehicle removes a vehicle within an org.
func (db *DB) DeleteVehicle(ctx context.Context, orgID, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM vehicles WHERE org_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return fmt.Errorf("storage: delete vehicle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: vehicle %s: %w", id, ErrNotFound)
	}
	return nil
}
