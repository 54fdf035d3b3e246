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

const appointmentColumns = `id, org_id, vehicle_id, client_id, service_type, status, starts_at, ends_at, notes, created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(&a.ID, &a.OrgID, &a.VehicleID, &a.ClientID, &a.ServiceType, &a.Status,
		&a.StartsAt, &a.EndsAt, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// CreateAppointment inserts a scheduled service slot.
func (db *DB) CreateAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = model.AppointmentScheduled
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := db.pool.Exec(ctx,
		`INSERT INTO appointments (id, org_id, vehicle_id, client_id, service_type, status, starts_at, ends_at, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.OrgID, a.VehicleID, a.ClientID, a.ServiceType, a.Status, a.StartsAt, a.EndsAt,
		a.Notes, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("storage: create appointment: %w", err)
	}
	return a, nil
}

// GetAppointment retrieves an appointment within an org.
func (db *DB) GetAppointment(ctx context.Context, orgID, id uuid.UUID) (model.Appointment, error) {
	a, err := scanAppointment(db.pool.QueryRow(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE org_id = $1 AND id = $2`, orgID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, fmt.Errorf("storage: appointment %s: %w", id, ErrNotFound)
		}
		return model.Appointment{}, fmt.Errorf("storage: get appointment: %w", err)
	}
	return a, nil
}

// ListAppointmentsInRange returns appointments overlapping [from, to),
// ordered by start time. The calendar tool's backing query.
func (db *DB) ListAppointmentsInRange(ctx context.Context, orgID uuid.UUID, from, to time.Time, limit int) ([]model.Appointment, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+appointmentColumns+` FROM appointments
		 WHERE org_id = $1 AND starts_at < $3 AND ends_at > $2
		 ORDER BY starts_at ASC LIMIT $4`,
		orgID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list appointments: %w", err)
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan appointment: %w", err)
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}

// UpdateAppointmentStatus transitions an appointment's lifecycle state.
func (db *DB) UpdateAppointmentStatus(ctx context.Context, orgID, id uuid.UUID, status model.AppointmentStatus) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE appointments SET status = $1, updated_at = $2 WHERE org_id = $3 AND id = $4`,
		status, time.Now().UTC(), orgID, id,
	)
	if err != nil {
		return fmt.Errorf("storage: update appointment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: appointment %s: %w", id, ErrNotFound)
	}
	return nil
}
