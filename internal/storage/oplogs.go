package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/gearbox-hq/gearbox/internal/model"
)

// AppendOperationLog inserts one operation-log entry. Append-only; the oplog
// package swallows failures, so this never needs a retry wrapper.
func (db *DB) AppendOperationLog(ctx context.Context, e model.OperationLogEntry) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO operation_logs (id, org_id, account_id, session_id, level, source, message, data, ts)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.OrgID, e.AccountID, e.SessionID, e.Level, e.Source, e.Message, e.Data, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("storage: append operation log: %w", err)
	}
	return nil
}

// ListOperationLogs returns an org's operation-log entries, newest first,
// optionally filtered by source.
func (db *DB) ListOperationLogs(ctx context.Context, orgID uuid.UUID, source *string, limit, offset int) ([]model.OperationLogEntry, error) {
	query := `SELECT id, org_id, account_id, session_id, level, source, message, data, ts
	          FROM operation_logs WHERE org_id = $1`
	args := []any{orgID}
	if source != nil {
		query += ` AND source = $2`
		args = append(args, *source)
	}
	query += fmt.Sprintf(` ORDER BY ts DESC LIMIT %d OFFSET %d`, limit, offset)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list operation logs: %w", err)
	}
	defer rows.Close()

	var entries []model.OperationLogEntry
	for rows.Next() {
		var e model.OperationLogEntry
		if err := rows.Scan(&e.ID, &e.OrgID, &e.AccountID, &e.SessionID, &e.Level, &e.Source,
			&e.Message, &e.Data, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("storage: scan operation log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
