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

const invoiceColumns = `id, org_id, appointment_id, client_id, number, status, lines, total_cents, currency, issued_at, paid_at, created_at, updated_at`

func scanInvoice(row pgx.Row) (model.Invoice, error) {
	var inv model.Invoice
	err := row.Scan(&inv.ID, &inv.OrgID, &inv.AppointmentID, &inv.ClientID, &inv.Number,
		&inv.Status, &inv.Lines, &inv.TotalCents, &inv.Currency, &inv.IssuedAt, &inv.PaidAt,
		&inv.CreatedAt, &inv.UpdatedAt)
	return inv, err
}

// CreateInvoice inserts a draft invoice, deriving the total from its lines
// and assigning the next per-org invoice number inside one transaction.
func (db *DB) CreateInvoice(ctx context.Context, inv model.Invoice) (model.Invoice, error) {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if inv.Status == "" {
		inv.Status = model.InvoiceDraft
	}
	inv.TotalCents = model.SumLines(inv.Lines)
	now := time.Now().UTC()
	inv.CreatedAt = now
	inv.UpdatedAt = now

	// Concurrent creates contend on the numbering lock; serialization and
	// deadlock errors are transient, so retry the whole transaction. A
	// unique violation on the number is not retried — it surfaces as a
	// conflict.
	err := WithRetry(ctx, 3, 10*time.Millisecond, func() error {
		tx, err := db.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("storage: begin invoice tx: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		// Per-org invoice numbering. FOR UPDATE serializes concurrent creates.
		var seq int
		err = tx.QueryRow(ctx,
			`SELECT COALESCE(MAX((regexp_match(number, '\d+$'))[1]::int), 0)
			 FROM invoices WHERE org_id = $1 FOR UPDATE`, inv.OrgID,
		).Scan(&seq)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("storage: next invoice number: %w", err)
		}
		inv.Number = fmt.Sprintf("INV-%05d", seq+1)

		_, err = tx.Exec(ctx,
			`INSERT INTO invoices (id, org_id, appointment_id, client_id, number, status, lines, total_cents, currency, issued_at, paid_at, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			inv.ID, inv.OrgID, inv.AppointmentID, inv.ClientID, inv.Number, inv.Status, inv.Lines,
			inv.TotalCents, inv.Currency, inv.IssuedAt, inv.PaidAt, inv.CreatedAt, inv.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("storage: create invoice: number %q: %w", inv.Number, ErrConflict)
			}
			return fmt.Errorf("storage: create invoice: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("storage: commit invoice tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Invoice{}, err
	}
	return inv, nil
}

// GetInvoice retrieves an invoice within an org.
func (db *DB) GetInvoice(ctx context.Context, orgID, id uuid.UUID) (model.Invoice, error) {
	inv, err := scanInvoice(db.pool.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE org_id = $1 AND id = $2`, orgID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Invoice{}, fmt.Errorf("storage: invoice %s: %w", id, ErrNotFound)
		}
		return model.Invoice{}, fmt.Errorf("storage: get invoice: %w", err)
	}
	return inv, nil
}

// ListInvoices returns the org's invoices, newest first.
func (db *DB) ListInvoices(ctx context.Context, orgID uuid.UUID, status *model.InvoiceStatus, limit, offset int) ([]model.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE org_id = $1`
	args := []any{orgID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, offset)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []model.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// TransitionInvoice moves an invoice to a new status, stamping issued_at or
// paid_at as appropriate. Draft -> issued -> paid; void from draft or issued.
func (db *DB) TransitionInvoice(ctx context.Context, orgID, id uuid.UUID, status model.InvoiceStatus) error {
	now := time.Now().UTC()
	var query string
	switch status {
	case model.InvoiceIssued:
		query = `UPDATE invoices SET status = $1, issued_at = $2, updated_at = $2
		         WHERE org_id = $3 AND id = $4 AND status = 'draft'`
	case model.InvoicePaid:
		query = `UPDATE invoices SET status = $1, paid_at = $2, updated_at = $2
		         WHERE org_id = $3 AND id = $4 AND status = 'issued'`
	case model.InvoiceVoid:
		query = `UPDATE invoices SET status = $1, updated_at = $2
		         WHERE org_id = $3 AND id = $4 AND status IN ('draft', 'issued')`
	default:
		return fmt.Errorf("storage: invalid invoice transition to %q", status)
	}

	tag, err := db.pool.Exec(ctx, query, status, now, orgID, id)
	if err != nil {
		return fmt.Errorf("storage: transition invoice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: invoice %s not transitionable to %s: %w", id, status, ErrConflict)
	}
	return nil
}
