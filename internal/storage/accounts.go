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

const accountColumns = `id, account_id, org_id, name, email, role, api_key_hash, metadata, created_at, updated_at`

func scanAccount(row pgx.Row) (model.Account, error) {
	var a model.Account
	err := row.Scan(&a.ID, &a.AccountID, &a.OrgID, &a.Name, &a.Email, &a.Role,
		&a.APIKeyHash, &a.Metadata, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// CreateAccount inserts a platform account. (org_id, account_id) is unique.
func (db *DB) CreateAccount(ctx context.Context, a model.Account) (model.Account, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Metadata == nil {
		a.Metadata = map[string]any{}
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO accounts (id, account_id, org_id, name, email, role, api_key_hash, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.AccountID, a.OrgID, a.Name, a.Email, a.Role, a.APIKeyHash, a.Metadata, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Account{}, fmt.Errorf("storage: create account: %q exists: %w", a.AccountID, ErrConflict)
		}
		return model.Account{}, fmt.Errorf("storage: create account: %w", err)
	}
	return a, nil
}

// GetAccount retrieves an account by primary key within an org.
func (db *DB) GetAccount(ctx context.Context, orgID, id uuid.UUID) (model.Account, error) {
	a, err := scanAccount(db.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE org_id = $1 AND id = $2`, orgID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, fmt.Errorf("storage: account %s: %w", id, ErrNotFound)
		}
		return model.Account{}, fmt.Errorf("storage: get account: %w", err)
	}
	return a, nil
}

// GetAccountByAccountID looks up an account by its human-readable ID across
// orgs. Used by the token endpoint before any org context exists.
func (db *DB) GetAccountByAccountID(ctx context.Context, accountID string) (model.Account, error) {
	a, err := scanAccount(db.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE account_id = $1`, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, fmt.Errorf("storage: account %q: %w", accountID, ErrNotFound)
		}
		return model.Account{}, fmt.Errorf("storage: get account by account_id: %w", err)
	}
	return a, nil
}

// ListAccounts returns the org's accounts ordered by creation time.
func (db *DB) ListAccounts(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]model.Account, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE org_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, orgID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("storage: list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// DeleteAccount removes an account within an org.
func (db *DB) DeleteAccount(ctx context.Context, orgID, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM accounts WHERE org_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return fmt.Errorf("storage: delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: account %s: %w", id, ErrNotFound)
	}
	return nil
}
