package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role represents the RBAC role assigned to a platform account.
type Role string

const (
	RoleAdmin  Role = "admin"  // workshop staff with management rights
	RoleMember Role = "member" // workshop staff
	RoleClient Role = "client" // vehicle owner, read-mostly
)

// Account represents an authenticated platform identity within an organization.
type Account struct {
	ID         uuid.UUID      `json:"id"`
	AccountID  string         `json:"account_id"` // human-readable, e.g. "mechanic@north-bay"
	OrgID      uuid.UUID      `json:"org_id"`
	Name       string         `json:"name"`
	Email      string         `json:"email"`
	Role       Role           `json:"role"`
	APIKeyHash *string        `json:"-"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// RoleRank returns the numeric rank of a role (higher = more privileges).
// Only relative ordering matters — RoleAtLeast uses >= comparison.
func RoleRank(r Role) int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleMember:
		return 2
	case RoleClient:
		return 1
	default:
		return 0
	}
}

// RoleAtLeast returns true if role r has at least the privileges of minRole.
func RoleAtLeast(r, minRole Role) bool {
	return RoleRank(r) >= RoleRank(minRole)
}

// ValidateAccountID checks that an account ID conforms to the allowed format.
// Account IDs must be 1-255 ASCII characters: alphanumeric, dots, hyphens,
// underscores, and @ signs.
func ValidateAccountID(id string) error {
	if len(id) == 0 {
		return fmt.Errorf("account_id is required")
	}
	if len(id) > 255 {
		return fmt.Errorf("account_id must be at most 255 characters")
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && (c < '0' || c > '9') &&
			c != '.' && c != '-' && c != '_' && c != '@' {
			return fmt.Errorf("account_id contains invalid character at position %d: %q", i, c)
		}
	}
	return nil
}

// Organization represents a tenant (a workshop) in the multi-tenancy model.
type Organization struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Plan      string    `json:"plan"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
