package accounts

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when an account does not exist
	ErrNotFound = errors.New("account not found")

	// ErrEmailTaken is returned when an account already exists for an email
	ErrEmailTaken = errors.New("an account already exists for this email")

	// ErrForbidden is returned when an identity's role is insufficient
	ErrForbidden = errors.New("insufficient role")
)

// Role is a user's role in the portal. The set is closed: an account is
// either the studio OWNER or an invited CLIENT. Roles are assigned at
// account creation and never change through the portal's own flows.
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleClient Role = "CLIENT"
)

// IsValid reports whether the role belongs to the closed set
func (r Role) IsValid() bool {
	return r == RoleOwner || r == RoleClient
}

// RequireRole checks a resolved identity's role against the role an
// operation requires. It is a pure comparison with no side effects;
// callers surface ErrForbidden as 403, never 401.
func RequireRole(have, want Role) error {
	if have != want {
		return ErrForbidden
	}
	return nil
}

// Account represents a portal user
type Account struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Email       string    `db:"email" json:"email"`
	Role        Role      `db:"role" json:"role"`
	DisplayName string    `db:"display_name" json:"display_name"`
	Company     *string   `db:"company" json:"company,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"-"`
}
