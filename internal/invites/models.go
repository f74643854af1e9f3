package invites

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no invitation matches a token or ID
	ErrNotFound = errors.New("invitation not found")

	// ErrExpired is returned when a token is recognized but past its
	// expiry or explicitly revoked. Distinct from ErrNotFound so a
	// client can offer "request a new invitation" instead of
	// "invalid link".
	ErrExpired = errors.New("invitation expired")

	// ErrInvalidState is returned when an operation is not permitted in
	// the invitation's current lifecycle state
	ErrInvalidState = errors.New("invitation not in a valid state for this operation")

	// ErrPendingExists is returned when a pending invitation already
	// exists for the email
	ErrPendingExists = errors.New("a pending invitation already exists for this email")

	// ErrAccountExists is returned when an account already exists for
	// the email
	ErrAccountExists = errors.New("an account already exists for this email")

	// errTokenCollision signals a token hash uniqueness violation; the
	// caller retries with a fresh token
	errTokenCollision = errors.New("invitation token collision")
)

// Status is an invitation's lifecycle state.
//
// pending is the initial state. accepted and expired are terminal for
// the accept path; an expired invitation can only be revived by a
// resend, which rotates the token and starts a fresh pending lifecycle
// on the same record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusExpired  Status = "expired"
)

// IsValid reports whether the status belongs to the closed set
func (s Status) IsValid() bool {
	return s == StatusPending || s == StatusAccepted || s == StatusExpired
}

// Invitation grants one email the right to create an account, gated by
// a single-use token. Records are never deleted; revocation and expiry
// are state changes, so the full history remains auditable.
type Invitation struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	Email           string     `db:"email" json:"email"`
	Status          Status     `db:"status" json:"status"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	ExpiresAt       time.Time  `db:"expires_at" json:"expires_at"`
	AcceptedAt      *time.Time `db:"accepted_at" json:"accepted_at,omitempty"`
	CreatedByUserID uuid.UUID  `db:"created_by_user_id" json:"created_by_user_id"`
}

// AcceptableAt decides whether the invitation can be validated or
// accepted at the given instant. Expiry is checked lazily here, not
// flipped by a background sweep.
//
// An accepted invitation is immutable history (ErrInvalidState); a
// revoked one reads as expired (ErrExpired) so the caller can offer a
// fresh invitation; a pending one past its expiry is likewise expired.
func (i *Invitation) AcceptableAt(now time.Time) error {
	switch i.Status {
	case StatusAccepted:
		return ErrInvalidState
	case StatusExpired:
		return ErrExpired
	}

	if !i.ExpiresAt.After(now) {
		return ErrExpired
	}

	return nil
}

// Revocable reports whether the invitation may be revoked.
// Accepted invitations never are.
func (i *Invitation) Revocable() bool {
	return i.Status != StatusAccepted
}
