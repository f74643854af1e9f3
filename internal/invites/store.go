package invites

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const invitationColumns = "id, email, status, created_at, expires_at, accepted_at, created_by_user_id"

// Store owns the invitations table. No other component mutates it, and
// every mutation is a single conditional statement so concurrent
// instances cannot lose updates.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new invitation store
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreateParams contains the fields needed to persist a new invitation
type CreateParams struct {
	Email     string
	TokenHash []byte
	IssuedBy  uuid.UUID
	ExpiresAt time.Time
}

// Create inserts a pending invitation. The partial unique index on
// pending emails makes a duplicate-create race lose cleanly with
// ErrPendingExists; a token hash collision surfaces as
// errTokenCollision for the caller to retry.
func (s *Store) Create(ctx context.Context, params CreateParams) (*Invitation, error) {
	var inv Invitation

	query := `
		INSERT INTO invitations (email, token_hash, status, expires_at, created_by_user_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + invitationColumns

	err := s.pool.QueryRow(ctx, query,
		params.Email, params.TokenHash, StatusPending, params.ExpiresAt, params.IssuedBy,
	).Scan(&inv.ID, &inv.Email, &inv.Status, &inv.CreatedAt, &inv.ExpiresAt, &inv.AcceptedAt, &inv.CreatedByUserID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			switch pgErr.ConstraintName {
			case "invitations_pending_email_unique":
				return nil, ErrPendingExists
			case "invitations_token_hash_unique":
				return nil, errTokenCollision
			}
		}
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}

	return &inv, nil
}

// GetByID retrieves an invitation by ID
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE id = $1`
	return s.scanOne(s.pool.QueryRow(ctx, query, id))
}

// GetByTokenHash retrieves an invitation by its token hash
func (s *Store) GetByTokenHash(ctx context.Context, tokenHash []byte) (*Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE token_hash = $1`
	return s.scanOne(s.pool.QueryRow(ctx, query, tokenHash))
}

// GetByTokenHashForUpdate retrieves an invitation by token hash inside
// the caller's transaction, locking the row so concurrent accepts
// serialize on it.
func (s *Store) GetByTokenHashForUpdate(ctx context.Context, tx pgx.Tx, tokenHash []byte) (*Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE token_hash = $1 FOR UPDATE`
	return s.scanOne(tx.QueryRow(ctx, query, tokenHash))
}

// List retrieves invitations ordered by creation time descending, with
// an optional status filter and offset/limit pagination. The second
// return value is the total matching count, independent of the page.
func (s *Store) List(ctx context.Context, status *Status, limit, offset int) ([]Invitation, int, error) {
	var total int

	countQuery := `SELECT COUNT(*) FROM invitations WHERE ($1::TEXT IS NULL OR status = $1)`
	if err := s.pool.QueryRow(ctx, countQuery, status).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count invitations: %w", err)
	}

	query := `
		SELECT ` + invitationColumns + `
		FROM invitations
		WHERE ($1::TEXT IS NULL OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var items []Invitation
	for rows.Next() {
		var inv Invitation
		if err := rows.Scan(&inv.ID, &inv.Email, &inv.Status, &inv.CreatedAt, &inv.ExpiresAt, &inv.AcceptedAt, &inv.CreatedByUserID); err != nil {
			return nil, 0, fmt.Errorf("failed to scan invitation: %w", err)
		}
		items = append(items, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating invitations: %w", err)
	}

	return items, total, nil
}

// MarkAccepted transitions pending -> accepted inside the caller's
// transaction. The WHERE clause re-checks the status, so even a caller
// that raced past the in-memory check cannot double-accept.
func (s *Store) MarkAccepted(ctx context.Context, tx pgx.Tx, id uuid.UUID, acceptedAt time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE invitations
		SET status = $2, accepted_at = $3
		WHERE id = $1
		  AND status = $4
	`, id, StatusAccepted, acceptedAt, StatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark invitation accepted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.disambiguate(ctx, tx, id, ErrInvalidState)
	}

	return nil
}

// RotateToken replaces the token and expiry and resets the invitation
// to pending. Valid from both pending and expired; an accepted
// invitation is immutable history.
func (s *Store) RotateToken(ctx context.Context, id uuid.UUID, newTokenHash []byte, newExpiry time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE invitations
		SET token_hash = $2, expires_at = $3, status = $4, accepted_at = NULL
		WHERE id = $1
		  AND status <> $5
	`, id, newTokenHash, newExpiry, StatusPending, StatusAccepted)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return errTokenCollision
		}
		return fmt.Errorf("failed to rotate invitation token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.disambiguate(ctx, s.pool, id, ErrInvalidState)
	}

	return nil
}

// Revoke transitions a non-accepted invitation to expired, backdating
// expires_at to now so the token stops validating immediately.
func (s *Store) Revoke(ctx context.Context, id uuid.UUID) (*Invitation, error) {
	query := `
		UPDATE invitations
		SET status = $2, expires_at = NOW()
		WHERE id = $1
		  AND status <> $3
		RETURNING ` + invitationColumns

	inv, err := s.scanOne(s.pool.QueryRow(ctx, query, id, StatusExpired, StatusAccepted))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, s.disambiguate(ctx, s.pool, id, ErrInvalidState)
		}
		return nil, err
	}

	return inv, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// disambiguate resolves a zero-rows-affected conditional update into
// ErrNotFound (row absent) or the given state error (row present but in
// the wrong state).
func (s *Store) disambiguate(ctx context.Context, q querier, id uuid.UUID, stateErr error) error {
	var status Status
	err := q.QueryRow(ctx, `SELECT status FROM invitations WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to load invitation status: %w", err)
	}
	return stateErr
}

func (s *Store) scanOne(row pgx.Row) (*Invitation, error) {
	var inv Invitation
	err := row.Scan(&inv.ID, &inv.Email, &inv.Status, &inv.CreatedAt, &inv.ExpiresAt, &inv.AcceptedAt, &inv.CreatedByUserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load invitation: %w", err)
	}
	return &inv, nil
}
