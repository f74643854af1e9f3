package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const accountColumns = "id, email, role, display_name, company, created_at, updated_at"

// Service provides account-related operations
type Service struct {
	pool *pgxpool.Pool
}

// NewService creates a new account service
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// NewAccount contains the fields needed to provision an account
type NewAccount struct {
	Email        string
	PasswordHash string
	Role         Role
	DisplayName  string
	Company      *string
}

// GetByID retrieves an account by ID
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	var a Account

	query := `SELECT ` + accountColumns + ` FROM users WHERE id = $1`

	err := s.pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.Email, &a.Role, &a.DisplayName, &a.Company, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &a, nil
}

// GetRole retrieves just the role for an identity.
// Role is domain data looked up from the account record, not embedded
// in the session credential.
func (s *Service) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	var role Role

	err := s.pool.QueryRow(ctx, `SELECT role FROM users WHERE id = $1`, id).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get role: %w", err)
	}

	return role, nil
}

// GetCredentials looks up the account ID and password hash for an email.
// Used only by the login flow.
func (s *Service) GetCredentials(ctx context.Context, email string) (uuid.UUID, string, error) {
	var id uuid.UUID
	var hash string

	query := `SELECT id, password_hash FROM users WHERE LOWER(email) = LOWER($1)`

	err := s.pool.QueryRow(ctx, query, email).Scan(&id, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, "", ErrNotFound
		}
		return uuid.Nil, "", fmt.Errorf("failed to get credentials: %w", err)
	}

	return id, hash, nil
}

// EmailExists reports whether any account exists for the given email
func (s *Service) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool

	query := `SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))`

	if err := s.pool.QueryRow(ctx, query, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}

	return exists, nil
}

// ListClients retrieves all CLIENT accounts, newest first
func (s *Service) ListClients(ctx context.Context) ([]Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE role = $1 ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, RoleClient)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var clients []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Email, &a.Role, &a.DisplayName, &a.Company, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clients: %w", err)
	}

	return clients, nil
}

// CreateInTx provisions an account inside the caller's transaction.
// The invitation accept flow uses this so a failed provisioning rolls
// back together with the invitation state change.
func (s *Service) CreateInTx(ctx context.Context, tx pgx.Tx, params NewAccount) (*Account, error) {
	if !params.Role.IsValid() {
		return nil, fmt.Errorf("invalid role: %s", params.Role)
	}

	var a Account

	query := `
		INSERT INTO users (email, password_hash, role, display_name, company)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + accountColumns

	err := tx.QueryRow(ctx, query,
		strings.TrimSpace(params.Email),
		params.PasswordHash,
		params.Role,
		strings.TrimSpace(params.DisplayName),
		params.Company,
	).Scan(&a.ID, &a.Email, &a.Role, &a.DisplayName, &a.Company, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	return &a, nil
}

// Create provisions an account outside any transaction.
// Used by the admin CLI to bootstrap the first OWNER.
func (s *Service) Create(ctx context.Context, params NewAccount) (*Account, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	a, err := s.CreateInTx(ctx, tx, params)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return a, nil
}
