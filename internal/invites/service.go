package invites

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/atelierhq/portal/internal/accounts"
	"github.com/atelierhq/portal/internal/auth"
	"github.com/atelierhq/portal/internal/validation"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// tokenRetryLimit bounds the retry loop on token hash collisions
const tokenRetryLimit = 3

// AccountProvisioner is the identity-side collaborator: it answers
// whether an email already has an account and provisions one inside the
// accept transaction.
type AccountProvisioner interface {
	EmailExists(ctx context.Context, email string) (bool, error)
	CreateInTx(ctx context.Context, tx pgx.Tx, params accounts.NewAccount) (*accounts.Account, error)
}

// Mailer dispatches invitation emails. Dispatch is best-effort: it runs
// detached from the request and never reports failure to the caller.
type Mailer interface {
	SendInvitation(toEmail, acceptURL string, expiresAt time.Time)
}

// Validation is the read-only result of checking a token
type Validation struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AcceptParams carries a recipient's account-creation input
type AcceptParams struct {
	Token       string
	Password    string
	DisplayName string
	Company     *string
}

// Service implements the invitation lifecycle: pending on creation,
// accepted by the one-time accept operation, expired by revocation, and
// back to pending via token rotation on resend.
type Service struct {
	pool        *pgxpool.Pool
	store       *Store
	provisioner AccountProvisioner
	mailer      Mailer
	baseURL     string
}

// NewService creates a new invitation service
func NewService(pool *pgxpool.Pool, store *Store, provisioner AccountProvisioner, mailer Mailer, baseURL string) *Service {
	return &Service{
		pool:        pool,
		store:       store,
		provisioner: provisioner,
		mailer:      mailer,
		baseURL:     baseURL,
	}
}

// AcceptURL builds the link a recipient follows to redeem a token
func (s *Service) AcceptURL(token string) string {
	return s.baseURL + "/invitations/accept?token=" + url.QueryEscape(token)
}

// CreateInvitation issues a pending invitation for the email and
// dispatches the invitation email out-of-band. Fails with
// ErrAccountExists or ErrPendingExists on the two conflict causes.
func (s *Service) CreateInvitation(ctx context.Context, email string, issuerID uuid.UUID, ttlDays int) (*Invitation, string, error) {
	email, err := validation.NormalizeEmail(email)
	if err != nil {
		return nil, "", err
	}
	if ttlDays <= 0 {
		return nil, "", errors.New("ttl must be positive")
	}

	exists, err := s.provisioner.EmailExists(ctx, email)
	if err != nil {
		return nil, "", fmt.Errorf("failed to check for existing account: %w", err)
	}
	if exists {
		return nil, "", ErrAccountExists
	}

	expiresAt := time.Now().UTC().Add(time.Duration(ttlDays) * 24 * time.Hour)

	for attempt := 0; attempt < tokenRetryLimit; attempt++ {
		token, tokenHash, err := GenerateToken()
		if err != nil {
			return nil, "", err
		}

		inv, err := s.store.Create(ctx, CreateParams{
			Email:     email,
			TokenHash: tokenHash,
			IssuedBy:  issuerID,
			ExpiresAt: expiresAt,
		})
		if err != nil {
			if errors.Is(err, errTokenCollision) {
				continue
			}
			return nil, "", err
		}

		s.mailer.SendInvitation(inv.Email, s.AcceptURL(token), inv.ExpiresAt)

		return inv, token, nil
	}

	return nil, "", fmt.Errorf("failed to create invitation: token collision retry exhausted")
}

// ValidateInvitation checks a token without changing any state, so a
// client can pre-check before collecting a password.
func (s *Service) ValidateInvitation(ctx context.Context, token string) (*Validation, error) {
	if !ValidateTokenFormat(token) {
		return nil, ErrNotFound
	}

	inv, err := s.store.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		return nil, err
	}

	if err := inv.AcceptableAt(time.Now().UTC()); err != nil {
		return nil, err
	}

	return &Validation{Email: inv.Email, ExpiresAt: inv.ExpiresAt}, nil
}

// AcceptInvitation redeems a token: it locks the invitation row,
// re-checks the state, provisions the CLIENT account, and marks the
// invitation accepted — all in one transaction. If provisioning fails
// the transaction rolls back and the invitation stays pending, so the
// token can be retried. Two concurrent accepts of the same token yield
// exactly one success.
func (s *Service) AcceptInvitation(ctx context.Context, params AcceptParams) (*accounts.Account, uuid.UUID, error) {
	if !ValidateTokenFormat(params.Token) {
		return nil, uuid.Nil, ErrNotFound
	}
	if err := validation.ValidatePassword(params.Password); err != nil {
		return nil, uuid.Nil, err
	}
	if err := validation.ValidateDisplayName(params.DisplayName); err != nil {
		return nil, uuid.Nil, err
	}

	// bcrypt is deliberately slow; hash before taking the row lock.
	passwordHash, err := auth.HashPassword(params.Password)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("failed to hash password: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	inv, err := s.store.GetByTokenHashForUpdate(ctx, tx, HashToken(params.Token))
	if err != nil {
		return nil, uuid.Nil, err
	}

	if err := inv.AcceptableAt(time.Now().UTC()); err != nil {
		return nil, uuid.Nil, err
	}

	account, err := s.provisioner.CreateInTx(ctx, tx, accounts.NewAccount{
		Email:        inv.Email,
		PasswordHash: passwordHash,
		Role:         accounts.RoleClient,
		DisplayName:  params.DisplayName,
		Company:      params.Company,
	})
	if err != nil {
		if errors.Is(err, accounts.ErrEmailTaken) {
			return nil, uuid.Nil, ErrAccountExists
		}
		return nil, uuid.Nil, err
	}

	if err := s.store.MarkAccepted(ctx, tx, inv.ID, time.Now().UTC()); err != nil {
		return nil, uuid.Nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, uuid.Nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Str("invitation_id", inv.ID.String()).
		Str("user_id", account.ID.String()).
		Msg("Invitation accepted")

	return account, inv.ID, nil
}

// ResendInvitation rotates the token and expiry and resets the
// invitation to pending, even if it was previously revoked. The old
// token stops working immediately. The new token is emailed again.
func (s *Service) ResendInvitation(ctx context.Context, id uuid.UUID, ttlDays int) (*Invitation, string, error) {
	if ttlDays <= 0 {
		return nil, "", errors.New("ttl must be positive")
	}

	newExpiry := time.Now().UTC().Add(time.Duration(ttlDays) * 24 * time.Hour)

	for attempt := 0; attempt < tokenRetryLimit; attempt++ {
		token, tokenHash, err := GenerateToken()
		if err != nil {
			return nil, "", err
		}

		if err := s.store.RotateToken(ctx, id, tokenHash, newExpiry); err != nil {
			if errors.Is(err, errTokenCollision) {
				continue
			}
			return nil, "", err
		}

		inv, err := s.store.GetByID(ctx, id)
		if err != nil {
			return nil, "", err
		}

		s.mailer.SendInvitation(inv.Email, s.AcceptURL(token), inv.ExpiresAt)

		return inv, token, nil
	}

	return nil, "", fmt.Errorf("failed to resend invitation: token collision retry exhausted")
}

// RevokeInvitation expires a non-accepted invitation immediately
func (s *Service) RevokeInvitation(ctx context.Context, id uuid.UUID) (*Invitation, error) {
	return s.store.Revoke(ctx, id)
}

// ListInvitations returns a page of invitations plus the total count.
// Note: with lazy expiry, a pending page can include invitations whose
// expires_at has already passed; they still fail validate/accept.
func (s *Service) ListInvitations(ctx context.Context, status *Status, limit, offset int) ([]Invitation, int, error) {
	if status != nil && !status.IsValid() {
		return nil, 0, fmt.Errorf("invalid status filter: %s", *status)
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	return s.store.List(ctx, status, limit, offset)
}
