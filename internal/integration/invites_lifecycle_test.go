package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/atelierhq/portal/internal/accounts"
	"github.com/atelierhq/portal/internal/auth"
	"github.com/atelierhq/portal/internal/invites"
	"github.com/atelierhq/portal/internal/mailer"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

func newInviteService(pool *pgxpool.Pool) (*invites.Service, *accounts.Service) {
	accountsSvc := accounts.NewService(pool)
	store := invites.NewStore(pool)
	svc := invites.NewService(pool, store, accountsSvc, mailer.NewClient("", 2000), "http://localhost")
	return svc, accountsSvc
}

func seedOwner(t *testing.T, accountsSvc *accounts.Service) *accounts.Account {
	t.Helper()

	hash, err := auth.HashPassword("owner-password")
	require.NoError(t, err)

	owner, err := accountsSvc.Create(context.Background(), accounts.NewAccount{
		Email:        "owner+" + randomHex(t, 4) + "@example.com",
		PasswordHash: hash,
		Role:         accounts.RoleOwner,
		DisplayName:  "Studio Owner",
	})
	require.NoError(t, err)

	return owner
}

func TestInvitation_CreateAndValidate(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	svc, accountsSvc := newInviteService(pool)
	owner := seedOwner(t, accountsSvc)
	ctx := context.Background()

	inv, token, err := svc.CreateInvitation(ctx, "client@example.com", owner.ID, 7)
	require.NoError(t, err)
	require.Equal(t, invites.StatusPending, inv.Status)
	require.Equal(t, "client@example.com", inv.Email)
	require.True(t, invites.ValidateTokenFormat(token))

	result, err := svc.ValidateInvitation(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "client@example.com", result.Email)
	require.WithinDuration(t, inv.ExpiresAt, result.ExpiresAt, time.Second)

	// Validation is read-only: the invitation stays pending.
	again, err := svc.ValidateInvitation(ctx, token)
	require.NoError(t, err)
	require.Equal(t, result.Email, again.Email)
}

func TestInvitation_ValidateUnknownToken(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	svc, _ := newInviteService(pool)

	unknown, _, err := invites.GenerateToken()
	require.NoError(t, err)

	_, err = svc.ValidateInvitation(context.Background(), unknown)
	require.ErrorIs(t, err, invites.ErrNotFound)

	_, err = svc.ValidateInvitation(context.Background(), "garbage")
	require.ErrorIs(t, err, invites.ErrNotFound)
}

func TestInvitation_DuplicatePendingEmail(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	svc, accountsSvc := newInviteService(pool)
	owner := seedOwner(t, accountsSvc)
	ctx := context.Background()

	_, _, err := svc.CreateInvitation(ctx, "dup@example.com", owner.ID, 7)
	require.NoError(t, err)

	_, _, err = svc.CreateInvitation(ctx, "dup@example.com", owner.ID, 7)
	require.ErrorIs(t, err, invites.ErrPendingExists)

	// Email comparison is case-insensitive.
	_, _, err = svc.CreateInvitation(ctx, "DUP@example.com", owner.ID, 7)
	require.ErrorIs(t, err, invites.ErrPendingExists)
}

func TestInvitation_CreateForExistingAccount(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	svc, accountsSvc := newInviteService(pool)
	owner := seedOwner(t, accountsSvc)

	_, _, err := svc.CreateInvitation(context.Background(), owner.Email, owner.ID, 7)
	require.ErrorIs(t, err, invites.ErrAccountExists)
}

func TestInvitation_Accept(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	svc, accountsSvc := newInviteService(pool)
	owner := seedOwner(t, accountsSvc)
	ctx := context.Background()

	inv, token, err := svc.CreateInvitation(ctx, "new-client@example.com", owner.ID, 7)
	require.NoError(t, err)

	company := "Example Co"
	account, invitationID, err := svc.AcceptInvitation(ctx, invites.AcceptParams{
		Token:       token,
		Password:    "client-password",
		DisplayName: "New Client",
		Company:     &company,
	})
	require.NoError(t, err)
	require.Equal(t, inv.ID, invitationID)
	require.Equal(t, accounts.RoleClient, account.Role)
	require.Equal(t, "new-client@example.com", account.Email)
	require.NotNil(t, account.Company)
	require.Equal(t, company, *account.Company)

	// The new credentials log in.
	userID, passwordHash, err := accountsSvc.GetCredentials(ctx, "new-client@example.com")
	require.NoError(t, err)
	require.Equal(t, account.ID, userID)
	require.NoError(t, auth.VerifyPassword(passwordHash, "client-password"))

	// Second redemption of the same token fails.
	_, _, err = svc.AcceptInvitation(ctx, invites.AcceptParams{
		Token:       token,
		Password:    "client-password",
		DisplayName: "New Client",
	})
	require.ErrorIs(t, err, invites.ErrInvalidState)

	// And so does validation.
	_, err = svc.ValidateInvitation(ctx, token)
	require.ErrorIs(t, err, invites.ErrInvalidState)
}

func TestInvitation_AcceptConcurrent(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	svc, accountsSvc := newInviteService(pool)
	owner := seedOwner(t, accountsSvc)
	ctx := context.Background()

	_, token, err := svc.CreateInvitation(ctx, "race@example.com", owner.ID, 7)
	require.NoError(t, err)

	const racers = 4
	errs := make([]error, racers)

	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = svc.AcceptInvitation(ctx, invites.AcceptParams{
				Token:       token,
				Password:    "client-password",
				DisplayName: "Racing Client",
			})
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		require.True(t,
			errors.Is(err, invites.ErrInvalidState) || errors.Is(err, invites.ErrAccountExists),
			"unexpected error: %v", err)
	}
	require.Equal(t, 1, successes, "exactly one concurrent accept must win")

	// Exactly one account was provisioned.
	var count int
	err = pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE email = 'race@example.com'`).Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestInvitation_ExpiredByClock(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	svc, accountsSvc := newInviteService(pool)
	owner := seedOwner(t, accountsSvc)
	ctx := context.Background()

	inv, token, err := svc.CreateInvitation(ctx, "late@example.com", owner.ID, 7)
	require.NoError(t, err)

	// Backdate the expiry; there is no background sweep, the check is lazy.
	_, err = pool.Exec(ctx, `UPDATE invitations SET expires_at = NOW() - INTERVAL '1 hour' WHERE id = $1`, inv.ID)
	require.NoError(t, err)

	_, err = svc.ValidateInvitation(ctx, token)
	require.ErrorIs(t, err, invites.ErrExpired)

	_, _, err = svc.AcceptInvitation(ctx, invites.AcceptParams{
		Token:       token,
		Password:    "client-password",
		DisplayName: "Late Client",
	})
	require.ErrorIs(t, err, invites.ErrExpired)

	// The stored status is still pending; only reads treat it as expired.
	var status string
	err = pool.QueryRow(ctx, `SELECT status FROM invitations WHERE id = $1`, inv.ID).Scan(&status)
	require.NoError(t, err)
	require.Equal(t, "pending", status)
}

func TestInvitation_Revoke(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	svc, accountsSvc := newInviteService(pool)
	owner := seedOwner(t, accountsSvc)
	ctx := context.Background()

	inv, token, err := svc.CreateInvitation(ctx, "revoked@example.com", owner.ID, 7)
	require.NoError(t, err)

	revoked, err := svc.RevokeInvitation(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, invites.StatusExpired, revoked.Status)

	// A revoked token reads as expired, not merely invalid.
	_, err = svc.ValidateInvitation(ctx, token)
	require.ErrorIs(t, err, invites.ErrExpired)

	_, _, err = svc.AcceptInvitation(ctx, invites.AcceptParams{
		Token:       token,
		Password:    "client-password",
		DisplayName: "Revoked Client",
	})
	require.ErrorIs(t, err, invites.ErrExpired)
}

func TestInvitation_RevokeAccepted(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	svc, accountsSvc := newInviteService(pool)
	owner := seedOwner(t, accountsSvc)
	ctx := context.Background()

	inv, token, err := svc.CreateInvitation(ctx, "done@example.com", owner.ID, 7)
	require.NoError(t, err)

	_, _, err = svc.AcceptInvitation(ctx, invites.AcceptParams{
		Token:       token,
		Password:    "client-password",
		DisplayName: "Done Client",
	})
	require.NoError(t, err)

	_, err = svc.RevokeInvitation(ctx, inv.ID)
	require.ErrorIs(t, err, invites.ErrInvalidState)
}

func TestInvitation_RevokeUnknown(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	svc, _ := newInviteService(pool)

	_, err := svc.RevokeInvitation(context.Background(), uuid.New())
	require.ErrorIs(t, err, invites.ErrNotFound)
}

func TestInvitation_ResendRotatesToken(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	svc, accountsSvc := newInviteService(pool)
	owner := seedOwner(t, accountsSvc)
	ctx := context.Background()

	inv, oldToken, err := svc.CreateInvitation(ctx, "resend@example.com", owner.ID, 7)
	require.NoError(t, err)

	resent, newToken, err := svc.ResendInvitation(ctx, inv.ID, 7)
	require.NoError(t, err)
	require.Equal(t, inv.ID, resent.ID)
	require.Equal(t, invites.StatusPending, resent.Status)
	require.NotEqual(t, oldToken, newToken)

	// The old token stops working immediately.
	_, err = svc.ValidateInvitation(ctx, oldToken)
	require.ErrorIs(t, err, invites.ErrNotFound)

	_, err = svc.ValidateInvitation(ctx, newToken)
	require.NoError(t, err)
}

func TestInvitation_ResendRevivesRevoked(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	svc, accountsSvc := newInviteService(pool)
	owner := seedOwner(t, accountsSvc)
	ctx := context.Background()

	inv, _, err := svc.CreateInvitation(ctx, "revive@example.com", owner.ID, 7)
	require.NoError(t, err)

	_, err = svc.RevokeInvitation(ctx, inv.ID)
	require.NoError(t, err)

	resent, newToken, err := svc.ResendInvitation(ctx, inv.ID, 7)
	require.NoError(t, err)
	require.Equal(t, invites.StatusPending, resent.Status)
	require.True(t, resent.ExpiresAt.After(time.Now()))

	_, err = svc.ValidateInvitation(ctx, newToken)
	require.NoError(t, err)
}

func TestInvitation_ResendAccepted(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	svc, accountsSvc := newInviteService(pool)
	owner := seedOwner(t, accountsSvc)
	ctx := context.Background()

	inv, token, err := svc.CreateInvitation(ctx, "sealed@example.com", owner.ID, 7)
	require.NoError(t, err)

	_, _, err = svc.AcceptInvitation(ctx, invites.AcceptParams{
		Token:       token,
		Password:    "client-password",
		DisplayName: "Sealed Client",
	})
	require.NoError(t, err)

	_, _, err = svc.ResendInvitation(ctx, inv.ID, 7)
	require.ErrorIs(t, err, invites.ErrInvalidState)
}

func TestInvitation_List(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	svc, accountsSvc := newInviteService(pool)
	owner := seedOwner(t, accountsSvc)
	ctx := context.Background()

	first, _, err := svc.CreateInvitation(ctx, "list-a@example.com", owner.ID, 7)
	require.NoError(t, err)
	_, _, err = svc.CreateInvitation(ctx, "list-b@example.com", owner.ID, 7)
	require.NoError(t, err)

	_, err = svc.RevokeInvitation(ctx, first.ID)
	require.NoError(t, err)

	all, total, err := svc.ListInvitations(ctx, nil, 50, 0)
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, all, 2)

	pending := invites.StatusPending
	onlyPending, total, err := svc.ListInvitations(ctx, &pending, 50, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, onlyPending, 1)
	require.Equal(t, "list-b@example.com", onlyPending[0].Email)
}
