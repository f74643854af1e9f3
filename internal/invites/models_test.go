package invites

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcceptableAt_Pending(t *testing.T) {
	now := time.Now()
	inv := &Invitation{Status: StatusPending, ExpiresAt: now.Add(time.Hour)}

	require.NoError(t, inv.AcceptableAt(now))
}

func TestAcceptableAt_PendingPastExpiry(t *testing.T) {
	now := time.Now()
	inv := &Invitation{Status: StatusPending, ExpiresAt: now.Add(-time.Minute)}

	require.ErrorIs(t, inv.AcceptableAt(now), ErrExpired)
}

func TestAcceptableAt_ExpiryBoundary(t *testing.T) {
	// An invitation expiring exactly now is already expired.
	now := time.Now()
	inv := &Invitation{Status: StatusPending, ExpiresAt: now}

	require.ErrorIs(t, inv.AcceptableAt(now), ErrExpired)
}

func TestAcceptableAt_Accepted(t *testing.T) {
	now := time.Now()
	inv := &Invitation{Status: StatusAccepted, ExpiresAt: now.Add(time.Hour)}

	require.ErrorIs(t, inv.AcceptableAt(now), ErrInvalidState)
}

func TestAcceptableAt_Revoked(t *testing.T) {
	// Revocation backdates expires_at and flips the status; both paths
	// must read as expired, not invalid.
	now := time.Now()
	inv := &Invitation{Status: StatusExpired, ExpiresAt: now.Add(-time.Minute)}

	require.ErrorIs(t, inv.AcceptableAt(now), ErrExpired)
}

func TestRevocable(t *testing.T) {
	require.True(t, (&Invitation{Status: StatusPending}).Revocable())
	require.True(t, (&Invitation{Status: StatusExpired}).Revocable())
	require.False(t, (&Invitation{Status: StatusAccepted}).Revocable())
}

func TestStatusIsValid(t *testing.T) {
	require.True(t, StatusPending.IsValid())
	require.True(t, StatusAccepted.IsValid())
	require.True(t, StatusExpired.IsValid())
	require.False(t, Status("revoked").IsValid())
	require.False(t, Status("").IsValid())
}
