package accounts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequireRole_Match(t *testing.T) {
	require.NoError(t, RequireRole(RoleOwner, RoleOwner))
	require.NoError(t, RequireRole(RoleClient, RoleClient))
}

func TestRequireRole_Mismatch(t *testing.T) {
	require.ErrorIs(t, RequireRole(RoleClient, RoleOwner), ErrForbidden)
	require.ErrorIs(t, RequireRole(RoleOwner, RoleClient), ErrForbidden)
}

func TestRequireRole_Idempotent(t *testing.T) {
	// Checking twice must behave exactly like checking once.
	for i := 0; i < 2; i++ {
		require.NoError(t, RequireRole(RoleOwner, RoleOwner))
		require.ErrorIs(t, RequireRole(RoleClient, RoleOwner), ErrForbidden)
	}
}

func TestRoleIsValid(t *testing.T) {
	require.True(t, RoleOwner.IsValid())
	require.True(t, RoleClient.IsValid())
	require.False(t, Role("ADMIN").IsValid())
	require.False(t, Role("").IsValid())
}
