package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeEmail_Valid(t *testing.T) {
	got, err := NormalizeEmail("  client@example.com ")
	require.NoError(t, err)
	require.Equal(t, "client@example.com", got)
}

func TestNormalizeEmail_Empty(t *testing.T) {
	_, err := NormalizeEmail("   ")
	require.ErrorIs(t, err, ErrEmailRequired)
}

func TestNormalizeEmail_Invalid(t *testing.T) {
	for _, email := range []string{"not-an-email", "@example.com", "a b@example.com"} {
		_, err := NormalizeEmail(email)
		require.ErrorIs(t, err, ErrEmailInvalid, email)
	}
}

func TestNormalizeEmail_TooLong(t *testing.T) {
	_, err := NormalizeEmail(strings.Repeat("a", 315) + "@example.com")
	require.ErrorIs(t, err, ErrEmailTooLong)
}

func TestValidatePassword_Bounds(t *testing.T) {
	require.ErrorIs(t, ValidatePassword("short"), ErrPasswordTooShort)
	require.ErrorIs(t, ValidatePassword(strings.Repeat("x", 73)), ErrPasswordTooLong)
	require.NoError(t, ValidatePassword("8charsOK"))
	require.NoError(t, ValidatePassword(strings.Repeat("x", 72)))
}

func TestValidateDisplayName(t *testing.T) {
	require.NoError(t, ValidateDisplayName("Ada Lovelace"))
	require.ErrorIs(t, ValidateDisplayName("  "), ErrDisplayNameRequired)
	require.ErrorIs(t, ValidateDisplayName(strings.Repeat("n", 101)), ErrDisplayNameTooLong)
}
