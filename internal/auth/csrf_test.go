package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIssueCSRFToken_AndValidate(t *testing.T) {
	plain, hash, err := IssueCSRFToken()
	require.NoError(t, err)
	require.NotEmpty(t, plain)
	require.Equal(t, HashCSRFToken(plain), hash)

	require.True(t, ValidateCSRFRequest(http.MethodPost, plain, hash))
}

func TestValidateCSRFRequest_ReadOnlyMethodsBypass(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		require.True(t, ValidateCSRFRequest(method, "", ""), method)
	}
}

func TestValidateCSRFRequest_TokenWithoutHash(t *testing.T) {
	plain, _, err := IssueCSRFToken()
	require.NoError(t, err)

	require.False(t, ValidateCSRFRequest(http.MethodPost, plain, ""))
}

func TestValidateCSRFRequest_HashWithMismatchedToken(t *testing.T) {
	_, hash, err := IssueCSRFToken()
	require.NoError(t, err)

	otherPlain, _, err := IssueCSRFToken()
	require.NoError(t, err)

	require.False(t, ValidateCSRFRequest(http.MethodPost, otherPlain, hash))
}

func TestValidateCSRFRequest_HashSubmittedAsToken(t *testing.T) {
	// An attacker who reads the cookie only learns the hash.
	// Echoing the hash back as the token must not validate.
	_, hash, err := IssueCSRFToken()
	require.NoError(t, err)

	require.False(t, ValidateCSRFRequest(http.MethodDelete, hash, hash))
}

func TestIssueCSRF_RoundTrip(t *testing.T) {
	rec := httptest.NewRecorder()

	plain, err := IssueCSRF(rec, false)
	require.NoError(t, err)
	require.Equal(t, plain, rec.Header().Get(CSRFHeaderName))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, CSRFCookieName, cookies[0].Name)
	require.Equal(t, HashCSRFToken(plain), cookies[0].Value)
	require.False(t, cookies[0].HttpOnly)

	// Simulate the browser echoing both halves back.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invitations", nil)
	req.AddCookie(cookies[0])
	req.Header.Set(CSRFHeaderName, plain)

	require.NoError(t, ValidateCSRF(req))
}

func TestValidateCSRF_MissingCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invitations", nil)
	req.Header.Set(CSRFHeaderName, "some-token")

	require.Error(t, ValidateCSRF(req))
}

func TestValidateCSRF_MissingHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invitations", nil)
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: HashCSRFToken("tok")})

	require.Error(t, ValidateCSRF(req))
}
