package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"github.com/atelierhq/portal/internal/accounts"
	"github.com/atelierhq/portal/internal/app"
	"github.com/atelierhq/portal/internal/auth"
	"github.com/atelierhq/portal/internal/config"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

type envelopeResponse struct {
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Code      string            `json:"code"`
		Message   string            `json:"message"`
		RequestID string            `json:"request_id"`
		Fields    map[string]string `json:"fields"`
	} `json:"error"`
}

func testConfig() *config.Config {
	return &config.Config{
		Env:           "dev",
		HTTPAddr:      ":0",
		BaseURL:       "http://localhost",
		DBDSN:         "unused",
		JWTSecret:     "test-secret",
		LogLevel:      "error",
		SessionDays:   7,
		InviteTTLDays: 7,
		LoginRateRPM:  120,
		AcceptRateRPM: 120,
		RetentionDays: 365,
		MailTimeoutMS: 2000,
	}
}

func TestE2E_InvitationLifecycleOverHTTP(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	accountsSvc := accounts.NewService(pool)
	owner := seedOwner(t, accountsSvc)

	srv := httptest.NewServer(app.NewRouter(pool, testConfig()))
	t.Cleanup(srv.Close)

	ownerClient := newSessionClient(t)
	ownerCSRF := primeCSRF(t, ownerClient, srv.URL)
	ownerCSRF = login(t, ownerClient, srv.URL, ownerCSRF, owner.Email, "owner-password")

	// Owner creates an invitation.
	inviteeEmail := "invitee@example.com"
	createResp := doJSONExpectSuccess(t, ownerClient, http.MethodPost, srv.URL+"/api/v1/invitations/", ownerCSRF, http.StatusCreated, map[string]any{
		"email": inviteeEmail,
	})

	var created struct {
		Invitation struct {
			ID     uuid.UUID `json:"id"`
			Status string    `json:"status"`
		} `json:"invitation"`
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(createResp.Data, &created))
	require.Equal(t, "pending", created.Invitation.Status)
	require.NotEmpty(t, created.Token)

	// Duplicate create conflicts.
	dupErr := doJSONExpectError(t, ownerClient, http.MethodPost, srv.URL+"/api/v1/invitations/", ownerCSRF, http.StatusConflict, map[string]any{
		"email": inviteeEmail,
	})
	require.Equal(t, "conflict", dupErr.Error.Code)

	// The recipient pre-checks the token without a session.
	inviteeClient := newSessionClient(t)
	inviteeCSRF := primeCSRF(t, inviteeClient, srv.URL)

	validateResp := getExpectSuccess(t, inviteeClient, srv.URL+"/api/v1/invitations/validate?token="+created.Token)
	var validated struct {
		Email string `json:"email"`
	}
	require.NoError(t, json.Unmarshal(validateResp.Data, &validated))
	require.Equal(t, inviteeEmail, validated.Email)

	// The recipient accepts and gets a session in one step.
	acceptResp := doJSONExpectSuccess(t, inviteeClient, http.MethodPost, srv.URL+"/api/v1/invitations/accept", inviteeCSRF, http.StatusCreated, map[string]any{
		"token":        created.Token,
		"password":     "invitee-password",
		"display_name": "Invited Client",
	})

	var accepted struct {
		Account struct {
			ID   uuid.UUID `json:"id"`
			Role string    `json:"role"`
		} `json:"account"`
	}
	require.NoError(t, json.Unmarshal(acceptResp.Data, &accepted))
	require.Equal(t, "CLIENT", accepted.Account.Role)

	meResp := getExpectSuccess(t, inviteeClient, srv.URL+"/api/v1/auth/me")
	var me struct {
		Account struct {
			Email string `json:"email"`
		} `json:"account"`
	}
	require.NoError(t, json.Unmarshal(meResp.Data, &me))
	require.Equal(t, inviteeEmail, me.Account.Email)

	// A second redemption of the same token is rejected.
	reuseErr := doJSONExpectError(t, inviteeClient, http.MethodPost, srv.URL+"/api/v1/invitations/accept", inviteeCSRF, http.StatusBadRequest, map[string]any{
		"token":        created.Token,
		"password":     "invitee-password",
		"display_name": "Invited Client",
	})
	require.Equal(t, "invalid_state", reuseErr.Error.Code)

	// The owner sees the accepted invitation and the new client.
	listResp := getExpectSuccess(t, ownerClient, srv.URL+"/api/v1/invitations/?status=accepted")
	var listed struct {
		Items []struct {
			ID     uuid.UUID `json:"id"`
			Status string    `json:"status"`
		} `json:"items"`
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(listResp.Data, &listed))
	require.Equal(t, 1, listed.Total)
	require.Equal(t, created.Invitation.ID, listed.Items[0].ID)

	clientsResp := getExpectSuccess(t, ownerClient, srv.URL+"/api/v1/clients/")
	var clients struct {
		Clients []struct {
			Email string `json:"email"`
		} `json:"clients"`
	}
	require.NoError(t, json.Unmarshal(clientsResp.Data, &clients))
	require.Len(t, clients.Clients, 1)
	require.Equal(t, inviteeEmail, clients.Clients[0].Email)

	// The audit trail recorded the lifecycle.
	requireAuditActions(t, pool, "invite.created", "invite.accepted")
}

func TestE2E_RevokeAndResendOverHTTP(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	accountsSvc := accounts.NewService(pool)
	owner := seedOwner(t, accountsSvc)

	srv := httptest.NewServer(app.NewRouter(pool, testConfig()))
	t.Cleanup(srv.Close)

	ownerClient := newSessionClient(t)
	ownerCSRF := primeCSRF(t, ownerClient, srv.URL)
	ownerCSRF = login(t, ownerClient, srv.URL, ownerCSRF, owner.Email, "owner-password")

	createResp := doJSONExpectSuccess(t, ownerClient, http.MethodPost, srv.URL+"/api/v1/invitations/", ownerCSRF, http.StatusCreated, map[string]any{
		"email": "revocable@example.com",
	})
	var created struct {
		Invitation struct {
			ID uuid.UUID `json:"id"`
		} `json:"invitation"`
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(createResp.Data, &created))

	doJSONExpectSuccess(t, ownerClient, http.MethodDelete, srv.URL+"/api/v1/invitations/"+created.Invitation.ID.String(), ownerCSRF, http.StatusOK, nil)

	// A revoked token is gone, not invalid.
	anon := newSessionClient(t)
	goneErr := getExpectError(t, anon, srv.URL+"/api/v1/invitations/validate?token="+created.Token, http.StatusGone)
	require.Equal(t, "expired", goneErr.Error.Code)

	// Resend revives the invitation with a fresh token.
	resendResp := doJSONExpectSuccess(t, ownerClient, http.MethodPost, srv.URL+"/api/v1/invitations/"+created.Invitation.ID.String()+"/resend", ownerCSRF, http.StatusOK, nil)
	var resent struct {
		Invitation struct {
			Status string `json:"status"`
		} `json:"invitation"`
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(resendResp.Data, &resent))
	require.Equal(t, "pending", resent.Invitation.Status)
	require.NotEqual(t, created.Token, resent.Token)

	getExpectSuccess(t, anon, srv.URL+"/api/v1/invitations/validate?token="+resent.Token)

	requireAuditActions(t, pool, "invite.created", "invite.revoked", "invite.resent")
}

func TestE2E_AuthorizationGates(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	accountsSvc := accounts.NewService(pool)
	owner := seedOwner(t, accountsSvc)

	clientHash, err := auth.HashPassword("client-password")
	require.NoError(t, err)
	_, err = accountsSvc.Create(context.Background(), accounts.NewAccount{
		Email:        "plain-client@example.com",
		PasswordHash: clientHash,
		Role:         accounts.RoleClient,
		DisplayName:  "Plain Client",
	})
	require.NoError(t, err)

	srv := httptest.NewServer(app.NewRouter(pool, testConfig()))
	t.Cleanup(srv.Close)

	// Unauthenticated caller gets 401.
	anon := newSessionClient(t)
	anonCSRF := primeCSRF(t, anon, srv.URL)
	unauthorized := doJSONExpectError(t, anon, http.MethodPost, srv.URL+"/api/v1/invitations/", anonCSRF, http.StatusUnauthorized, map[string]any{
		"email": "x@example.com",
	})
	require.Equal(t, "unauthorized", unauthorized.Error.Code)

	// Authenticated CLIENT gets 403, not 401.
	clientClient := newSessionClient(t)
	clientCSRF := primeCSRF(t, clientClient, srv.URL)
	clientCSRF = login(t, clientClient, srv.URL, clientCSRF, "plain-client@example.com", "client-password")

	forbidden := doJSONExpectError(t, clientClient, http.MethodPost, srv.URL+"/api/v1/invitations/", clientCSRF, http.StatusForbidden, map[string]any{
		"email": "x@example.com",
	})
	require.Equal(t, "forbidden", forbidden.Error.Code)

	forbiddenList := getExpectError(t, clientClient, srv.URL+"/api/v1/clients/", http.StatusForbidden)
	require.Equal(t, "forbidden", forbiddenList.Error.Code)

	// Owner login with a wrong password stays generic.
	badLogin := newSessionClient(t)
	badCSRF := primeCSRF(t, badLogin, srv.URL)
	loginErr := doJSONExpectError(t, badLogin, http.MethodPost, srv.URL+"/api/v1/auth/login", badCSRF, http.StatusUnauthorized, map[string]any{
		"email":    owner.Email,
		"password": "wrong-password",
	})
	require.Equal(t, "unauthorized", loginErr.Error.Code)
	require.Equal(t, "Invalid credentials", loginErr.Error.Message)

	requireAuditActions(t, pool, "auth.login_failed")
}

func TestE2E_CSRFGuard(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	accountsSvc := accounts.NewService(pool)
	owner := seedOwner(t, accountsSvc)

	srv := httptest.NewServer(app.NewRouter(pool, testConfig()))
	t.Cleanup(srv.Close)

	// A mutating request without the CSRF pair is rejected even with
	// valid credentials in the body.
	bare := newSessionClient(t)
	resp := doJSONExpectError(t, bare, http.MethodPost, srv.URL+"/api/v1/auth/login", "", http.StatusForbidden, map[string]any{
		"email":    owner.Email,
		"password": "owner-password",
	})
	require.Equal(t, "forbidden", resp.Error.Code)

	// The cookie alone is not enough; the header must carry the matching
	// plaintext, and the hash from the cookie does not qualify.
	primed := newSessionClient(t)
	primeCSRF(t, primed, srv.URL)
	mismatch := doJSONExpectError(t, primed, http.MethodPost, srv.URL+"/api/v1/auth/login", "not-the-token", http.StatusForbidden, map[string]any{
		"email":    owner.Email,
		"password": "owner-password",
	})
	require.Equal(t, "forbidden", mismatch.Error.Code)

	// Read-only requests pass without any CSRF material.
	getExpectError(t, bare, srv.URL+"/api/v1/invitations/validate?token=inv_missing", http.StatusNotFound)
}

func newSessionClient(t *testing.T) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

// primeCSRF fetches a fresh CSRF token; the hash cookie lands in the
// client's jar and the plaintext comes back for the caller to echo.
func primeCSRF(t *testing.T, client *http.Client, baseURL string) string {
	t.Helper()

	resp := getExpectSuccess(t, client, baseURL+"/api/v1/auth/csrf")

	var parsed struct {
		CSRFToken string `json:"csrf_token"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &parsed))
	require.NotEmpty(t, parsed.CSRFToken)

	return parsed.CSRFToken
}

// login authenticates and returns the rotated CSRF token.
func login(t *testing.T, client *http.Client, baseURL, csrfToken, email, password string) string {
	t.Helper()

	resp := doJSONExpectSuccess(t, client, http.MethodPost, baseURL+"/api/v1/auth/login", csrfToken, http.StatusOK, map[string]any{
		"email":    email,
		"password": password,
	})

	var parsed struct {
		CSRFToken string `json:"csrf_token"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &parsed))
	require.NotEmpty(t, parsed.CSRFToken)

	return parsed.CSRFToken
}

func requireAuditActions(t *testing.T, pool *pgxpool.Pool, actions ...string) {
	t.Helper()

	rows, err := pool.Query(context.Background(), `SELECT DISTINCT action FROM audit_log`)
	require.NoError(t, err)
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		var action string
		require.NoError(t, rows.Scan(&action))
		seen[action] = true
	}
	require.NoError(t, rows.Err())

	for _, action := range actions {
		require.True(t, seen[action], "missing audit action %s", action)
	}
}

func getExpectSuccess(t *testing.T, client *http.Client, urlStr string) envelopeResponse {
	t.Helper()

	resp, err := client.Get(urlStr)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", string(body))

	var env envelopeResponse
	require.NoError(t, json.Unmarshal(body, &env))
	require.NotEmpty(t, env.RequestID)

	return env
}

func getExpectError(t *testing.T, client *http.Client, urlStr string, wantStatus int) errorEnvelope {
	t.Helper()

	resp, err := client.Get(urlStr)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, wantStatus, resp.StatusCode, "body: %s", string(body))

	var env errorEnvelope
	require.NoError(t, json.Unmarshal(body, &env))
	require.NotEmpty(t, env.Error.RequestID)

	return env
}

func doJSONExpectSuccess(t *testing.T, client *http.Client, method, urlStr, csrfToken string, wantStatus int, payload any) envelopeResponse {
	t.Helper()

	respBody := doJSONExpectStatus(t, client, method, urlStr, csrfToken, wantStatus, payload)

	var env envelopeResponse
	require.NoError(t, json.Unmarshal(respBody, &env))
	require.NotEmpty(t, env.RequestID)

	return env
}

func doJSONExpectError(t *testing.T, client *http.Client, method, urlStr, csrfToken string, wantStatus int, payload any) errorEnvelope {
	t.Helper()

	respBody := doJSONExpectStatus(t, client, method, urlStr, csrfToken, wantStatus, payload)

	var env errorEnvelope
	require.NoError(t, json.Unmarshal(respBody, &env))
	require.NotEmpty(t, env.Error.RequestID)

	return env
}

func doJSONExpectStatus(t *testing.T, client *http.Client, method, urlStr, csrfToken string, wantStatus int, payload any) []byte {
	t.Helper()

	var bodyReader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, urlStr, bodyReader)
	require.NoError(t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if csrfToken != "" {
		req.Header.Set(auth.CSRFHeaderName, csrfToken)
	}

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, wantStatus, resp.StatusCode, "body: %s", string(body))

	return body
}
