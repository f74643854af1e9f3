package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/atelierhq/portal/internal/accounts"
	"github.com/atelierhq/portal/internal/apperrors"
	"github.com/atelierhq/portal/internal/audit"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// LoginResponse represents the login response
type LoginResponse struct {
	UserID      uuid.UUID     `json:"user_id"`
	Email       string        `json:"email"`
	Role        accounts.Role `json:"role"`
	DisplayName string        `json:"display_name"`
	CSRFToken   string        `json:"csrf_token"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin processes user authentication
func HandleLogin(svc *accounts.Service, auditor *audit.Writer, jwtSecret string, sessionDays int, isProduction bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		email := strings.TrimSpace(req.Email)
		password := req.Password

		if email == "" || password == "" {
			apperrors.WriteUnauthorized(w, r, "Invalid credentials")
			return
		}

		userID, passwordHash, err := svc.GetCredentials(r.Context(), email)
		if err != nil {
			if errors.Is(err, accounts.ErrNotFound) {
				// Generic error; do not reveal whether the email exists.
				log.Debug().Str("email", email).Msg("Login failed: account not found")
				if err := auditor.LogLoginFailed(r.Context(), email, r.RemoteAddr); err != nil {
					log.Error().Err(err).Msg("Failed to log audit event")
				}
				apperrors.WriteUnauthorized(w, r, "Invalid credentials")
				return
			}
			log.Error().Err(err).Str("email", email).Msg("Failed to query account")
			apperrors.WriteInternalError(w, r, "Login failed")
			return
		}

		if err := VerifyPassword(passwordHash, password); err != nil {
			log.Debug().Str("email", email).Msg("Login failed: wrong password")
			if err := auditor.LogLoginFailed(r.Context(), email, r.RemoteAddr); err != nil {
				log.Error().Err(err).Msg("Failed to log audit event")
			}
			apperrors.WriteUnauthorized(w, r, "Invalid credentials")
			return
		}

		account, err := svc.GetByID(r.Context(), userID)
		if err != nil {
			log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to load account")
			apperrors.WriteInternalError(w, r, "Login failed")
			return
		}

		token, err := CreateToken(userID, jwtSecret, sessionDays)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create token")
			apperrors.WriteInternalError(w, r, "Failed to create session")
			return
		}

		SetSessionCookie(w, token, sessionDays, isProduction)

		// Rotate the CSRF token on login.
		csrfToken, err := IssueCSRF(w, isProduction)
		if err != nil {
			log.Error().Err(err).Msg("Failed to issue CSRF token")
			apperrors.WriteInternalError(w, r, "Failed to create session")
			return
		}

		log.Info().
			Str("user_id", userID.String()).
			Str("email", account.Email).
			Msg("User logged in successfully")

		apperrors.WriteSuccess(w, r, http.StatusOK, LoginResponse{
			UserID:      account.ID,
			Email:       account.Email,
			Role:        account.Role,
			DisplayName: account.DisplayName,
			CSRFToken:   csrfToken,
		})
	}
}

// HandleLogout processes user logout
func HandleLogout(w http.ResponseWriter, r *http.Request) {
	ClearSessionCookie(w)

	userID := GetUserID(r.Context())
	if userID != uuid.Nil {
		log.Info().Str("user_id", userID.String()).Msg("User logged out")
	}

	apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
		"logged_out": true,
	})
}

// HandleMe returns the authenticated caller's account
func HandleMe(svc *accounts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, err := svc.GetByID(r.Context(), GetUserID(r.Context()))
		if err != nil {
			if errors.Is(err, accounts.ErrNotFound) {
				apperrors.WriteUnauthorized(w, r, "Authentication required")
				return
			}
			log.Error().Err(err).Msg("Failed to load account")
			apperrors.WriteInternalError(w, r, "Failed to load account")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"account": account,
		})
	}
}

// HandleCSRF issues a fresh CSRF token (hash in cookie, plaintext in
// header and body) so clients can prime the guard before mutating calls.
func HandleCSRF(isProduction bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := IssueCSRF(w, isProduction)
		if err != nil {
			log.Error().Err(err).Msg("Failed to issue CSRF token")
			apperrors.WriteInternalError(w, r, "Failed to issue CSRF token")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"csrf_token": token,
		})
	}
}
