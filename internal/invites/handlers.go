package invites

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/atelierhq/portal/internal/apperrors"
	"github.com/atelierhq/portal/internal/audit"
	"github.com/atelierhq/portal/internal/auth"
	"github.com/atelierhq/portal/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type CreateRequest struct {
	Email   string `json:"email"`
	TTLDays int    `json:"ttl_days"`
}

type CreateResponse struct {
	Invitation *Invitation `json:"invitation"`
	Token      string      `json:"token"`
	AcceptURL  string      `json:"accept_url"`
}

type AcceptRequest struct {
	Token       string  `json:"token"`
	Password    string  `json:"password"`
	DisplayName string  `json:"display_name"`
	Company     *string `json:"company,omitempty"`
}

// HandleCreate handles POST /api/v1/invitations
func HandleCreate(svc *Service, auditor *audit.Writer, defaultTTLDays int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		issuer := auth.GetIdentity(ctx)

		var req CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		if req.TTLDays == 0 {
			req.TTLDays = defaultTTLDays
		}
		if req.TTLDays < 0 || req.TTLDays > 90 {
			apperrors.WriteValidationError(w, r, "Invalid invitation TTL", map[string]string{
				"ttl_days": "must be between 1 and 90",
			})
			return
		}

		inv, token, err := svc.CreateInvitation(ctx, req.Email, issuer.ID, req.TTLDays)
		if err != nil {
			if fields := emailFieldError(err); fields != nil {
				apperrors.WriteValidationError(w, r, "Invalid email address", fields)
				return
			}
			if errors.Is(err, ErrPendingExists) {
				apperrors.WriteConflict(w, r, "A pending invitation already exists for this email")
				return
			}
			if errors.Is(err, ErrAccountExists) {
				apperrors.WriteConflict(w, r, "An account already exists for this email")
				return
			}
			log.Error().Err(err).Msg("Failed to create invitation")
			apperrors.WriteInternalError(w, r, "Failed to create invitation")
			return
		}

		if err := auditor.LogInviteCreated(ctx, issuer.ID, inv.ID, inv.Email); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, CreateResponse{
			Invitation: inv,
			Token:      token,
			AcceptURL:  svc.AcceptURL(token),
		})
	}
}

// HandleList handles GET /api/v1/invitations
func HandleList(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var statusFilter *Status
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status := Status(raw)
			if !status.IsValid() {
				apperrors.WriteBadRequest(w, r, "Invalid status filter")
				return
			}
			statusFilter = &status
		}

		limit := parseIntParam(r, "limit", 50)
		offset := parseIntParam(r, "offset", 0)

		items, total, err := svc.ListInvitations(r.Context(), statusFilter, limit, offset)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list invitations")
			apperrors.WriteInternalError(w, r, "Failed to list invitations")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"items": items,
			"total": total,
		})
	}
}

// HandleValidate handles GET /api/v1/invitations/validate?token=...
// Read-only: lets a recipient pre-check a token before choosing a password.
func HandleValidate(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.URL.Query().Get("token"))
		if token == "" {
			apperrors.WriteBadRequest(w, r, "Invitation token is required")
			return
		}

		result, err := svc.ValidateInvitation(r.Context(), token)
		if err != nil {
			writeLifecycleError(w, r, err, "Failed to validate invitation")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, result)
	}
}

// HandleAccept handles POST /api/v1/invitations/accept
func HandleAccept(svc *Service, auditor *audit.Writer, jwtSecret string, sessionDays int, isProduction bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req AcceptRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		req.Token = strings.TrimSpace(req.Token)
		if req.Token == "" {
			apperrors.WriteBadRequest(w, r, "Invitation token is required")
			return
		}

		account, invitationID, err := svc.AcceptInvitation(ctx, AcceptParams{
			Token:       req.Token,
			Password:    req.Password,
			DisplayName: req.DisplayName,
			Company:     req.Company,
		})
		if err != nil {
			if fields := acceptFieldErrors(err); fields != nil {
				apperrors.WriteValidationError(w, r, "Invalid signup details", fields)
				return
			}
			if errors.Is(err, ErrAccountExists) {
				apperrors.WriteConflict(w, r, "An account already exists for this email")
				return
			}
			writeLifecycleError(w, r, err, "Failed to accept invitation")
			return
		}

		if err := auditor.LogInviteAccepted(ctx, account.ID, invitationID); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		// Log the new client straight in.
		sessionToken, err := auth.CreateToken(account.ID, jwtSecret, sessionDays)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create session token")
			apperrors.WriteInternalError(w, r, "Account created but session could not be started")
			return
		}
		auth.SetSessionCookie(w, sessionToken, sessionDays, isProduction)

		log.Info().
			Str("user_id", account.ID.String()).
			Str("email", account.Email).
			Msg("Client account created via invitation")

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"account": account,
		})
	}
}

// HandleResend handles POST /api/v1/invitations/{invitation_id}/resend
func HandleResend(svc *Service, auditor *audit.Writer, defaultTTLDays int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		issuer := auth.GetIdentity(ctx)

		id, err := uuid.Parse(chi.URLParam(r, "invitation_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid invitation ID")
			return
		}

		inv, token, err := svc.ResendInvitation(ctx, id, defaultTTLDays)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				apperrors.WriteNotFound(w, r, "Invitation not found")
				return
			}
			if errors.Is(err, ErrInvalidState) {
				apperrors.WriteInvalidState(w, r, "Accepted invitations cannot be resent")
				return
			}
			log.Error().Err(err).Msg("Failed to resend invitation")
			apperrors.WriteInternalError(w, r, "Failed to resend invitation")
			return
		}

		if err := auditor.LogInviteResent(ctx, issuer.ID, inv.ID); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, CreateResponse{
			Invitation: inv,
			Token:      token,
			AcceptURL:  svc.AcceptURL(token),
		})
	}
}

// HandleRevoke handles DELETE /api/v1/invitations/{invitation_id}
func HandleRevoke(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		issuer := auth.GetIdentity(ctx)

		id, err := uuid.Parse(chi.URLParam(r, "invitation_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid invitation ID")
			return
		}

		inv, err := svc.RevokeInvitation(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				apperrors.WriteNotFound(w, r, "Invitation not found")
				return
			}
			if errors.Is(err, ErrInvalidState) {
				apperrors.WriteInvalidState(w, r, "Accepted invitations cannot be revoked")
				return
			}
			log.Error().Err(err).Msg("Failed to revoke invitation")
			apperrors.WriteInternalError(w, r, "Failed to revoke invitation")
			return
		}

		if err := auditor.LogInviteRevoked(ctx, issuer.ID, inv.ID); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invitation": inv,
		})
	}
}

// writeLifecycleError maps the token lifecycle errors shared by
// validate and accept. Expired is 410, not 404, so clients can offer
// "request a new invitation" instead of "invalid link".
func writeLifecycleError(w http.ResponseWriter, r *http.Request, err error, logMsg string) {
	switch {
	case errors.Is(err, ErrNotFound):
		apperrors.WriteNotFound(w, r, "Invitation not found")
	case errors.Is(err, ErrInvalidState):
		apperrors.WriteInvalidState(w, r, "Invitation already used")
	case errors.Is(err, ErrExpired):
		apperrors.WriteGone(w, r, "Invitation expired")
	default:
		log.Error().Err(err).Msg(logMsg)
		apperrors.WriteInternalError(w, r, logMsg)
	}
}

func emailFieldError(err error) map[string]string {
	switch {
	case errors.Is(err, validation.ErrEmailRequired),
		errors.Is(err, validation.ErrEmailTooLong),
		errors.Is(err, validation.ErrEmailInvalid):
		return map[string]string{"email": err.Error()}
	}
	return nil
}

func acceptFieldErrors(err error) map[string]string {
	switch {
	case errors.Is(err, validation.ErrPasswordTooShort),
		errors.Is(err, validation.ErrPasswordTooLong):
		return map[string]string{"password": err.Error()}
	case errors.Is(err, validation.ErrDisplayNameRequired),
		errors.Is(err, validation.ErrDisplayNameTooLong):
		return map[string]string{"display_name": err.Error()}
	}
	return nil
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
