package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/atelierhq/portal/internal/accounts"
	"github.com/atelierhq/portal/internal/apperrors"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	userIDContextKey   contextKey = "user_id"
	identityContextKey contextKey = "identity"
)

// SessionMiddleware validates the session cookie and injects the user ID
// into context. Resolution happens exactly once per request here; all
// downstream checks read the context instead of re-parsing the credential.
// If the session is invalid, the cookie is cleared and the request
// continues unauthenticated.
func SessionMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := GetSessionCookie(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := ValidateToken(token, secret)
			if err != nil {
				log.Debug().Err(err).Msg("Invalid session token")
				ClearSessionCookie(w)
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), userIDContextKey, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth is middleware that requires an authenticated session.
// Returns 401 if the caller presented no valid credential.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserID(r.Context()) == uuid.Nil {
			apperrors.WriteUnauthorized(w, r, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireOwner resolves the caller's full identity (role included) and
// rejects anyone who is not the OWNER. 401 and 403 are kept distinct:
// missing credential is unauthorized, wrong role is forbidden.
// The resolved identity is cached in context for handlers.
func RequireOwner(svc *accounts.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := resolveIdentity(r, svc)
			if err != nil {
				apperrors.WriteUnauthorized(w, r, "Authentication required")
				return
			}

			if err := accounts.RequireRole(identity.Role, accounts.RoleOwner); err != nil {
				log.Warn().
					Str("user_id", identity.ID.String()).
					Str("role", string(identity.Role)).
					Str("path", r.URL.Path).
					Msg("RBAC: insufficient role")
				apperrors.WriteForbidden(w, r, "Insufficient permissions")
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireIdentity resolves the caller's full identity regardless of role.
// Used on routes both roles may reach, where handlers branch on the role.
func RequireIdentity(svc *accounts.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := resolveIdentity(r, svc)
			if err != nil {
				apperrors.WriteUnauthorized(w, r, "Authentication required")
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func resolveIdentity(r *http.Request, svc *accounts.Service) (*accounts.Account, error) {
	userID := GetUserID(r.Context())
	if userID == uuid.Nil {
		return nil, errors.New("no authenticated session")
	}

	account, err := svc.GetByID(r.Context(), userID)
	if err != nil {
		// A valid token for a deleted account still fails closed.
		return nil, err
	}

	return account, nil
}

// GetUserID retrieves the user ID from the request context
// Returns uuid.Nil if no user is authenticated
func GetUserID(ctx context.Context) uuid.UUID {
	userID, ok := ctx.Value(userIDContextKey).(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return userID
}

// GetIdentity retrieves the resolved account from the request context.
// Only set on routes behind RequireOwner or RequireIdentity.
func GetIdentity(ctx context.Context) *accounts.Account {
	identity, ok := ctx.Value(identityContextKey).(*accounts.Account)
	if !ok {
		return nil
	}
	return identity
}
