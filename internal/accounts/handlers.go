package accounts

import (
	"net/http"

	"github.com/atelierhq/portal/internal/apperrors"
	"github.com/rs/zerolog/log"
)

// HandleListClients handles GET /api/v1/clients (OWNER only)
func HandleListClients(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clients, err := svc.ListClients(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("Failed to list clients")
			apperrors.WriteInternalError(w, r, "Failed to list clients")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"clients": clients,
		})
	}
}
