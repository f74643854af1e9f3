package projects

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/atelierhq/portal/internal/apperrors"
	"github.com/atelierhq/portal/internal/audit"
	"github.com/atelierhq/portal/internal/auth"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type ProjectRequest struct {
	ClientUserID uuid.UUID     `json:"client_user_id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Status       ProjectStatus `json:"status"`
}

type MilestoneRequest struct {
	Title   string          `json:"title"`
	Status  MilestoneStatus `json:"status"`
	DueDate *time.Time      `json:"due_date,omitempty"`
}

// HandleCreate handles POST /api/v1/projects (OWNER only)
func HandleCreate(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		identity := auth.GetIdentity(ctx)

		var req ProjectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}
		if req.ClientUserID == uuid.Nil {
			apperrors.WriteBadRequest(w, r, "client_user_id is required")
			return
		}

		project, err := svc.Create(ctx, CreateParams{
			ClientUserID: req.ClientUserID,
			Title:        req.Title,
			Description:  req.Description,
		})
		if err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		if err := auditor.LogProjectCreated(ctx, identity.ID, project.ID, project.ClientUserID); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"project": project,
		})
	}
}

// HandleList handles GET /api/v1/projects
func HandleList(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := auth.GetIdentity(r.Context())

		items, err := svc.ListForIdentity(r.Context(), identity)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list projects")
			apperrors.WriteInternalError(w, r, "Failed to list projects")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"projects": items,
		})
	}
}

// HandleGet handles GET /api/v1/projects/{project_id}
// Includes the project's milestones.
func HandleGet(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		identity := auth.GetIdentity(ctx)

		id, err := uuid.Parse(chi.URLParam(r, "project_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid project ID")
			return
		}

		project, err := svc.GetForIdentity(ctx, identity, id)
		if err != nil {
			if errors.Is(err, ErrProjectNotFound) {
				apperrors.WriteNotFound(w, r, "Project not found")
				return
			}
			log.Error().Err(err).Msg("Failed to get project")
			apperrors.WriteInternalError(w, r, "Failed to get project")
			return
		}

		milestones, err := svc.ListMilestones(ctx, project.ID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list milestones")
			apperrors.WriteInternalError(w, r, "Failed to get project")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"project":    project,
			"milestones": milestones,
		})
	}
}

// HandleUpdate handles PUT /api/v1/projects/{project_id} (OWNER only)
func HandleUpdate(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		identity := auth.GetIdentity(ctx)

		id, err := uuid.Parse(chi.URLParam(r, "project_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid project ID")
			return
		}

		var req ProjectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		project, err := svc.Update(ctx, id, UpdateParams{
			Title:       req.Title,
			Description: req.Description,
			Status:      req.Status,
		})
		if err != nil {
			if errors.Is(err, ErrProjectNotFound) {
				apperrors.WriteNotFound(w, r, "Project not found")
				return
			}
			if errors.Is(err, ErrInvalidStatus) {
				apperrors.WriteBadRequest(w, r, "Invalid project status")
				return
			}
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		if err := auditor.LogProjectUpdated(ctx, identity.ID, project.ID); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"project": project,
		})
	}
}

// HandleCreateMilestone handles POST /api/v1/projects/{project_id}/milestones (OWNER only)
func HandleCreateMilestone(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		identity := auth.GetIdentity(ctx)

		projectID, err := uuid.Parse(chi.URLParam(r, "project_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid project ID")
			return
		}

		var req MilestoneRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		milestone, err := svc.CreateMilestone(ctx, projectID, MilestoneParams{
			Title:   req.Title,
			Status:  req.Status,
			DueDate: req.DueDate,
		})
		if err != nil {
			if errors.Is(err, ErrProjectNotFound) {
				apperrors.WriteNotFound(w, r, "Project not found")
				return
			}
			if errors.Is(err, ErrInvalidStatus) {
				apperrors.WriteBadRequest(w, r, "Invalid milestone status")
				return
			}
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		if err := auditor.LogMilestoneCreated(ctx, identity.ID, projectID, milestone.ID); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"milestone": milestone,
		})
	}
}

// HandleUpdateMilestone handles PUT /api/v1/milestones/{milestone_id} (OWNER only)
func HandleUpdateMilestone(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		identity := auth.GetIdentity(ctx)

		id, err := uuid.Parse(chi.URLParam(r, "milestone_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid milestone ID")
			return
		}

		var req MilestoneRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		milestone, err := svc.UpdateMilestone(ctx, id, MilestoneParams{
			Title:   req.Title,
			Status:  req.Status,
			DueDate: req.DueDate,
		})
		if err != nil {
			if errors.Is(err, ErrMilestoneNotFound) {
				apperrors.WriteNotFound(w, r, "Milestone not found")
				return
			}
			if errors.Is(err, ErrInvalidStatus) {
				apperrors.WriteBadRequest(w, r, "Invalid milestone status")
				return
			}
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		if err := auditor.LogMilestoneUpdated(ctx, identity.ID, milestone.ID); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"milestone": milestone,
		})
	}
}
