package app

import (
	"net/http"

	"github.com/atelierhq/portal/internal/accounts"
	"github.com/atelierhq/portal/internal/apperrors"
	"github.com/atelierhq/portal/internal/audit"
	"github.com/atelierhq/portal/internal/auth"
	"github.com/atelierhq/portal/internal/config"
	"github.com/atelierhq/portal/internal/invites"
	"github.com/atelierhq/portal/internal/mailer"
	"github.com/atelierhq/portal/internal/projects"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(pool *pgxpool.Pool, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	isProduction := !cfg.IsDev()

	// Shared services
	accountsSvc := accounts.NewService(pool)
	auditor := audit.NewWriter(pool)
	mail := mailer.NewClient(cfg.MailWebhookURL, cfg.MailTimeoutMS)
	inviteStore := invites.NewStore(pool)
	inviteSvc := invites.NewService(pool, inviteStore, accountsSvc, mail, cfg.BaseURL)
	projectSvc := projects.NewService(pool)

	// Middleware stack
	r.Use(middleware.RealIP)
	r.Use(apperrors.RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.BaseURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(auth.SessionMiddleware(cfg.JWTSecret))

	// Health check routes (no authentication required)
	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(pool))

	// API routes - Authentication
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(NoCacheMiddleware)
		r.Use(CSRFMiddleware(isProduction))

		r.Get("/csrf", auth.HandleCSRF(isProduction))

		r.With(RateLimitMiddleware(cfg.LoginRateRPM)).
			Post("/login", auth.HandleLogin(accountsSvc, auditor, cfg.JWTSecret, cfg.SessionDays, isProduction))

		r.With(auth.RequireAuth).Post("/logout", auth.HandleLogout)
		r.With(auth.RequireAuth).Get("/me", auth.HandleMe(accountsSvc))
	})

	// API routes - Invitation redemption (public: recipients have no session yet)
	r.Route("/api/v1/invitations", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(CSRFMiddleware(isProduction))

		r.Get("/validate", invites.HandleValidate(inviteSvc))
		r.With(RateLimitMiddleware(cfg.AcceptRateRPM)).
			Post("/accept", invites.HandleAccept(inviteSvc, auditor, cfg.JWTSecret, cfg.SessionDays, isProduction))

		// Invitation management (OWNER only)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireOwner(accountsSvc))

			r.Post("/", invites.HandleCreate(inviteSvc, auditor, cfg.InviteTTLDays))
			r.Get("/", invites.HandleList(inviteSvc))
			r.Post("/{invitation_id}/resend", invites.HandleResend(inviteSvc, auditor, cfg.InviteTTLDays))
			r.Delete("/{invitation_id}", invites.HandleRevoke(inviteSvc, auditor))
		})
	})

	// API routes - Clients (OWNER only)
	r.Route("/api/v1/clients", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(auth.RequireOwner(accountsSvc))

		r.Get("/", accounts.HandleListClients(accountsSvc))
	})

	// API routes - Projects and milestones
	r.Route("/api/v1/projects", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(CSRFMiddleware(isProduction))

		// Reads: both roles, scoped by identity
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireIdentity(accountsSvc))

			r.Get("/", projects.HandleList(projectSvc))
			r.Get("/{project_id}", projects.HandleGet(projectSvc))
		})

		// Mutations: OWNER only
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireOwner(accountsSvc))

			r.Post("/", projects.HandleCreate(projectSvc, auditor))
			r.Put("/{project_id}", projects.HandleUpdate(projectSvc, auditor))
			r.Post("/{project_id}/milestones", projects.HandleCreateMilestone(projectSvc, auditor))
		})
	})

	r.Route("/api/v1/milestones", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(CSRFMiddleware(isProduction))
		r.Use(auth.RequireOwner(accountsSvc))

		r.Put("/{milestone_id}", projects.HandleUpdateMilestone(projectSvc, auditor))
	})

	return r
}

// handleHealthz returns a simple liveness check
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleReadyz returns a readiness check that includes database connectivity
func handleReadyz(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			apperrors.WriteServiceUnavailable(w, r, "Database connection failed")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
			"status": "ready",
			"db":     "ok",
		})
	}
}
