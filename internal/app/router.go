package app

import (
	"net/http"

	"github.com/brokerhub/brokerhub/internal/affiliation"
	"github.com/brokerhub/brokerhub/internal/apperrors"
	"github.com/brokerhub/brokerhub/internal/audit"
	"github.com/brokerhub/brokerhub/internal/auth"
	"github.com/brokerhub/brokerhub/internal/config"
	"github.com/brokerhub/brokerhub/internal/directory"
	"github.com/brokerhub/brokerhub/internal/notify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(pool *pgxpool.Pool, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	isProduction := !cfg.IsDev()

	// Middleware stack
	r.Use(middleware.RealIP)              // Set RemoteAddr to real IP
	r.Use(apperrors.RequestIDMiddleware)  // Add request ID to context
	r.Use(LoggingMiddleware)              // Structured request logging
	r.Use(RecoveryMiddleware)             // Recover from panics
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.BaseURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(auth.AuthMiddleware(cfg.JWTSecret)) // Validate session cookies

	// Shared collaborators for API routes
	auditor := audit.NewWriter(pool)
	notifier := notify.NewClient(cfg.NotifyWebhook, cfg.NotifyTimeoutMS)

	// Health check routes (no authentication required)
	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(pool))

	// API routes - Authentication
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/signup", auth.HandleSignup(pool, auditor, cfg.JWTSecret, cfg.SessionDays, isProduction))
		r.With(LoginRateLimitMiddleware()).Post("/login", auth.HandleLogin(pool, cfg.JWTSecret, cfg.SessionDays, isProduction))
		r.With(auth.RequireAuth).Post("/logout", http.HandlerFunc(auth.HandleLogout))

		// Password reset; same limiter as login since both probe accounts
		r.With(LoginRateLimitMiddleware()).Post("/reset-request", auth.HandleResetRequest(pool))
		r.With(LoginRateLimitMiddleware()).Post("/reset-confirm", auth.HandleResetConfirm(pool, auditor))
	})

	proposalLimit := ProposalRateLimitMiddleware(cfg.ProposalRPM)

	// API routes - Agencies (require authentication)
	r.Route("/api/v1/agencies", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(auth.RequireAuth)

		r.Post("/", directory.HandleCreateAgency(pool, auditor))
		r.Get("/{agency_id}", directory.HandleGetAgency(pool))
		r.Get("/{agency_id}/brokers", directory.HandleListAgencyBrokers(pool))
		r.Delete("/{agency_id}/brokers/{broker_id}", affiliation.HandleRemoveBroker(pool, auditor, notifier))

		// Outbound recruitment
		r.With(proposalLimit).Post("/{agency_id}/offers", affiliation.HandleCreateOffer(pool, auditor, notifier))
		r.Get("/{agency_id}/offers", affiliation.HandleListAgencyOffers(pool))

		// Inbound join requests
		r.With(proposalLimit).Post("/{agency_id}/join-requests", affiliation.HandleCreateJoinRequest(pool, auditor, notifier))
		r.Get("/{agency_id}/join-requests", affiliation.HandleListAgencyJoinRequests(pool))

		// Email invites
		r.With(proposalLimit).Post("/{agency_id}/invites", affiliation.HandleCreateInvite(pool, auditor, notifier))
		r.Get("/{agency_id}/invites", affiliation.HandleListInvites(pool))
	})

	// API routes - Brokers (require authentication)
	r.Route("/api/v1/brokers", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(auth.RequireAuth)

		r.Post("/", directory.HandleCreateBroker(pool, auditor))
		r.Get("/me", directory.HandleGetOwnBroker(pool))
		r.Get("/me/offers", affiliation.HandleListBrokerOffers(pool))
		r.Get("/me/join-requests", affiliation.HandleListBrokerJoinRequests(pool))
	})

	// API routes - Proposal decisions (require authentication)
	r.Route("/api/v1/offers", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(auth.RequireAuth)

		r.With(proposalLimit).Post("/{offer_id}/respond", affiliation.HandleRespondToOffer(pool, auditor, notifier))
		r.Delete("/{offer_id}", affiliation.HandleWithdrawOffer(pool, auditor))
	})

	r.Route("/api/v1/join-requests", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(auth.RequireAuth)

		r.With(proposalLimit).Post("/{request_id}/decide", affiliation.HandleDecideJoinRequest(pool, auditor, notifier))
		r.Delete("/{request_id}", affiliation.HandleWithdrawJoinRequest(pool, auditor))
	})

	// API routes - Invite redemption (code carries the agency context)
	r.Route("/api/v1/invites", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(auth.RequireAuth)

		r.With(proposalLimit).Post("/accept", affiliation.HandleAcceptInvite(pool, auditor, notifier))
	})

	return r
}

// handleHealthz returns a simple liveness check
// Always returns 200 OK if the service is running
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleReadyz returns a readiness check that includes database connectivity
// Returns 200 OK if service is ready to accept traffic, 503 if not
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
