package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/dataguardian/app"
	"github.com/upb/dataguardian/handlers"
	"github.com/upb/dataguardian/internal/auth"
	"github.com/upb/dataguardian/middleware"
	"github.com/upb/dataguardian/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()
	cfg := deps.Config
	logger := deps.Logger

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.PropagateRequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	if cfg.Server.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.Server.RequestTimeout))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	health := handlers.NewHealthHandler(deps.HealthChecks(), logger).WithStats(deps.HealthStats())
	datasetH := handlers.NewDatasetHandler(deps.Datasets, cfg.Privacy.MaxUploadBytes, logger)
	ruleH := handlers.NewRuleHandler(deps.Rules, logger)
	streamH := handlers.NewStreamHandler(deps.Streams, deps.Tokens, deps.Access, deps.Receipts, logger)
	tokenH := handlers.NewTokenHandler(deps.Tokens, logger)
	auditH := handlers.NewAuditHandler(deps.Audit, logger)
	adminH := handlers.NewAdminHandler(deps.Sweeper, logger)
	dataH := handlers.NewDataHandler(deps.Access, logger)

	authMW := deps.AuthMiddleware
	owner := authMW.RequireRole(auth.RoleCitizen)

	r.Get("/health", health.HandleHealth)
	r.Get("/health/ready", health.HandleReadiness)

	// Third-party read surface, authenticated by stream token only
	r.With(deps.StreamTokenMiddleware.RequireStreamToken).Get("/data", dataH.HandleData)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authMW.RequireAuth)

		r.Route("/datasets", func(r chi.Router) {
			r.Use(owner)
			r.Get("/", datasetH.HandleList)
			r.Post("/", datasetH.HandleUpload)
			r.Post("/sample", datasetH.HandleSample)
			r.Get("/{id}", datasetH.HandleGet)
			r.Delete("/{id}", datasetH.HandleDelete)
		})

		r.Route("/rules", func(r chi.Router) {
			r.Use(owner)
			r.Get("/", ruleH.HandleList)
			r.Post("/", ruleH.HandleCreate)
			r.Post("/validate", ruleH.HandleValidate)
			r.Get("/{id}", ruleH.HandleGet)
			r.Put("/{id}", ruleH.HandleUpdate)
			r.Delete("/{id}", ruleH.HandleDelete)
		})

		r.Route("/streams", func(r chi.Router) {
			// a receipt may be requested by the consuming app as well as the owner
			r.With(authMW.RequireRole(auth.RoleCitizen, auth.RoleApp)).Get("/{id}/receipt", streamH.HandleReceipt)

			r.Group(func(r chi.Router) {
				r.Use(owner)
				r.Get("/", streamH.HandleList)
				r.Post("/", streamH.HandleCreate)
				r.Get("/{id}", streamH.HandleGet)
				r.Post("/{id}/revoke", streamH.HandleRevoke)
				r.Get("/{id}/preview", streamH.HandlePreview)
				r.Get("/{id}/tokens", streamH.HandleListTokens)
				r.Post("/{id}/tokens", streamH.HandleIssueToken)
			})
		})

		r.With(owner).Post("/tokens/{id}/revoke", tokenH.HandleRevoke)
		r.With(owner).Get("/audit", auditH.HandleList)

		r.Route("/admin", func(r chi.Router) {
			r.Use(authMW.RequireRole(auth.RoleAdmin))
			r.Post("/cleanup", adminH.HandleCleanup)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}
