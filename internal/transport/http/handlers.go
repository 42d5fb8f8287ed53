// @title Pulsar Console RBAC API
// @version 1.0.0
// @description Authorization policy engine and permission sync for Pulsar clusters

// @license.name Apache 2.0
// @license.url https://www.apache.org/licenses/LICENSE-2.0

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package http

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pulsarconsole/pulsarconsole/internal/audit"
	"github.com/pulsarconsole/pulsarconsole/internal/pulsar"
	"github.com/pulsarconsole/pulsarconsole/internal/rbac"
	"github.com/pulsarconsole/pulsarconsole/internal/rbacsync"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	rbac        *rbac.Service
	engine      *rbacsync.Engine
	issuer      *pulsar.TokenIssuer
	auditLogger audit.Logger
	jwtSecret   []byte
	staticFS    fs.FS
}

// NewHandler creates a new HTTP handler. issuer and staticFS may be nil
// when broker token minting or the embedded console UI are not configured.
func NewHandler(
	rbacService *rbac.Service,
	engine *rbacsync.Engine,
	issuer *pulsar.TokenIssuer,
	auditLogger audit.Logger,
	jwtSecret []byte,
	staticFS fs.FS,
) *Handler {
	return &Handler{
		rbac:        rbacService,
		engine:      engine,
		issuer:      issuer,
		auditLogger: auditLogger,
		jwtSecret:   jwtSecret,
		staticFS:    staticFS,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/health", h.HealthCheck)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.AuthMiddleware)

		// Permission catalog is environment-agnostic
		r.Get("/permissions", h.ListPermissions)

		r.Route("/environments/{environmentID}", func(r chi.Router) {
			// RBAC administration
			r.Route("/rbac", func(r chi.Router) {
				r.Post("/seed", h.SeedEnvironment)
				r.Post("/enable", h.EnableRBAC)
				r.Post("/disable", h.DisableRBAC)
				r.Post("/check", h.CheckPermission)
			})

			// Role management
			r.Route("/roles", func(r chi.Router) {
				r.Get("/", h.ListRoles)
				r.Post("/", h.CreateRole)
				r.Route("/{roleID}", func(r chi.Router) {
					r.Get("/", h.GetRole)
					r.Patch("/", h.UpdateRole)
					r.Delete("/", h.DeleteRole)
					r.Get("/grants", h.ListRoleGrants)
					r.Post("/grants", h.GrantPermission)
					r.Delete("/grants", h.RevokePermission)
				})
			})

			// Identity assignments
			r.Route("/identities/{identityID}", func(r chi.Router) {
				r.Get("/roles", h.ListAssignments)
				r.Post("/roles", h.AssignRole)
				r.Put("/roles", h.SetIdentityRoles)
				r.Delete("/roles/{roleID}", h.RevokeRole)
				r.Get("/permissions", h.EffectivePermissions)
			})

			// Permission sync against the Pulsar cluster. Gated as a
			// subtree: every sync operation is cluster-admin only.
			r.Route("/sync", func(r chi.Router) {
				r.Use(h.RequirePermission(rbac.ActionAdmin, rbac.LevelCluster))
				r.Post("/tenants/{tenant}", h.SyncTenant)
				r.Route("/tenants/{tenant}/namespaces/{namespace}", func(r chi.Router) {
					r.Get("/diff", h.GetDiff)
					r.Post("/preview", h.PreviewSync)
					r.Post("/", h.SyncNamespace)
				})
			})

			// Broker token minting
			r.Post("/tokens", h.IssueBrokerToken)
		})
	})

	// Console UI (client-side routed SPA)
	if h.staticFS != nil {
		r.NotFound(SPAHandler{StaticFS: h.staticFS}.ServeHTTP)
	}

	return r
}

// HealthCheck returns the health status
// @Summary Health Check
// @Description Checks if the service is up and running
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "pulsarconsole",
	})
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondServiceError maps domain errors to HTTP status codes.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, rbac.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, rbac.ErrConflict):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, rbac.ErrForbidden):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, rbac.ErrInvalidArgument):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, rbac.ErrUpstreamUnavailable):
		respondError(w, http.StatusBadGateway, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func getIPAddress(r *http.Request) string {
	// Check X-Forwarded-For header first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
