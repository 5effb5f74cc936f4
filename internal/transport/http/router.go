// Package http wires the chi router: middleware stack, role gates, and the
// JSON endpoints.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gatepass/internal/gate"
	"gatepass/internal/platform/middleware"
	"gatepass/internal/request"
	"gatepass/internal/trust"
	"gatepass/pkg/domain"

	"gatepass/internal/transport/http/shared"
)

// HealthCheck probes one dependency for /healthz.
type HealthCheck func(ctx context.Context) error

// RouterConfig carries everything the surface depends on.
type RouterConfig struct {
	Requests  *request.Service
	Gate      *gate.Service
	Trust     *trust.Ledger
	Validator middleware.TokenValidator
	Logger    *slog.Logger
	Checks    map[string]HealthCheck
}

// NewRouter assembles the full HTTP surface.
func NewRouter(cfg RouterConfig) chi.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	requests := NewRequestHandler(cfg.Requests, logger)
	gates := NewGateHandler(cfg.Gate, logger)
	trusts := NewTrustHandler(cfg.Trust, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", healthz(logger, cfg.Checks))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireAuth(cfg.Validator, logger))
		r.Use(middleware.ContentTypeJSON)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleStudent))
			r.Post("/requests", requests.Create)
			r.Get("/requests/mine", requests.ListMine)
			r.Put("/requests/{id}", requests.Edit)
			r.Delete("/requests/{id}", requests.Cancel)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleMentor, domain.RoleHOD))
			r.Get("/queue", requests.Queue)
			r.Put("/queue/{id}/status", requests.Decide)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleWarden))
			r.Get("/wardens/queue", requests.WardenQueue)
			r.Put("/wardens/{id}/verify", requests.WardenVerify)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleGatekeeper))
			r.Post("/gate/verify", gates.Verify)
			r.Post("/gate/log-action", gates.LogAction)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleAdmin))
			r.Post("/trust/{id}/adjust", trusts.Adjust)
			r.Get("/trust/{id}/history", trusts.History)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleWarden, domain.RoleAdmin))
			r.Post("/trust/{id}/cooldown/reset", trusts.ResetCooldown)
		})
	})

	return r
}

func healthz(logger *slog.Logger, checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ok"
		details := make(map[string]string, len(checks))
		code := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.WarnContext(ctx, "health check failed", "dependency", name, "error", err)
				details[name] = "unavailable"
				status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			details[name] = "ok"
		}

		shared.WriteJSON(w, code, map[string]any{
			"status":       status,
			"dependencies": details,
		})
	}
}
