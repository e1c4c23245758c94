// Package httptransport assembles the HTTP surface: the shared middleware
// chain, the unauthenticated operational routes and every resource handler.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dealroom/internal/identity"
	"dealroom/internal/platform/metrics"
	"dealroom/internal/platform/middleware"
	"dealroom/pkg/platform/httputil"
)

// Registrar is implemented by every resource handler.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Deps struct {
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Resolver identity.Resolver
	Health   []HealthCheck
	// Throttle runs after authentication, so it can key on the caller.
	Throttle func(http.Handler) http.Handler
}

// NewRouter mounts /health and /metrics outside authentication and every
// handler behind RequireAuth.
func NewRouter(deps Deps, handlers ...Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(deps.Logger, deps.Metrics))
	r.Use(middleware.Recovery(deps.Logger))

	r.Get("/health", healthHandler(deps.Health, deps.Logger))
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(deps.Resolver, deps.Logger))
		if deps.Throttle != nil {
			r.Use(deps.Throttle)
		}
		for _, h := range handlers {
			h.Register(r)
		}
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks []HealthCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				logger.WarnContext(ctx, "health check failed", "dependency", c.Name, "error", err)
				resp.Checks[c.Name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[c.Name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
