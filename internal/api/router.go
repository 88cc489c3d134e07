package api

import (
	"context"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/logout", s.handleLogout)
			r.Get("/auth/me", s.handleMe)
			r.Get("/auth/sessions", s.handleListSessions)

			r.With(s.requireSessionAdmin).Post("/users/{id}/revoke-sessions", s.handleRevokeUserSessions)
			if s.audit != nil {
				r.With(s.requireSessionAdmin).Get("/audit/sessions", s.handleListAuditLogs)
			}
		})
	})

	return r
}

// handleHealth reports ok when every registered dependency answers, and
// 503 with the failing names otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.health))
	for name := range s.health {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]string, len(names))
	status, code := "ok", http.StatusOK
	for _, name := range names {
		if err := s.health[name].HealthCheck(r.Context()); err != nil {
			s.logger.Warn("health check failed", "component", name, "error", err)
			checks[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"checks":  checks,
	})
}

// HealthFunc adapts a function to HealthChecker.
type HealthFunc func(ctx context.Context) error

// HealthCheck implements HealthChecker.
func (f HealthFunc) HealthCheck(ctx context.Context) error {
	return f(ctx)
}
