// Package handler implements the out-of-core HTTP API surface (spec.md
// §6, SPEC_FULL.md §4): a minimal trigger + read surface the external
// full HTTP/OAuth application calls into. It never issues sessions of its
// own — see internal/auth for how it validates the externally-issued
// bearer token.
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"cyberdigest/internal/metrics"
	"cyberdigest/internal/middleware"
)

// Deps wires everything the HTTP surface needs. SessionFinder is
// typically *auth.JWTSessionFinder.
type Deps struct {
	SessionFinder      middleware.SessionFinder
	Digest             *DigestHandler
	Feed               *FeedHandler
	Exposure           *ExposureHandler
	Admin              *AdminHandler
	Gatherer           prometheus.Gatherer
	CORSAllowedOrigin  string
	RateLimiterConfig  middleware.RateLimiterConfig
	CSRFConfig         middleware.CSRFConfig
}

// NewRouter assembles the full middleware chain and route table.
// Grounded on the teacher's router construction:
// recovery/logging/security-headers/CORS run globally, then
// session -> CSRF -> rate-limit gate the authenticated API group.
// internal/middleware/router_integration_test.go exercises the
// session -> CSRF part of that order; the rate limiter runs after the
// session middleware because it reads the user id the session injects.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(nil))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.Get("/health", healthHandler)
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}
	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	rateLimiter := middleware.NewRateLimiter(deps.RateLimiterConfig)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(rateLimiter.GeneralMiddleware())

		r.Post("/api/digest/run", deps.Digest.Run)

		r.Get("/api/feed/brief", deps.Feed.ListBriefs)
		r.Get("/api/feed/brief/{id}", deps.Feed.GetBrief)

		r.Get("/api/exposure", deps.Exposure.List)
		r.Get("/api/exposure/metrics", deps.Exposure.Metrics)

		r.Post("/api/admin/articles/{id}/reset", deps.Admin.ResetArticle)
	})

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok","time":"` + time.Now().UTC().Format(time.RFC3339) + `"}`))
}
