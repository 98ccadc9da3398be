package httpadapter

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/PabloGalante/kitcheck/internal/app/lending"
)

// HealthCheck probes one dependency for /healthz.
type HealthCheck func(ctx context.Context) error

type Options struct {
	APIKey string
	// Backends names the configured adapters, e.g. "store": "sqlite".
	Backends map[string]string
	Checks   map[string]HealthCheck
}

// NewServer creates the Chi router with all routes and middleware.
func NewServer(svc *lending.Service, opts Options) http.Handler {
	r := chi.NewRouter()

	// Global middleware (runs on ALL routes including /healthz)
	r.Use(CORS)
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(Recovery)

	h := &Server{svc: svc, backends: opts.Backends, checks: opts.Checks}

	r.Get("/healthz", h.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(opts.APIKey))

		r.Post("/predict", h.handlePredict)

		r.Route("/sessions", func(r chi.Router) {
			r.Use(ActorExtractor)

			r.Get("/", h.handleListSessions)
			r.Post("/handout", h.handleCreateSession)
			r.Get("/{id}", h.handleGetSession)
			r.Post("/{id}/handout/predict", h.handlePredictHandout)
			r.Post("/{id}/handout/adjust", h.handleAdjustHandout)
			r.Post("/{id}/issue", h.handleIssue)
			r.Post("/{id}/handover/predict", h.handlePredictHandover)
			r.Post("/{id}/handover/adjust", h.handleAdjustHandover)
			r.Post("/{id}/finalize", h.handleFinalize)
			r.Get("/{id}/diff", h.handleGetDiff)
			r.Get("/{id}/events", h.handleEvents)
		})
	})

	return r
}
