package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/zatekoja/patientinsights/internal/api/handlers"
	"github.com/zatekoja/patientinsights/internal/api/middleware"
	"github.com/zatekoja/patientinsights/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *chi.Mux

	healthHandler      *handlers.HealthHandler
	analysisHandler    *handlers.AnalysisHandler
	narrativeHandler   *handlers.NarrativeHandler
	explanationHandler *handlers.ExplanationHandler
	reportHandler      *handlers.ReportHandler

	allowedOrigins []string
	requestTimeout time.Duration
	metrics        *observability.Metrics
}

// NewRouter creates a new router
func NewRouter(
	healthHandler *handlers.HealthHandler,
	analysisHandler *handlers.AnalysisHandler,
	narrativeHandler *handlers.NarrativeHandler,
	explanationHandler *handlers.ExplanationHandler,
	reportHandler *handlers.ReportHandler,
	allowedOrigins []string,
	requestTimeout time.Duration,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:                chi.NewRouter(),
		healthHandler:      healthHandler,
		analysisHandler:    analysisHandler,
		narrativeHandler:   narrativeHandler,
		explanationHandler: explanationHandler,
		reportHandler:      reportHandler,
		allowedOrigins:     allowedOrigins,
		requestTimeout:     requestTimeout,
		metrics:            metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	// CORS must be outermost so preflight requests never reach the handlers.
	r.mux.Use(middleware.CORSMiddleware(r.allowedOrigins))
	r.mux.Use(chimiddleware.RequestID)
	r.mux.Use(chimiddleware.RealIP)
	r.mux.Use(middleware.ObservabilityMiddleware(r.metrics))
	r.mux.Use(middleware.LoggingMiddleware)
	r.mux.Use(chimiddleware.Recoverer)
	r.mux.Use(chimiddleware.Compress(5, "application/json", "text/html", "text/markdown"))
	if r.requestTimeout > 0 {
		r.mux.Use(chimiddleware.Timeout(r.requestTimeout))
	}

	r.mux.Get("/healthz", r.healthHandler.Health)

	r.mux.Route("/api/v1", func(api chi.Router) {
		api.Post("/analysis", r.analysisHandler.Analyze)

		api.Post("/narratives", r.narrativeHandler.GenerateAll)
		api.Post("/narratives/{kind}", r.narrativeHandler.Generate)
		api.Delete("/narratives/patients/{patientID}", r.narrativeHandler.InvalidatePatient)
		api.Get("/cache/stats", r.narrativeHandler.CacheStats)

		api.Post("/explanations", r.explanationHandler.Explain)
		api.Post("/questions", r.explanationHandler.Questions)

		api.Post("/reports/pre-visit", r.reportHandler.PreVisit)
	})

	return r.mux
}
