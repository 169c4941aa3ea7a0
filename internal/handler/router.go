package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/penshort/shortlink/internal/middleware"
)

// Routes bundles the handlers and middleware settings served by NewRouter.
type Routes struct {
	Health        *HealthHandler
	Redirect      *RedirectHandler
	Shortlinks    *ShortlinkHandler
	ParameterSets *ParameterSetHandler
	Targets       *TargetHandler
	Reports       *ReportHandler
	Maintenance   *MaintenanceHandler
	Settings      *SettingsHandler
	Metrics       *MetricsHandler

	APIKeys     map[string]string
	CORSOrigins []string
	Security    middleware.SecurityConfig
	RateLimit   middleware.RateLimitConfig
}

// NewRouter builds the chi router: probes, the API-key protected admin API
// under /api/v1, and the public redirect route /{prefix}/{slug}.
func NewRouter(rt Routes, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))

	r.Get("/healthz", rt.Health.Healthz)
	r.Get("/readyz", rt.Health.Readyz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.CORS(rt.CORSOrigins))
		r.Use(middleware.Security(rt.Security))
		r.Use(middleware.MaxBodySize(rt.Security.MaxRequestBodySize))
		r.Use(middleware.APIKeyAuth(rt.APIKeys, logger))

		r.Route("/shortlinks", func(r chi.Router) {
			r.Get("/", rt.Shortlinks.List)
			r.Post("/", rt.Shortlinks.Create)
			r.Get("/{id}", rt.Shortlinks.Get)
			r.Patch("/{id}", rt.Shortlinks.Update)
			r.Delete("/{id}", rt.Shortlinks.Delete)
			r.Get("/{id}/clicks", rt.Shortlinks.Clicks)
		})
		r.Post("/generate-path", rt.Shortlinks.GeneratePath)
		r.Get("/validate-slug", rt.Shortlinks.ValidateSlug)

		r.Route("/parameter-sets", func(r chi.Router) {
			r.Get("/", rt.ParameterSets.List)
			r.Post("/", rt.ParameterSets.Create)
			r.Get("/{id}", rt.ParameterSets.Get)
			r.Put("/{id}", rt.ParameterSets.Update)
			r.Delete("/{id}", rt.ParameterSets.Delete)
			r.Get("/{id}/preview", rt.ParameterSets.Preview)
		})

		r.Route("/targets/{type}/{id}", func(r chi.Router) {
			r.Get("/", rt.Targets.Get)
			r.Put("/", rt.Targets.Upsert)
			r.Delete("/", rt.Targets.Delete)
			r.Get("/shortlinks", rt.Targets.Shortlinks)
		})
		r.Put("/aliases", rt.Targets.UpsertAlias)
		r.Delete("/aliases", rt.Targets.DeleteAlias)

		r.Route("/reports", func(r chi.Router) {
			r.Get("/total", rt.Reports.Total)
			r.Get("/top", rt.Reports.Top)
			r.Get("/recent", rt.Reports.Recent)
		})

		r.Route("/maintenance", func(r chi.Router) {
			r.Post("/expire", rt.Maintenance.Expire)
			r.Post("/purge-clicks", rt.Maintenance.PurgeClicks)
			r.Post("/check-destinations", rt.Maintenance.CheckDestinations)
			r.Post("/check-redirect-chains", rt.Maintenance.CheckRedirectChains)
			r.Post("/add-missing-links", rt.Maintenance.AddMissingLinks)
		})

		r.Get("/settings", rt.Settings.Get)
		r.Put("/settings", rt.Settings.Update)
		r.Get("/metrics", rt.Metrics.Metrics)
	})

	r.With(middleware.RateLimitIP(rt.RateLimit)).Get("/{prefix}/{slug}", rt.Redirect.Redirect)

	r.NotFound(NotFound)
	r.MethodNotAllowed(MethodNotAllowed)

	return r
}
