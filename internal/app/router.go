package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/veritrail/veritrail/internal/audits"
	"github.com/veritrail/veritrail/internal/authz"
	"github.com/veritrail/veritrail/internal/decisionlog"
	"github.com/veritrail/veritrail/internal/directory"
	"github.com/veritrail/veritrail/internal/grants"
	"github.com/veritrail/veritrail/internal/observability"
	"github.com/veritrail/veritrail/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Directory          *directory.Repository
	Guard              authz.Middleware
	AuditsHandler      *audits.Handler
	GrantsHandler      *grants.Handler
	DecisionsHandler   *decisionlog.Handler
	PermissionsHandler *authz.PermissionsHandler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with Veritrail defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:    params.Logger,
		Config:    params.Config,
		Directory: params.Directory,
		Metrics:   params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.AuditsHandler != nil {
		r.Route("/audits", params.AuditsHandler.MountRoutes)
	}
	if params.GrantsHandler != nil {
		r.Route("/grants", params.GrantsHandler.MountRoutes)
	}
	if params.DecisionsHandler != nil {
		r.Route("/decisions", func(r chi.Router) {
			r.Use(params.Guard.RequireCapability(authz.CapViewAuditTrail))
			params.DecisionsHandler.MountRoutes(r)
		})
	}
	if params.PermissionsHandler != nil {
		r.Route("/permissions", params.PermissionsHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
