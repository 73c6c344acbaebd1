package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/staffline/staffline/internal/directory"
	"github.com/staffline/staffline/internal/observability"
	"github.com/staffline/staffline/internal/platform/httpx"
	"github.com/staffline/staffline/internal/rbac"
	"github.com/staffline/staffline/internal/roles"
	"github.com/staffline/staffline/internal/shared"
	"github.com/staffline/staffline/internal/staff"
	"github.com/staffline/staffline/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Sessions         *shared.SessionStore
	Metrics          *observability.Metrics
	Directory        *directory.Store
	RBACHandler      *rbac.Handler
	DirectoryHandler *directory.Handler
	StaffHandler     *staff.Handler
	RolesHandler     *roles.Handler
	JobHandler       *jobs.Handler
	// RequestLogging enables chi's access log.
	RequestLogging bool
}

// NewRouter constructs the chi.Router with staffline defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:   params.Logger,
		Config:   params.Config,
		Sessions: params.Sessions,
		Metrics:  params.Metrics,
	}) {
		r.Use(mw)
	}
	if params.RequestLogging {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.Directory == nil {
			httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}
		snap := params.Directory.Current()
		if snap == nil {
			httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{
			"status":             "ok",
			"snapshot_version":   snap.Version,
			"role_table_version": snap.Registry.Version(),
			"staff":              snap.Graph.Len(),
		})
	})

	r.Route("/authz", func(r chi.Router) {
		if params.RBACHandler != nil {
			params.RBACHandler.MountRoutes(r)
		}
		if params.DirectoryHandler != nil {
			params.DirectoryHandler.MountRoutes(r)
		}
	})
	if params.DirectoryHandler != nil {
		r.Route("/admin", params.DirectoryHandler.MountAdminRoutes)
	}
	if params.StaffHandler != nil {
		r.Route("/staff", params.StaffHandler.MountRoutes)
	}
	if params.RolesHandler != nil {
		r.Route("/roles", params.RolesHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
