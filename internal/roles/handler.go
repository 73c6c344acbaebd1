package roles

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/staffline/staffline/internal/platform/httpx"
	"github.com/staffline/staffline/internal/rbac"
)

// RegistryProvider yields the registry of the current directory snapshot.
type RegistryProvider interface {
	Registry(ctx context.Context) (*rbac.Registry, error)
}

// Handler manages role endpoints.
type Handler struct {
	logger   *slog.Logger
	registry RegistryProvider
	rbac     rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, registry RegistryProvider, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, registry: registry, rbac: rbac}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.PermManageRoles))
		r.Get("/", h.listRoles)
	})
}

type roleView struct {
	ID             int64             `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	HierarchyLevel int               `json:"hierarchy_level"`
	Active         bool              `json:"active"`
	Grants         map[string]string `json:"grants"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	reg, err := h.registry.Registry(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	roles := reg.Roles()
	out := make([]roleView, 0, len(roles))
	for _, role := range roles {
		grants := make(map[string]string)
		for key, g := range role.Grants() {
			grants[string(key)] = g.String()
		}
		out = append(out, roleView{
			ID:             role.ID,
			Name:           role.Name,
			Description:    role.Description,
			HierarchyLevel: role.HierarchyLevel,
			Active:         role.Active,
			Grants:         grants,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"version": reg.Version(), "roles": out})
}
