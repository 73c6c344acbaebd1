package directory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/staffline/staffline/internal/orggraph"
	"github.com/staffline/staffline/internal/platform/httpx"
	"github.com/staffline/staffline/internal/rbac"
	"github.com/staffline/staffline/internal/staff"
)

// Handler exposes reporting relationships and the reload trigger.
type Handler struct {
	logger      *slog.Logger
	store       *Store
	invalidator *Invalidator
	rbac        rbac.Middleware
}

// NewHandler builds Handler instance. invalidator may be nil, in which case a
// reload request only reloads this instance.
func NewHandler(logger *slog.Logger, store *Store, invalidator *Invalidator, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, store: store, invalidator: invalidator, rbac: rbac}
}

// MountRoutes registers relationship routes under /authz.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireTarget(rbac.PermViewReports, "id"))
		r.Get("/staff/{id}/subordinates", h.subordinates)
		r.Get("/staff/{id}/approvers", h.approvers)
	})
}

// MountAdminRoutes registers administrative routes.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.With(h.rbac.Require(rbac.PermManageSystemSettings)).Post("/directory/reload", h.reload)
}

func (h *Handler) subordinates(w http.ResponseWriter, r *http.Request) {
	id, ok := staffID(w, r)
	if !ok {
		return
	}
	ids, err := h.store.SubordinatesOf(r.Context(), id)
	if err != nil {
		h.fail(w, "subordinates", err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"staff_id": id, "subordinates": ids})
}

func (h *Handler) approvers(w http.ResponseWriter, r *http.Request) {
	id, ok := staffID(w, r)
	if !ok {
		return
	}
	chain, err := h.store.ApproverChainOf(r.Context(), id)
	if err != nil {
		h.fail(w, "approvers", err)
		return
	}
	if chain == nil {
		chain = []int64{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"staff_id": id, "approvers": chain})
}

func (h *Handler) reload(w http.ResponseWriter, r *http.Request) {
	if h.invalidator != nil {
		if err := h.invalidator.Publish(r.Context()); err != nil {
			h.logger.Warn("publish directory reload", slog.Any("error", err))
		}
	}
	snap, err := h.store.Reload(r.Context())
	if err != nil {
		h.fail(w, "reload", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"version":            snap.Version,
		"role_table_version": snap.Registry.Version(),
		"staff":              len(snap.order),
		"loaded_at":          snap.LoadedAt,
	})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, staff.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, orggraph.ErrCycle):
		h.logger.Error("directory "+op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", string(rbac.ReasonStructuralError))
	default:
		h.logger.Error("directory "+op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func staffID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid staff id")
		return 0, false
	}
	return id, true
}
