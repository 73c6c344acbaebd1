package staff

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/staffline/staffline/internal/platform/httpx"
	"github.com/staffline/staffline/internal/rbac"
	"github.com/staffline/staffline/internal/shared"
)

// Directory is the read view the handler serves from.
type Directory interface {
	AllStaff(ctx context.Context) ([]Staff, error)
	StaffByID(ctx context.Context, id int64) (Staff, error)
	SubordinatesOf(ctx context.Context, managerID int64) ([]int64, error)
}

// Handler serves staff listing endpoints.
type Handler struct {
	logger    *slog.Logger
	directory Directory
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, directory Directory, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, directory: directory, rbac: rbac}
}

// MountRoutes registers staff routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.Require(rbac.PermManageUsers)).Get("/", h.list)
	r.With(h.rbac.RequireTarget(rbac.PermManageUsers, "id")).Get("/{id}", h.get)
}

type listResponse struct {
	Scope      rbac.Scope        `json:"scope"`
	Staff      []Staff           `json:"staff"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	d, ok := rbac.DecisionFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
		return
	}
	all, err := h.directory.AllStaff(r.Context())
	if err != nil {
		h.fail(w, "list staff", err)
		return
	}
	visible, err := h.filter(r.Context(), d, all)
	if err != nil {
		h.fail(w, "filter staff", err)
		return
	}
	page := shared.PaginationFromRequest(r, len(visible))
	start, end := page.Bounds()
	httpx.JSON(w, http.StatusOK, listResponse{Scope: d.Scope, Staff: visible[start:end], Pagination: page})
}

// filter applies the scope of the admitting decision to the collection.
func (h *Handler) filter(ctx context.Context, d rbac.Decision, all []Staff) ([]Staff, error) {
	switch d.Scope {
	case rbac.ScopeAll, rbac.ScopeGlobal:
		return all, nil
	case rbac.ScopeSubordinates:
		ids, err := h.directory.SubordinatesOf(ctx, d.ActorID)
		if err != nil {
			return nil, err
		}
		allowed := make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			allowed[id] = struct{}{}
		}
		out := make([]Staff, 0, len(ids))
		for _, s := range all {
			if _, ok := allowed[s.ID]; ok {
				out = append(out, s)
			}
		}
		return out, nil
	default:
		return []Staff{}, nil
	}
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid staff id")
		return
	}
	s, err := h.directory.StaffByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.fail(w, "get staff", err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
