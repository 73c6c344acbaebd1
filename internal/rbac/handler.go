package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/staffline/staffline/internal/platform/httpx"
	"github.com/staffline/staffline/internal/shared"
)

// Handler serves the /authz endpoints.
type Handler struct {
	logger     *slog.Logger
	authorizer Authorizer
	rbac       Middleware
	validate   *validator.Validate
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, authorizer Authorizer, rbac Middleware) *Handler {
	return &Handler{logger: logger, authorizer: authorizer, rbac: rbac, validate: validator.New()}
}

// MountRoutes registers authorization routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/decide", h.decide)
	r.Get("/me/permissions", h.myPermissions)
	r.Get("/permissions", h.catalog)
}

type decideRequest struct {
	ActorID    int64  `json:"actor_id" validate:"required,gt=0"`
	Permission string `json:"permission" validate:"required"`
	TargetID   *int64 `json:"target_id,omitempty" validate:"omitempty,gt=0"`
}

// decide answers "may actor_id exercise permission on target_id". Callers may
// always ask about themselves; asking on behalf of someone else requires
// can_manage_roles.
func (h *Handler) decide(w http.ResponseWriter, r *http.Request) {
	callerID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", string(ReasonUnauthenticated))
		return
	}
	var req decideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if req.ActorID != callerID {
		gate, err := h.authorizer.Authorize(r.Context(), callerID, PermManageRoles, nil)
		if err != nil {
			h.logger.Error("authz decide gate", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		if !gate.Allowed() {
			writeDenied(w, gate)
			return
		}
	}

	d, err := h.authorizer.Authorize(r.Context(), req.ActorID, Permission(req.Permission), req.TargetID)
	if err != nil {
		if errors.Is(err, ErrUnknownTarget) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "staff not found")
			return
		}
		h.logger.Warn("authz decide structural error",
			slog.Int64("actor_id", req.ActorID),
			slog.String("permission", req.Permission),
			slog.Any("error", err))
	}
	if h.rbac.Recorder != nil {
		h.rbac.Recorder.RecordDecision(r.Context(), d)
	}
	httpx.JSON(w, http.StatusOK, d)
}

type grantView struct {
	Permission Permission `json:"permission"`
	Kind       string     `json:"kind"`
	Grant      string     `json:"grant"`
}

func (h *Handler) myPermissions(w http.ResponseWriter, r *http.Request) {
	callerID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", string(ReasonUnauthenticated))
		return
	}
	grants, err := h.authorizer.EffectiveGrants(r.Context(), callerID)
	if err != nil {
		h.logger.Error("authz effective grants", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	out := make([]grantView, 0, len(grants))
	for key, g := range grants {
		out = append(out, grantView{Permission: key, Kind: g.Kind.String(), Grant: g.String()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Permission < out[j].Permission })
	httpx.JSON(w, http.StatusOK, map[string]any{"staff_id": callerID, "grants": out})
}

type catalogEntry struct {
	Key         Permission `json:"key"`
	Kind        string     `json:"kind"`
	Approval    bool       `json:"approval"`
	SelfService bool       `json:"self_service"`
	Mutation    bool       `json:"mutation"`
	Description string     `json:"description"`
}

func (h *Handler) catalog(w http.ResponseWriter, r *http.Request) {
	specs := Permissions()
	out := make([]catalogEntry, 0, len(specs))
	for _, spec := range specs {
		out = append(out, catalogEntry{
			Key:         spec.Key,
			Kind:        spec.Kind.String(),
			Approval:    spec.Traits.Approval,
			SelfService: spec.Traits.SelfService,
			Mutation:    spec.Traits.Mutation,
			Description: spec.Description,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}
