package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/staffline/staffline/internal/platform/httpx"
	"github.com/staffline/staffline/internal/shared"
)

// ErrUnknownTarget is returned by an Authorizer when the target id does not
// resolve to a staff member.
var ErrUnknownTarget = errors.New("rbac: unknown target")

// Authorizer evaluates requests against the current directory snapshot.
type Authorizer interface {
	Authorize(ctx context.Context, actorID int64, permission Permission, targetID *int64) (Decision, error)
	EffectiveGrants(ctx context.Context, actorID int64) (map[Permission]Grant, error)
}

// DecisionRecorder observes decisions taken at the HTTP boundary.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, d Decision)
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Authorizer Authorizer
	Recorder   DecisionRecorder
	Logger     *slog.Logger
}

type decisionContextKey struct{}

// ContextWithDecision stores the allow decision that admitted the request.
func ContextWithDecision(ctx context.Context, d Decision) context.Context {
	return context.WithValue(ctx, decisionContextKey{}, d)
}

// DecisionFromContext returns the decision stored by Require or RequireTarget.
// Collection handlers use its Scope to filter results.
func DecisionFromContext(ctx context.Context) (Decision, bool) {
	d, ok := ctx.Value(decisionContextKey{}).(Decision)
	return d, ok
}

// Require admits the request when the actor holds permission at collection
// level, without a target.
func (m Middleware) Require(permission Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, ok := m.authorize(w, r, permission, nil)
			if !ok {
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithDecision(r.Context(), d)))
		})
	}
}

// RequireTarget admits the request when the actor holds permission over the
// staff member named by the chi URL parameter param.
func (m Middleware) RequireTarget(permission Permission, param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(chi.URLParam(r, param))
			targetID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || targetID <= 0 {
				httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid staff id")
				return
			}
			d, ok := m.authorize(w, r, permission, &targetID)
			if !ok {
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithDecision(r.Context(), d)))
		})
	}
}

// RequireAny admits the request when at least one permission allows it at
// collection level. The first allowing decision is stored in context.
func (m Middleware) RequireAny(perms ...Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(perms) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			actorID, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", string(ReasonUnauthenticated))
				return
			}
			var last Decision
			for _, perm := range perms {
				d, err := m.Authorizer.Authorize(r.Context(), actorID, perm, nil)
				if err != nil {
					m.logError(r, "rbac require any", err)
					httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
					return
				}
				if d.Allowed() {
					m.record(r.Context(), d)
					next.ServeHTTP(w, r.WithContext(ContextWithDecision(r.Context(), d)))
					return
				}
				last = d
			}
			m.record(r.Context(), last)
			writeDenied(w, last)
		})
	}
}

func (m Middleware) authorize(w http.ResponseWriter, r *http.Request, permission Permission, targetID *int64) (Decision, bool) {
	actorID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		d := Decision{Effect: Deny, Reason: ReasonUnauthenticated, Permission: permission, TargetID: targetID}
		m.record(r.Context(), d)
		writeDenied(w, d)
		return d, false
	}
	d, err := m.Authorizer.Authorize(r.Context(), actorID, permission, targetID)
	if err != nil {
		if errors.Is(err, ErrUnknownTarget) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "staff not found")
			return d, false
		}
		if errors.Is(err, httpx.ErrUnavailable) {
			httpx.RespondError(w, err)
			return d, false
		}
		m.logError(r, "rbac authorize", err, slog.String("permission", string(permission)))
		m.record(r.Context(), d)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return d, false
	}
	m.record(r.Context(), d)
	if !d.Allowed() {
		writeDenied(w, d)
		return d, false
	}
	return d, true
}

func (m Middleware) record(ctx context.Context, d Decision) {
	if m.Recorder != nil {
		m.Recorder.RecordDecision(ctx, d)
	}
}

func (m Middleware) logError(r *http.Request, msg string, err error, attrs ...any) {
	if m.Logger == nil {
		return
	}
	args := append([]any{slog.Any("error", err), slog.String("path", r.URL.Path)}, attrs...)
	m.Logger.Error(msg, args...)
}

// StatusFor maps a deny decision onto an HTTP status code.
func StatusFor(d Decision) int {
	if d.Allowed() {
		return http.StatusOK
	}
	switch d.Reason {
	case ReasonUnauthenticated:
		return http.StatusUnauthorized
	case ReasonStructuralError:
		return http.StatusInternalServerError
	default:
		return http.StatusForbidden
	}
}

func writeDenied(w http.ResponseWriter, d Decision) {
	status := StatusFor(d)
	httpx.Problem(w, status, http.StatusText(status), string(d.Reason))
}
