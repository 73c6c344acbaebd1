package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/staffline/staffline/internal/rbac"
	"github.com/staffline/staffline/internal/roles"
	"github.com/staffline/staffline/internal/shared"
	"github.com/staffline/staffline/internal/staff"
)

func newRouter(t *testing.T, store *Store) http.Handler {
	t.Helper()
	logger := discardLogger()
	mw := rbac.Middleware{Authorizer: store, Logger: logger}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if raw := r.Header.Get("X-Staff-ID"); raw != "" {
				id, err := strconv.ParseInt(raw, 10, 64)
				require.NoError(t, err)
				r = r.WithContext(shared.ContextWithActor(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	})
	dirHandler := NewHandler(logger, store, nil, mw)
	r.Route("/authz", dirHandler.MountRoutes)
	r.Route("/admin", dirHandler.MountAdminRoutes)
	r.Route("/staff", staff.NewHandler(logger, store, mw).MountRoutes)
	r.Route("/roles", roles.NewHandler(logger, store, mw).MountRoutes)
	return r
}

func get(t *testing.T, h http.Handler, method, path string, actor int64) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if actor != 0 {
		req.Header.Set("X-Staff-ID", strconv.FormatInt(actor, 10))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSubordinatesEndpoint(t *testing.T) {
	h := newRouter(t, loadedStore(t))

	rec := get(t, h, http.MethodGet, "/authz/staff/2/subordinates", 2)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"staff_id":2,"subordinates":[3,4]}`, rec.Body.String())

	rec = get(t, h, http.MethodGet, "/authz/staff/3/subordinates", 2)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"staff_id":3,"subordinates":[]}`, rec.Body.String())

	rec = get(t, h, http.MethodGet, "/authz/staff/6/subordinates", 2)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = get(t, h, http.MethodGet, "/authz/staff/5/approvers", 1)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"staff_id":5,"approvers":[1]}`, rec.Body.String())

	rec = get(t, h, http.MethodGet, "/authz/staff/3/approvers", 0)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStaffListIsScoped(t *testing.T) {
	h := newRouter(t, loadedStore(t))

	decode := func(rec *httptest.ResponseRecorder) (string, []int64) {
		var body struct {
			Scope string        `json:"scope"`
			Staff []staff.Staff `json:"staff"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		ids := make([]int64, 0, len(body.Staff))
		for _, s := range body.Staff {
			ids = append(ids, s.ID)
		}
		return body.Scope, ids
	}

	// admin holds can_manage_users: all.
	rec := get(t, h, http.MethodGet, "/staff", 1)
	require.Equal(t, http.StatusOK, rec.Code)
	scope, ids := decode(rec)
	require.Equal(t, "all", scope)
	require.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7}, ids)

	rec = get(t, h, http.MethodGet, "/staff?page=2&per_page=3", 1)
	require.Equal(t, http.StatusOK, rec.Code)
	_, ids = decode(rec)
	require.Equal(t, []int64{4, 5, 6}, ids)

	// manager holds can_manage_users: none.
	rec = get(t, h, http.MethodGet, "/staff", 2)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Self-service read of one's own record.
	rec = get(t, h, http.MethodGet, "/staff/3", 3)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, h, http.MethodGet, "/staff/2", 3)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = get(t, h, http.MethodGet, "/staff/404", 1)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaffListSubordinateScope(t *testing.T) {
	table, err := rbac.DefaultRoleTable()
	require.NoError(t, err)
	for i := range table.Roles {
		if table.Roles[i].Name == "manager" {
			table.Roles[i].Grants[string(rbac.PermManageUsers)] = rbac.LevelGrant(rbac.GrantSubordinates)
		}
	}
	store := NewStore(StaticSource{Roles: rbac.StaticRoleSource{Table: table}, Staff: sampleStaff()}, discardLogger(), nil)
	_, err = store.Reload(context.Background())
	require.NoError(t, err)
	h := newRouter(t, store)

	rec := get(t, h, http.MethodGet, "/staff", 2)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Scope string        `json:"scope"`
		Staff []staff.Staff `json:"staff"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "subordinates", body.Scope)
	require.Len(t, body.Staff, 2)
	require.Equal(t, int64(3), body.Staff[0].ID)
	require.Equal(t, int64(4), body.Staff[1].ID)
}

func TestRolesAndReloadEndpoints(t *testing.T) {
	store := loadedStore(t)
	h := newRouter(t, store)

	// admin lacks can_manage_roles and can_manage_system_settings.
	require.Equal(t, http.StatusForbidden, get(t, h, http.MethodGet, "/roles", 1).Code)
	require.Equal(t, http.StatusForbidden, get(t, h, http.MethodPost, "/admin/directory/reload", 1).Code)

	records := append(sampleStaff(), staff.Staff{ID: 100, Name: "Root", RoleID: ref(1), Active: true})
	store = NewStore(StaticSource{Staff: records}, discardLogger(), nil)
	_, err := store.Reload(context.Background())
	require.NoError(t, err)
	h = newRouter(t, store)

	rec := get(t, h, http.MethodGet, "/roles", 100)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Version string `json:"version"`
		Roles   []struct {
			Name   string            `json:"name"`
			Grants map[string]string `json:"grants"`
		} `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "2024.1", body.Version)
	require.Len(t, body.Roles, 5)
	require.Equal(t, "super_admin", body.Roles[0].Name)
	require.Equal(t, "true", body.Roles[0].Grants["can_manage_roles"])

	before := store.Current().Version
	rec = get(t, h, http.MethodPost, "/admin/directory/reload", 100)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Greater(t, store.Current().Version, before)
}
