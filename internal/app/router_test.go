package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/staffline/staffline/internal/directory"
	"github.com/staffline/staffline/internal/observability"
	"github.com/staffline/staffline/internal/rbac"
	"github.com/staffline/staffline/internal/roles"
	"github.com/staffline/staffline/internal/shared"
	"github.com/staffline/staffline/internal/staff"
	"github.com/staffline/staffline/jobs"
)

type testServer struct {
	handler  http.Handler
	sessions *shared.SessionStore
	store    *directory.Store
	metrics  *observability.Metrics
	audit    *memorySink
}

func newTestServer(t *testing.T, cfg *Config, load bool) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := discardLogger()
	metrics := observability.NewMetrics()
	store := directory.NewStore(directory.StaticSource{Staff: []staff.Staff{
		{ID: 1, Name: "Ada", RoleID: ref(2), Active: true},
		{ID: 2, Name: "Ben", RoleID: ref(4), ReportingTo: ref(1), Active: true},
		{ID: 3, Name: "Cleo", RoleID: ref(5), ReportingTo: ref(2), Active: true},
	}}, logger, metrics)
	if load {
		_, err := store.Reload(context.Background())
		require.NoError(t, err)
	}

	sink := &memorySink{}
	mw := rbac.Middleware{
		Authorizer: store,
		Recorder:   &DecisionRecorder{Metrics: metrics, Audit: sink, Logger: logger},
		Logger:     logger,
	}
	sessions := shared.NewSessionStore(client, time.Hour)
	handler := NewRouter(RouterParams{
		Logger:           logger,
		Config:           cfg,
		Sessions:         sessions,
		Metrics:          metrics,
		Directory:        store,
		RBACHandler:      rbac.NewHandler(logger, store, mw),
		DirectoryHandler: directory.NewHandler(logger, store, nil, mw),
		StaffHandler:     staff.NewHandler(logger, store, mw),
		RolesHandler:     roles.NewHandler(logger, store, mw),
		JobHandler:       jobs.NewHandler(nil, logger),
	})
	return &testServer{handler: handler, sessions: sessions, store: store, metrics: metrics, audit: sink}
}

func (s *testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(t *testing.T, staffID int64) string {
	t.Helper()
	token, err := s.sessions.Issue(context.Background(), staffID)
	require.NoError(t, err)
	return token
}

func defaultTestConfig() *Config {
	return &Config{AppRequestTimeout: 5 * time.Second, RateLimitPerMinute: 1000}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, defaultTestConfig(), true)
	rec := srv.do(t, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok","snapshot_version":1,"role_table_version":"2024.1","staff":3}`, rec.Body.String())
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	srv = newTestServer(t, defaultTestConfig(), false)
	rec = srv.do(t, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// Guarded routes fail closed while the directory is not loaded.
	token := srv.login(t, 2)
	rec = srv.do(t, http.MethodGet, "/staff/3", token, "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBearerSessionResolvesActor(t *testing.T) {
	srv := newTestServer(t, defaultTestConfig(), true)

	rec := srv.do(t, http.MethodGet, "/authz/me/permissions", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(t, http.MethodGet, "/authz/me/permissions", "not-a-session", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(t, http.MethodGet, "/authz/me/permissions", srv.login(t, 2), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		StaffID int64 `json:"staff_id"`
		Grants  []struct {
			Permission string `json:"permission"`
			Grant      string `json:"grant"`
		} `json:"grants"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, int64(2), body.StaffID)
	require.Len(t, body.Grants, len(rbac.PermissionKeys()))
}

func TestDecisionsAreCountedAndAudited(t *testing.T) {
	srv := newTestServer(t, defaultTestConfig(), true)
	manager := srv.login(t, 2)

	// Managers hold can_manage_users: none, so editing a report is denied
	// and, being a mutation, audited.
	rec := srv.do(t, http.MethodGet, "/staff/3", manager, "")
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Len(t, srv.audit.entries, 1)
	require.Equal(t, "3", srv.audit.entries[0].EntityID)

	// Self-service read is allowed and not audited.
	rec = srv.do(t, http.MethodGet, "/staff/2", manager, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, srv.audit.entries, 1)

	rec = srv.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	metrics := rec.Body.String()
	require.Contains(t, metrics, `staffline_authz_decisions_total{effect="deny",permission="can_manage_users",reason="insufficient_grant"} 1`)
	require.Contains(t, metrics, `staffline_authz_decisions_total{effect="allow",permission="can_manage_users",reason=""} 1`)
	require.Contains(t, metrics, `staffline_directory_staff 3`)
	require.Contains(t, metrics, `staffline_http_requests_total{code="403",route="/staff/{id}"} 1`)
}

func TestDecideEndpointIsRateLimited(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.RateLimitPerMinute = 8
	srv := newTestServer(t, cfg, true)
	token := srv.login(t, 2)

	body := `{"actor_id":2,"permission":"can_approve_leave","target_id":3}`
	rec := srv.do(t, http.MethodPost, "/authz/decide", token, body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"effect":"allow"`)

	rec = srv.do(t, http.MethodPost, "/authz/decide", token, body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodPost, "/authz/decide", token, body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Other routes keep their own budget.
	rec = srv.do(t, http.MethodGet, "/jobs/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
}
