package shared

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newSessionStore(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionStore(client, time.Hour), mr
}

func TestSessionStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store, mr := newSessionStore(t)

	token, err := store.Issue(ctx, 42)
	require.NoError(t, err)
	require.True(t, mr.Exists("session:"+token))

	id, err := store.Resolve(ctx, token)
	require.NoError(t, err)
	require.Equal(t, int64(42), id)

	require.NoError(t, store.Revoke(ctx, token))
	_, err = store.Resolve(ctx, token)
	require.ErrorIs(t, err, ErrSessionNotFound)

	token, err = store.Issue(ctx, 7)
	require.NoError(t, err)
	mr.FastForward(2 * time.Hour)
	_, err = store.Resolve(ctx, token)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionMiddleware(t *testing.T) {
	store, _ := newSessionStore(t)
	token, err := store.Issue(context.Background(), 11)
	require.NoError(t, err)

	var gotID int64
	var gotOK bool
	handler := store.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, gotOK = ActorFromContext(r.Context())
	}))

	cases := []struct {
		name   string
		header string
		wantOK bool
	}{
		{"valid token", "Bearer " + token, true},
		{"lowercase scheme", "bearer " + token, true},
		{"missing header", "", false},
		{"wrong scheme", "Basic " + token, false},
		{"unknown token", "Bearer nope", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gotID, gotOK = 0, false
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)
			require.Equal(t, tc.wantOK, gotOK)
			if tc.wantOK {
				require.Equal(t, int64(11), gotID)
			}
		})
	}
}

type recordingExecer struct {
	sql  string
	args []any
	err  error
}

func (e *recordingExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	e.sql = sql
	e.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), e.err
}

func TestAuditLoggerRecord(t *testing.T) {
	ctx := context.Background()
	db := &recordingExecer{}
	logger := NewAuditLogger(db)

	err := logger.Record(ctx, AuditLog{ActorID: 3, Action: "authz.deny", Entity: "permission", EntityID: "can_manage_users", Meta: map[string]any{"reason": "hierarchy_violation"}})
	require.NoError(t, err)
	require.Contains(t, db.sql, "INSERT INTO audit_logs")
	require.Equal(t, int64(3), db.args[0])
	require.JSONEq(t, `{"reason":"hierarchy_violation"}`, string(db.args[4].([]byte)))

	require.Error(t, logger.Record(ctx, AuditLog{Action: "authz.deny"}))

	db.err = errors.New("boom")
	require.Error(t, logger.Record(ctx, AuditLog{Action: "a", Entity: "b", EntityID: "c"}))

	var nilLogger *AuditLogger
	require.Error(t, nilLogger.Record(ctx, AuditLog{Action: "a", Entity: "b", EntityID: "c"}))
}

func TestPaginationBounds(t *testing.T) {
	p := NewPagination(2, 10, 25)
	require.Equal(t, 3, p.TotalPages)
	start, end := p.Bounds()
	require.Equal(t, 10, start)
	require.Equal(t, 20, end)

	p = NewPagination(5, 10, 25)
	start, end = p.Bounds()
	require.Equal(t, 25, start)
	require.Equal(t, 25, end)

	p = NewPagination(0, 1000, 5)
	require.Equal(t, 1, p.Page)
	require.Equal(t, 200, p.PerPage)
}
