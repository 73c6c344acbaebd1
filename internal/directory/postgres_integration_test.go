//go:build integration

package directory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/staffline/staffline/internal/platform/db"
	"github.com/staffline/staffline/internal/rbac"
	"github.com/staffline/staffline/internal/roles"
	"github.com/staffline/staffline/internal/shared"
	"github.com/staffline/staffline/internal/staff"
	"github.com/staffline/staffline/migrations"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("staffline_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := db.New(ctx, dsn, 4)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, migrations.Apply(ctx, pool))
	// Scripts are idempotent.
	require.NoError(t, migrations.Apply(ctx, pool))
	return pool
}

func seedDirectory(t *testing.T, pool *pgxpool.Pool, records []staff.Staff) {
	t.Helper()
	ctx := context.Background()
	table, err := rbac.DefaultRoleTable()
	require.NoError(t, err)
	err = db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		if err := roles.NewRepository(tx).Upsert(ctx, table); err != nil {
			return err
		}
		repo := staff.NewRepository(tx)
		for _, s := range records {
			if err := repo.Upsert(ctx, s); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestPostgresSourceLoadsDirectory(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t)
	seedDirectory(t, pool, sampleStaff())

	rec, err := staff.NewRepository(pool).Get(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, "Ben", rec.Name)
	require.Equal(t, int64(1), *rec.ReportingTo)
	require.False(t, rec.CreatedAt.IsZero())

	_, err = staff.NewRepository(pool).Get(ctx, 404)
	require.ErrorIs(t, err, staff.ErrNotFound)

	store := NewStore(PostgresSource{Conn: pool}, discardLogger(), nil)
	snap, err := store.Reload(ctx)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(snap.Registry.Version(), "db-"))

	all, err := store.AllStaff(ctx)
	require.NoError(t, err)
	require.Len(t, all, 7)

	d, err := store.Authorize(ctx, 2, rbac.PermApproveLeave, ref(3))
	require.NoError(t, err)
	require.True(t, d.Allowed())

	d, err = store.Authorize(ctx, 2, rbac.PermApproveLeave, ref(6))
	require.NoError(t, err)
	require.Equal(t, rbac.DenyOutcome(rbac.ReasonNotSubordinate), d.Outcome())

	// Changes become visible on the next reload only.
	require.NoError(t, staff.NewRepository(pool).Upsert(ctx, staff.Staff{ID: 6, Name: "Finn", RoleID: ref(5), ReportingTo: ref(2), Active: true}))
	d, err = store.Authorize(ctx, 2, rbac.PermApproveLeave, ref(6))
	require.NoError(t, err)
	require.False(t, d.Allowed())

	_, err = store.Reload(ctx)
	require.NoError(t, err)
	d, err = store.Authorize(ctx, 2, rbac.PermApproveLeave, ref(6))
	require.NoError(t, err)
	require.True(t, d.Allowed())
}

func TestPostgresSourceWithFileRoles(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t)
	seedDirectory(t, pool, sampleStaff())

	store := NewStore(PostgresSource{Conn: pool, Roles: rbac.FileRoleSource{}}, discardLogger(), nil)
	snap, err := store.Reload(ctx)
	require.NoError(t, err)
	require.Equal(t, "2024.1", snap.Registry.Version())
}

func TestAuditLoggerPersists(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t)

	audit := shared.NewAuditLogger(pool)
	require.NoError(t, audit.Record(ctx, shared.AuditLog{
		ActorID:  2,
		Action:   "authz.deny",
		Entity:   "staff",
		EntityID: "6",
		Meta:     map[string]any{"permission": "can_approve_leave", "reason": "not_subordinate"},
	}))
	require.Error(t, audit.Record(ctx, shared.AuditLog{ActorID: 2}))

	var (
		count  int
		reason string
	)
	err := pool.QueryRow(ctx, `SELECT COUNT(*), MAX(meta->>'reason') FROM audit_logs WHERE entity = 'staff' AND entity_id = '6'`).Scan(&count, &reason)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Equal(t, "not_subordinate", reason)
}
