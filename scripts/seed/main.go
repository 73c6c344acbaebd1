package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/staffline/staffline/internal/app"
	"github.com/staffline/staffline/internal/directory"
	"github.com/staffline/staffline/internal/platform/cache"
	"github.com/staffline/staffline/internal/platform/db"
	"github.com/staffline/staffline/internal/rbac"
	"github.com/staffline/staffline/internal/roles"
	"github.com/staffline/staffline/internal/shared"
	"github.com/staffline/staffline/internal/staff"
	"github.com/staffline/staffline/migrations"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	fmt.Println("→ Applying schema...")
	if err := migrations.Apply(ctx, pool); err != nil {
		log.Fatalf("apply schema: %v", err)
	}

	table, err := rbac.DefaultRoleTable()
	if err != nil {
		log.Fatalf("default role table: %v", err)
	}
	records := demoStaff()

	fmt.Println("→ Seeding roles and staff...")
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
	if err != nil {
		log.Fatalf("seed directory: %v", err)
	}
	fmt.Printf("  %d roles, %d staff\n", len(table.Roles), len(records))

	if getenv("SEED_SESSIONS", "") == "" {
		fmt.Println("✓ Done (set SEED_SESSIONS=1 to issue demo tokens)")
		return
	}

	client, err := cache.New(ctx, cfg.Redis("staffline-seed"))
	if err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	defer client.Close()

	fmt.Println("→ Issuing demo sessions...")
	sessions := shared.NewSessionStore(client, cfg.SessionTTL)
	for _, s := range records {
		if !s.Active {
			continue
		}
		token, err := sessions.Issue(ctx, s.ID)
		if err != nil {
			log.Fatalf("issue session for %d: %v", s.ID, err)
		}
		fmt.Printf("  %-4d %-16s %s\n", s.ID, s.Name, token)
	}

	// Running servers pick up the new rows without waiting for a restart.
	bump := directory.NewInvalidator(client, cfg.DirectoryChannel, nil, nil)
	if err := bump.Publish(ctx); err != nil {
		log.Printf("publish reload: %v", err)
	}
	fmt.Println("✓ Done")
}

func ref(id int64) *int64 { return &id }

// demoStaff returns a small company. Role ids follow the default role table:
// 1 super_admin, 2 admin, 3 hr, 4 manager, 5 employee.
func demoStaff() []staff.Staff {
	return []staff.Staff{
		{ID: 1, EmployeeCode: "E0001", Name: "Sasha Root", Email: "root@staffline.local", RoleID: ref(1), Active: true},
		{ID: 2, EmployeeCode: "E0002", Name: "Alex Admin", Email: "admin@staffline.local", RoleID: ref(2), ReportingTo: ref(1), Active: true},
		{ID: 3, EmployeeCode: "E0003", Name: "Harper People", Email: "hr@staffline.local", RoleID: ref(3), ReportingTo: ref(2), Active: true},
		{ID: 10, EmployeeCode: "E0010", Name: "Morgan Ops", Email: "ops.lead@staffline.local", RoleID: ref(4), ReportingTo: ref(2), Active: true},
		{ID: 11, EmployeeCode: "E0011", Name: "Riley Floor", Email: "floor.lead@staffline.local", RoleID: ref(4), ReportingTo: ref(10), Active: true},
		{ID: 20, EmployeeCode: "E0020", Name: "Jamie Shift", Email: "jamie@staffline.local", RoleID: ref(5), ReportingTo: ref(11), Active: true},
		{ID: 21, EmployeeCode: "E0021", Name: "Casey Shift", Email: "casey@staffline.local", RoleID: ref(5), ReportingTo: ref(11), ApprovingManagerID: ref(10), Active: true},
		{ID: 22, EmployeeCode: "E0022", Name: "Quinn Former", Email: "quinn@staffline.local", RoleID: ref(5), ReportingTo: ref(10), Active: false},
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
