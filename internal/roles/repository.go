package roles

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/staffline/staffline/internal/platform/db"
	"github.com/staffline/staffline/internal/rbac"
)

// Repository loads and stores the role table in PostgreSQL. It implements
// rbac.RoleSource.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a repository over a pool or a transaction.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return &Repository{db: tx}
}

// LoadRoleTable reads every role. The version is derived from the most recent
// update so that reloads can be told apart in logs.
func (r *Repository) LoadRoleTable(ctx context.Context) (rbac.RoleTable, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, description, hierarchy_level, is_active, grants, updated_at FROM roles ORDER BY id`)
	if err != nil {
		return rbac.RoleTable{}, fmt.Errorf("roles: load: %w", err)
	}
	defer rows.Close()

	var (
		table  rbac.RoleTable
		latest time.Time
	)
	for rows.Next() {
		var (
			def       rbac.RoleDefinition
			rawGrants []byte
			updatedAt time.Time
		)
		if err := rows.Scan(&def.ID, &def.Name, &def.Description, &def.HierarchyLevel, &def.Active, &rawGrants, &updatedAt); err != nil {
			return rbac.RoleTable{}, fmt.Errorf("roles: scan: %w", err)
		}
		if len(rawGrants) > 0 {
			if err := json.Unmarshal(rawGrants, &def.Grants); err != nil {
				return rbac.RoleTable{}, fmt.Errorf("roles: role %d grants: %w", def.ID, err)
			}
		}
		if updatedAt.After(latest) {
			latest = updatedAt
		}
		table.Roles = append(table.Roles, def)
	}
	if err := rows.Err(); err != nil {
		return rbac.RoleTable{}, fmt.Errorf("roles: load: %w", err)
	}
	table.Version = "db-" + latest.UTC().Format(time.RFC3339)
	if err := table.Validate(); err != nil {
		return rbac.RoleTable{}, err
	}
	return table, nil
}

// Upsert writes every role of table.
func (r *Repository) Upsert(ctx context.Context, table rbac.RoleTable) error {
	for _, def := range table.Roles {
		grants, err := json.Marshal(def.Grants)
		if err != nil {
			return fmt.Errorf("roles: encode grants of %q: %w", def.Name, err)
		}
		_, err = r.db.Exec(ctx, `
INSERT INTO roles (id, name, description, hierarchy_level, is_active, grants, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW())
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	description = EXCLUDED.description,
	hierarchy_level = EXCLUDED.hierarchy_level,
	is_active = EXCLUDED.is_active,
	grants = EXCLUDED.grants,
	updated_at = NOW()`,
			def.ID, def.Name, def.Description, def.HierarchyLevel, def.Active, grants)
		if err != nil {
			return fmt.Errorf("roles: upsert %q: %w", def.Name, err)
		}
	}
	return nil
}
