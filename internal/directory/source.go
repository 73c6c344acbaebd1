package directory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/staffline/staffline/internal/platform/db"
	"github.com/staffline/staffline/internal/rbac"
	"github.com/staffline/staffline/internal/roles"
	"github.com/staffline/staffline/internal/staff"
)

// Source loads the data a snapshot is built from.
type Source interface {
	Load(ctx context.Context) (rbac.RoleTable, []staff.Staff, error)
}

// PostgresSource reads staff, and roles unless Roles is set, inside a single
// read-only RepeatableRead transaction.
type PostgresSource struct {
	Conn  db.Beginner
	Roles rbac.RoleSource
}

// Load implements Source.
func (s PostgresSource) Load(ctx context.Context) (rbac.RoleTable, []staff.Staff, error) {
	var (
		table   rbac.RoleTable
		records []staff.Staff
	)
	err := db.WithSnapshotTx(ctx, s.Conn, func(tx pgx.Tx) error {
		var err error
		records, err = staff.NewRepository(tx).List(ctx)
		if err != nil {
			return err
		}
		if s.Roles == nil {
			table, err = roles.NewRepository(tx).LoadRoleTable(ctx)
		}
		return err
	})
	if err != nil {
		return rbac.RoleTable{}, nil, fmt.Errorf("directory: load: %w", err)
	}
	if s.Roles != nil {
		table, err = s.Roles.LoadRoleTable(ctx)
		if err != nil {
			return rbac.RoleTable{}, nil, fmt.Errorf("directory: load roles: %w", err)
		}
	}
	return table, records, nil
}

// StaticSource serves fixed data. Tests and the CLI use it.
type StaticSource struct {
	Roles rbac.RoleSource
	Staff []staff.Staff
}

// Load implements Source.
func (s StaticSource) Load(ctx context.Context) (rbac.RoleTable, []staff.Staff, error) {
	roleSource := s.Roles
	if roleSource == nil {
		roleSource = rbac.FileRoleSource{}
	}
	table, err := roleSource.LoadRoleTable(ctx)
	if err != nil {
		return rbac.RoleTable{}, nil, err
	}
	records := make([]staff.Staff, len(s.Staff))
	copy(records, s.Staff)
	return table, records, nil
}
