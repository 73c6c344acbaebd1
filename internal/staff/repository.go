package staff

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/staffline/staffline/internal/platform/db"
)

const staffColumns = `id, employee_code, name, email, role_id, reporting_to, approving_manager_id, is_active, created_at, updated_at`

// Repository provides PostgreSQL backed persistence.
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

// List returns every staff record ordered by id.
func (r *Repository) List(ctx context.Context) ([]Staff, error) {
	rows, err := r.db.Query(ctx, `SELECT `+staffColumns+` FROM staff ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("staff: list: %w", err)
	}
	defer rows.Close()
	var out []Staff
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("staff: list: %w", err)
	}
	return out, nil
}

// Get fetches one staff record.
func (r *Repository) Get(ctx context.Context, id int64) (Staff, error) {
	row := r.db.QueryRow(ctx, `SELECT `+staffColumns+` FROM staff WHERE id = $1`, id)
	s, err := scanStaff(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Staff{}, ErrNotFound
		}
		return Staff{}, err
	}
	return s, nil
}

// Upsert inserts or updates a staff record by id.
func (r *Repository) Upsert(ctx context.Context, s Staff) error {
	_, err := r.db.Exec(ctx, `
INSERT INTO staff (id, employee_code, name, email, role_id, reporting_to, approving_manager_id, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
ON CONFLICT (id) DO UPDATE SET
	employee_code = EXCLUDED.employee_code,
	name = EXCLUDED.name,
	email = EXCLUDED.email,
	role_id = EXCLUDED.role_id,
	reporting_to = EXCLUDED.reporting_to,
	approving_manager_id = EXCLUDED.approving_manager_id,
	is_active = EXCLUDED.is_active,
	updated_at = NOW()`,
		s.ID, s.EmployeeCode, s.Name, s.Email, s.RoleID, s.ReportingTo, s.ApprovingManagerID, s.Active)
	if err != nil {
		return fmt.Errorf("staff: upsert %d: %w", s.ID, err)
	}
	return nil
}

func scanStaff(row pgx.Row) (Staff, error) {
	var s Staff
	err := row.Scan(&s.ID, &s.EmployeeCode, &s.Name, &s.Email, &s.RoleID, &s.ReportingTo, &s.ApprovingManagerID, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}
