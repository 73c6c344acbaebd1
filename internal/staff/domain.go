package staff

import (
	"errors"
	"time"

	"github.com/staffline/staffline/internal/orggraph"
	"github.com/staffline/staffline/internal/rbac"
)

// ErrNotFound indicates that the requested staff member does not exist.
var ErrNotFound = errors.New("staff: not found")

// Staff is a staff record as stored in the staff table.
type Staff struct {
	ID                 int64     `json:"id"`
	EmployeeCode       string    `json:"employee_code"`
	Name               string    `json:"name"`
	Email              string    `json:"email"`
	RoleID             *int64    `json:"role_id,omitempty"`
	ReportingTo        *int64    `json:"reporting_to,omitempty"`
	ApprovingManagerID *int64    `json:"approving_manager_id,omitempty"`
	Active             bool      `json:"active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Subject returns the authorization view of the record.
func (s Staff) Subject() *rbac.Subject {
	return &rbac.Subject{ID: s.ID, RoleID: s.RoleID, Active: s.Active}
}

// Node returns the org graph view of the record.
func (s Staff) Node() orggraph.Node {
	return orggraph.Node{ID: s.ID, ReportingTo: s.ReportingTo, ApprovingManagerID: s.ApprovingManagerID}
}
