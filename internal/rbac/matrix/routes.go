package matrix

import "github.com/staffline/staffline/internal/rbac"

// Route is an HTTP endpoint guarded by a permission.
type Route struct {
	Method  string `json:"method"`
	Pattern string `json:"pattern"`
}

// RouteCatalog maps permissions to the endpoint that exercises them.
type RouteCatalog map[rbac.Permission]Route

// DefaultRoutes lists the endpoints served by this service. Permissions
// enforced by other services have no entry.
func DefaultRoutes() RouteCatalog {
	return RouteCatalog{
		rbac.PermManageUsers:          {Method: "GET", Pattern: "/staff/{id}"},
		rbac.PermViewReports:          {Method: "GET", Pattern: "/authz/staff/{id}/subordinates"},
		rbac.PermManageRoles:          {Method: "GET", Pattern: "/roles"},
		rbac.PermManageSystemSettings: {Method: "POST", Pattern: "/admin/directory/reload"},
	}
}
