package rbac

import "strings"

// Permission is a permission key as stored in role grant maps.
type Permission string

// Relationship-scoped permissions. Their grant level is none, subordinates or all.
const (
	PermApproveLeave       Permission = "can_approve_leave"
	PermApproveOnDuty      Permission = "can_approve_on_duty"
	PermManageUsers        Permission = "can_manage_users"
	PermViewReports        Permission = "can_view_reports"
	PermManageActiveOnDuty Permission = "can_manage_active_on_duty"
	PermManageSchedule     Permission = "can_manage_schedule"
	PermViewActivities     Permission = "can_view_activities"
	PermApproveTimeOff     Permission = "can_approve_time_off"
)

// Global permissions. Their grant is a plain boolean.
const (
	PermManageLeaveTypes     Permission = "can_manage_leave_types"
	PermAccessWebApp         Permission = "can_access_web_app"
	PermManageRoles          Permission = "can_manage_roles"
	PermManageEmailSettings  Permission = "can_manage_email_settings"
	PermManageSystemSettings Permission = "can_manage_system_settings"
)

// PermissionKind distinguishes tri-state from boolean permissions.
type PermissionKind int

const (
	// KindUnknown is returned for keys outside the catalog.
	KindUnknown PermissionKind = iota
	// KindScoped permissions carry a GrantLevel evaluated against the org graph.
	KindScoped
	// KindGlobal permissions are plain capabilities with no target evaluation.
	KindGlobal
)

// String returns the lowercase kind name.
func (k PermissionKind) String() string {
	switch k {
	case KindScoped:
		return "scoped"
	case KindGlobal:
		return "global"
	default:
		return "unknown"
	}
}

// Traits flags the special handling a permission receives in the engine.
type Traits struct {
	// Approval permissions can never be exercised by an actor on their own record.
	Approval bool
	// SelfService permissions are always allowed on the actor's own record.
	SelfService bool
	// Mutation permissions are subject to the hierarchy sanity check and the
	// inactive target rule.
	Mutation bool
}

// PermissionSpec describes one entry of the permission catalog.
type PermissionSpec struct {
	Key         Permission
	Kind        PermissionKind
	Traits      Traits
	Description string
}

var catalog = []PermissionSpec{
	{Key: PermApproveLeave, Kind: KindScoped, Traits: Traits{Approval: true}, Description: "Approve leave requests"},
	{Key: PermApproveOnDuty, Kind: KindScoped, Traits: Traits{Approval: true}, Description: "Approve on-duty requests"},
	{Key: PermManageUsers, Kind: KindScoped, Traits: Traits{SelfService: true, Mutation: true}, Description: "Create and edit staff records"},
	{Key: PermViewReports, Kind: KindScoped, Traits: Traits{SelfService: true}, Description: "View attendance and leave reports"},
	{Key: PermManageActiveOnDuty, Kind: KindScoped, Traits: Traits{SelfService: true, Mutation: true}, Description: "End or modify active on-duty sessions"},
	{Key: PermManageSchedule, Kind: KindScoped, Traits: Traits{SelfService: true, Mutation: true}, Description: "Manage working schedules"},
	{Key: PermViewActivities, Kind: KindScoped, Traits: Traits{SelfService: true}, Description: "View activity logs"},
	{Key: PermApproveTimeOff, Kind: KindScoped, Traits: Traits{Approval: true}, Description: "Approve time-off requests"},
	{Key: PermManageLeaveTypes, Kind: KindGlobal, Description: "Manage leave types"},
	{Key: PermAccessWebApp, Kind: KindGlobal, Description: "Sign in to the web application"},
	{Key: PermManageRoles, Kind: KindGlobal, Description: "Manage roles and their grants"},
	{Key: PermManageEmailSettings, Kind: KindGlobal, Description: "Manage email notification settings"},
	{Key: PermManageSystemSettings, Kind: KindGlobal, Description: "Manage system settings"},
}

var catalogIndex = func() map[Permission]PermissionSpec {
	idx := make(map[Permission]PermissionSpec, len(catalog))
	for _, spec := range catalog {
		idx[spec.Key] = spec
	}
	return idx
}()

// Permissions returns the full catalog in declaration order.
func Permissions() []PermissionSpec {
	out := make([]PermissionSpec, len(catalog))
	copy(out, catalog)
	return out
}

// PermissionKeys returns every catalog key in declaration order.
func PermissionKeys() []Permission {
	keys := make([]Permission, len(catalog))
	for i, spec := range catalog {
		keys[i] = spec.Key
	}
	return keys
}

// Lookup returns the catalog entry for key.
func Lookup(key Permission) (PermissionSpec, bool) {
	spec, ok := catalogIndex[key]
	return spec, ok
}

// ParsePermission normalises raw input and checks it against the catalog.
func ParsePermission(raw string) (Permission, bool) {
	key := Permission(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := catalogIndex[key]
	return key, ok
}

// Kind returns the permission kind, KindUnknown for keys outside the catalog.
func (p Permission) Kind() PermissionKind {
	return catalogIndex[p].Kind
}

// Traits returns the engine traits of p. Unknown keys have no traits.
func (p Permission) Traits() Traits {
	return catalogIndex[p].Traits
}
