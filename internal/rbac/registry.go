package rbac

import (
	"sort"
)

// Role is a resolved role definition.
type Role struct {
	ID             int64
	Name           string
	Description    string
	HierarchyLevel int
	Active         bool
	grants         map[Permission]Grant
}

// Grants returns a copy of the role's resolved grants for every catalog key.
func (r Role) Grants() map[Permission]Grant {
	out := make(map[Permission]Grant, len(catalog))
	for _, spec := range catalog {
		out[spec.Key] = r.grant(spec.Key, spec.Kind)
	}
	return out
}

func (r Role) grant(key Permission, kind PermissionKind) Grant {
	if g, ok := r.grants[key]; ok {
		return g
	}
	return restrictive(kind)
}

// Registry is an immutable in-memory lookup over a loaded role table.
type Registry struct {
	version string
	byID    map[int64]Role
	ordered []Role
}

// NewRegistry resolves every grant of the table. The table is validated first.
func NewRegistry(table RoleTable) (*Registry, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	reg := &Registry{
		version: table.Version,
		byID:    make(map[int64]Role, len(table.Roles)),
		ordered: make([]Role, 0, len(table.Roles)),
	}
	for _, def := range table.Roles {
		role := Role{
			ID:             def.ID,
			Name:           NormalizeRoleName(def.Name),
			Description:    def.Description,
			HierarchyLevel: def.HierarchyLevel,
			Active:         def.Active,
			grants:         make(map[Permission]Grant, len(def.Grants)),
		}
		for key, value := range def.Grants {
			perm := Permission(key)
			kind := perm.Kind()
			if kind == KindUnknown {
				continue
			}
			grant, err := value.Resolve(kind)
			if err != nil {
				return nil, err
			}
			role.grants[perm] = grant
		}
		reg.byID[role.ID] = role
		reg.ordered = append(reg.ordered, role)
	}
	sort.SliceStable(reg.ordered, func(i, j int) bool {
		if reg.ordered[i].HierarchyLevel == reg.ordered[j].HierarchyLevel {
			return reg.ordered[i].Name < reg.ordered[j].Name
		}
		return reg.ordered[i].HierarchyLevel < reg.ordered[j].HierarchyLevel
	})
	return reg, nil
}

// Version returns the role table version the registry was built from.
func (r *Registry) Version() string {
	if r == nil {
		return ""
	}
	return r.version
}

// Role returns the role with the given id, active or not.
func (r *Registry) Role(id int64) (Role, bool) {
	if r == nil {
		return Role{}, false
	}
	role, ok := r.byID[id]
	return role, ok
}

// RoleByName looks a role up by its slug.
func (r *Registry) RoleByName(name string) (Role, bool) {
	if r == nil {
		return Role{}, false
	}
	name = NormalizeRoleName(name)
	for _, role := range r.ordered {
		if role.Name == name {
			return role, true
		}
	}
	return Role{}, false
}

// Roles returns all roles ordered by hierarchy level, then name.
func (r *Registry) Roles() []Role {
	if r == nil {
		return nil
	}
	out := make([]Role, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Grant returns the grant of roleID for permission. It never fails: a missing
// or inactive role, or a key outside the catalog, yields the most restrictive
// grant for the permission's kind.
func (r *Registry) Grant(roleID int64, permission Permission) Grant {
	kind := permission.Kind()
	if kind == KindUnknown {
		return restrictive(KindScoped)
	}
	role, ok := r.Role(roleID)
	if !ok || !role.Active {
		return restrictive(kind)
	}
	return role.grant(permission, kind)
}
