package rbac

import (
	"errors"
	"fmt"
)

// Subject is the authorization view of a staff member, either the actor or
// the target of a check.
type Subject struct {
	ID     int64
	RoleID *int64
	Active bool
}

// Relations answers reporting-graph questions. *orggraph.Graph implements it.
type Relations interface {
	IsSubordinateOf(candidateID, managerID int64) (bool, error)
}

// ErrStructural wraps graph faults surfaced by Decide.
var ErrStructural = errors.New("rbac: structural error")

// Engine decides authorization requests against one registry and one graph
// snapshot. It holds no mutable state and is safe for concurrent use.
type Engine struct {
	registry  *Registry
	relations Relations
}

// NewEngine binds an engine to a snapshot. A nil relations value behaves like
// a graph without edges.
func NewEngine(registry *Registry, relations Relations) *Engine {
	return &Engine{registry: registry, relations: relations}
}

// Registry returns the registry the engine reads grants from.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Decide evaluates whether actor may exercise permission, optionally against
// target. Ordinary outcomes are returned as a Decision with a nil error. The
// error is non-nil only for structural faults in the reporting graph; the
// accompanying decision is then Deny(structural_error) so callers can fail safe.
func (e *Engine) Decide(actor *Subject, permission Permission, target *Subject) (Decision, error) {
	d := Decision{Effect: Deny, Permission: permission}
	if target != nil {
		id := target.ID
		d.TargetID = &id
	}
	if actor == nil || !actor.Active {
		d.Reason = ReasonUnauthenticated
		return d, nil
	}
	d.ActorID = actor.ID

	actorRole, ok := e.activeRole(actor.RoleID)
	if !ok {
		d.Reason = ReasonNoRole
		return d, nil
	}

	traits := permission.Traits()
	self := target != nil && target.ID == actor.ID
	if traits.Approval && self {
		d.Reason = ReasonSelfApprovalForbidden
		return d, nil
	}

	grant := e.registry.Grant(actorRole.ID, permission)
	d.Grant = grant

	if grant.Kind == KindGlobal {
		if !grant.Allowed {
			d.Reason = ReasonInsufficientGrant
			return d, nil
		}
		return allow(d, ScopeGlobal), nil
	}

	if traits.SelfService && self {
		return allow(d, ScopeSelf), nil
	}

	switch grant.Level {
	case GrantAll:
		if target != nil {
			if reason, denied := e.checkTarget(actorRole, traits, target); denied {
				d.Reason = reason
				return d, nil
			}
		}
		return allow(d, ScopeAll), nil
	case GrantSubordinates:
		if target == nil {
			return allow(d, ScopeSubordinates), nil
		}
		sub, err := e.isSubordinate(target.ID, actor.ID)
		if err != nil {
			d.Reason = ReasonStructuralError
			return d, fmt.Errorf("%w: %w", ErrStructural, err)
		}
		if !sub {
			d.Reason = ReasonNotSubordinate
			return d, nil
		}
		if reason, denied := e.checkTarget(actorRole, traits, target); denied {
			d.Reason = reason
			return d, nil
		}
		return allow(d, ScopeSubordinates), nil
	default:
		d.Reason = ReasonInsufficientGrant
		return d, nil
	}
}

// Allowed is a convenience wrapper returning only whether the action is
// permitted; structural faults count as deny.
func (e *Engine) Allowed(actor *Subject, permission Permission, target *Subject) bool {
	d, err := e.Decide(actor, permission, target)
	return err == nil && d.Allowed()
}

// EffectiveGrants returns the grants the actor's role holds for every catalog
// key. Actors without an active role receive the most restrictive grants.
func (e *Engine) EffectiveGrants(actor *Subject) map[Permission]Grant {
	out := make(map[Permission]Grant, len(catalog))
	var roleID int64
	if actor != nil && actor.Active && actor.RoleID != nil {
		roleID = *actor.RoleID
	}
	for _, spec := range catalog {
		out[spec.Key] = e.registry.Grant(roleID, spec.Key)
	}
	return out
}

func allow(d Decision, scope Scope) Decision {
	d.Effect = Allow
	d.Reason = ReasonNone
	d.Scope = scope
	return d
}

func (e *Engine) activeRole(roleID *int64) (Role, bool) {
	if roleID == nil {
		return Role{}, false
	}
	role, ok := e.registry.Role(*roleID)
	if !ok || !role.Active {
		return Role{}, false
	}
	return role, true
}

func (e *Engine) isSubordinate(candidateID, managerID int64) (bool, error) {
	if e.relations == nil {
		return false, nil
	}
	return e.relations.IsSubordinateOf(candidateID, managerID)
}

// checkTarget applies the mutation-only rules: inactive targets cannot be
// mutated and a target holding strictly more authority than the actor is off
// limits whatever the grant.
func (e *Engine) checkTarget(actorRole Role, traits Traits, target *Subject) (Reason, bool) {
	if !traits.Mutation {
		return ReasonNone, false
	}
	if !target.Active {
		return ReasonInactiveTarget, true
	}
	if target.RoleID == nil {
		return ReasonNone, false
	}
	targetRole, ok := e.registry.Role(*target.RoleID)
	if !ok {
		return ReasonNone, false
	}
	if targetRole.HierarchyLevel < actorRole.HierarchyLevel {
		return ReasonHierarchyViolation, true
	}
	return ReasonNone, false
}
