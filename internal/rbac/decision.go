package rbac

import (
	"encoding/json"
	"fmt"
)

// Effect is the outcome of an authorization check.
type Effect int

const (
	// Deny means the action is not permitted.
	Deny Effect = iota
	// Allow means the action is permitted.
	Allow
)

// String returns "allow" or "deny".
func (e Effect) String() string {
	if e == Allow {
		return "allow"
	}
	return "deny"
}

// MarshalText renders the effect as its string form.
func (e Effect) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText parses "allow" or "deny".
func (e *Effect) UnmarshalText(text []byte) error {
	switch string(text) {
	case "allow":
		*e = Allow
	case "deny":
		*e = Deny
	default:
		return fmt.Errorf("rbac: unknown effect %q", text)
	}
	return nil
}

// Reason classifies why a check was denied.
type Reason string

// Deny reasons. The empty reason accompanies Allow.
const (
	ReasonNone                  Reason = ""
	ReasonUnauthenticated       Reason = "unauthenticated"
	ReasonNoRole                Reason = "no_role"
	ReasonInsufficientGrant     Reason = "insufficient_grant"
	ReasonNotSubordinate        Reason = "not_subordinate"
	ReasonSelfApprovalForbidden Reason = "self_approval_forbidden"
	ReasonHierarchyViolation    Reason = "hierarchy_violation"
	ReasonInactiveTarget        Reason = "inactive_target"
	ReasonStructuralError       Reason = "structural_error"
)

// Reasons lists every deny reason.
func Reasons() []Reason {
	return []Reason{
		ReasonUnauthenticated,
		ReasonNoRole,
		ReasonInsufficientGrant,
		ReasonNotSubordinate,
		ReasonSelfApprovalForbidden,
		ReasonHierarchyViolation,
		ReasonInactiveTarget,
		ReasonStructuralError,
	}
}

// Scope tells the caller how far an Allow reaches. Collection-level checks
// with ScopeSubordinates must be filtered to the actor's subordinate set.
type Scope string

const (
	ScopeNone         Scope = ""
	ScopeGlobal       Scope = "global"
	ScopeSelf         Scope = "self"
	ScopeSubordinates Scope = "subordinates"
	ScopeAll          Scope = "all"
)

// Decision is the ephemeral result of Engine.Decide.
type Decision struct {
	Effect     Effect
	Reason     Reason
	Scope      Scope
	Permission Permission
	ActorID    int64
	TargetID   *int64
	Grant      Grant
}

// Allowed reports whether the decision permits the action.
func (d Decision) Allowed() bool {
	return d.Effect == Allow
}

// Outcome is the comparable part of a decision: effect plus reason.
type Outcome struct {
	Effect Effect `json:"effect"`
	Reason Reason `json:"reason,omitempty"`
}

// AllowOutcome builds an allow outcome.
func AllowOutcome() Outcome { return Outcome{Effect: Allow} }

// DenyOutcome builds a deny outcome with reason.
func DenyOutcome(reason Reason) Outcome { return Outcome{Effect: Deny, Reason: reason} }

// String renders "allow" or "deny(reason)".
func (o Outcome) String() string {
	if o.Effect == Allow {
		return "allow"
	}
	return "deny(" + string(o.Reason) + ")"
}

// ParseOutcome reads the String form back.
func ParseOutcome(raw string) (Outcome, bool) {
	if raw == "allow" {
		return AllowOutcome(), true
	}
	if len(raw) > len("deny()") && raw[:5] == "deny(" && raw[len(raw)-1] == ')' {
		return DenyOutcome(Reason(raw[5 : len(raw)-1])), true
	}
	return Outcome{}, false
}

// Outcome extracts the comparable outcome.
func (d Decision) Outcome() Outcome {
	return Outcome{Effect: d.Effect, Reason: d.Reason}
}

type decisionJSON struct {
	Decision   string `json:"decision"`
	Allowed    bool   `json:"allowed"`
	Reason     Reason `json:"reason,omitempty"`
	Scope      Scope  `json:"scope,omitempty"`
	Permission string `json:"permission"`
	Grant      string `json:"grant"`
	ActorID    int64  `json:"actor_id"`
	TargetID   *int64 `json:"target_id,omitempty"`
}

// MarshalJSON renders the wire form consumed by HTTP clients.
func (d Decision) MarshalJSON() ([]byte, error) {
	return json.Marshal(decisionJSON{
		Decision:   d.Effect.String(),
		Allowed:    d.Allowed(),
		Reason:     d.Reason,
		Scope:      d.Scope,
		Permission: string(d.Permission),
		Grant:      d.Grant.String(),
		ActorID:    d.ActorID,
		TargetID:   d.TargetID,
	})
}
