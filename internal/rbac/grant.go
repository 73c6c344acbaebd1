package rbac

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// GrantLevel is the authority a role holds for a scoped permission.
type GrantLevel int

const (
	// GrantNone never allows the permission.
	GrantNone GrantLevel = iota
	// GrantSubordinates allows the permission over staff below the actor.
	GrantSubordinates
	// GrantAll allows the permission over anyone, subject to the hierarchy check.
	GrantAll
)

// GrantLevels lists every level from least to most permissive.
func GrantLevels() []GrantLevel {
	return []GrantLevel{GrantNone, GrantSubordinates, GrantAll}
}

// String returns the storage spelling of the level.
func (g GrantLevel) String() string {
	switch g {
	case GrantSubordinates:
		return "subordinates"
	case GrantAll:
		return "all"
	default:
		return "none"
	}
}

// ParseGrantLevel parses the storage spelling of a grant level.
func ParseGrantLevel(raw string) (GrantLevel, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "none", "":
		return GrantNone, nil
	case "subordinates":
		return GrantSubordinates, nil
	case "all":
		return GrantAll, nil
	default:
		return GrantNone, fmt.Errorf("rbac: unknown grant level %q", raw)
	}
}

// Grant is the resolved grant of one role for one permission.
type Grant struct {
	Kind PermissionKind
	// Level is meaningful for KindScoped permissions.
	Level GrantLevel
	// Allowed is meaningful for KindGlobal permissions.
	Allowed bool
}

// Denied reports whether the grant is the most restrictive value for its kind.
func (g Grant) Denied() bool {
	if g.Kind == KindGlobal {
		return !g.Allowed
	}
	return g.Level == GrantNone
}

// String renders the grant the way it is stored.
func (g Grant) String() string {
	if g.Kind == KindGlobal {
		if g.Allowed {
			return "true"
		}
		return "false"
	}
	return g.Level.String()
}

func restrictive(kind PermissionKind) Grant {
	return Grant{Kind: kind, Level: GrantNone, Allowed: false}
}

// GrantValue is a raw grant as found in a role table payload: either a
// grant level string or a boolean.
type GrantValue struct {
	raw string
}

// StringGrant builds a GrantValue from a grant level spelling.
func StringGrant(level string) GrantValue {
	return GrantValue{raw: level}
}

// BoolGrant builds a GrantValue from a boolean.
func BoolGrant(v bool) GrantValue {
	if v {
		return GrantValue{raw: "true"}
	}
	return GrantValue{raw: "false"}
}

// LevelGrant builds a GrantValue from a GrantLevel.
func LevelGrant(level GrantLevel) GrantValue {
	return StringGrant(level.String())
}

// Resolve converts the raw value into a Grant for a permission of the given kind.
func (v GrantValue) Resolve(kind PermissionKind) (Grant, error) {
	raw := strings.ToLower(strings.TrimSpace(v.raw))
	switch kind {
	case KindGlobal:
		switch raw {
		case "true":
			return Grant{Kind: KindGlobal, Allowed: true}, nil
		case "false", "":
			return Grant{Kind: KindGlobal}, nil
		default:
			return Grant{}, fmt.Errorf("rbac: global permission expects a boolean, got %q", v.raw)
		}
	case KindScoped:
		level, err := ParseGrantLevel(raw)
		if err != nil {
			return Grant{}, err
		}
		return Grant{Kind: KindScoped, Level: level}, nil
	default:
		return Grant{}, fmt.Errorf("rbac: cannot resolve grant %q for unknown permission kind", v.raw)
	}
}

// String returns the raw value.
func (v GrantValue) String() string {
	return v.raw
}

// UnmarshalYAML accepts scalar strings and booleans.
func (v *GrantValue) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("rbac: grant must be a scalar (line %d)", node.Line)
	}
	v.raw = node.Value
	return nil
}

// MarshalYAML writes booleans unquoted and levels as strings.
func (v GrantValue) MarshalYAML() (any, error) {
	switch v.raw {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return v.raw, nil
}

// UnmarshalJSON accepts JSON strings and booleans.
func (v *GrantValue) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*v = BoolGrant(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("rbac: grant must be a string or boolean: %w", err)
	}
	*v = StringGrant(s)
	return nil
}

// MarshalJSON mirrors MarshalYAML.
func (v GrantValue) MarshalJSON() ([]byte, error) {
	switch v.raw {
	case "true":
		return []byte("true"), nil
	case "false":
		return []byte("false"), nil
	}
	return json.Marshal(v.raw)
}
