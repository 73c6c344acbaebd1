package matrix

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/staffline/staffline/internal/rbac"
)

// ErrInvalidExpectations wraps failures to load a row expectation file.
var ErrInvalidExpectations = errors.New("matrix: invalid expectations")

// Case is one combination handed to an expectation source.
type Case struct {
	Role         rbac.Role
	Permission   rbac.PermissionSpec
	Grant        rbac.Grant
	Relationship Relationship
}

// Expectation yields the expected outcome of a combination. ok is false when
// the source has no opinion.
type Expectation interface {
	Expect(c Case) (rbac.Outcome, bool)
}

// OutcomeTable is the hand-authored expectation table: scoped grant level by
// relationship, with trait overrides for the self relationship.
type OutcomeTable struct {
	Scoped map[rbac.GrantLevel]map[Relationship]rbac.Outcome
}

var (
	allow        = rbac.AllowOutcome()
	insufficient = rbac.DenyOutcome(rbac.ReasonInsufficientGrant)
	notSub       = rbac.DenyOutcome(rbac.ReasonNotSubordinate)
)

// DefaultOutcomeTable returns the table matching the engine's documented rules
// for fixtures whose target holds the lowest-authority role.
func DefaultOutcomeTable() OutcomeTable {
	return OutcomeTable{Scoped: map[rbac.GrantLevel]map[Relationship]rbac.Outcome{
		rbac.GrantNone: {
			RelSelf:                insufficient,
			RelDirectManager:       insufficient,
			RelTransitiveManager:   insufficient,
			RelUnrelated:           insufficient,
			RelSubordinateOfTarget: insufficient,
		},
		rbac.GrantSubordinates: {
			RelSelf:                notSub,
			RelDirectManager:       allow,
			RelTransitiveManager:   allow,
			RelUnrelated:           notSub,
			RelSubordinateOfTarget: notSub,
		},
		rbac.GrantAll: {
			RelSelf:                allow,
			RelDirectManager:       allow,
			RelTransitiveManager:   allow,
			RelUnrelated:           allow,
			RelSubordinateOfTarget: allow,
		},
	}}
}

// Expect implements Expectation.
func (t OutcomeTable) Expect(c Case) (rbac.Outcome, bool) {
	if !c.Role.Active {
		return rbac.DenyOutcome(rbac.ReasonNoRole), true
	}
	self := c.Relationship == RelSelf
	if self && c.Permission.Traits.Approval {
		return rbac.DenyOutcome(rbac.ReasonSelfApprovalForbidden), true
	}
	switch c.Permission.Kind {
	case rbac.KindGlobal:
		if c.Grant.Allowed {
			return allow, true
		}
		return insufficient, true
	case rbac.KindScoped:
		if self && c.Permission.Traits.SelfService {
			return allow, true
		}
		row, ok := t.Scoped[c.Grant.Level]
		if !ok {
			return rbac.Outcome{}, false
		}
		out, ok := row[c.Relationship]
		return out, ok
	default:
		return insufficient, true
	}
}

type rowKey struct {
	role         string
	permission   rbac.Permission
	relationship Relationship
}

// RowExpectations pins the expected outcome of individual rows and defers to
// Fallback for the rest.
type RowExpectations struct {
	rows     map[rowKey]rbac.Outcome
	Fallback Expectation
}

type expectationFile struct {
	Rows []struct {
		Role         string `yaml:"role"`
		Permission   string `yaml:"permission"`
		Relationship string `yaml:"relationship"`
		Expect       string `yaml:"expect"`
	} `yaml:"rows"`
}

// ParseRowExpectations decodes a YAML expectation file:
//
//	rows:
//	  - role: manager
//	    permission: can_approve_leave
//	    relationship: direct_manager
//	    expect: allow
//	  - role: manager
//	    permission: can_approve_leave
//	    relationship: self
//	    expect: deny(self_approval_forbidden)
func ParseRowExpectations(data []byte, fallback Expectation) (*RowExpectations, error) {
	var file expectationFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidExpectations, err)
	}
	rows := make(map[rowKey]rbac.Outcome, len(file.Rows))
	for i, row := range file.Rows {
		rel, ok := ParseRelationship(row.Relationship)
		if !ok {
			return nil, fmt.Errorf("%w: row %d: unknown relationship %q", ErrInvalidExpectations, i, row.Relationship)
		}
		out, ok := rbac.ParseOutcome(row.Expect)
		if !ok {
			return nil, fmt.Errorf("%w: row %d: bad outcome %q", ErrInvalidExpectations, i, row.Expect)
		}
		role := rbac.NormalizeRoleName(row.Role)
		if role == "" || row.Permission == "" {
			return nil, fmt.Errorf("%w: row %d: role and permission are required", ErrInvalidExpectations, i)
		}
		rows[rowKey{role: role, permission: rbac.Permission(row.Permission), relationship: rel}] = out
	}
	return &RowExpectations{rows: rows, Fallback: fallback}, nil
}

// LoadRowExpectations reads path and parses it.
func LoadRowExpectations(path string, fallback Expectation) (*RowExpectations, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("matrix: read expectations: %w", err)
	}
	return ParseRowExpectations(data, fallback)
}

// Len returns the number of pinned rows.
func (e *RowExpectations) Len() int {
	return len(e.rows)
}

// Expect implements Expectation.
func (e *RowExpectations) Expect(c Case) (rbac.Outcome, bool) {
	if out, ok := e.rows[rowKey{role: rbac.NormalizeRoleName(c.Role.Name), permission: c.Permission.Key, relationship: c.Relationship}]; ok {
		return out, true
	}
	if e.Fallback == nil {
		return rbac.Outcome{}, false
	}
	return e.Fallback.Expect(c)
}
