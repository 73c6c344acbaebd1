package matrix

import (
	"fmt"
	"strings"

	"github.com/staffline/staffline/internal/orggraph"
	"github.com/staffline/staffline/internal/rbac"
)

// Relationship is the position of the actor relative to the target in a
// fixture org graph.
type Relationship string

const (
	RelSelf                Relationship = "self"
	RelDirectManager       Relationship = "direct_manager"
	RelTransitiveManager   Relationship = "transitive_manager"
	RelUnrelated           Relationship = "unrelated"
	RelSubordinateOfTarget Relationship = "subordinate_of_target"
)

// Relationships returns every relationship in report order.
func Relationships() []Relationship {
	return []Relationship{RelSelf, RelDirectManager, RelTransitiveManager, RelUnrelated, RelSubordinateOfTarget}
}

// ParseRelationship accepts the snake_case spelling.
func ParseRelationship(raw string) (Relationship, bool) {
	rel := Relationship(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Relationships() {
		if rel == known {
			return rel, true
		}
	}
	return "", false
}

// Fixture ids. The actor is always staff 1.
const (
	actorID  int64 = 1
	middleID int64 = 2
	otherID  int64 = 3
)

// Fixture is a minimal org graph realising one relationship.
type Fixture struct {
	Relationship Relationship
	Actor        *rbac.Subject
	Target       *rbac.Subject
	Graph        *orggraph.Graph
}

// BuildFixture returns the fixture for rel with an actor holding actorRole and
// a target holding targetRole. A nil targetRole leaves the target without role.
func BuildFixture(rel Relationship, actorRole int64, targetRole *int64) (Fixture, error) {
	actor := &rbac.Subject{ID: actorID, RoleID: &actorRole, Active: true}
	target := func(id int64) *rbac.Subject {
		return &rbac.Subject{ID: id, RoleID: targetRole, Active: true}
	}
	ref := func(id int64) *int64 { return &id }

	f := Fixture{Relationship: rel, Actor: actor}
	switch rel {
	case RelSelf:
		f.Target = actor
		f.Graph = orggraph.New([]orggraph.Node{{ID: actorID}})
	case RelDirectManager:
		f.Target = target(middleID)
		f.Graph = orggraph.New([]orggraph.Node{
			{ID: actorID},
			{ID: middleID, ReportingTo: ref(actorID)},
		})
	case RelTransitiveManager:
		f.Target = target(otherID)
		f.Graph = orggraph.New([]orggraph.Node{
			{ID: actorID},
			{ID: middleID, ReportingTo: ref(actorID)},
			{ID: otherID, ReportingTo: ref(middleID)},
		})
	case RelUnrelated:
		f.Target = target(otherID)
		f.Graph = orggraph.New([]orggraph.Node{
			{ID: actorID},
			{ID: middleID},
			{ID: otherID, ReportingTo: ref(middleID)},
		})
	case RelSubordinateOfTarget:
		f.Target = target(middleID)
		f.Graph = orggraph.New([]orggraph.Node{
			{ID: middleID},
			{ID: actorID, ReportingTo: ref(middleID)},
		})
	default:
		return Fixture{}, fmt.Errorf("matrix: unknown relationship %q", rel)
	}
	return f, nil
}
