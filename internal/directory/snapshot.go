// Package directory loads roles and staff into immutable snapshots and
// serves authorization decisions against the current one.
package directory

import (
	"fmt"
	"sort"
	"time"

	"github.com/staffline/staffline/internal/orggraph"
	"github.com/staffline/staffline/internal/rbac"
	"github.com/staffline/staffline/internal/staff"
)

// Snapshot is a consistent, immutable view of roles and staff. A decision
// reads exactly one snapshot.
type Snapshot struct {
	Version  uint64
	LoadedAt time.Time
	Registry *rbac.Registry
	Graph    *orggraph.Graph
	Engine   *rbac.Engine

	staff map[int64]staff.Staff
	order []int64
}

// NewSnapshot builds the registry, graph and engine for one load.
func NewSnapshot(version uint64, table rbac.RoleTable, records []staff.Staff) (*Snapshot, error) {
	reg, err := rbac.NewRegistry(table)
	if err != nil {
		return nil, fmt.Errorf("directory: registry: %w", err)
	}
	nodes := make([]orggraph.Node, 0, len(records))
	byID := make(map[int64]staff.Staff, len(records))
	for _, s := range records {
		nodes = append(nodes, s.Node())
		byID[s.ID] = s
	}
	order := make([]int64, 0, len(byID))
	for id := range byID {
		order = append(order, id)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	graph := orggraph.New(nodes)
	return &Snapshot{
		Version:  version,
		LoadedAt: time.Now().UTC(),
		Registry: reg,
		Graph:    graph,
		Engine:   rbac.NewEngine(reg, graph),
		staff:    byID,
		order:    order,
	}, nil
}

// Staff returns the record of id.
func (s *Snapshot) Staff(id int64) (staff.Staff, bool) {
	rec, ok := s.staff[id]
	return rec, ok
}

// Subject returns the authorization view of id, nil when unknown.
func (s *Snapshot) Subject(id int64) *rbac.Subject {
	rec, ok := s.staff[id]
	if !ok {
		return nil
	}
	return rec.Subject()
}

// AllStaff returns every record ordered by id.
func (s *Snapshot) AllStaff() []staff.Staff {
	out := make([]staff.Staff, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.staff[id])
	}
	return out
}

// Decide resolves actor and target ids and asks the engine. An unknown actor
// is unauthenticated; an unknown target is rbac.ErrUnknownTarget.
func (s *Snapshot) Decide(actorID int64, permission rbac.Permission, targetID *int64) (rbac.Decision, error) {
	var target *rbac.Subject
	if targetID != nil {
		target = s.Subject(*targetID)
		if target == nil {
			id := *targetID
			return rbac.Decision{Effect: rbac.Deny, Permission: permission, ActorID: actorID, TargetID: &id}, rbac.ErrUnknownTarget
		}
	}
	return s.Engine.Decide(s.Subject(actorID), permission, target)
}
