// Package orggraph derives reporting relationships from staff records.
//
// The graph is an arena of nodes keyed by staff id with one parent edge per
// node (reporting_to) and an optional approver edge (approving_manager_id).
// Every walk is bounded by the node count, so corrupt data containing a cycle
// surfaces as a StructuralError instead of looping.
package orggraph

import (
	"errors"
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrCycle reports a reporting or approver cycle in the staff data.
var ErrCycle = errors.New("orggraph: cycle detected")

// StructuralError identifies where a walk detected corrupt data.
type StructuralError struct {
	StaffID int64
	Edge    string
	Err     error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("orggraph: %s walk from staff %d: %v", e.Edge, e.StaffID, e.Err)
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}

// Node is the graph view of one staff member.
type Node struct {
	ID                 int64
	ReportingTo        *int64
	ApprovingManagerID *int64
}

const (
	edgeReporting = "reporting_to"
	edgeApprover  = "approving_manager_id"

	defaultMemoSize = 1024
)

// Graph is immutable after construction and safe for concurrent use.
type Graph struct {
	parent   map[int64]int64
	approver map[int64]int64
	children map[int64][]int64
	nodes    []int64
	// cyclic holds every node whose reporting chain never terminates: the
	// members of a cycle and everyone reporting into one.
	cyclic map[int64]struct{}
	memo   *lru.Cache[int64, []int64]
}

// New builds a graph from nodes. Duplicate ids keep the last occurrence. A
// self reference is kept as a one node cycle.
func New(nodes []Node) *Graph {
	g := &Graph{
		parent:   make(map[int64]int64, len(nodes)),
		approver: make(map[int64]int64, len(nodes)),
		children: make(map[int64][]int64),
	}
	seen := make(map[int64]struct{}, len(nodes))
	for _, n := range nodes {
		if _, dup := seen[n.ID]; !dup {
			g.nodes = append(g.nodes, n.ID)
			seen[n.ID] = struct{}{}
		}
		delete(g.parent, n.ID)
		delete(g.approver, n.ID)
		if n.ReportingTo != nil {
			g.parent[n.ID] = *n.ReportingTo
		}
		if n.ApprovingManagerID != nil {
			g.approver[n.ID] = *n.ApprovingManagerID
		}
	}
	sort.Slice(g.nodes, func(i, j int) bool { return g.nodes[i] < g.nodes[j] })
	for _, id := range g.nodes {
		if p, ok := g.parent[id]; ok && p != id {
			g.children[p] = append(g.children[p], id)
		}
	}
	g.cyclic = g.findCyclic()
	if memo, err := lru.New[int64, []int64](defaultMemoSize); err == nil {
		g.memo = memo
	}
	return g
}

// findCyclic classifies every node in one pass. Each upward walk stops at a
// node already classified, at a root, or on a node of its own path.
func (g *Graph) findCyclic() map[int64]struct{} {
	const (
		pending = iota + 1
		healthy
		broken
	)
	state := make(map[int64]int, len(g.nodes))
	cyclic := make(map[int64]struct{})
	for _, id := range g.nodes {
		var path []int64
		current := id
		result := healthy
		for {
			if st, ok := state[current]; ok {
				if st == broken || st == pending {
					result = broken
				}
				break
			}
			state[current] = pending
			path = append(path, current)
			up, ok := g.parent[current]
			if !ok || !g.Has(up) {
				break
			}
			current = up
		}
		for _, n := range path {
			state[n] = result
			if result == broken {
				cyclic[n] = struct{}{}
			}
		}
	}
	return cyclic
}

func (g *Graph) onCycle(id int64) bool {
	_, ok := g.cyclic[id]
	return ok
}

// Len returns the number of staff nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Has reports whether id is a known node.
func (g *Graph) Has(id int64) bool {
	i := sort.Search(len(g.nodes), func(i int) bool { return g.nodes[i] >= id })
	return i < len(g.nodes) && g.nodes[i] == id
}

// Manager returns the direct reporting_to manager of id, if any.
func (g *Graph) Manager(id int64) (int64, bool) {
	p, ok := g.parent[id]
	return p, ok
}

// DirectReports returns the staff whose reporting_to is id, ascending.
func (g *Graph) DirectReports(id int64) []int64 {
	out := make([]int64, len(g.children[id]))
	copy(out, g.children[id])
	return out
}

// Roots returns the known nodes without a known manager, ascending.
func (g *Graph) Roots() []int64 {
	var roots []int64
	for _, id := range g.nodes {
		p, ok := g.parent[id]
		if !ok || !g.Has(p) {
			roots = append(roots, id)
		}
	}
	return roots
}

func (g *Graph) bound() int {
	return len(g.nodes) + 1
}

// IsSubordinateOf reports whether candidateID reaches managerID by following
// reporting_to edges upward. Self is never its own subordinate. Either id
// sitting on or above a cycle is a StructuralError.
func (g *Graph) IsSubordinateOf(candidateID, managerID int64) (bool, error) {
	if g.onCycle(candidateID) {
		return false, &StructuralError{StaffID: candidateID, Edge: edgeReporting, Err: ErrCycle}
	}
	if g.onCycle(managerID) {
		return false, &StructuralError{StaffID: managerID, Edge: edgeReporting, Err: ErrCycle}
	}
	if candidateID == managerID || !g.Has(managerID) {
		return false, nil
	}
	current := candidateID
	for steps := 0; ; steps++ {
		if steps > g.bound() {
			return false, &StructuralError{StaffID: candidateID, Edge: edgeReporting, Err: ErrCycle}
		}
		next, ok := g.parent[current]
		if !ok {
			return false, nil
		}
		if next == managerID {
			return true, nil
		}
		if next == candidateID {
			return false, &StructuralError{StaffID: candidateID, Edge: edgeReporting, Err: ErrCycle}
		}
		current = next
	}
}

// SubordinatesOf returns the direct and transitive subordinates of managerID,
// ascending, excluding managerID itself.
func (g *Graph) SubordinatesOf(managerID int64) ([]int64, error) {
	if g.onCycle(managerID) {
		return nil, &StructuralError{StaffID: managerID, Edge: edgeReporting, Err: ErrCycle}
	}
	if g.memo != nil {
		if cached, ok := g.memo.Get(managerID); ok {
			return append([]int64(nil), cached...), nil
		}
	}
	visited := make(map[int64]struct{})
	queue := append([]int64(nil), g.children[managerID]...)
	var out []int64
	for steps := 0; len(queue) > 0; steps++ {
		if steps > g.bound() {
			return nil, &StructuralError{StaffID: managerID, Edge: edgeReporting, Err: ErrCycle}
		}
		id := queue[0]
		queue = queue[1:]
		// Every node has a single parent, so a second visit can only come from a cycle.
		if _, seen := visited[id]; seen || id == managerID {
			return nil, &StructuralError{StaffID: managerID, Edge: edgeReporting, Err: ErrCycle}
		}
		visited[id] = struct{}{}
		out = append(out, id)
		queue = append(queue, g.children[id]...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	if g.memo != nil {
		g.memo.Add(managerID, append([]int64(nil), out...))
	}
	return out, nil
}

// ChainOf returns the reporting_to chain of staffID, nearest manager first.
func (g *Graph) ChainOf(staffID int64) ([]int64, error) {
	return g.walk(staffID, edgeReporting, func(id int64) (int64, bool) {
		p, ok := g.parent[id]
		return p, ok
	})
}

// ApproverChainOf returns the approvers of staffID, nearest first, ending at
// the topmost approver. Each hop follows approving_manager_id when set and
// falls back to reporting_to. A staff member on or above a reporting cycle
// has no trustworthy chain.
func (g *Graph) ApproverChainOf(staffID int64) ([]int64, error) {
	if g.onCycle(staffID) {
		return nil, &StructuralError{StaffID: staffID, Edge: edgeReporting, Err: ErrCycle}
	}
	return g.walk(staffID, edgeApprover, g.approverOf)
}

func (g *Graph) approverOf(id int64) (int64, bool) {
	if a, ok := g.approver[id]; ok {
		return a, true
	}
	p, ok := g.parent[id]
	return p, ok
}

func (g *Graph) walk(start int64, edge string, next func(int64) (int64, bool)) ([]int64, error) {
	seen := map[int64]struct{}{start: {}}
	var chain []int64
	current := start
	for steps := 0; ; steps++ {
		if steps > g.bound() {
			return nil, &StructuralError{StaffID: start, Edge: edge, Err: ErrCycle}
		}
		up, ok := next(current)
		if !ok || !g.Has(up) {
			return chain, nil
		}
		if _, dup := seen[up]; dup {
			return nil, &StructuralError{StaffID: start, Edge: edge, Err: ErrCycle}
		}
		seen[up] = struct{}{}
		chain = append(chain, up)
		current = up
	}
}

// Validate walks every node's reporting and approver chains and returns the
// first structural error found, nil when the graph is a forest.
func (g *Graph) Validate() error {
	for _, id := range g.nodes {
		if _, err := g.ChainOf(id); err != nil {
			return err
		}
		if _, err := g.ApproverChainOf(id); err != nil {
			return err
		}
	}
	return nil
}

// Cycles returns the ids of nodes whose reporting chain does not terminate,
// ascending.
func (g *Graph) Cycles() []int64 {
	var ids []int64
	for _, id := range g.nodes {
		if g.onCycle(id) {
			ids = append(ids, id)
		}
	}
	return ids
}
