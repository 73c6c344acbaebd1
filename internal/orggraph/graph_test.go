package orggraph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func ref(id int64) *int64 { return &id }

// forest:
//
//	1
//	├── 2
//	│   ├── 4
//	│   │   └── 6
//	│   └── 5
//	└── 3
//	10
//	└── 11
func sampleGraph() *Graph {
	return New([]Node{
		{ID: 1},
		{ID: 2, ReportingTo: ref(1)},
		{ID: 3, ReportingTo: ref(1)},
		{ID: 4, ReportingTo: ref(2)},
		{ID: 5, ReportingTo: ref(2), ApprovingManagerID: ref(1)},
		{ID: 6, ReportingTo: ref(4)},
		{ID: 10},
		{ID: 11, ReportingTo: ref(10)},
	})
}

func TestIsSubordinateOf(t *testing.T) {
	g := sampleGraph()
	cases := []struct {
		name      string
		candidate int64
		manager   int64
		want      bool
	}{
		{"direct report", 2, 1, true},
		{"transitive report", 6, 1, true},
		{"transitive two levels", 6, 2, true},
		{"sibling", 3, 2, false},
		{"manager of manager is not subordinate", 1, 2, false},
		{"other tree", 11, 1, false},
		{"self", 4, 4, false},
		{"root has no manager", 10, 11, false},
		{"unknown candidate", 99, 1, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := g.IsSubordinateOf(tc.candidate, tc.manager)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestSubordinatesOf(t *testing.T) {
	g := sampleGraph()

	subs, err := g.SubordinatesOf(1)
	require.NoError(t, err)
	require.Equal(t, []int64{2, 3, 4, 5, 6}, subs)

	subs, err = g.SubordinatesOf(2)
	require.NoError(t, err)
	require.Equal(t, []int64{4, 5, 6}, subs)

	subs, err = g.SubordinatesOf(6)
	require.NoError(t, err)
	require.Empty(t, subs)

	// Memoized result must not be aliased to callers.
	subs, err = g.SubordinatesOf(1)
	require.NoError(t, err)
	subs[0] = 999
	again, err := g.SubordinatesOf(1)
	require.NoError(t, err)
	require.Equal(t, []int64{2, 3, 4, 5, 6}, again)
}

func TestSubordinateSetMatchesPredicate(t *testing.T) {
	g := sampleGraph()
	ids := []int64{1, 2, 3, 4, 5, 6, 10, 11}
	for _, manager := range ids {
		subs, err := g.SubordinatesOf(manager)
		require.NoError(t, err)
		set := make(map[int64]bool, len(subs))
		for _, id := range subs {
			set[id] = true
		}
		require.False(t, set[manager], "manager %d listed as own subordinate", manager)
		for _, candidate := range ids {
			got, err := g.IsSubordinateOf(candidate, manager)
			require.NoError(t, err)
			require.Equal(t, set[candidate], got, "candidate %d manager %d", candidate, manager)
		}
	}
}

func TestApproverChainOf(t *testing.T) {
	g := sampleGraph()

	chain, err := g.ApproverChainOf(6)
	require.NoError(t, err)
	require.Equal(t, []int64{4, 2, 1}, chain)

	// approving_manager_id overrides reporting_to for the hop it is set on.
	chain, err = g.ApproverChainOf(5)
	require.NoError(t, err)
	require.Equal(t, []int64{1}, chain)

	chain, err = g.ApproverChainOf(1)
	require.NoError(t, err)
	require.Empty(t, chain)
}

func TestDanglingManagerActsAsRoot(t *testing.T) {
	g := New([]Node{
		{ID: 1, ReportingTo: ref(42)},
		{ID: 2, ReportingTo: ref(1)},
	})
	require.Equal(t, []int64{1}, g.Roots())

	chain, err := g.ChainOf(2)
	require.NoError(t, err)
	require.Equal(t, []int64{1}, chain)

	ok, err := g.IsSubordinateOf(1, 2)
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = g.IsSubordinateOf(2, 42)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, g.Validate())
}

func TestCycleIsStructuralError(t *testing.T) {
	g := New([]Node{
		{ID: 1, ReportingTo: ref(3)},
		{ID: 2, ReportingTo: ref(1)},
		{ID: 3, ReportingTo: ref(2)},
		{ID: 4, ReportingTo: ref(3)},
		{ID: 7},
	})

	_, err := g.IsSubordinateOf(4, 7)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrCycle))
	var structural *StructuralError
	require.True(t, errors.As(err, &structural))
	require.Equal(t, int64(4), structural.StaffID)

	_, err = g.SubordinatesOf(1)
	require.ErrorIs(t, err, ErrCycle)

	_, err = g.ApproverChainOf(2)
	require.ErrorIs(t, err, ErrCycle)

	require.ErrorIs(t, g.Validate(), ErrCycle)
	require.Equal(t, []int64{1, 2, 3, 4}, g.Cycles())

	// Nodes outside the cycle are unaffected.
	subs, err := g.SubordinatesOf(7)
	require.NoError(t, err)
	require.Empty(t, subs)
}

func TestApproverCycleDetected(t *testing.T) {
	g := New([]Node{
		{ID: 1, ApprovingManagerID: ref(2)},
		{ID: 2, ApprovingManagerID: ref(1)},
	})
	_, err := g.ApproverChainOf(1)
	require.ErrorIs(t, err, ErrCycle)
	require.ErrorIs(t, g.Validate(), ErrCycle)
	require.Empty(t, g.Cycles())
}

func TestSelfReferenceIsOneNodeCycle(t *testing.T) {
	g := New([]Node{
		{ID: 1, ReportingTo: ref(1)},
		{ID: 2, ReportingTo: ref(1)},
		{ID: 3},
	})
	manager, ok := g.Manager(1)
	require.True(t, ok)
	require.Equal(t, int64(1), manager)
	require.Equal(t, []int64{2}, g.DirectReports(1))
	require.Equal(t, []int64{3}, g.Roots())
	require.Equal(t, []int64{1, 2}, g.Cycles())

	_, err := g.IsSubordinateOf(2, 1)
	require.ErrorIs(t, err, ErrCycle)
	_, err = g.SubordinatesOf(1)
	require.ErrorIs(t, err, ErrCycle)
	_, err = g.ApproverChainOf(1)
	require.ErrorIs(t, err, ErrCycle)
	require.ErrorIs(t, g.Validate(), ErrCycle)

	ok, err = g.IsSubordinateOf(3, 3)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCycleThroughQueriedManager(t *testing.T) {
	// 10 and 11 report to each other; 12 reports into the loop; 20 is clean.
	g := New([]Node{
		{ID: 10, ReportingTo: ref(11)},
		{ID: 11, ReportingTo: ref(10)},
		{ID: 12, ReportingTo: ref(11)},
		{ID: 20},
		{ID: 21, ReportingTo: ref(20)},
	})

	cases := []struct {
		name      string
		candidate int64
		manager   int64
		blamed    int64
	}{
		{"member under member", 11, 10, 11},
		{"member under other member", 10, 11, 10},
		{"feeder under member", 12, 10, 12},
		{"clean candidate under member", 21, 10, 10},
		{"member under clean manager", 10, 20, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := g.IsSubordinateOf(tc.candidate, tc.manager)
			require.False(t, ok)
			var structural *StructuralError
			require.True(t, errors.As(err, &structural))
			require.ErrorIs(t, err, ErrCycle)
			require.Equal(t, tc.blamed, structural.StaffID)
		})
	}

	for _, id := range []int64{10, 11, 12} {
		_, err := g.SubordinatesOf(id)
		require.ErrorIs(t, err, ErrCycle, "subordinates of %d", id)
		_, err = g.ApproverChainOf(id)
		require.ErrorIs(t, err, ErrCycle, "approvers of %d", id)
	}
	require.Equal(t, []int64{10, 11, 12}, g.Cycles())

	ok, err := g.IsSubordinateOf(21, 20)
	require.NoError(t, err)
	require.True(t, ok)
	subs, err := g.SubordinatesOf(20)
	require.NoError(t, err)
	require.Equal(t, []int64{21}, subs)
}
