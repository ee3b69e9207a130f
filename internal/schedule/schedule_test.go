package schedule

import (
	"testing"

	"github.com/stretchr/testify/require"

	"gridstone.dev/internal/pack"
	"gridstone.dev/internal/spec"
)

func v(x, y, z int) spec.Vec3i { return spec.Vec3i{X: x, Y: y, Z: z} }

func placed(name string, boundsMin spec.Vec3i, items ...spec.TimelineItem) pack.Placed {
	return pack.Placed{
		Test: &spec.Test{Name: name, Timeline: items},
		Bounds: spec.NewRegion(boundsMin,
			boundsMin.Add(v(9, 9, 9))),
	}
}

func action(tick, seq int) spec.TimelineItem {
	return spec.TimelineItem{Tick: tick, Seq: seq, Action: &spec.Action{Kind: spec.ActionPlace}}
}

func checkAt(tick, seq int) spec.TimelineItem {
	return spec.TimelineItem{Tick: tick, Seq: seq, Check: &spec.Check{Kind: spec.CheckBlock}}
}

func TestBuildOrdersByTickThenInputOrder(t *testing.T) {
	c := pack.Chunk{Tests: []pack.Placed{
		placed("first", v(0, 0, 0), action(5, 1), action(0, 2)),
		placed("second", v(100, 0, 0), action(0, 1), checkAt(5, 2)),
	}}
	s, err := Build(c)
	require.NoError(t, err)
	require.Equal(t, 5, s.MaxTick)

	type key struct{ tick, test int }
	var got []key
	for _, ev := range s.Events {
		got = append(got, key{ev.Tick, ev.TestIndex})
	}
	require.Equal(t, []key{{0, 0}, {0, 1}, {5, 0}, {5, 1}}, got)
}

func TestBuildActionsBeforeChecksWithinOneTest(t *testing.T) {
	// Document order lists the check first; the schedule still dispatches
	// the same-tick action ahead of it.
	c := pack.Chunk{Tests: []pack.Placed{
		placed("t", v(0, 0, 0), checkAt(3, 1), action(3, 2)),
	}}
	s, err := Build(c)
	require.NoError(t, err)

	evs := s.EventsAt(3)
	require.Len(t, evs, 2)
	require.NotNil(t, evs[0].Item.Action)
	require.NotNil(t, evs[1].Item.Check)
}

func TestBuildPreservesDocumentOrderAtSameKind(t *testing.T) {
	c := pack.Chunk{Tests: []pack.Placed{
		placed("t", v(0, 0, 0), action(1, 1), action(1, 2), action(1, 3)),
	}}
	s, err := Build(c)
	require.NoError(t, err)

	evs := s.EventsAt(1)
	require.Len(t, evs, 3)
	for i, ev := range evs {
		require.Equal(t, i+1, ev.Item.Seq)
	}
}

func TestBuildDeterministic(t *testing.T) {
	c := pack.Chunk{Tests: []pack.Placed{
		placed("a", v(0, 0, 0), action(2, 1), checkAt(2, 2)),
		placed("b", v(50, 0, 0), action(2, 1), checkAt(4, 2)),
	}}
	first, err := Build(c)
	require.NoError(t, err)
	second, err := Build(c)
	require.NoError(t, err)
	require.Equal(t, first.Events, second.Events)
}

func TestBuildRejectsOverlap(t *testing.T) {
	c := pack.Chunk{ID: 7, Tests: []pack.Placed{
		placed("a", v(0, 0, 0)),
		placed("b", v(5, 5, 5)),
	}}
	_, err := Build(c)
	var oerr *OverlapError
	require.ErrorAs(t, err, &oerr)
	require.Equal(t, 7, oerr.ChunkID)
	require.Equal(t, "a", oerr.A)
	require.Equal(t, "b", oerr.B)
}

func TestBreakpointsMergedSortedUnique(t *testing.T) {
	a := placed("a", v(0, 0, 0), action(10, 1))
	a.Test.Breakpoints = []int{8, 3}
	b := placed("b", v(100, 0, 0), action(10, 1))
	b.Test.Breakpoints = []int{3, 5}

	s, err := Build(pack.Chunk{Tests: []pack.Placed{a, b}})
	require.NoError(t, err)
	require.Equal(t, []int{3, 5, 8}, s.Breakpoints)
	require.True(t, s.HasBreakpoint(5))
	require.False(t, s.HasBreakpoint(4))

	next, ok := s.NextBreakpoint(3)
	require.True(t, ok)
	require.Equal(t, 5, next)
	_, ok = s.NextBreakpoint(8)
	require.False(t, ok)
}

func TestNextEventTick(t *testing.T) {
	s, err := Build(pack.Chunk{Tests: []pack.Placed{
		placed("t", v(0, 0, 0), action(0, 1), action(7, 2), checkAt(12, 3)),
	}})
	require.NoError(t, err)
	require.Equal(t, 3, s.UniqueTickCount())

	next, ok := s.NextEventTick(0)
	require.True(t, ok)
	require.Equal(t, 7, next)
	next, ok = s.NextEventTick(7)
	require.True(t, ok)
	require.Equal(t, 12, next)
	_, ok = s.NextEventTick(12)
	require.False(t, ok)
}

func TestEmptyRangesAreMaximal(t *testing.T) {
	s, err := Build(pack.Chunk{Tests: []pack.Placed{
		placed("t", v(0, 0, 0), action(0, 1), action(4, 2), checkAt(10, 3)),
	}})
	require.NoError(t, err)

	ranges := s.EmptyRanges()
	require.Equal(t, []Range{{Start: 1, End: 3}, {Start: 5, End: 9}}, ranges)
	require.Equal(t, 3, ranges[0].Len())
	require.Equal(t, 5, ranges[1].Len())
}

func TestEmptyRangesWithLeadingGap(t *testing.T) {
	s, err := Build(pack.Chunk{Tests: []pack.Placed{
		placed("t", v(0, 0, 0), action(3, 1)),
	}})
	require.NoError(t, err)
	require.Equal(t, []Range{{Start: 0, End: 2}}, s.EmptyRanges())
}
