package spec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, doc string) *Test {
	t.Helper()
	tst, err := ParseTest([]byte(doc), "inline.test.json")
	require.NoError(t, err)
	return tst
}

func TestParseMinimalDocument(t *testing.T) {
	tst := mustParse(t, `{
		"name": "piston-extends",
		"description": "lever powers a piston",
		"tags": ["redstone"],
		"timeline": [
			{"at": 0, "place": {"pos": [0, 1, 0], "block": "lever[powered=true]"}},
			{"at": 2, "assert": {"checks": [{"pos": [1, 1, 0], "is": "piston[extended=true]"}]}}
		]
	}`)

	require.Equal(t, "piston-extends", tst.Name)
	require.Equal(t, []string{"redstone"}, tst.Tags)
	require.Len(t, tst.Timeline, 2)

	a := tst.Timeline[0]
	require.Equal(t, 0, a.Tick)
	require.NotNil(t, a.Action)
	require.Equal(t, ActionPlace, a.Action.Kind)
	require.Equal(t, "true", a.Action.Block.Props["powered"])

	c := tst.Timeline[1]
	require.Equal(t, 2, c.Tick)
	require.NotNil(t, c.Check)
	require.Equal(t, CheckBlock, c.Check.Kind)
	require.Equal(t, "piston", c.Check.Expect.ID)
}

func TestParseTickListFansOut(t *testing.T) {
	tst := mustParse(t, `{
		"name": "repeat",
		"timeline": [
			{"at": [0, 4, 8], "place": {"pos": [0, 0, 0], "block": "stone"}}
		]
	}`)
	require.Len(t, tst.Timeline, 3)
	require.Equal(t, 0, tst.Timeline[0].Tick)
	require.Equal(t, 4, tst.Timeline[1].Tick)
	require.Equal(t, 8, tst.Timeline[2].Tick)
	// Each fanned-out item keeps its own sequence number.
	require.Less(t, tst.Timeline[0].Seq, tst.Timeline[1].Seq)
}

func TestParseStateSequenceZipsTicksWithValues(t *testing.T) {
	tst := mustParse(t, `{
		"name": "clock",
		"timeline": [
			{"at": 0, "place": {"pos": [0, 0, 0], "block": "observer_clock"}},
			{"at": [1, 2, 3], "assert_state": {"pos": [0, 0, 0], "state": "powered", "values": ["false", "true", "false"]}}
		]
	}`)
	require.Len(t, tst.Timeline, 4)
	for i, want := range []struct {
		tick  int
		value string
	}{{1, "false"}, {2, "true"}, {3, "false"}} {
		it := tst.Timeline[i+1]
		require.NotNil(t, it.Check)
		require.Equal(t, CheckState, it.Check.Kind)
		require.Equal(t, want.tick, it.Tick)
		require.Equal(t, "powered", it.Check.State)
		require.Equal(t, want.value, it.Check.Value)
	}
}

func TestParseStateSequenceGroupsExpandedPairs(t *testing.T) {
	tst := mustParse(t, `{
		"name": "two-sequences",
		"timeline": [
			{"at": [1, 2], "assert_state": {"pos": [0, 0, 0], "state": "powered", "values": ["false", "true"]}},
			{"at": [3, 4], "assert_state": {"pos": [0, 0, 0], "state": "lit", "values": ["true", "true"]}},
			{"at": 5, "assert": {"checks": [{"pos": [0, 0, 0], "is": "stone"}]}}
		]
	}`)
	require.Len(t, tst.Timeline, 5)

	// Pairs of one sequence share an id; different sequences get different
	// ids; standalone checks carry none.
	first := tst.Timeline[0].Check.Sequence
	require.NotZero(t, first)
	require.Equal(t, first, tst.Timeline[1].Check.Sequence)

	second := tst.Timeline[2].Check.Sequence
	require.NotZero(t, second)
	require.NotEqual(t, first, second)
	require.Equal(t, second, tst.Timeline[3].Check.Sequence)

	require.Zero(t, tst.Timeline[4].Check.Sequence)
}

func TestParseStateSequenceLengthMismatch(t *testing.T) {
	_, err := ParseTest([]byte(`{
		"name": "bad",
		"timeline": [
			{"at": [1, 2], "assert_state": {"pos": [0, 0, 0], "state": "lit", "values": ["true"]}}
		]
	}`), "bad.test.json")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Reason, "1 values for 2 ticks")
}

func TestParseRejectsNegativeTicks(t *testing.T) {
	_, err := ParseTest([]byte(`{
		"name": "bad",
		"timeline": [{"at": -1, "place": {"pos": [0, 0, 0], "block": "stone"}}]
	}`), "bad.test.json")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestParseRejectsEntryWithoutPayload(t *testing.T) {
	_, err := ParseTest([]byte(`{
		"name": "bad",
		"timeline": [{"at": 0}]
	}`), "bad.test.json")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Reason, "unknown action kind")
}

func TestParseExplicitCleanupMustContainTouched(t *testing.T) {
	_, err := ParseTest([]byte(`{
		"name": "bad",
		"setup": {"cleanup": {"region": [[0, 0, 0], [1, 1, 1]]}},
		"timeline": [{"at": 0, "place": {"pos": [5, 5, 5], "block": "stone"}}]
	}`), "bad.test.json")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Reason, "does not contain")
}

func TestParseDefaultCleanupIsPaddedBoundingBox(t *testing.T) {
	tst := mustParse(t, `{
		"name": "auto-cleanup",
		"timeline": [
			{"at": 0, "place": {"pos": [2, 4, 6], "block": "stone"}},
			{"at": 1, "assert": {"checks": [{"pos": [5, 4, 6], "is": "stone"}]}}
		]
	}`)
	require.Equal(t, v(1, 3, 5), tst.Cleanup.Min)
	require.Equal(t, v(6, 5, 7), tst.Cleanup.Max)
}

func TestParseBreakpoints(t *testing.T) {
	tst := mustParse(t, `{
		"name": "paused",
		"breakpoints": [4, 9],
		"timeline": [{"at": 10, "place": {"pos": [0, 0, 0], "block": "stone"}}]
	}`)
	require.Equal(t, []int{4, 9}, tst.Breakpoints)

	_, err := ParseTest([]byte(`{
		"name": "bad",
		"breakpoints": [-2],
		"timeline": [{"at": 0, "place": {"pos": [0, 0, 0], "block": "stone"}}]
	}`), "bad.test.json")
	require.Error(t, err)
}

func TestParseRejectsNonJSON(t *testing.T) {
	_, err := ParseTest([]byte("not json"), "bad.test.json")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Error(), "bad.test.json")
}

func TestParsePlaceEachAndFill(t *testing.T) {
	tst := mustParse(t, `{
		"name": "bulk",
		"timeline": [
			{"at": 0, "fill": {"region": [[0, 0, 0], [3, 0, 3]], "block": "stone"}},
			{"at": 1, "place_each": {"blocks": [
				{"pos": [1, 1, 1], "block": "torch"},
				{"pos": [2, 1, 2], "block": "torch"}
			]}},
			{"at": 2, "remove": {"pos": [1, 1, 1]}}
		]
	}`)
	require.Len(t, tst.Timeline, 3)
	require.Equal(t, ActionFill, tst.Timeline[0].Action.Kind)
	require.Equal(t, v(3, 0, 3), tst.Timeline[0].Action.Region.Max)
	require.Equal(t, ActionPlaceEach, tst.Timeline[1].Action.Kind)
	require.Len(t, tst.Timeline[1].Action.Blocks, 2)
	require.Equal(t, ActionRemove, tst.Timeline[2].Action.Kind)
}

func TestEncodeTestRoundTrip(t *testing.T) {
	orig := mustParse(t, `{
		"name": "round-trip",
		"tags": ["a"],
		"breakpoints": [2],
		"timeline": [
			{"at": 0, "place": {"pos": [0, 0, 0], "block": "lever[powered=true]"}},
			{"at": [1, 2], "assert_state": {"pos": [0, 0, 0], "state": "powered", "values": ["true", "true"]}},
			{"at": 3, "remove": {"pos": [0, 0, 0]}}
		]
	}`)

	data, err := EncodeTest(orig)
	require.NoError(t, err)
	back, err := ParseTest(data, "encoded.test.json")
	require.NoError(t, err)

	require.Equal(t, orig.Name, back.Name)
	require.Equal(t, orig.Tags, back.Tags)
	require.Equal(t, orig.Breakpoints, back.Breakpoints)
	require.Equal(t, orig.Cleanup, back.Cleanup)
	require.Len(t, back.Timeline, len(orig.Timeline))
	for i := range orig.Timeline {
		require.Equal(t, orig.Timeline[i].Tick, back.Timeline[i].Tick)
	}
}
