package result

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gridstone.dev/internal/check"
	"gridstone.dev/internal/spec"
)

func TestAggregatorCountsOutcomes(t *testing.T) {
	agg := NewAggregator()
	agg.Add(TestResult{Name: "a", Outcome: Passed}, nil)
	agg.Add(TestResult{Name: "b", Outcome: Failed}, nil)
	agg.Add(TestResult{Name: "c", Outcome: Errored, Reason: "boom"}, nil)
	agg.AddSkipped("d", "fail-fast")

	r := agg.Result()
	require.Equal(t, 4, r.Summary.Total)
	require.Equal(t, 1, r.Summary.Passed)
	require.Equal(t, 1, r.Summary.Failed)
	require.Equal(t, 1, r.Summary.Errored)
	require.Equal(t, 1, r.Summary.Skipped)
	require.Greater(t, r.Summary.Duration, time.Duration(0))
	require.Equal(t, "fail-fast", r.PerTest[3].Reason)
}

func TestAggregatorCollectsEveryFailureDetail(t *testing.T) {
	agg := NewAggregator()
	fails := []check.Failure{
		{Pos: spec.Vec3i{X: 1}, Tick: 2, Expected: "true", Actual: "false"},
		{Pos: spec.Vec3i{X: 1}, Tick: 3, Expected: "false", Actual: "true"},
	}
	agg.Add(TestResult{Name: "seq", Outcome: Failed, Failure: &fails[0]}, fails)

	r := agg.Result()
	// The test result carries the first failure; the detail list all of them.
	require.Equal(t, 2, r.PerTest[0].Failure.Tick)
	require.Len(t, r.Failures, 2)
	require.Equal(t, "seq", r.Failures[0].Test)
	require.Equal(t, 3, r.Failures[1].Tick)
}

func TestHasFailure(t *testing.T) {
	agg := NewAggregator()
	require.False(t, agg.HasFailure())

	agg.Add(TestResult{Name: "a", Outcome: Passed}, nil)
	require.False(t, agg.HasFailure())
	agg.AddSkipped("b", "oversized")
	require.False(t, agg.HasFailure())

	agg.Add(TestResult{Name: "c", Outcome: Failed}, nil)
	require.True(t, agg.HasFailure())
}

func TestHasFailureIncludesErrored(t *testing.T) {
	agg := NewAggregator()
	agg.Add(TestResult{Name: "a", Outcome: Errored}, nil)
	require.True(t, agg.HasFailure())
}

func TestResultIsACopy(t *testing.T) {
	agg := NewAggregator()
	agg.Add(TestResult{Name: "a", Outcome: Passed}, nil)

	first := agg.Result()
	agg.Add(TestResult{Name: "b", Outcome: Failed}, nil)
	second := agg.Result()

	require.Len(t, first.PerTest, 1)
	require.Len(t, second.PerTest, 2)
}

func TestOutcomeText(t *testing.T) {
	require.Equal(t, "passed", Passed.String())
	require.Equal(t, "skipped", Skipped.String())
	b, err := Failed.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "failed", string(b))
}
