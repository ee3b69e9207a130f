package report

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gridstone.dev/internal/check"
	"gridstone.dev/internal/result"
	"gridstone.dev/internal/spec"
)

func sampleRun() result.RunResult {
	fail := &check.Failure{
		Pos: spec.Vec3i{X: 3, Y: 64, Z: 3}, Tick: 2,
		Expected: "redstone_lamp[lit=true]", Actual: "redstone_lamp[lit=false]",
	}
	return result.RunResult{
		Summary: result.Summary{
			Total: 4, Passed: 1, Failed: 1, Errored: 1, Skipped: 1,
			Duration: 2500 * time.Millisecond,
		},
		PerTest: []result.TestResult{
			{Name: "redstone/lamp-on", Outcome: result.Passed, Ticks: 3, Elapsed: 400 * time.Millisecond},
			{Name: "redstone/lamp-off", Outcome: result.Failed, Failure: fail, Ticks: 3, Elapsed: 420 * time.Millisecond},
			{Name: "broken", Outcome: result.Errored, Reason: "world QUERY_BLOCK: boom"},
			{Name: "later", Outcome: result.Skipped, Reason: "fail-fast"},
		},
		Failures: []result.FailureDetail{
			{Test: "redstone/lamp-off", Failure: *fail},
		},
	}
}

func TestRenderUnknownFormat(t *testing.T) {
	err := Render(&bytes.Buffer{}, "yaml", sampleRun())
	require.Error(t, err)
}

func TestSummaryOutput(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Summary(&buf, sampleRun()))
	out := buf.String()

	require.Contains(t, out, "PASS  redstone/lamp-on")
	require.Contains(t, out, "FAIL  redstone/lamp-off")
	require.Contains(t, out, "expected redstone_lamp[lit=true], got redstone_lamp[lit=false]")
	require.Contains(t, out, "ERROR broken")
	require.Contains(t, out, "SKIP  later  (fail-fast)")
	require.Contains(t, out, "4 tests: 1 passed, 1 failed, 1 errored, 1 skipped")
}

func TestJSONRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, sampleRun()))

	var decoded struct {
		Summary result.Summary `json:"summary"`
		Tests   []struct {
			Name    string `json:"name"`
			Outcome string `json:"outcome"`
		} `json:"tests"`
		Failures []struct {
			Test     string `json:"test"`
			Tick     int    `json:"tick"`
			Expected string `json:"expected"`
		} `json:"failures"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, 4, decoded.Summary.Total)
	require.Equal(t, "passed", decoded.Tests[0].Outcome)
	require.Equal(t, "redstone/lamp-off", decoded.Failures[0].Test)
	require.Equal(t, 2, decoded.Failures[0].Tick)
}

func TestTAPOutput(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, TAP(&buf, sampleRun()))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")

	require.Equal(t, "TAP version 13", lines[0])
	require.Equal(t, "1..4", lines[1])
	require.Equal(t, "ok 1 - redstone/lamp-on", lines[2])
	require.Equal(t, "not ok 2 - redstone/lamp-off", lines[3])
	require.Equal(t, "  ---", lines[4])
	require.Equal(t, `  message: "expected redstone_lamp[lit=true], got redstone_lamp[lit=false]"`, lines[5])
	require.Equal(t, "  at: [3, 64, 3]", lines[6])
	require.Equal(t, "  tick: 2", lines[7])
	require.Contains(t, buf.String(), "ok 4 - later # SKIP fail-fast")
}

func TestJUnitIsWellFormed(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JUnit(&buf, sampleRun()))
	out := buf.String()

	// The document must parse as XML.
	dec := xml.NewDecoder(strings.NewReader(out))
	for {
		_, err := dec.Token()
		if err != nil {
			require.Contains(t, err.Error(), "EOF")
			break
		}
	}

	require.Contains(t, out, `<testsuites tests="4" failures="1" errors="1" skipped="1"`)
	require.Contains(t, out, `classname="redstone" name="lamp-on"`)
	require.Contains(t, out, `<failure message="expected redstone_lamp[lit=true], got redstone_lamp[lit=false] at (3,64,3) tick 2"/>`)
	require.Contains(t, out, `<error message="world QUERY_BLOCK: boom"/>`)
	require.Contains(t, out, `<skipped message="fail-fast"/>`)
}

func TestJUnitEscapesAttributes(t *testing.T) {
	r := result.RunResult{
		Summary: result.Summary{Total: 1, Errored: 1},
		PerTest: []result.TestResult{
			{Name: `quotes"&<>`, Outcome: result.Errored, Reason: `bad "value" <here>`},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, JUnit(&buf, r))
	out := buf.String()
	require.Contains(t, out, "quotes&quot;&amp;&lt;&gt;")
	require.Contains(t, out, "bad &quot;value&quot; &lt;here&gt;")
	require.NotContains(t, out, `message="bad "value"`)
}
