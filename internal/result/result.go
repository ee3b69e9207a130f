// Package result accumulates per-test outcomes into the single run result
// value every reporter renders from.
package result

import (
	"sync"
	"time"

	"gridstone.dev/internal/check"
)

// Outcome of one test.
type Outcome int

const (
	Passed Outcome = iota + 1
	Failed
	Errored
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Passed:
		return "passed"
	case Failed:
		return "failed"
	case Errored:
		return "errored"
	case Skipped:
		return "skipped"
	}
	return "unknown"
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// TestResult is the outcome of one test's fully processed (or aborted)
// timeline.
type TestResult struct {
	Name    string         `json:"name"`
	Outcome Outcome        `json:"outcome"`
	Failure *check.Failure `json:"failure,omitempty"` // first failure only
	Reason  string         `json:"reason,omitempty"`  // for errored/skipped
	Elapsed time.Duration  `json:"elapsed"`
	Ticks   int            `json:"ticks"`
}

// FailureDetail ties a failed assertion to its owning test. Unlike
// TestResult.Failure this list carries every recorded mismatch, including
// every failing tick of a state sequence.
type FailureDetail struct {
	Test string `json:"test"`
	check.Failure
}

// Summary are the run-level counters.
type Summary struct {
	Total    int           `json:"total"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Errored  int           `json:"errored,omitempty"`
	Skipped  int           `json:"skipped,omitempty"`
	Duration time.Duration `json:"duration"`
}

// RunResult is the complete outcome of one run. All rendering is downstream
// of this value.
type RunResult struct {
	Summary  Summary         `json:"summary"`
	PerTest  []TestResult    `json:"tests"`
	Failures []FailureDetail `json:"failures,omitempty"`
}

// Aggregator collects test results as chunks finish. It is the only state
// shared across chunk executions.
type Aggregator struct {
	mu       sync.Mutex
	started  time.Time
	perTest  []TestResult
	failures []FailureDetail
}

func NewAggregator() *Aggregator {
	return &Aggregator{started: time.Now()}
}

// Add records one finished test and all its failure details.
func (a *Aggregator) Add(tr TestResult, failures []check.Failure) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.perTest = append(a.perTest, tr)
	for i := range failures {
		a.failures = append(a.failures, FailureDetail{Test: tr.Name, Failure: failures[i]})
	}
}

// AddSkipped records a test that never ran.
func (a *Aggregator) AddSkipped(name, reason string) {
	a.Add(TestResult{Name: name, Outcome: Skipped, Reason: reason}, nil)
}

// HasFailure reports whether any test so far failed or errored.
func (a *Aggregator) HasFailure() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, tr := range a.perTest {
		if tr.Outcome == Failed || tr.Outcome == Errored {
			return true
		}
	}
	return false
}

// Result finalizes the counters and returns the run result.
func (a *Aggregator) Result() RunResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	sum := Summary{Total: len(a.perTest), Duration: time.Since(a.started)}
	for _, tr := range a.perTest {
		switch tr.Outcome {
		case Passed:
			sum.Passed++
		case Failed:
			sum.Failed++
		case Errored:
			sum.Errored++
		case Skipped:
			sum.Skipped++
		}
	}
	return RunResult{
		Summary:  sum,
		PerTest:  append([]TestResult(nil), a.perTest...),
		Failures: append([]FailureDetail(nil), a.failures...),
	}
}
