// Package engine drives a tick loop against a world client: it consumes a
// chunk's merged schedule tick by tick, dispatches actions and assertions,
// and implements breakpoint pause/step.
package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"gridstone.dev/internal/check"
	"gridstone.dev/internal/pack"
	"gridstone.dev/internal/result"
	"gridstone.dev/internal/runlog"
	"gridstone.dev/internal/schedule"
	"gridstone.dev/internal/spec"
	"gridstone.dev/internal/worldclient"
)

// State of the engine's chunk loop.
type State int

const (
	Idle State = iota
	Freezing
	Running
	Paused
	Cleanup
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Freezing:
		return "freezing"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Cleanup:
		return "cleanup"
	}
	return "unknown"
}

// Three consecutive chunk-level transport failures are treated as a lost
// connection and abort the whole run.
const maxConsecutiveTransportFailures = 3

// Options tune one engine instance.
type Options struct {
	// Controller handles breakpoint suspensions. Nil means AutoContinue.
	Controller Controller
	// BreakAfterSetup pauses unconditionally between cleanup and freezing.
	BreakAfterSetup bool
	// FailFast stops scheduling further chunks after the first Failed test.
	FailFast bool
	// ActionDelay is slept after every dispatched world write.
	ActionDelay time.Duration
	// RunLog, when set, receives one entry per engine event.
	RunLog *runlog.Writer
	// Progress, when set, is called after every processed tick.
	Progress func(chunkID, tick, maxTick int)
	Logger   *log.Logger
}

// Engine owns all current-tick / current-chunk bookkeeping for one run.
// Chunks are processed one after another; the aggregator is the only state
// shared beyond a chunk's lifetime.
type Engine struct {
	client worldclient.Client
	eval   *check.Evaluator
	opts   Options
	logger *log.Logger

	state State
}

func New(client worldclient.Client, opts Options) *Engine {
	if opts.Controller == nil {
		opts.Controller = AutoContinue
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[engine] ", log.LstdFlags|log.Lmicroseconds)
	}
	return &Engine{
		client: client,
		eval:   check.New(client),
		opts:   opts,
		logger: logger,
	}
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() State { return e.state }

// Run executes every chunk in order. Assertion failures are normal outcomes;
// the returned error is non-nil only for fatal conditions (context canceled,
// presumed-lost connection).
func (e *Engine) Run(ctx context.Context, chunks []pack.Chunk, agg *result.Aggregator) error {
	consecutive := 0
	for _, c := range chunks {
		if e.opts.FailFast && agg.HasFailure() {
			for _, p := range c.Tests {
				agg.AddSkipped(p.Test.Name, "fail-fast")
			}
			continue
		}

		s, err := schedule.Build(c)
		if err != nil {
			// OverlapError: a packing defect, fatal to this chunk only.
			e.logger.Printf("chunk %d: %v", c.ID, err)
			for _, p := range c.Tests {
				agg.Add(result.TestResult{
					Name:    p.Test.Name,
					Outcome: result.Errored,
					Reason:  err.Error(),
				}, nil)
			}
			continue
		}

		transportFailed := e.runChunk(ctx, c, s, agg)
		if transportFailed {
			consecutive++
			if consecutive >= maxConsecutiveTransportFailures {
				return fmt.Errorf("%d consecutive transport failures, connection presumed lost", consecutive)
			}
		} else {
			consecutive = 0
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// testRun is the engine's per-test bookkeeping within one chunk.
type testRun struct {
	placed       pack.Placed
	maxTick      int
	passed       int
	failed       int
	firstFailure *check.Failure
	failures     []check.Failure
	failedSeqs   map[int]bool
	errored      bool
	reason       string
	cleaned      bool
	elapsed      time.Duration
	done         bool
}

// runChunk walks the chunk through Idle → Freezing → Running ⇄ Paused →
// Cleanup → Idle. It reports whether a transport failure ended the chunk.
func (e *Engine) runChunk(ctx context.Context, c pack.Chunk, s *schedule.Schedule, agg *result.Aggregator) (transportFailed bool) {
	started := time.Now()
	runs := make([]*testRun, len(c.Tests))
	for i, p := range c.Tests {
		runs[i] = &testRun{placed: p, maxTick: p.Test.MaxTick(), failedSeqs: map[int]bool{}}
	}

	e.logEntry(runlog.Entry{Kind: runlog.KindChunkStart, Chunk: c.ID})
	e.logger.Printf("chunk %d: %d tests, %d ticks, %d event ticks, %d breakpoints",
		c.ID, len(c.Tests), s.MaxTick, s.UniqueTickCount(), len(s.Breakpoints))

	abort := func(err error) {
		transportFailed = true
		e.logEntry(runlog.Entry{Kind: runlog.KindTransport, Chunk: c.ID, Detail: err.Error()})
		e.logger.Printf("chunk %d: transport failure: %v", c.ID, err)
		for _, tr := range runs {
			if !tr.done && !tr.errored {
				tr.errored = true
				tr.reason = err.Error()
			}
		}
	}

	// Clear every test area before starting.
	for _, tr := range runs {
		if err := e.client.Fill(ctx, tr.placed.Bounds, spec.Air); err != nil {
			abort(err)
			e.finishChunk(ctx, c, runs, agg, started, false)
			return transportFailed
		}
	}

	// Freeze world time, once per chunk.
	e.state = Freezing
	if err := e.client.SuspendTime(ctx); err != nil {
		abort(err)
		e.finishChunk(ctx, c, runs, agg, started, false)
		return transportFailed
	}

	stepping := false
	if e.opts.BreakAfterSetup {
		e.state = Paused
		e.logEntry(runlog.Entry{Kind: runlog.KindPause, Chunk: c.ID, Detail: "after setup"})
		stepping = e.opts.Controller.PausedAt(0, "after setup (areas cleared, time frozen)") == Step
	}

	e.state = Running
	aborted := false

	t := 0
loop:
	for t <= s.MaxTick {
		if err := ctx.Err(); err != nil {
			aborted = true
			break
		}

		// Bulk-advance over event-free ticks, stopping at breakpoints.
		if len(s.EventsAt(t)) == 0 && !s.HasBreakpoint(t) && !stepping {
			end := s.MaxTick
			if next, ok := s.NextEventTick(t - 1); ok {
				end = next - 1
			}
			if bp, ok := s.NextBreakpoint(t - 1); ok && bp <= end {
				end = bp - 1
			}
			n := end - t + 1
			if err := e.advance(ctx, c.ID, t, n); err != nil {
				abort(err)
				break
			}
			t = end + 1
			continue
		}

		// Pause immediately before this tick's events.
		if s.HasBreakpoint(t) || stepping {
			e.state = Paused
			e.logEntry(runlog.Entry{Kind: runlog.KindPause, Chunk: c.ID, Tick: t})
			stepping = e.opts.Controller.PausedAt(t, fmt.Sprintf("tick %d", t)) == Step
			e.state = Running
		}

		if err := e.advance(ctx, c.ID, t, 1); err != nil {
			abort(err)
			break
		}

		// Actions dispatch before checks for the same test; cross-test
		// order at one tick is the tests' input order.
		for _, ev := range s.EventsAt(t) {
			tr := runs[ev.TestIndex]
			if tr.errored {
				continue
			}
			switch {
			case ev.Item.Action != nil:
				if err := e.dispatchAction(ctx, c.ID, t, tr, ev.Item.Action); err != nil {
					abort(err)
					break loop
				}
			case ev.Item.Check != nil:
				// Later checks are skipped once a test fails. A mismatched
				// state sequence is the exception: its remaining pairs still
				// run so every mismatched tick lands in the failure detail.
				if tr.failed > 0 && !tr.failedSeqs[ev.Item.Check.Sequence] {
					continue
				}
				if err := e.evaluateCheck(ctx, c.ID, t, tr, ev.Item.Check); err != nil {
					abort(err)
					break loop
				}
			}
		}

		// Release finished tests early so their cells settle back to air.
		for _, tr := range runs {
			if !tr.done && t >= tr.maxTick {
				tr.done = true
				tr.elapsed = time.Since(started)
				if err := e.cleanupTest(ctx, c.ID, tr); err != nil {
					abort(err)
					break loop
				}
			}
		}

		if e.opts.FailFast {
			for _, tr := range runs {
				if tr.failed > 0 {
					aborted = true
					break loop
				}
			}
		}

		if e.opts.Progress != nil {
			e.opts.Progress(c.ID, t, s.MaxTick)
		}
		t++
	}

	e.finishChunk(ctx, c, runs, agg, started, aborted)
	return transportFailed
}

// finishChunk runs the Cleanup state: resume world time, restore every
// remaining region, then fold outcomes into the aggregator. It must run even
// on abort; leaving the world suspended is never acceptable.
func (e *Engine) finishChunk(ctx context.Context, c pack.Chunk, runs []*testRun, agg *result.Aggregator, started time.Time, aborted bool) {
	e.state = Cleanup
	// A canceled context must not keep the world frozen.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := e.client.ResumeTime(cctx); err != nil {
		e.logger.Printf("chunk %d: resume time: %v", c.ID, err)
	}
	for _, tr := range runs {
		if !tr.cleaned {
			if err := e.client.Fill(cctx, tr.placed.Bounds, spec.Air); err != nil {
				e.logger.Printf("chunk %d: cleanup %s: %v", c.ID, tr.placed.Test.Name, err)
			}
			tr.cleaned = true
			e.logEntry(runlog.Entry{Kind: runlog.KindCleanup, Chunk: c.ID, Test: tr.placed.Test.Name})
		}
	}

	for _, tr := range runs {
		if tr.elapsed == 0 {
			tr.elapsed = time.Since(started)
		}
		res := result.TestResult{
			Name:    tr.placed.Test.Name,
			Elapsed: tr.elapsed,
			Ticks:   tr.maxTick + 1,
		}
		switch {
		case tr.errored:
			res.Outcome = result.Errored
			res.Reason = tr.reason
		case tr.failed > 0:
			res.Outcome = result.Failed
			res.Failure = tr.firstFailure
		case aborted && !tr.done:
			res.Outcome = result.Skipped
			res.Reason = "run aborted"
		default:
			res.Outcome = result.Passed
		}
		agg.Add(res, tr.failures)
	}

	e.logEntry(runlog.Entry{Kind: runlog.KindChunkEnd, Chunk: c.ID})
	e.state = Idle
}

// advance issues one awaited time step of n ticks. Reads only happen after
// it returns; that ordering is what keeps assertions from observing stale
// state.
func (e *Engine) advance(ctx context.Context, chunkID, tick, n int) error {
	if err := e.client.Advance(ctx, n); err != nil {
		return err
	}
	e.logEntry(runlog.Entry{Kind: runlog.KindAdvance, Chunk: chunkID, Tick: tick, Ticks: n})
	return nil
}

func (e *Engine) dispatchAction(ctx context.Context, chunkID, tick int, tr *testRun, a *spec.Action) error {
	off := tr.placed.Offset
	var err error
	switch a.Kind {
	case spec.ActionPlace:
		err = e.client.SetBlock(ctx, a.Pos.Add(off), a.Block)
	case spec.ActionPlaceEach:
		for _, p := range a.Blocks {
			if err = e.client.SetBlock(ctx, p.Pos.Add(off), p.Block); err != nil {
				break
			}
			e.sleep(ctx)
		}
	case spec.ActionFill:
		err = e.client.Fill(ctx, a.Region.Translate(off), a.Block)
	case spec.ActionRemove:
		err = e.client.SetBlock(ctx, a.Pos.Add(off), spec.Air)
	default:
		return fmt.Errorf("unknown action kind %d", a.Kind)
	}
	if err != nil {
		return err
	}
	e.logEntry(runlog.Entry{
		Kind: runlog.KindAction, Chunk: chunkID, Tick: tick,
		Test: tr.placed.Test.Name, Detail: a.Kind.String(),
	})
	e.sleep(ctx)
	return nil
}

func (e *Engine) evaluateCheck(ctx context.Context, chunkID, tick int, tr *testRun, c *spec.Check) error {
	fail, err := e.eval.Evaluate(ctx, c, c.Pos.Add(tr.placed.Offset), tick)
	if err != nil {
		return err
	}
	ok := fail == nil
	e.logEntry(runlog.Entry{
		Kind: runlog.KindCheck, Chunk: chunkID, Tick: tick,
		Test: tr.placed.Test.Name, OK: &ok,
	})
	if fail == nil {
		tr.passed++
		return nil
	}
	tr.failed++
	tr.failures = append(tr.failures, *fail)
	if tr.firstFailure == nil {
		tr.firstFailure = fail
	}
	if c.Sequence != 0 {
		tr.failedSeqs[c.Sequence] = true
	}
	e.logger.Printf("[%s] tick %d: expected %s, got %s", tr.placed.Test.Name, tick, fail.Expected, fail.Actual)
	return nil
}

// cleanupTest restores one finished test's translated region mid-chunk.
func (e *Engine) cleanupTest(ctx context.Context, chunkID int, tr *testRun) error {
	if tr.cleaned {
		return nil
	}
	if err := e.client.Fill(ctx, tr.placed.Bounds, spec.Air); err != nil {
		return err
	}
	tr.cleaned = true
	e.logEntry(runlog.Entry{Kind: runlog.KindCleanup, Chunk: chunkID, Test: tr.placed.Test.Name})
	return nil
}

func (e *Engine) sleep(ctx context.Context) {
	if e.opts.ActionDelay <= 0 {
		return
	}
	t := time.NewTimer(e.opts.ActionDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (e *Engine) logEntry(entry runlog.Entry) {
	if e.opts.RunLog == nil {
		return
	}
	if err := e.opts.RunLog.Write(entry); err != nil {
		e.logger.Printf("runlog: %v", err)
	}
}
