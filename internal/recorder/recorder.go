// Package recorder is the inverse pipeline: it watches world changes while an
// operator builds a contraption by hand and turns them into a test
// definition.
package recorder

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"

	"gridstone.dev/internal/spec"
	"gridstone.dev/internal/worldclient"
)

// State of the recorder. Saving and cancelling are transitions, not states:
// Save and Cancel run to completion under the lock and land back in Off, so
// nothing can observe a recorder mid-save or mid-cancel.
type State int

const (
	Off State = iota
	Recording
)

func (s State) String() string {
	if s == Recording {
		return "recording"
	}
	return "off"
}

// RecorderError marks a misused or empty recording. It resets nothing by
// itself; the operation that raised it decides whether the recorder stays in
// its state or returns to Off.
type RecorderError struct {
	Op     string
	Reason string
}

func (e *RecorderError) Error() string {
	return fmt.Sprintf("recorder %s: %s", e.Op, e.Reason)
}

func recorderf(op, format string, args ...any) error {
	return &RecorderError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// diff is one position's accumulated change within the current tick: the
// block before the first change and after the last one.
type diff struct {
	pos spec.Vec3i
	old spec.BlockSpec
	new spec.BlockSpec
	seq int
}

// Recorder captures block changes near a reference position into a timeline.
// While recording, world time stays suspended except during explicit Advance
// calls; every observed change lands in the current tick's pending set until
// Advance converts it into actions (or AssertChanges into checks).
//
// The first observed or asserted position fixes the origin; Save expresses
// every position relative to it.
type Recorder struct {
	client worldclient.Client
	logger *log.Logger

	mu       sync.Mutex
	state    State
	center   spec.Vec3i
	radius   int
	origin   *spec.Vec3i
	tick     int
	seq      int
	pending  map[spec.Vec3i]*diff
	timeline []spec.TimelineItem

	// snapshot backs the polling fallback for servers that do not stream
	// block changes.
	snapshot map[spec.Vec3i]spec.BlockSpec
}

func New(client worldclient.Client, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.New(os.Stdout, "[recorder] ", log.LstdFlags)
	}
	r := &Recorder{client: client, logger: logger}
	client.OnBlockChange(r.onChange)
	return r
}

// State returns the recorder's current state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Tick returns the recording's current tick counter.
func (r *Recorder) Tick() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tick
}

// Origin returns the fixed origin, or false if no position was observed yet.
func (r *Recorder) Origin() (spec.Vec3i, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.origin == nil {
		return spec.Vec3i{}, false
	}
	return *r.origin, true
}

// Start suspends world time and begins capturing changes within radius blocks
// of center.
func (r *Recorder) Start(ctx context.Context, center spec.Vec3i, radius int) error {
	r.mu.Lock()
	if r.state != Off {
		r.mu.Unlock()
		return recorderf("start", "already recording")
	}
	if radius <= 0 {
		r.mu.Unlock()
		return recorderf("start", "radius must be positive, got %d", radius)
	}
	r.mu.Unlock()

	if err := r.client.SuspendTime(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	r.state = Recording
	r.center = center
	r.radius = radius
	r.origin = nil
	r.tick = 0
	r.seq = 0
	r.pending = map[spec.Vec3i]*diff{}
	r.timeline = nil
	r.snapshot = nil
	r.mu.Unlock()

	r.logger.Printf("recording started at %v, radius %d", center, radius)
	return nil
}

// onChange receives pushed world changes. Changes outside the capture radius
// or arriving while Off are dropped.
func (r *Recorder) onChange(ch worldclient.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Recording || !r.inRange(ch.Pos) {
		return
	}
	r.recordLocked(ch.Pos, ch.Old, ch.New)
}

func (r *Recorder) inRange(p spec.Vec3i) bool {
	d := p.Sub(r.center)
	abs := func(n int) int {
		if n < 0 {
			return -n
		}
		return n
	}
	return abs(d.X) <= r.radius && abs(d.Y) <= r.radius && abs(d.Z) <= r.radius
}

func (r *Recorder) recordLocked(pos spec.Vec3i, old, new spec.BlockSpec) {
	if r.origin == nil {
		o := pos
		r.origin = &o
		r.logger.Printf("origin fixed at %v", pos)
	}
	if d, ok := r.pending[pos]; ok {
		// Collapse repeated changes: keep the first old, the last new.
		d.new = new
		return
	}
	r.seq++
	r.pending[pos] = &diff{pos: pos, old: old, new: new, seq: r.seq}
}

// pendingOrdered drains the pending set in observation order.
func (r *Recorder) pendingOrdered() []*diff {
	out := make([]*diff, 0, len(r.pending))
	for _, d := range r.pending {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	r.pending = map[spec.Vec3i]*diff{}
	return out
}

// Advance converts the pending diffs into actions at the current tick, steps
// the world by one tick and increments the counter. Emptied positions become
// remove actions, everything else a place.
func (r *Recorder) Advance(ctx context.Context) error {
	r.mu.Lock()
	if r.state != Recording {
		r.mu.Unlock()
		return recorderf("advance", "not recording")
	}
	for _, d := range r.pendingOrdered() {
		r.seq++
		a := &spec.Action{Kind: spec.ActionPlace, Pos: d.pos, Block: d.new}
		if d.new.IsAir() {
			a = &spec.Action{Kind: spec.ActionRemove, Pos: d.pos}
		}
		r.timeline = append(r.timeline, spec.TimelineItem{Tick: r.tick, Seq: r.seq, Action: a})
	}
	tick := r.tick
	r.mu.Unlock()

	if err := r.client.Advance(ctx, 1); err != nil {
		return err
	}

	r.mu.Lock()
	r.tick++
	r.mu.Unlock()
	r.logger.Printf("advanced past tick %d", tick)
	return nil
}

// Assert reads the block at pos and records a check for it at the current
// tick.
func (r *Recorder) Assert(ctx context.Context, pos spec.Vec3i) error {
	r.mu.Lock()
	if r.state != Recording {
		r.mu.Unlock()
		return recorderf("assert", "not recording")
	}
	r.mu.Unlock()

	observed, err := r.client.QueryBlock(ctx, pos)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.origin == nil {
		o := pos
		r.origin = &o
	}
	r.seq++
	r.timeline = append(r.timeline, spec.TimelineItem{
		Tick: r.tick, Seq: r.seq,
		Check: &spec.Check{Kind: spec.CheckBlock, Pos: pos, Expect: observed},
	})
	r.logger.Printf("assert %v is %s at tick %d", pos, observed, r.tick)
	return nil
}

// AssertChanges converts every not-yet-advanced pending diff into checks at
// the current tick instead of actions.
func (r *Recorder) AssertChanges() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Recording {
		return recorderf("assert_changes", "not recording")
	}
	drained := r.pendingOrdered()
	if len(drained) == 0 {
		return recorderf("assert_changes", "no pending changes")
	}
	for _, d := range drained {
		r.seq++
		r.timeline = append(r.timeline, spec.TimelineItem{
			Tick: r.tick, Seq: r.seq,
			Check: &spec.Check{Kind: spec.CheckBlock, Pos: d.pos, Expect: d.new},
		})
	}
	r.logger.Printf("converted %d pending changes into checks at tick %d", len(drained), r.tick)
	return nil
}

// Save finalizes the recording into a test: positions become origin-relative,
// the cleanup region is the padded bounding box of everything touched, world
// time resumes and the recorder returns to Off. A save that cannot produce a
// test (nothing recorded, missing name) also resumes time and resets to Off.
func (r *Recorder) Save(ctx context.Context, name, description string, tags []string) (*spec.Test, error) {
	r.mu.Lock()
	if r.state != Recording {
		r.mu.Unlock()
		return nil, recorderf("save", "not recording")
	}
	if len(r.timeline) == 0 || name == "" {
		reason := "nothing recorded"
		if len(r.timeline) > 0 {
			reason = "test name required"
		}
		r.mu.Unlock()
		if err := r.client.ResumeTime(ctx); err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.reset()
		r.mu.Unlock()
		return nil, recorderf("save", reason)
	}
	origin := *r.origin

	t := &spec.Test{
		Name:        name,
		Description: description,
		Tags:        tags,
	}
	for _, it := range r.timeline {
		t.Timeline = append(t.Timeline, translateItem(it, origin))
	}
	t.Cleanup = boundingBox(t.TouchedPositions()).Pad(1)
	r.mu.Unlock()

	if err := r.client.ResumeTime(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.reset()
	r.mu.Unlock()
	r.logger.Printf("saved recording as %q: %d timeline items", name, len(t.Timeline))
	return t, nil
}

// Cancel resumes world time and discards the recording.
func (r *Recorder) Cancel(ctx context.Context) error {
	r.mu.Lock()
	if r.state != Recording {
		r.mu.Unlock()
		return recorderf("cancel", "not recording")
	}
	r.mu.Unlock()

	if err := r.client.ResumeTime(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	r.reset()
	r.mu.Unlock()
	r.logger.Printf("recording cancelled")
	return nil
}

func (r *Recorder) reset() {
	r.state = Off
	r.origin = nil
	r.tick = 0
	r.seq = 0
	r.pending = nil
	r.timeline = nil
	r.snapshot = nil
}

// Poll diffs the capture box against the previous snapshot and synthesizes
// change events, for servers that do not push block changes. The first call
// only seeds the snapshot.
func (r *Recorder) Poll(ctx context.Context) error {
	r.mu.Lock()
	if r.state != Recording {
		r.mu.Unlock()
		return recorderf("poll", "not recording")
	}
	center, radius := r.center, r.radius
	r.mu.Unlock()

	cur := map[spec.Vec3i]spec.BlockSpec{}
	for x := center.X - radius; x <= center.X+radius; x++ {
		for y := center.Y - radius; y <= center.Y+radius; y++ {
			for z := center.Z - radius; z <= center.Z+radius; z++ {
				pos := spec.Vec3i{X: x, Y: y, Z: z}
				b, err := r.client.QueryBlock(ctx, pos)
				if err != nil {
					return err
				}
				if !b.IsAir() {
					cur[pos] = b
				}
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Recording {
		return nil
	}
	if r.snapshot != nil {
		for pos, b := range cur {
			if old, ok := r.snapshot[pos]; !ok || old.String() != b.String() {
				prev := spec.Air
				if ok {
					prev = old
				}
				r.recordLocked(pos, prev, b)
			}
		}
		for pos, old := range r.snapshot {
			if _, ok := cur[pos]; !ok {
				r.recordLocked(pos, old, spec.Air)
			}
		}
	}
	r.snapshot = cur
	return nil
}

func translateItem(it spec.TimelineItem, origin spec.Vec3i) spec.TimelineItem {
	out := spec.TimelineItem{Tick: it.Tick, Seq: it.Seq}
	switch {
	case it.Action != nil:
		a := *it.Action
		switch a.Kind {
		case spec.ActionPlace, spec.ActionRemove:
			a.Pos = a.Pos.Sub(origin)
		case spec.ActionPlaceEach:
			a.Blocks = append([]spec.Placement(nil), a.Blocks...)
			for i := range a.Blocks {
				a.Blocks[i].Pos = a.Blocks[i].Pos.Sub(origin)
			}
		case spec.ActionFill:
			a.Region = a.Region.Translate(spec.Vec3i{}.Sub(origin))
		}
		out.Action = &a
	case it.Check != nil:
		c := *it.Check
		c.Pos = c.Pos.Sub(origin)
		out.Check = &c
	}
	return out
}

func boundingBox(pts []spec.Vec3i) spec.Region {
	if len(pts) == 0 {
		return spec.Region{}
	}
	r := spec.Region{Min: pts[0], Max: pts[0]}
	for _, p := range pts[1:] {
		r.Min = spec.Vec3i{X: min(r.Min.X, p.X), Y: min(r.Min.Y, p.Y), Z: min(r.Min.Z, p.Z)}
		r.Max = spec.Vec3i{X: max(r.Max.X, p.X), Y: max(r.Max.Y, p.Y), Z: max(r.Max.Z, p.Z)}
	}
	return r
}
