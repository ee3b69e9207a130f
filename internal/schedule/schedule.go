// Package schedule merges the placement-translated timelines of all tests in
// a chunk into one tick-ordered global event sequence, plus the fast-forward
// ranges and breakpoint set the engine consumes.
package schedule

import (
	"fmt"
	"sort"

	"gridstone.dev/internal/pack"
	"gridstone.dev/internal/spec"
)

// Event is one scheduled Action or Check: (absolute tick, owning test,
// timeline item). Positions inside the item are test-local; the engine
// applies the owning test's placement offset at dispatch time.
type Event struct {
	Tick      int
	TestIndex int
	Item      spec.TimelineItem
}

// Range is a maximal run of ticks [Start, End] with zero scheduled events,
// eligible for bulk-advance.
type Range struct {
	Start int
	End   int
}

func (r Range) Len() int { return r.End - r.Start + 1 }

// OverlapError reports intersecting packed regions at merge time. Packing
// guarantees disjointness, so hitting this is a programming defect; it is
// fatal to the affected chunk only.
type OverlapError struct {
	ChunkID int
	A, B    string
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("chunk %d: placed regions of %q and %q overlap", e.ChunkID, e.A, e.B)
}

// Schedule is the materialized global order for one chunk.
//
// Events are totally ordered by (tick, test input order, actions-before-
// checks within that test, document order). Cross-test ordering at an equal
// tick is therefore the tests' input order: all of test 0's events at tick T
// run before any of test 1's events at tick T.
type Schedule struct {
	ChunkID     int
	Events      []Event
	MaxTick     int
	Breakpoints []int

	byTick     map[int][]Event
	eventTicks []int
	bpSet      map[int]bool
}

// Build merges a chunk's timelines. It re-verifies the packer's non-overlap
// guarantee and fails the whole chunk with an OverlapError if it is broken.
func Build(c pack.Chunk) (*Schedule, error) {
	for i := 0; i < len(c.Tests); i++ {
		for j := i + 1; j < len(c.Tests); j++ {
			if c.Tests[i].Bounds.Intersects(c.Tests[j].Bounds) {
				return nil, &OverlapError{
					ChunkID: c.ID,
					A:       c.Tests[i].Test.Name,
					B:       c.Tests[j].Test.Name,
				}
			}
		}
	}

	s := &Schedule{
		ChunkID: c.ID,
		byTick:  map[int][]Event{},
		bpSet:   map[int]bool{},
	}

	for ti, placed := range c.Tests {
		for _, item := range placed.Test.Timeline {
			s.Events = append(s.Events, Event{Tick: item.Tick, TestIndex: ti, Item: item})
			if item.Tick > s.MaxTick {
				s.MaxTick = item.Tick
			}
		}
		for _, bp := range placed.Test.Breakpoints {
			if !s.bpSet[bp] {
				s.bpSet[bp] = true
				s.Breakpoints = append(s.Breakpoints, bp)
			}
		}
	}

	sort.SliceStable(s.Events, func(i, j int) bool {
		a, b := s.Events[i], s.Events[j]
		if a.Tick != b.Tick {
			return a.Tick < b.Tick
		}
		if a.TestIndex != b.TestIndex {
			return a.TestIndex < b.TestIndex
		}
		// Within one test at one tick a check observes the effect of the
		// test's own same-tick actions, so actions sort first.
		if ar, br := kindRank(a.Item), kindRank(b.Item); ar != br {
			return ar < br
		}
		return a.Item.Seq < b.Item.Seq
	})
	sort.Ints(s.Breakpoints)

	for _, ev := range s.Events {
		if _, ok := s.byTick[ev.Tick]; !ok {
			s.eventTicks = append(s.eventTicks, ev.Tick)
		}
		s.byTick[ev.Tick] = append(s.byTick[ev.Tick], ev)
	}
	sort.Ints(s.eventTicks)
	return s, nil
}

func kindRank(it spec.TimelineItem) int {
	if it.Action != nil {
		return 0
	}
	return 1
}

// EventsAt returns the ordered events scheduled at the given tick.
func (s *Schedule) EventsAt(tick int) []Event { return s.byTick[tick] }

// UniqueTickCount is the number of distinct ticks carrying events.
func (s *Schedule) UniqueTickCount() int { return len(s.eventTicks) }

// NextEventTick returns the first tick strictly after the given one carrying
// any event.
func (s *Schedule) NextEventTick(after int) (int, bool) {
	i := sort.SearchInts(s.eventTicks, after+1)
	if i == len(s.eventTicks) {
		return 0, false
	}
	return s.eventTicks[i], true
}

// HasBreakpoint reports whether execution must pause immediately before
// processing events at the given tick.
func (s *Schedule) HasBreakpoint(tick int) bool { return s.bpSet[tick] }

// NextBreakpoint returns the first breakpoint strictly after the given tick.
func (s *Schedule) NextBreakpoint(after int) (int, bool) {
	i := sort.SearchInts(s.Breakpoints, after+1)
	if i == len(s.Breakpoints) {
		return 0, false
	}
	return s.Breakpoints[i], true
}

// EmptyRanges returns the maximal event-free runs of ticks up to MaxTick.
// A run's length is exactly the count of event-free ticks before the next
// event or the chunk's last tick.
func (s *Schedule) EmptyRanges() []Range {
	var out []Range
	start := -1
	for t := 0; t <= s.MaxTick; t++ {
		if _, ok := s.byTick[t]; ok {
			if start >= 0 {
				out = append(out, Range{Start: start, End: t - 1})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = t
		}
	}
	if start >= 0 {
		out = append(out, Range{Start: start, End: s.MaxTick})
	}
	return out
}
