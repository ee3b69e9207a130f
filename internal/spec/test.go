package spec

// Package spec holds the immutable in-memory model of a loaded test
// definition: positions, block specs, actions, checks and the test itself.

// ActionKind discriminates the Action variants.
type ActionKind int

const (
	ActionPlace ActionKind = iota + 1
	ActionPlaceEach
	ActionFill
	ActionRemove
)

func (k ActionKind) String() string {
	switch k {
	case ActionPlace:
		return "place"
	case ActionPlaceEach:
		return "place_each"
	case ActionFill:
		return "fill"
	case ActionRemove:
		return "remove"
	}
	return "unknown"
}

// Placement is one (position, block) pair inside a place_each action.
type Placement struct {
	Pos   Vec3i     `json:"pos"`
	Block BlockSpec `json:"block"`
}

// Action is a world mutation bound to a tick offset relative to its test's
// start. Exactly the fields for its kind are set.
type Action struct {
	Kind   ActionKind
	Pos    Vec3i       // Place, Remove
	Block  BlockSpec   // Place, Fill
	Blocks []Placement // PlaceEach
	Region Region      // Fill
}

// CheckKind discriminates the Check variants.
type CheckKind int

const (
	// CheckBlock asserts a block at a position against a BlockSpec.
	CheckBlock CheckKind = iota + 1
	// CheckState asserts one named state property of a block. A state
	// sequence in the document expands into one CheckState per listed tick.
	CheckState
)

// Check is a single assertion bound to a tick offset. State sequences are
// expanded at load time: each (tick, value) pair becomes its own CheckState
// sharing the sequence's position and property name.
type Check struct {
	Kind   CheckKind
	Pos    Vec3i
	Expect BlockSpec // CheckBlock
	State  string    // CheckState: property name
	Value  string    // CheckState: expected value

	// Sequence groups the expanded pairs of one state sequence; zero for
	// standalone checks. A sequence reports every mismatched tick, so its
	// remaining pairs keep evaluating after one of them fails.
	Sequence int
}

// TimelineItem is one Action or Check at one tick offset. Seq preserves
// document order and breaks ties for items sharing a tick.
type TimelineItem struct {
	Tick   int
	Seq    int
	Action *Action
	Check  *Check
}

// Test is one loaded test definition. It is built once by the loader and
// read-only afterwards.
type Test struct {
	Name        string
	Description string
	Tags        []string
	Cleanup     Region
	Breakpoints []int
	Timeline    []TimelineItem

	// Path is the file the definition was loaded from, for reporting.
	Path string
}

// MaxTick returns the highest tick offset any timeline item is bound to.
func (t *Test) MaxTick() int {
	m := 0
	for _, it := range t.Timeline {
		if it.Tick > m {
			m = it.Tick
		}
	}
	return m
}

// HasTag reports whether the test carries the given tag.
func (t *Test) HasTag(tag string) bool {
	for _, g := range t.Tags {
		if g == tag {
			return true
		}
	}
	return false
}

// HasAnyTag reports whether the test's tag set intersects the given one.
func (t *Test) HasAnyTag(tags []string) bool {
	for _, tag := range tags {
		if t.HasTag(tag) {
			return true
		}
	}
	return false
}

// TouchedPositions returns every position the timeline mutates or observes,
// in test-local coordinates. The cleanup region must contain all of them.
func (t *Test) TouchedPositions() []Vec3i {
	var out []Vec3i
	for _, it := range t.Timeline {
		switch {
		case it.Action != nil:
			a := it.Action
			switch a.Kind {
			case ActionPlace, ActionRemove:
				out = append(out, a.Pos)
			case ActionPlaceEach:
				for _, p := range a.Blocks {
					out = append(out, p.Pos)
				}
			case ActionFill:
				out = append(out, a.Region.Min, a.Region.Max)
			}
		case it.Check != nil:
			out = append(out, it.Check.Pos)
		}
	}
	return out
}
