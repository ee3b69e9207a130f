package spec

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed test.schema.json
var testSchemaJSON string

var testSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("test.schema.json", strings.NewReader(testSchemaJSON)); err != nil {
		panic(fmt.Sprintf("spec: add schema resource: %v", err))
	}
	s, err := c.Compile("test.schema.json")
	if err != nil {
		panic(fmt.Sprintf("spec: compile test schema: %v", err))
	}
	return s
}

// ValidationError marks a malformed test definition. The test it belongs to
// is skipped and reported; loading of other tests continues.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return "invalid test definition: " + e.Reason
	}
	return fmt.Sprintf("invalid test definition %s: %s", e.Path, e.Reason)
}

func invalidf(path, format string, args ...any) error {
	return &ValidationError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// Wire shape of a test document. Payload kind is determined by which of the
// kind-specific fields is present; exactly one must be.
type testDoc struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Setup       *struct {
		Cleanup struct {
			Region Region `json:"region"`
		} `json:"cleanup"`
	} `json:"setup,omitempty"`
	Breakpoints []int      `json:"breakpoints,omitempty"`
	Timeline    []entryDoc `json:"timeline"`
}

type entryDoc struct {
	At tickSelector `json:"at"`

	Place *struct {
		Pos   Vec3i     `json:"pos"`
		Block BlockSpec `json:"block"`
	} `json:"place,omitempty"`
	PlaceEach *struct {
		Blocks []Placement `json:"blocks"`
	} `json:"place_each,omitempty"`
	Fill *struct {
		Region Region    `json:"region"`
		Block  BlockSpec `json:"block"`
	} `json:"fill,omitempty"`
	Remove *struct {
		Pos Vec3i `json:"pos"`
	} `json:"remove,omitempty"`
	Assert *struct {
		Checks []struct {
			Pos Vec3i     `json:"pos"`
			Is  BlockSpec `json:"is"`
		} `json:"checks"`
	} `json:"assert,omitempty"`
	AssertState *struct {
		Pos    Vec3i    `json:"pos"`
		State  string   `json:"state"`
		Values []string `json:"values"`
	} `json:"assert_state,omitempty"`
}

// tickSelector accepts a single tick or a list of ticks.
type tickSelector []int

func (t *tickSelector) UnmarshalJSON(b []byte) error {
	var one int
	if err := json.Unmarshal(b, &one); err == nil {
		*t = []int{one}
		return nil
	}
	var many []int
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*t = many
	return nil
}

// ParseTest validates and decodes one test document. The path is recorded on
// the returned Test and used in error messages only.
func ParseTest(data []byte, path string) (*Test, error) {
	var anyDoc any
	if err := json.Unmarshal(data, &anyDoc); err != nil {
		return nil, invalidf(path, "not valid JSON: %v", err)
	}
	if err := testSchema.Validate(anyDoc); err != nil {
		return nil, invalidf(path, "schema: %v", err)
	}

	var doc testDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, invalidf(path, "decode: %v", err)
	}
	return buildTest(&doc, path)
}

// LoadTest reads and parses a test definition file.
func LoadTest(path string) (*Test, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseTest(data, path)
}

func buildTest(doc *testDoc, path string) (*Test, error) {
	t := &Test{
		Name:        doc.Name,
		Description: doc.Description,
		Tags:        doc.Tags,
		Breakpoints: doc.Breakpoints,
		Path:        path,
	}
	for _, bp := range t.Breakpoints {
		if bp < 0 {
			return nil, invalidf(path, "negative breakpoint tick %d", bp)
		}
	}

	seq := 0
	next := func() int { seq++; return seq }

	for i, e := range doc.Timeline {
		if len(e.At) == 0 {
			return nil, invalidf(path, "timeline[%d]: empty tick selector", i)
		}
		for _, at := range e.At {
			if at < 0 {
				return nil, invalidf(path, "timeline[%d]: negative tick offset %d", i, at)
			}
		}

		switch {
		case e.Place != nil:
			for _, at := range e.At {
				t.Timeline = append(t.Timeline, TimelineItem{
					Tick: at, Seq: next(),
					Action: &Action{Kind: ActionPlace, Pos: e.Place.Pos, Block: e.Place.Block},
				})
			}
		case e.PlaceEach != nil:
			for _, at := range e.At {
				t.Timeline = append(t.Timeline, TimelineItem{
					Tick: at, Seq: next(),
					Action: &Action{Kind: ActionPlaceEach, Blocks: e.PlaceEach.Blocks},
				})
			}
		case e.Fill != nil:
			for _, at := range e.At {
				t.Timeline = append(t.Timeline, TimelineItem{
					Tick: at, Seq: next(),
					Action: &Action{Kind: ActionFill, Region: e.Fill.Region, Block: e.Fill.Block},
				})
			}
		case e.Remove != nil:
			for _, at := range e.At {
				t.Timeline = append(t.Timeline, TimelineItem{
					Tick: at, Seq: next(),
					Action: &Action{Kind: ActionRemove, Pos: e.Remove.Pos},
				})
			}
		case e.Assert != nil:
			for _, at := range e.At {
				for _, c := range e.Assert.Checks {
					t.Timeline = append(t.Timeline, TimelineItem{
						Tick: at, Seq: next(),
						Check: &Check{Kind: CheckBlock, Pos: c.Pos, Expect: c.Is},
					})
				}
			}
		case e.AssertState != nil:
			// A state sequence zips the tick list with the value list:
			// each pair is an independent single-property check.
			if len(e.AssertState.Values) != len(e.At) {
				return nil, invalidf(path, "timeline[%d]: assert_state has %d values for %d ticks",
					i, len(e.AssertState.Values), len(e.At))
			}
			for vi, at := range e.At {
				t.Timeline = append(t.Timeline, TimelineItem{
					Tick: at, Seq: next(),
					Check: &Check{
						Kind:     CheckState,
						Pos:      e.AssertState.Pos,
						State:    e.AssertState.State,
						Value:    e.AssertState.Values[vi],
						Sequence: i + 1,
					},
				})
			}
		default:
			return nil, invalidf(path, "timeline[%d]: unknown action kind", i)
		}
	}

	if doc.Setup != nil {
		t.Cleanup = doc.Setup.Cleanup.Region
	} else {
		t.Cleanup = defaultCleanup(t)
	}
	for _, p := range t.TouchedPositions() {
		if !t.Cleanup.Contains(p) {
			return nil, invalidf(path, "cleanup region %v..%v does not contain touched position %v",
				t.Cleanup.Min, t.Cleanup.Max, p)
		}
	}
	return t, nil
}

// defaultCleanup derives a cleanup region as the padded bounding box of every
// touched position, for documents that omit setup.cleanup.
func defaultCleanup(t *Test) Region {
	pts := t.TouchedPositions()
	if len(pts) == 0 {
		return NewRegion(Vec3i{}, Vec3i{})
	}
	r := Region{Min: pts[0], Max: pts[0]}
	for _, p := range pts[1:] {
		r.Min = Vec3i{X: min(r.Min.X, p.X), Y: min(r.Min.Y, p.Y), Z: min(r.Min.Z, p.Z)}
		r.Max = Vec3i{X: max(r.Max.X, p.X), Y: max(r.Max.Y, p.Y), Z: max(r.Max.Z, p.Z)}
	}
	return r.Pad(1)
}
