package spec

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Vec3i is an integer position in world space.
type Vec3i struct {
	X, Y, Z int
}

func (v Vec3i) Add(o Vec3i) Vec3i {
	return Vec3i{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

func (v Vec3i) Sub(o Vec3i) Vec3i {
	return Vec3i{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

func (v Vec3i) String() string {
	return fmt.Sprintf("[%d, %d, %d]", v.X, v.Y, v.Z)
}

// Positions travel as [x,y,z] arrays on the wire and in test documents.
func (v Vec3i) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]int{v.X, v.Y, v.Z})
}

func (v *Vec3i) UnmarshalJSON(b []byte) error {
	var a [3]int
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	v.X, v.Y, v.Z = a[0], a[1], a[2]
	return nil
}

// Region is an axis-aligned box between two corners (inclusive).
type Region struct {
	Min Vec3i
	Max Vec3i
}

// NewRegion orders the corners so Min <= Max on every axis.
func NewRegion(a, b Vec3i) Region {
	return Region{
		Min: Vec3i{X: min(a.X, b.X), Y: min(a.Y, b.Y), Z: min(a.Z, b.Z)},
		Max: Vec3i{X: max(a.X, b.X), Y: max(a.Y, b.Y), Z: max(a.Z, b.Z)},
	}
}

func (r Region) Contains(p Vec3i) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X &&
		p.Y >= r.Min.Y && p.Y <= r.Max.Y &&
		p.Z >= r.Min.Z && p.Z <= r.Max.Z
}

func (r Region) Intersects(o Region) bool {
	return r.Min.X <= o.Max.X && r.Max.X >= o.Min.X &&
		r.Min.Y <= o.Max.Y && r.Max.Y >= o.Min.Y &&
		r.Min.Z <= o.Max.Z && r.Max.Z >= o.Min.Z
}

// Size returns the extent of the region along each axis, in blocks.
func (r Region) Size() Vec3i {
	return Vec3i{
		X: r.Max.X - r.Min.X + 1,
		Y: r.Max.Y - r.Min.Y + 1,
		Z: r.Max.Z - r.Min.Z + 1,
	}
}

// Translate shifts both corners by the given offset.
func (r Region) Translate(off Vec3i) Region {
	return Region{Min: r.Min.Add(off), Max: r.Max.Add(off)}
}

// Pad grows the region by n blocks on every side.
func (r Region) Pad(n int) Region {
	d := Vec3i{X: n, Y: n, Z: n}
	return Region{Min: r.Min.Sub(d), Max: r.Max.Add(d)}
}

func (r Region) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]Vec3i{r.Min, r.Max})
}

func (r *Region) UnmarshalJSON(b []byte) error {
	var a [2]Vec3i
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*r = NewRegion(a[0], a[1])
	return nil
}

// BlockSpec names a block and, optionally, some of its state properties.
// Matching against an observed block is always a subset match: properties the
// spec does not name are ignored.
type BlockSpec struct {
	ID    string            `json:"id"`
	Props map[string]string `json:"props,omitempty"`
}

// Air is the empty block every cleanup fill restores.
var Air = BlockSpec{ID: "air"}

func (b BlockSpec) IsAir() bool {
	return b.ID == "" || b.ID == "air"
}

// Matches reports whether an observed block satisfies this spec: identifiers
// must be equal and every named property must carry the expected value.
func (b BlockSpec) Matches(observed BlockSpec) bool {
	if b.ID != observed.ID {
		return false
	}
	for k, want := range b.Props {
		got, ok := observed.Props[k]
		if !ok || got != want {
			return false
		}
	}
	return true
}

// String renders the canonical "id[k=v,...]" form with properties sorted.
func (b BlockSpec) String() string {
	if len(b.Props) == 0 {
		return b.ID
	}
	keys := make([]string, 0, len(b.Props))
	for k := range b.Props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+b.Props[k])
	}
	return b.ID + "[" + strings.Join(pairs, ",") + "]"
}

// ParseBlockSpec parses the "id[k=v,...]" form used in test documents and on
// the wire.
func ParseBlockSpec(s string) (BlockSpec, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '[')
	if open < 0 {
		if s == "" {
			return BlockSpec{}, fmt.Errorf("empty block spec")
		}
		return BlockSpec{ID: s}, nil
	}
	if !strings.HasSuffix(s, "]") {
		return BlockSpec{}, fmt.Errorf("block spec %q: missing closing bracket", s)
	}
	id := s[:open]
	if id == "" {
		return BlockSpec{}, fmt.Errorf("block spec %q: empty identifier", s)
	}
	props := map[string]string{}
	for _, pair := range strings.Split(s[open+1:len(s)-1], ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return BlockSpec{}, fmt.Errorf("block spec %q: bad property %q", s, pair)
		}
		props[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if len(props) == 0 {
		props = nil
	}
	return BlockSpec{ID: id, Props: props}, nil
}

// Block specs appear in documents either as a bare string ("oak_fence[east=true]")
// or as an {id, props} object.
func (b *BlockSpec) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseBlockSpec(s)
		if err != nil {
			return err
		}
		*b = parsed
		return nil
	}
	type raw BlockSpec
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	*b = BlockSpec(r)
	return nil
}
