package spec

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

func (t tickSelector) MarshalJSON() ([]byte, error) {
	if len(t) == 1 {
		return json.Marshal(t[0])
	}
	return json.Marshal([]int(t))
}

// EncodeTest renders a test back into its document form. The output
// round-trips through ParseTest; state sequences that were expanded at load
// time stay expanded, one single-tick assert_state entry each.
func EncodeTest(t *Test) ([]byte, error) {
	doc := testDoc{
		Name:        t.Name,
		Description: t.Description,
		Tags:        t.Tags,
		Breakpoints: t.Breakpoints,
	}
	doc.Setup = &struct {
		Cleanup struct {
			Region Region `json:"region"`
		} `json:"cleanup"`
	}{}
	doc.Setup.Cleanup.Region = t.Cleanup

	for _, it := range t.Timeline {
		e := entryDoc{At: tickSelector{it.Tick}}
		switch {
		case it.Action != nil:
			a := it.Action
			switch a.Kind {
			case ActionPlace:
				e.Place = &struct {
					Pos   Vec3i     `json:"pos"`
					Block BlockSpec `json:"block"`
				}{Pos: a.Pos, Block: a.Block}
			case ActionPlaceEach:
				e.PlaceEach = &struct {
					Blocks []Placement `json:"blocks"`
				}{Blocks: a.Blocks}
			case ActionFill:
				e.Fill = &struct {
					Region Region    `json:"region"`
					Block  BlockSpec `json:"block"`
				}{Region: a.Region, Block: a.Block}
			case ActionRemove:
				e.Remove = &struct {
					Pos Vec3i `json:"pos"`
				}{Pos: a.Pos}
			default:
				return nil, fmt.Errorf("encode %q: unknown action kind %d", t.Name, a.Kind)
			}
		case it.Check != nil:
			c := it.Check
			switch c.Kind {
			case CheckBlock:
				e.Assert = &struct {
					Checks []struct {
						Pos Vec3i     `json:"pos"`
						Is  BlockSpec `json:"is"`
					} `json:"checks"`
				}{Checks: []struct {
					Pos Vec3i     `json:"pos"`
					Is  BlockSpec `json:"is"`
				}{{Pos: c.Pos, Is: c.Expect}}}
			case CheckState:
				e.AssertState = &struct {
					Pos    Vec3i    `json:"pos"`
					State  string   `json:"state"`
					Values []string `json:"values"`
				}{Pos: c.Pos, State: c.State, Values: []string{c.Value}}
			default:
				return nil, fmt.Errorf("encode %q: unknown check kind %d", t.Name, c.Kind)
			}
		default:
			return nil, fmt.Errorf("encode %q: timeline item with neither action nor check", t.Name)
		}
		doc.Timeline = append(doc.Timeline, e)
	}

	return json.MarshalIndent(&doc, "", "  ")
}

// WriteTest persists a test definition, creating parent directories.
func WriteTest(t *Test, path string) error {
	data, err := EncodeTest(t)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
