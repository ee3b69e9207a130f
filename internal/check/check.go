// Package check decides pass/fail for a single assertion against observed
// world state.
package check

import (
	"context"
	"fmt"

	"gridstone.dev/internal/spec"
	"gridstone.dev/internal/worldclient"
)

// Failure describes one failed assertion: where, when, what was expected and
// what the world actually held.
type Failure struct {
	Pos      spec.Vec3i `json:"position"`
	Tick     int        `json:"tick"`
	Expected string     `json:"expected"`
	Actual   string     `json:"actual"`
}

func (f *Failure) String() string {
	return fmt.Sprintf("at %v tick %d: expected %s, got %s", f.Pos, f.Tick, f.Expected, f.Actual)
}

// Evaluator reads blocks through a world client and applies the matching
// rules: identifiers must be equal, named properties must match, unnamed
// properties are ignored.
type Evaluator struct {
	client worldclient.Client
}

func New(client worldclient.Client) *Evaluator {
	return &Evaluator{client: client}
}

// Evaluate runs one check at its translated world position. A mismatch comes
// back as a non-nil Failure; an error means the world could not be read at
// all.
func (e *Evaluator) Evaluate(ctx context.Context, c *spec.Check, worldPos spec.Vec3i, tick int) (*Failure, error) {
	observed, err := e.client.QueryBlock(ctx, worldPos)
	if err != nil {
		return nil, err
	}
	switch c.Kind {
	case spec.CheckBlock:
		if c.Expect.Matches(observed) {
			return nil, nil
		}
		return &Failure{
			Pos:      worldPos,
			Tick:     tick,
			Expected: c.Expect.String(),
			Actual:   observed.String(),
		}, nil

	case spec.CheckState:
		got, ok := observed.Props[c.State]
		if ok && got == c.Value {
			return nil, nil
		}
		actual := fmt.Sprintf("%s with %s absent", observed.ID, c.State)
		if ok {
			actual = fmt.Sprintf("%s=%s", c.State, got)
		}
		return &Failure{
			Pos:      worldPos,
			Tick:     tick,
			Expected: fmt.Sprintf("%s=%s", c.State, c.Value),
			Actual:   actual,
		}, nil
	}
	return nil, fmt.Errorf("unknown check kind %d", c.Kind)
}
