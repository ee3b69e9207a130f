package worldclient

import (
	"context"
	"fmt"
	"sync"

	"gridstone.dev/internal/spec"
)

// Rule mutates the sim world during one tick step. Rules stand in for the
// world's own simulation (redstone, fluids) in tests.
type Rule func(tick uint64, w *Sim)

// Sim is an in-process Client backed by a block map. It enforces the same
// contract as a live world: time must be suspended before Advance, and reads
// observe the state left by the last applied tick. Tests drive dynamic
// behavior by registering Rules and inject failures with FailNext.
type Sim struct {
	mu       sync.Mutex
	blocks   map[spec.Vec3i]spec.BlockSpec
	tick     uint64
	frozen   bool
	rules    []Rule
	changeFn func(Change)
	failures map[string]int
	ops      []string
}

func NewSim() *Sim {
	return &Sim{
		blocks:   map[spec.Vec3i]spec.BlockSpec{},
		failures: map[string]int{},
	}
}

// AddRule registers a per-tick world rule. Not safe to call concurrently
// with Advance.
func (s *Sim) AddRule(r Rule) {
	s.mu.Lock()
	s.rules = append(s.rules, r)
	s.mu.Unlock()
}

// FailNext makes the next n calls of the named op fail with a TransportError.
func (s *Sim) FailNext(op string, n int) {
	s.mu.Lock()
	s.failures[op] += n
	s.mu.Unlock()
}

// Ops returns the sequence of operations issued so far, with advances
// recorded as "advance(n)".
func (s *Sim) Ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.ops))
	copy(out, s.ops)
	return out
}

// Tick returns the sim's current tick.
func (s *Sim) Tick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// BlockAt reads a block without going through the Client surface.
func (s *Sim) BlockAt(pos spec.Vec3i) spec.BlockSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blockLocked(pos)
}

// Put writes a block without emitting a change or consuming a failure,
// for test setup.
func (s *Sim) Put(pos spec.Vec3i, b spec.BlockSpec) {
	s.mu.Lock()
	s.setLocked(pos, b)
	s.mu.Unlock()
}

func (s *Sim) blockLocked(pos spec.Vec3i) spec.BlockSpec {
	if b, ok := s.blocks[pos]; ok {
		return b
	}
	return spec.Air
}

// setLocked writes a block and notifies the change subscriber.
func (s *Sim) setLocked(pos spec.Vec3i, b spec.BlockSpec) {
	old := s.blockLocked(pos)
	if b.IsAir() {
		delete(s.blocks, pos)
	} else {
		s.blocks[pos] = b
	}
	if s.changeFn != nil && old.String() != b.String() {
		s.changeFn(Change{Tick: s.tick, Pos: pos, Old: old, New: b})
	}
}

func (s *Sim) failLocked(op string) error {
	if s.failures[op] > 0 {
		s.failures[op]--
		return transportf(op, "injected failure")
	}
	return nil
}

func (s *Sim) Frozen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frozen
}

func (s *Sim) SuspendTime(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "freeze")
	if err := s.failLocked("FREEZE"); err != nil {
		return err
	}
	s.frozen = true
	return nil
}

func (s *Sim) ResumeTime(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "resume")
	if err := s.failLocked("RESUME"); err != nil {
		return err
	}
	s.frozen = false
	return nil
}

func (s *Sim) Advance(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, fmt.Sprintf("advance(%d)", n))
	if err := s.failLocked("ADVANCE"); err != nil {
		return err
	}
	if !s.frozen {
		return transportf("ADVANCE", "world time not suspended")
	}
	for i := 0; i < n; i++ {
		s.tick++
		for _, r := range s.rules {
			r(s.tick, s)
		}
	}
	return nil
}

func (s *Sim) SetBlock(ctx context.Context, pos spec.Vec3i, b spec.BlockSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, fmt.Sprintf("set%v", pos))
	if err := s.failLocked("SET_BLOCK"); err != nil {
		return err
	}
	s.setLocked(pos, b)
	return nil
}

func (s *Sim) Fill(ctx context.Context, r spec.Region, b spec.BlockSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, fmt.Sprintf("fill%v..%v", r.Min, r.Max))
	if err := s.failLocked("FILL"); err != nil {
		return err
	}
	for x := r.Min.X; x <= r.Max.X; x++ {
		for y := r.Min.Y; y <= r.Max.Y; y++ {
			for z := r.Min.Z; z <= r.Max.Z; z++ {
				s.setLocked(spec.Vec3i{X: x, Y: y, Z: z}, b)
			}
		}
	}
	return nil
}

func (s *Sim) QueryBlock(ctx context.Context, pos spec.Vec3i) (spec.BlockSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, fmt.Sprintf("query%v", pos))
	if err := s.failLocked("QUERY_BLOCK"); err != nil {
		return spec.BlockSpec{}, err
	}
	return s.blockLocked(pos), nil
}

func (s *Sim) OnBlockChange(fn func(Change)) {
	s.mu.Lock()
	s.changeFn = fn
	s.mu.Unlock()
}

func (s *Sim) Close() error { return nil }

// SetFromRule writes a block from inside a Rule, which already holds the sim
// lock.
func (s *Sim) SetFromRule(pos spec.Vec3i, b spec.BlockSpec) {
	s.setLocked(pos, b)
}

// BlockFromRule reads a block from inside a Rule.
func (s *Sim) BlockFromRule(pos spec.Vec3i) spec.BlockSpec {
	return s.blockLocked(pos)
}

var _ Client = (*Sim)(nil)
