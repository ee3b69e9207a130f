// Package worldclient is the connector to a live world: it exposes the
// read/write/time-control primitives the engine and recorder drive, over a
// websocket wire protocol.
package worldclient

import (
	"context"
	"fmt"

	"gridstone.dev/internal/spec"
)

// Change is one observed world mutation.
type Change struct {
	Tick uint64
	Pos  spec.Vec3i
	Old  spec.BlockSpec
	New  spec.BlockSpec
}

// Client is the world boundary consumed by the engine and the recorder.
//
// The world is fundamentally sequential: it must stay time-suspended except
// during an explicit, awaited Advance. Callers issue at most one outstanding
// Advance at a time and only read after it returns.
type Client interface {
	// SuspendTime freezes the world's simulation clock.
	SuspendTime(ctx context.Context) error
	// ResumeTime unfreezes it.
	ResumeTime(ctx context.Context) error
	// Advance steps the frozen world by exactly n ticks and returns after
	// the world has applied them.
	Advance(ctx context.Context, n int) error
	// SetBlock writes one block.
	SetBlock(ctx context.Context, pos spec.Vec3i, b spec.BlockSpec) error
	// Fill writes every block in a region.
	Fill(ctx context.Context, r spec.Region, b spec.BlockSpec) error
	// QueryBlock reads one block.
	QueryBlock(ctx context.Context, pos spec.Vec3i) (spec.BlockSpec, error)
	// OnBlockChange registers a callback for pushed world mutations. Not
	// every server streams them; callers must be able to fall back to
	// QueryBlock polling.
	OnBlockChange(fn func(Change))
	Close() error
}

// TransportError wraps any failed world call. The engine treats it as an
// infrastructure failure (tests become Errored), never an assertion failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("world %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func transportf(op string, format string, args ...any) error {
	return &TransportError{Op: op, Err: fmt.Errorf(format, args...)}
}
