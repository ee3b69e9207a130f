// Package pack assigns every test a non-overlapping placement on a fixed
// grid and groups tests into bounded-size chunks that execute as one merged
// schedule.
package pack

import (
	"fmt"

	"gridstone.dev/internal/spec"
)

const (
	// GridWidth x GridDepth cells per chunk.
	GridWidth = 10
	GridDepth = 10
	// ChunkCapacity is the maximum number of tests sharing one chunk.
	ChunkCapacity = GridWidth * GridDepth
)

// Options tune the grid geometry. Zero values take the defaults.
type Options struct {
	// Origin is the world position of chunk 0's first cell corner.
	Origin spec.Vec3i
	// CellSize is the X/Z extent of one grid cell, in blocks.
	CellSize int
	// Margin pads each test's cleanup region before it is fitted to a
	// cell, keeping neighbouring tests out of observation range.
	Margin int
}

const (
	defaultCellSize = 48
	defaultMargin   = 2
)

func (o Options) withDefaults() Options {
	if o.CellSize <= 0 {
		o.CellSize = defaultCellSize
	}
	if o.Margin < 0 {
		o.Margin = 0
	} else if o.Margin == 0 {
		o.Margin = defaultMargin
	}
	return o
}

// OversizedTestError marks a test whose padded footprint exceeds the cell
// size. The test is skipped; packing of the others continues.
type OversizedTestError struct {
	Name     string
	Size     spec.Vec3i
	CellSize int
}

func (e *OversizedTestError) Error() string {
	return fmt.Sprintf("test %q footprint %dx%d exceeds cell size %d",
		e.Name, e.Size.X, e.Size.Z, e.CellSize)
}

// Placed is a test bound to its placement offset. Applying the offset to any
// test-local position yields the world position.
type Placed struct {
	Test   *spec.Test
	Offset spec.Vec3i
	// Bounds is the padded, placement-translated cleanup region. Bounds of
	// tests in the same chunk are pairwise disjoint by construction.
	Bounds spec.Region
}

// Chunk is up to ChunkCapacity tests arranged on one grid, executed as one
// merged schedule.
type Chunk struct {
	ID    int
	Tests []Placed
}

// Skipped records a test excluded from packing and why.
type Skipped struct {
	Test *spec.Test
	Err  error
}

// Pack fills grid cells row-major in input order, starting a new chunk after
// ChunkCapacity tests. Same input order always yields the same packing.
func Pack(tests []*spec.Test, opts Options) ([]Chunk, []Skipped) {
	opts = opts.withDefaults()

	var chunks []Chunk
	var skipped []Skipped
	cur := Chunk{ID: 0}
	cell := 0

	flush := func() {
		if len(cur.Tests) > 0 {
			chunks = append(chunks, cur)
			cur = Chunk{ID: cur.ID + 1}
			cell = 0
		}
	}

	for _, t := range tests {
		padded := t.Cleanup.Pad(opts.Margin)
		size := padded.Size()
		if size.X > opts.CellSize || size.Z > opts.CellSize {
			skipped = append(skipped, Skipped{Test: t, Err: &OversizedTestError{
				Name: t.Name, Size: size, CellSize: opts.CellSize,
			}})
			continue
		}

		if cell == ChunkCapacity {
			flush()
		}

		row := cell / GridWidth
		col := cell % GridWidth
		cellMin := spec.Vec3i{
			X: opts.Origin.X + col*opts.CellSize,
			Y: opts.Origin.Y,
			Z: opts.Origin.Z + (cur.ID*GridDepth+row)*opts.CellSize,
		}
		// Shift the padded box so its X/Z corner lands on the cell corner.
		// Y is not gridded: tests keep their authored vertical extent.
		offset := spec.Vec3i{
			X: cellMin.X - padded.Min.X,
			Y: 0,
			Z: cellMin.Z - padded.Min.Z,
		}
		cur.Tests = append(cur.Tests, Placed{
			Test:   t,
			Offset: offset,
			Bounds: padded.Translate(offset),
		})
		cell++
	}
	flush()
	return chunks, skipped
}
