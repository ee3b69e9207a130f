package pack

import (
	"testing"

	"github.com/stretchr/testify/require"

	"gridstone.dev/internal/spec"
)

func v(x, y, z int) spec.Vec3i { return spec.Vec3i{X: x, Y: y, Z: z} }

func testWithCleanup(name string, min, max spec.Vec3i) *spec.Test {
	return &spec.Test{Name: name, Cleanup: spec.NewRegion(min, max)}
}

func smallTest(name string) *spec.Test {
	return testWithCleanup(name, v(0, 0, 0), v(5, 5, 5))
}

func TestPackPlacesOnGridRowMajor(t *testing.T) {
	tests := []*spec.Test{smallTest("a"), smallTest("b"), smallTest("c")}
	chunks, skipped := Pack(tests, Options{})
	require.Empty(t, skipped)
	require.Len(t, chunks, 1)
	require.Len(t, chunks[0].Tests, 3)

	// Padded region (-2..7) lands its corner on each 48-wide cell.
	for i, p := range chunks[0].Tests {
		require.Equal(t, v(i*48+2, 0, 2), p.Offset, "test %d", i)
		require.Equal(t, v(i*48, -2, 0), p.Bounds.Min)
	}
}

func TestPackBoundsArePairwiseDisjoint(t *testing.T) {
	var tests []*spec.Test
	for i := 0; i < 150; i++ {
		tests = append(tests, testWithCleanup("t", v(-3, 0, -3), v(14, 9, 14)))
	}
	chunks, skipped := Pack(tests, Options{})
	require.Empty(t, skipped)

	for _, c := range chunks {
		for i := 0; i < len(c.Tests); i++ {
			for j := i + 1; j < len(c.Tests); j++ {
				require.False(t, c.Tests[i].Bounds.Intersects(c.Tests[j].Bounds),
					"chunk %d tests %d and %d overlap", c.ID, i, j)
			}
		}
	}
}

func TestPackStartsNewChunkAtCapacity(t *testing.T) {
	var tests []*spec.Test
	for i := 0; i < ChunkCapacity+1; i++ {
		tests = append(tests, smallTest("t"))
	}
	chunks, skipped := Pack(tests, Options{})
	require.Empty(t, skipped)
	require.Len(t, chunks, 2)
	require.Len(t, chunks[0].Tests, ChunkCapacity)
	require.Len(t, chunks[1].Tests, 1)
	require.Equal(t, 1, chunks[1].ID)

	// Chunk 1's grid starts beyond chunk 0's rows along Z.
	first := chunks[1].Tests[0]
	require.GreaterOrEqual(t, first.Bounds.Min.Z, GridDepth*48)
}

func TestPackSkipsOversized(t *testing.T) {
	big := testWithCleanup("too-wide", v(0, 0, 0), v(60, 3, 3))
	ok := smallTest("fits")
	chunks, skipped := Pack([]*spec.Test{big, ok}, Options{})

	require.Len(t, skipped, 1)
	require.Equal(t, big, skipped[0].Test)
	var oerr *OversizedTestError
	require.ErrorAs(t, skipped[0].Err, &oerr)
	require.Equal(t, "too-wide", oerr.Name)

	require.Len(t, chunks, 1)
	require.Len(t, chunks[0].Tests, 1)
	require.Equal(t, ok, chunks[0].Tests[0].Test)
}

func TestPackTallTestsAllowed(t *testing.T) {
	// Y is not gridded; only the X/Z footprint is bounded.
	tall := testWithCleanup("tower", v(0, 0, 0), v(3, 200, 3))
	chunks, skipped := Pack([]*spec.Test{tall}, Options{})
	require.Empty(t, skipped)
	require.Len(t, chunks[0].Tests, 1)
	require.Equal(t, 0, chunks[0].Tests[0].Offset.Y)
}

func TestPackRespectsOriginAndCellSize(t *testing.T) {
	tests := []*spec.Test{smallTest("a"), smallTest("b")}
	chunks, _ := Pack(tests, Options{Origin: v(100, 64, -200), CellSize: 20, Margin: 1})
	require.Len(t, chunks[0].Tests, 2)

	a, b := chunks[0].Tests[0], chunks[0].Tests[1]
	require.Equal(t, v(100, -1, -200), a.Bounds.Min)
	require.Equal(t, v(120, -1, -200), b.Bounds.Min)
	// Origin Y shifts nothing: vertical placement stays authored.
	require.Equal(t, 0, a.Offset.Y)
}

func TestPackDeterministic(t *testing.T) {
	tests := []*spec.Test{smallTest("a"), smallTest("b"), smallTest("c")}
	first, _ := Pack(tests, Options{})
	second, _ := Pack(tests, Options{})
	require.Equal(t, first, second)
}

func TestPackOversizedOnlyProducesNoChunks(t *testing.T) {
	big := testWithCleanup("big", v(0, 0, 0), v(100, 3, 100))
	chunks, skipped := Pack([]*spec.Test{big}, Options{})
	require.Empty(t, chunks)
	require.Len(t, skipped, 1)
}
