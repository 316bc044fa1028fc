package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentThickness(t *testing.T) {

	assert.Equal(t, 11, SegmentThickness(1))
	assert.Equal(t, 8, SegmentThickness(3))
	assert.Equal(t, 2, SegmentThickness(63))

	prev := SegmentThickness(1)

	for j := 2; j < 1000; j++ {
		th := SegmentThickness(j)
		require.GreaterOrEqual(t, th, 1, "j=%d", j)
		require.LessOrEqual(t, th, prev, "j=%d", j)
		prev = th
	}
}

func TestCompileTrail(t *testing.T) {

	pts := []Point{{0, 0}, {1, 1}, {2, 2}, {3, 3}}
	segs := CompileTrail(pts)

	require.Len(t, segs, 3)

	assert.Equal(t, Segment{From: Point{0, 0}, To: Point{1, 1}, Thickness: 11}, segs[0])
	assert.Equal(t, Segment{From: Point{1, 1}, To: Point{2, 2}, Thickness: 9}, segs[1])
	assert.Equal(t, Segment{From: Point{2, 2}, To: Point{3, 3}, Thickness: 8}, segs[2])
}

func TestCompileTrailSkipsAbsent(t *testing.T) {

	pts := []Point{{0, 0}, Absent, {2, 2}, {3, 3}}
	segs := CompileTrail(pts)

	require.Len(t, segs, 1)
	assert.Equal(t, Point{2, 2}, segs[0].From)
	assert.Equal(t, Point{3, 3}, segs[0].To)
	assert.Equal(t, SegmentThickness(3), segs[0].Thickness)
}

func TestCompileTrailShort(t *testing.T) {
	assert.Nil(t, CompileTrail(nil))
	assert.Nil(t, CompileTrail([]Point{{1, 1}}))
}
