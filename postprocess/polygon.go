package postprocess

import (
	"math"

	clipper "github.com/ctessum/go.clipper"
)

// clipScale converts float pixel coordinates into the fixed point integers
// used by clipper
const clipScale = 1000.0

// clipSegments clips the polygon to the frame rectangle.  Polygons already
// inside the frame are returned unchanged.  If the clip splits the polygon
// the largest piece is kept, and nil is returned when nothing remains.
func clipSegments(seg [][2]float32, width, height int) [][2]float32 {

	if insideFrame(seg, width, height) {
		return append([][2]float32(nil), seg...)
	}

	if len(seg) < 3 || width <= 0 || height <= 0 {
		return nil
	}

	var subject clipper.Path

	for _, pt := range seg {
		subject = append(subject, &clipper.IntPoint{
			X: clipper.CInt(math.Round(float64(pt[0]) * clipScale)),
			Y: clipper.CInt(math.Round(float64(pt[1]) * clipScale)),
		})
	}

	w := clipper.CInt(float64(width) * clipScale)
	h := clipper.CInt(float64(height) * clipScale)

	frame := clipper.Path{
		&clipper.IntPoint{X: 0, Y: 0},
		&clipper.IntPoint{X: w, Y: 0},
		&clipper.IntPoint{X: w, Y: h},
		&clipper.IntPoint{X: 0, Y: h},
	}

	c := clipper.NewClipper(clipper.IoNone)
	c.AddPath(subject, clipper.PtSubject, true)
	c.AddPath(frame, clipper.PtClip, true)

	solution, ok := c.Execute1(clipper.CtIntersection, clipper.PftNonZero,
		clipper.PftNonZero)

	if !ok || len(solution) == 0 {
		return nil
	}

	// keep the largest piece
	best := solution[0]
	bestArea := pathArea(best)

	for _, path := range solution[1:] {
		if a := pathArea(path); a > bestArea {
			best = path
			bestArea = a
		}
	}

	out := make([][2]float32, 0, len(best))

	for _, pt := range best {
		out = append(out, [2]float32{
			float32(float64(pt.X) / clipScale),
			float32(float64(pt.Y) / clipScale),
		})
	}

	return out
}

// insideFrame checks if every polygon point lies within the frame bounds
func insideFrame(seg [][2]float32, width, height int) bool {
	for _, pt := range seg {
		if pt[0] < 0 || pt[1] < 0 || pt[0] > float32(width) || pt[1] > float32(height) {
			return false
		}
	}
	return true
}

// pathArea returns the absolute shoelace area of a clipper path
func pathArea(path clipper.Path) float64 {

	var sum float64
	n := len(path)

	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += float64(path[i].X)*float64(path[j].Y) - float64(path[j].X)*float64(path[i].Y)
	}

	return math.Abs(sum) / 2
}
