package tracker

import "math"

// Segment is a single line of a trail polyline
type Segment struct {
	From      Point
	To        Point
	Thickness int
}

// SegmentThickness returns the line thickness for the segment ending at
// history index j, floor(sqrt(64/(j+1))*2).  It shrinks as j grows and never
// drops below 1.
func SegmentThickness(j int) int {

	thickness := int(math.Sqrt(64/float64(j+1)) * 2)

	if thickness < 1 {
		return 1
	}

	return thickness
}

// CompileTrail turns an ordered point history into drawable segments, one
// per consecutive pair of points, oldest pair first.  Pairs touching an
// Absent point are skipped.
func CompileTrail(points []Point) []Segment {

	if len(points) < 2 {
		return nil
	}

	segs := make([]Segment, 0, len(points)-1)

	for j := 1; j < len(points); j++ {

		if !points[j-1].Valid() || !points[j].Valid() {
			continue
		}

		segs = append(segs, Segment{
			From:      points[j-1],
			To:        points[j],
			Thickness: SegmentThickness(j),
		})
	}

	return segs
}
