package render

import (
	"image"
	"image/color"

	"github.com/swdee/go-nightjar/tracker"
	"gocv.io/x/gocv"
)

// TrailStyle defines the parameters used for rendering the trail style
type TrailStyle struct {
	// LineSame defines if the color of the trail line should be the
	// same color as the class of the tracked object.  If set to false then
	// use the color specified at LineColor
	LineSame  bool
	LineColor color.RGBA
	// CircleRadius of the dot drawn at the newest point, zero disables it
	CircleRadius int
}

// DefaultTrailStyle returns trail lines in the object's class color
func DefaultTrailStyle() TrailStyle {
	return TrailStyle{
		LineSame:  true,
		LineColor: Yellow,
	}
}

// Trail draws the compiled segments of one track, each with its own
// thickness so the line tapers toward the newest point
func Trail(img *gocv.Mat, segs []tracker.Segment, objClr color.RGBA,
	style TrailStyle) {

	lineClr := objClr

	if !style.LineSame {
		lineClr = style.LineColor
	}

	for _, seg := range segs {
		gocv.Line(img,
			image.Pt(seg.From.X, seg.From.Y),
			image.Pt(seg.To.X, seg.To.Y),
			lineClr, seg.Thickness,
		)
	}

	if style.CircleRadius > 0 && len(segs) > 0 {
		last := segs[len(segs)-1].To
		gocv.Circle(img, image.Pt(last.X, last.Y), style.CircleRadius, lineClr, -1)
	}
}
