package tracker

// Rect is an axis aligned box in frame pixels given by its top left corner
// and size
type Rect struct {
	X      float32
	Y      float32
	Width  float32
	Height float32
}

// NewRect returns a Rect with top left corner x, y and the given size
func NewRect(x, y, width, height float32) Rect {
	return Rect{X: x, Y: y, Width: width, Height: height}
}

// Right returns the x coordinate of the right edge
func (r Rect) Right() float32 {
	return r.X + r.Width
}

// Bottom returns the y coordinate of the bottom edge
func (r Rect) Bottom() float32 {
	return r.Y + r.Height
}

// Xyah returns the box as center x, center y, aspect ratio and height, the
// measurement space of the KalmanFilter
func (r Rect) Xyah() DetectBox {
	return DetectBox{
		r.X + r.Width/2,
		r.Y + r.Height/2,
		r.Width / r.Height,
		r.Height,
	}
}

// rectFromXyah is the inverse of Rect.Xyah
func rectFromXyah(xyah []float32) Rect {

	width := xyah[2] * xyah[3]

	return Rect{
		X:      xyah[0] - width/2,
		Y:      xyah[1] - xyah[3]/2,
		Width:  width,
		Height: xyah[3],
	}
}

// IoU returns the intersection over union of two boxes.  Edges are treated
// as inclusive pixel indices so a box covers Width+1 columns.
func (r Rect) IoU(other Rect) float32 {

	iw := min(r.Right(), other.Right()) - max(r.X, other.X) + 1

	if iw <= 0 {
		return 0
	}

	ih := min(r.Bottom(), other.Bottom()) - max(r.Y, other.Y) + 1

	if ih <= 0 {
		return 0
	}

	inter := iw * ih
	union := (r.Width+1)*(r.Height+1) + (other.Width+1)*(other.Height+1) - inter

	return inter / union
}
