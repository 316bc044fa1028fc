package render

import (
	"errors"
	"fmt"
	"image/color"
	"sort"
	"strings"

	"github.com/swdee/go-nightjar/postprocess/result"
	"github.com/swdee/go-nightjar/tracker"
	"gocv.io/x/gocv"
	"golang.org/x/image/font"
)

const (
	// StyleAnnotated draws outlines, aligned label boxes and trails
	StyleAnnotated = "annotated"
	// StyleMinimal draws translucent masks, thin boxes and trails
	StyleMinimal = "minimal"

	// DefaultMaskAlpha is the weight a mask is added to the frame with
	DefaultMaskAlpha = 0.5
)

// ErrUnknownStyle is returned by New for an unsupported style name
var ErrUnknownStyle = errors.New("unknown render style")

// Renderer draws one frame's detections and trail segments onto the frame
type Renderer interface {
	Render(img *gocv.Mat, dets []result.Detection,
		trails map[int][]tracker.Segment) error
}

// options are the settings shared by both render styles
type options struct {
	font          Font
	ttf           *ttfLabel
	maskAlpha     float32
	lineThickness int
	minArea       float64
	trail         TrailStyle
}

// ttfLabel is a TrueType face used in place of the Hershey font
type ttfLabel struct {
	face font.Face
}

// Option configures a Renderer
type Option func(*options)

// WithFont sets the Hershey label font
func WithFont(f Font) Option {
	return func(o *options) {
		o.font = f
	}
}

// WithTTF renders labels of the minimal style with a TrueType face
func WithTTF(face font.Face) Option {
	return func(o *options) {
		if face != nil {
			o.ttf = &ttfLabel{face: face}
		}
	}
}

// WithMaskAlpha sets the mask overlay weight, values outside (0,1] are
// ignored
func WithMaskAlpha(alpha float32) Option {
	return func(o *options) {
		if alpha > 0 && alpha <= 1 {
			o.maskAlpha = alpha
		}
	}
}

// WithLineThickness sets the box and outline thickness of the annotated style
func WithLineThickness(th int) Option {
	return func(o *options) {
		if th > 0 {
			o.lineThickness = th
		}
	}
}

// WithTrailStyle sets how trails are drawn
func WithTrailStyle(style TrailStyle) Option {
	return func(o *options) {
		o.trail = style
	}
}

// New returns the Renderer for the named style
func New(style string, opts ...Option) (Renderer, error) {

	o := options{
		maskAlpha:     DefaultMaskAlpha,
		lineThickness: 2,
		minArea:       20,
		trail:         DefaultTrailStyle(),
	}

	switch strings.ToLower(strings.TrimSpace(style)) {
	case "", StyleAnnotated:
		o.font = DefaultFont()
		for _, opt := range opts {
			opt(&o)
		}
		return &Annotated{opts: o}, nil

	case StyleMinimal:
		o.font = MinimalFont()
		for _, opt := range opts {
			opt(&o)
		}
		return &Minimal{opts: o}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStyle, style)
	}
}

// Annotated outlines each object's mask, boxes it with an aligned label and
// draws its trail in the class color
type Annotated struct {
	opts options
}

// Render draws the annotated style onto img in place
func (a *Annotated) Render(img *gocv.Mat, dets []result.Detection,
	trails map[int][]tracker.Segment) error {

	var errs []error

	for _, det := range dets {
		err := SegmentOutline(img, det, a.opts.minArea,
			paletteColor(classColors, det.ClassID), a.opts.lineThickness)

		if err != nil {
			errs = append(errs, fmt.Errorf("outline of %s: %w", det.ClassName, err))
		}
	}

	drawTrails(img, dets, trails, classColors, a.opts.trail)

	DetectionBoxes(img, dets, a.opts.font, a.opts.lineThickness)

	return errors.Join(errs...)
}

// Minimal blends each object's mask onto the frame, draws a thin box with a
// filled label and the trail in the class color
type Minimal struct {
	opts options
}

// Render draws the minimal style onto img in place
func (m *Minimal) Render(img *gocv.Mat, dets []result.Detection,
	trails map[int][]tracker.Segment) error {

	var errs []error

	for _, det := range dets {

		clr := ClassColor(det.ClassID)

		if len(det.Mask) > 0 {
			if err := SegmentMask(img, det.Mask, clr, m.opts.maskAlpha); err != nil {
				errs = append(errs, fmt.Errorf("mask of %s: %w", det.ClassName, err))
			}
		}

		if err := minimalLabel(img, det, clr, m.opts.font, m.opts.ttf); err != nil {
			errs = append(errs, fmt.Errorf("label of %s: %w", det.ClassName, err))
		}
	}

	drawTrails(img, dets, trails, nightjarColors, m.opts.trail)

	return errors.Join(errs...)
}

// drawTrails draws the trail of every track in the color of the class of the
// detection carrying that track ID, tracks without one use the track ID
func drawTrails(img *gocv.Mat, dets []result.Detection,
	trails map[int][]tracker.Segment, palette []color.RGBA, style TrailStyle) {

	classOf := make(map[int]int, len(dets))

	for _, det := range dets {
		if id, ok := det.GetTrackID(); ok {
			classOf[id] = det.ClassID
		}
	}

	for _, id := range sortedKeys(trails) {

		idx, ok := classOf[id]

		if !ok {
			idx = id
		}

		Trail(img, trails[id], paletteColor(palette, idx), style)
	}
}

// sortedKeys returns the track IDs of trails in ascending order so drawing
// overlaps are stable from frame to frame
func sortedKeys(trails map[int][]tracker.Segment) []int {

	ids := make([]int, 0, len(trails))

	for id := range trails {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	return ids
}
