package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"

	"gocv.io/x/gocv"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

type Alignment int

const (
	Left   Alignment = 1
	Center Alignment = 2
	Right  Alignment = 3
)

// Font defines the parameters for rendering text on an image using GoCV
type Font struct {
	Face      gocv.HersheyFont
	Scale     float64
	Color     color.RGBA
	Thickness int
	LineType  gocv.LineType
	// Padding to place around text
	LeftPad   int
	RightPad  int
	TopPad    int
	BottomPad int
	// Alignment of the text label to the bounding box
	Alignment Alignment
}

// DefaultFont returns the label font of the annotated style
func DefaultFont() Font {
	return Font{
		Face:      gocv.FontHersheySimplex,
		Scale:     0.5,
		Color:     White,
		Thickness: 1,
		LineType:  gocv.LineAA,
		LeftPad:   4,
		RightPad:  4,
		TopPad:    4,
		BottomPad: 6,
		Alignment: Left,
	}
}

// MinimalFont returns the label font of the minimal style
func MinimalFont() Font {
	return Font{
		Face:      gocv.FontHersheyDuplex,
		Scale:     0.85,
		Color:     White,
		Thickness: 1,
		LineType:  gocv.Line8,
		Alignment: Left,
	}
}

// TTFSize is the point size TrueType label fonts are loaded at
const TTFSize = 20

// LoadTTF loads a TrueType/OpenType font file for rendering labels
func LoadTTF(path string, size float64) (font.Face, error) {

	fontBytes, err := os.ReadFile(path)

	if err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}

	f, err := opentype.Parse(fontBytes)

	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}

	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})

	if err != nil {
		return nil, fmt.Errorf("failed to create type face: %w", err)
	}

	return face, nil
}

// ttfTextSize returns the width, height and baseline of text set in face
func ttfTextSize(face font.Face, text string) (width, height, baseline int) {

	metrics := face.Metrics()
	adv := font.MeasureString(face, text)

	return adv.Ceil(), metrics.Ascent.Ceil(), metrics.Descent.Ceil()
}

// putTTFText draws text with its baseline starting at x,y.  The text is
// drawn on a transparent canvas the size of the label and blended onto the
// image, so only the label area is copied across CGO.
func putTTFText(img *gocv.Mat, face font.Face, text string, x, y int,
	clr color.RGBA) error {

	width, ascent, descent := ttfTextSize(face, text)

	// label area clipped to the image
	area := image.Rect(x, y-ascent, x+width, y+descent).
		Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))

	if area.Empty() {
		return nil
	}

	rgba := image.NewRGBA(image.Rect(0, 0, area.Dx(), area.Dy()))
	draw.Draw(rgba, rgba.Bounds(), image.NewUniform(color.RGBA{0, 0, 0, 0}), image.Point{}, draw.Src)

	dr := &font.Drawer{
		Dst:  rgba,
		Src:  image.NewUniform(clr),
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.I(x - area.Min.X),
			Y: fixed.I(y - area.Min.Y),
		},
	}
	dr.DrawString(text)

	textMat, err := gocv.NewMatFromBytes(area.Dy(), area.Dx(), gocv.MatTypeCV8UC4, rgba.Pix)

	if err != nil {
		return fmt.Errorf("error creating Mat from RGBA: %w", err)
	}

	defer textMat.Close()

	gocv.CvtColor(textMat, &textMat, gocv.ColorRGBAToBGR)

	roi := img.Region(area)
	defer roi.Close()

	gocv.AddWeighted(roi, 1.0, textMat, 1.0, 0, &roi)

	return nil
}
