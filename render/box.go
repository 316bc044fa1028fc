package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/swdee/go-nightjar/postprocess/result"
	"gocv.io/x/gocv"
)

// boxLabel defines where the detection object label should be rendered on
// source image
type boxLabel struct {
	rect    image.Rectangle
	clr     color.RGBA
	text    string
	textPos image.Point
}

// labelText returns "<class> <id>: <conf>" for tracked detections and
// "<class>: <conf>" for untracked ones
func labelText(det result.Detection) string {

	if id, ok := det.GetTrackID(); ok {
		return fmt.Sprintf("%s %d: %.2f", det.ClassName, id, det.Confidence)
	}

	return fmt.Sprintf("%s: %.2f", det.ClassName, det.Confidence)
}

// imageRect returns the detection box as an image.Rectangle
func imageRect(box result.BoxRect) image.Rectangle {
	return image.Rect(box.XMin, box.YMin, box.XMax, box.YMax)
}

// DetectionBoxes renders the bounding boxes around the objects detected with
// a label box aligned above each one.  Labels are drawn last so box and
// outline lines never cover them.
func DetectionBoxes(img *gocv.Mat, dets []result.Detection, font Font,
	lineThickness int) {

	boxLabels := make([]boxLabel, 0, len(dets))

	for _, det := range dets {

		useClr := paletteColor(classColors, det.ClassID)
		box := det.Box

		gocv.Rectangle(img, imageRect(box), useClr, lineThickness)

		text := labelText(det)
		textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)

		// Calculate the alignment of text label
		var centerX int

		switch font.Alignment {
		case Center:
			centerX = (box.XMin + box.XMax) / 2

		case Right:
			centerX = box.XMax - (textSize.X / 2) - font.RightPad + (lineThickness / 2)

		case Left:
			fallthrough
		default:
			centerX = box.XMin + (textSize.X / 2) + font.LeftPad - (lineThickness / 2)
		}

		boxLabels = append(boxLabels, boxLabel{
			rect: image.Rect(centerX-textSize.X/2-font.LeftPad,
				box.YMin-textSize.Y-font.TopPad-font.BottomPad,
				centerX+textSize.X/2+font.RightPad, box.YMin),
			clr:     useClr,
			text:    text,
			textPos: image.Pt(centerX-textSize.X/2, box.YMin-font.BottomPad),
		})
	}

	drawLabels(img, boxLabels, font)
}

// drawLabels draws the precalculated label boxes and their text
func drawLabels(img *gocv.Mat, boxLabels []boxLabel, font Font) {

	for _, box := range boxLabels {
		// draw box text gets written on
		gocv.Rectangle(img, box.rect, box.clr, -1)

		gocv.PutTextWithParams(img, box.text, box.textPos,
			font.Face, font.Scale, font.Color, font.Thickness,
			font.LineType, false)
	}
}

// minimalLabel draws a 1px box and a filled label sitting on the top left
// corner of the box, sized to the text plus its baseline
func minimalLabel(img *gocv.Mat, det result.Detection, clr color.RGBA,
	font Font, ttf *ttfLabel) error {

	box := det.Box
	gocv.Rectangle(img, imageRect(box), clr, 1)

	text := labelText(det)

	if ttf != nil {
		width, height, baseline := ttfTextSize(ttf.face, text)

		gocv.Rectangle(img, image.Rect(box.XMin, box.YMin-height-baseline,
			box.XMin+width, box.YMin), clr, -1)

		return putTTFText(img, ttf.face, text, box.XMin, box.YMin-baseline, font.Color)
	}

	size, baseline := gocv.GetTextSizeWithBaseline(text, font.Face, font.Scale, font.Thickness)

	gocv.Rectangle(img, image.Rect(box.XMin, box.YMin-size.Y-baseline,
		box.XMin+size.X, box.YMin), clr, -1)

	gocv.PutTextWithParams(img, text, image.Pt(box.XMin, box.YMin-baseline),
		font.Face, font.Scale, font.Color, font.Thickness, font.LineType, false)

	return nil
}
