package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/swdee/go-nightjar/postprocess/result"
	"gocv.io/x/gocv"
)

// ErrMaskSize is returned when a detection mask does not cover the frame
var ErrMaskSize = errors.New("mask size does not match image")

// maskThreshold is the mask value at which a pixel belongs to the object
const maskThreshold = 0.5

// SegmentMask adds the detection mask scaled by the class color and alpha to
// the image, saturating at 255.  The mask must be the size of the image.
func SegmentMask(img *gocv.Mat, mask [][]float32, clr color.RGBA,
	alpha float32) error {

	width := img.Cols()
	height := img.Rows()

	if len(mask) != height {
		return fmt.Errorf("%w: %d mask rows on %dx%d image", ErrMaskSize,
			len(mask), width, height)
	}

	// it is too slow to manipulate pixel by pixel using GoCV due to slowness
	// over CGO.  So we copy the bytes from the source image and manipulate
	// the bytes directly before copying back to a Mat
	imgData := img.ToBytes()

	for j := 0; j < height; j++ {

		if len(mask[j]) != width {
			return fmt.Errorf("%w: row %d has %d values", ErrMaskSize, j, len(mask[j]))
		}

		for k := 0; k < width; k++ {

			m := mask[j][k]

			if m <= 0 {
				continue
			}

			pixelPos := j*width*3 + k*3

			imgData[pixelPos+0] = addSat(imgData[pixelPos+0], m*float32(clr.B)*alpha)
			imgData[pixelPos+1] = addSat(imgData[pixelPos+1], m*float32(clr.G)*alpha)
			imgData[pixelPos+2] = addSat(imgData[pixelPos+2], m*float32(clr.R)*alpha)
		}
	}

	tmpImg, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC3, imgData)

	if err != nil {
		return fmt.Errorf("error creating Mat from mask overlay: %w", err)
	}

	defer tmpImg.Close()
	tmpImg.CopyTo(img)

	return nil
}

// addSat adds v to the channel value clamping to the uint8 range
func addSat(c uint8, v float32) uint8 {

	sum := float32(c) + v

	if sum >= 255 {
		return 255
	}

	if sum <= 0 {
		return 0
	}

	return uint8(sum + 0.5)
}

// isContourInsideBoxRect checks if the bounding box of a contour fits
// inside the bounding box of the detection result plus a pad
func isContourInsideBoxRect(contourRect image.Rectangle, box result.BoxRect,
	pad int) bool {

	return contourRect.Min.X >= box.XMin-pad &&
		contourRect.Min.Y >= box.YMin-pad &&
		contourRect.Max.X <= box.XMax+pad &&
		contourRect.Max.Y <= box.YMax+pad
}

// SegmentOutline draws the outline of the detection's mask, falling back to
// its segments polygon when no mask is present
func SegmentOutline(img *gocv.Mat, det result.Detection, minArea float64,
	clr color.RGBA, lineThickness int) error {

	if len(det.Mask) == 0 {
		return segmentPolygon(img, det.Segments, clr, lineThickness)
	}

	height := len(det.Mask)
	width := len(det.Mask[0])

	if height != img.Rows() || width != img.Cols() {
		return fmt.Errorf("%w: %dx%d mask on %dx%d image", ErrMaskSize,
			width, height, img.Cols(), img.Rows())
	}

	// binary mask of the object
	bin := make([]byte, width*height)

	for j, row := range det.Mask {

		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d values", ErrMaskSize, j, len(row))
		}

		for k, v := range row {
			if v >= maskThreshold {
				bin[j*width+k] = 255
			}
		}
	}

	objMask, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8U, bin)

	if err != nil {
		return fmt.Errorf("error creating mask Mat: %w", err)
	}

	defer objMask.Close()

	contours := gocv.FindContours(objMask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)

		// filter out small contours picked up from aliasing/noise in binary mask
		if gocv.ContourArea(contour) < minArea {
			continue
		}

		if !isContourInsideBoxRect(gocv.BoundingRect(contour), det.Box, 10) {
			continue
		}

		approx := gocv.ApproxPolyDP(contour, 3, true)
		ptsVec := gocv.NewPointsVector()
		ptsVec.Append(approx)

		gocv.Polylines(img, ptsVec, true, clr, lineThickness)

		approx.Close()
		ptsVec.Close()
	}

	return nil
}

// segmentPolygon draws the closed segments polygon of a detection
func segmentPolygon(img *gocv.Mat, segments [][2]float32, clr color.RGBA,
	lineThickness int) error {

	if len(segments) < 3 {
		return nil
	}

	pts := make([]image.Point, len(segments))

	for i, s := range segments {
		pts[i] = image.Pt(int(s[0]), int(s[1]))
	}

	ptsVec := gocv.NewPointsVectorFromPoints([][]image.Point{pts})
	defer ptsVec.Close()

	gocv.Polylines(img, ptsVec, true, clr, lineThickness)

	return nil
}
