package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swdee/go-nightjar/postprocess/result"
	"github.com/swdee/go-nightjar/tracker"
	"gocv.io/x/gocv"
)

// squareMask returns a height x width mask with the square [from,to) set
func squareMask(width, height, from, to int) [][]float32 {

	mask := make([][]float32, height)

	for j := range mask {
		mask[j] = make([]float32, width)

		for k := range mask[j] {
			if j >= from && j < to && k >= from && k < to {
				mask[j][k] = 1
			}
		}
	}

	return mask
}

// blankImage returns a black BGR image
func blankImage(rows, cols int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols,
		gocv.MatTypeCV8UC3)
}

// bgrAt returns the blue, green and red values of a pixel
func bgrAt(img gocv.Mat, row, col int) [3]uint8 {
	v := img.GetVecbAt(row, col)
	return [3]uint8{v[0], v[1], v[2]}
}

func TestNewUnknownStyle(t *testing.T) {

	_, err := New("sepia")
	assert.ErrorIs(t, err, ErrUnknownStyle)

	r, err := New("")
	require.NoError(t, err)
	assert.IsType(t, &Annotated{}, r)

	r, err = New(" Minimal ", WithMaskAlpha(0.3), WithMaskAlpha(7))
	require.NoError(t, err)
	require.IsType(t, &Minimal{}, r)
	assert.InDelta(t, 0.3, r.(*Minimal).opts.maskAlpha, 1e-6)
}

func TestClassColor(t *testing.T) {
	assert.Equal(t, ClassColor(3), ClassColor(23))
	assert.Equal(t, nightjarColors[0], ClassColor(0))
	assert.Equal(t, nightjarColors[19], ClassColor(-1))
}

func TestLabelText(t *testing.T) {

	det := result.Detection{ClassName: "nightjar", Confidence: 0.876}

	assert.Equal(t, "nightjar: 0.88", labelText(det))
	assert.Equal(t, "nightjar 7: 0.88", labelText(det.WithTrackID(7)))
}

func TestMinimalMaskAndTrail(t *testing.T) {

	img := blankImage(40, 40)
	defer img.Close()

	det := result.Detection{
		ClassID:    0,
		ClassName:  "nightjar",
		Confidence: 0.9,
		Box:        result.BoxRect{XMin: 5, YMin: 5, XMax: 30, YMax: 30},
		Mask:       squareMask(40, 40, 10, 20),
	}.WithTrackID(1)

	trails := map[int][]tracker.Segment{
		1: {{From: tracker.Point{X: 2, Y: 36}, To: tracker.Point{X: 30, Y: 36}, Thickness: 3}},
	}

	r, err := New(StyleMinimal)
	require.NoError(t, err)
	require.NoError(t, r.Render(&img, []result.Detection{det}, trails))

	// class 0 is #FF3838 added at half weight onto black
	assert.Equal(t, [3]uint8{28, 28, 128}, bgrAt(img, 15, 15))

	// outside the mask and box is untouched
	assert.Equal(t, [3]uint8{0, 0, 0}, bgrAt(img, 25, 38))

	// trail in full class color
	assert.Equal(t, [3]uint8{56, 56, 255}, bgrAt(img, 36, 15))
}

func TestSegmentMaskSizeMismatch(t *testing.T) {

	img := blankImage(10, 10)
	defer img.Close()

	err := SegmentMask(&img, squareMask(8, 8, 0, 4), White, 0.5)
	assert.ErrorIs(t, err, ErrMaskSize)

	bad := squareMask(10, 10, 0, 4)
	bad[3] = bad[3][:5]

	err = SegmentMask(&img, bad, White, 0.5)
	assert.ErrorIs(t, err, ErrMaskSize)
}

func TestAnnotatedRender(t *testing.T) {

	img := blankImage(64, 64)
	defer img.Close()

	dets := []result.Detection{
		{
			ClassID:    1,
			ClassName:  "bird",
			Confidence: 0.7,
			Box:        result.BoxRect{XMin: 20, YMin: 20, XMax: 50, YMax: 50},
			Mask:       squareMask(64, 64, 25, 45),
		},
		{
			ClassID:    2,
			ClassName:  "egg",
			Confidence: 0.4,
			Box:        result.BoxRect{XMin: 2, YMin: 30, XMax: 15, YMax: 60},
			Segments:   [][2]float32{{3, 31}, {14, 31}, {14, 59}, {3, 59}},
		},
	}

	r, err := New(StyleAnnotated)
	require.NoError(t, err)
	require.NoError(t, r.Render(&img, dets, nil))

	// box edge drawn in the class color
	clr := paletteColor(classColors, 1)
	assert.Equal(t, [3]uint8{clr.B, clr.G, clr.R}, bgrAt(img, 50, 35))

	// mask of the wrong size is reported but does not stop rendering
	dets[0].Mask = squareMask(10, 10, 0, 5)
	err = r.Render(&img, dets, nil)
	assert.ErrorIs(t, err, ErrMaskSize)
}
