package postprocess

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"
)

// resizeMask scales a detector mask to exactly width x height using bilinear
// interpolation.  The returned mask is indexed [row][col].
func resizeMask(mask [][]float32, width, height int) ([][]float32, error) {

	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: frame size %dx%d", ErrMaskDimension, width, height)
	}

	rows := len(mask)

	if rows == 0 || len(mask[0]) == 0 {
		return nil, fmt.Errorf("%w: empty mask", ErrMaskDimension)
	}

	cols := len(mask[0])

	for r, row := range mask {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d columns, expected %d",
				ErrMaskDimension, r, len(row), cols)
		}
	}

	// same size so no interpolation needed, just copy
	if rows == height && cols == width {
		out := make([][]float32, rows)
		for r, row := range mask {
			out[r] = append([]float32(nil), row...)
		}
		return out, nil
	}

	// pack the grid into a single buffer, setting values one at a time on a
	// Mat is too slow over CGO
	buf := make([]byte, rows*cols*4)

	for r, row := range mask {
		for c, v := range row {
			binary.NativeEndian.PutUint32(buf[(r*cols+c)*4:], math.Float32bits(v))
		}
	}

	src, err := gocv.NewMatFromBytes(rows, cols, gocv.MatTypeCV32F, buf)

	if err != nil {
		return nil, fmt.Errorf("error creating mask Mat: %w", err)
	}

	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()

	gocv.Resize(src, &dst, image.Pt(width, height), 0, 0, gocv.InterpolationLinear)

	if dst.Rows() != height || dst.Cols() != width {
		return nil, fmt.Errorf("%w: resized to %dx%d, expected %dx%d",
			ErrMaskDimension, dst.Cols(), dst.Rows(), width, height)
	}

	data, err := dst.DataPtrFloat32()

	if err != nil {
		return nil, fmt.Errorf("error reading resized mask: %w", err)
	}

	// copy out of C memory before dst is closed
	out := make([][]float32, height)

	for r := 0; r < height; r++ {
		out[r] = make([]float32, width)
		copy(out[r], data[r*width:(r+1)*width])
	}

	return out, nil
}
