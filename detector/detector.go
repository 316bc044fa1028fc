// Package detector defines the object detector the pipeline consumes raw
// detections from, and a replay detector that reads detections produced
// offline by a model.
package detector

import (
	"context"

	"github.com/swdee/go-nightjar/postprocess"
	"gocv.io/x/gocv"
)

// Detector returns the raw detections for one frame.  Frame numbers start at
// 1 and increase by one per frame read from the source.
type Detector interface {
	Detect(ctx context.Context, frameNum int, img gocv.Mat) ([]postprocess.RawDetection, error)
}

// Func adapts an ordinary function to the Detector interface
type Func func(ctx context.Context, frameNum int, img gocv.Mat) ([]postprocess.RawDetection, error)

// Detect calls f
func (f Func) Detect(ctx context.Context, frameNum int,
	img gocv.Mat) ([]postprocess.RawDetection, error) {

	return f(ctx, frameNum, img)
}
