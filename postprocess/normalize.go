package postprocess

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/swdee/go-nightjar/postprocess/result"
)

var (
	// ErrMissingField is returned when a raw detection lacks a required field
	ErrMissingField = errors.New("missing required field")
	// ErrInvertedBox is returned when a raw box has max coordinates smaller
	// than min coordinates
	ErrInvertedBox = errors.New("inverted bounding box")
	// ErrBoxCoordinate is returned when a raw box coordinate is NaN or
	// infinite
	ErrBoxCoordinate = errors.New("box coordinate not finite")
	// ErrConfidenceRange is returned when the confidence is outside [0,1]
	ErrConfidenceRange = errors.New("confidence out of range")
	// ErrUnknownClass is returned when the class index has no label
	ErrUnknownClass = errors.New("unknown class index")
	// ErrMaskDimension is returned when a mask can not be resized to the
	// frame dimensions
	ErrMaskDimension = errors.New("mask dimension mismatch")
)

// RawDetection is a single object as reported by the external detector.  All
// fields are pointers or slices so a missing field can be told apart from a
// zero value.
type RawDetection struct {
	// Class is the class index of the object
	Class *int `json:"class"`
	// Confidence is the detection score
	Confidence *float32 `json:"confidence"`
	// Box holds x1, y1, x2, y2 pixel coordinates in the original frame
	Box []float32 `json:"box"`
	// Mask is an optional segmentation mask at any resolution
	Mask [][]float32 `json:"mask,omitempty"`
	// Segments is an optional polygon in original frame pixels
	Segments [][2]float32 `json:"segments,omitempty"`
}

// DetectionError records why a single raw detection was rejected or
// degraded during normalization
type DetectionError struct {
	// Index is the position of the raw detection in the frame input
	Index int
	Err   error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("detection %d: %v", e.Index, e.Err)
}

func (e *DetectionError) Unwrap() error {
	return e.Err
}

// Normalizer converts raw detector output into canonical detections
type Normalizer struct {
	// labels are the class names the Model was trained on, if empty the class
	// index is used as its name
	labels []string
	// idGen assigns each canonical detection a session unique ID
	idGen *result.IDGenerator
}

// NewNormalizer returns a Normalizer using the given class labels
func NewNormalizer(labels []string) *Normalizer {
	return &Normalizer{
		labels: labels,
		idGen:  result.NewIDGenerator(),
	}
}

// Reset restarts detection ID numbering for a new session
func (n *Normalizer) Reset() {
	n.idGen.Reset()
}

// Normalize takes the raw detections of one frame and returns one canonical
// Detection per valid input in the same order.  Invalid inputs are skipped and
// reported as *DetectionError, as are masks that had to be dropped.
func (n *Normalizer) Normalize(raws []RawDetection, frameWidth,
	frameHeight int) ([]result.Detection, []error) {

	dets := make([]result.Detection, 0, len(raws))
	var errs []error

	for i, raw := range raws {

		det, err := n.convert(raw)

		if err != nil {
			errs = append(errs, &DetectionError{Index: i, Err: err})
			continue
		}

		if raw.Mask != nil {
			det.Mask, det.MaskErr = resizeMask(raw.Mask, frameWidth, frameHeight)

			if det.MaskErr != nil {
				errs = append(errs, &DetectionError{Index: i, Err: det.MaskErr})
			}
		}

		if len(raw.Segments) > 0 {
			det.Segments = clipSegments(raw.Segments, frameWidth, frameHeight)
		}

		det.ID = n.idGen.GetNext()
		dets = append(dets, det)
	}

	return dets, errs
}

// convert validates the required fields and builds the detection without
// its mask or segments
func (n *Normalizer) convert(raw RawDetection) (result.Detection, error) {

	if raw.Class == nil {
		return result.Detection{}, fmt.Errorf("%w: class", ErrMissingField)
	}

	if raw.Confidence == nil {
		return result.Detection{}, fmt.Errorf("%w: confidence", ErrMissingField)
	}

	if len(raw.Box) != 4 {
		return result.Detection{}, fmt.Errorf("%w: box needs 4 coordinates, got %d",
			ErrMissingField, len(raw.Box))
	}

	for _, v := range raw.Box {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return result.Detection{}, fmt.Errorf("%w: %v", ErrBoxCoordinate, raw.Box)
		}
	}

	conf := *raw.Confidence

	if conf < 0 || conf > 1 || conf != conf {
		return result.Detection{}, fmt.Errorf("%w: %v", ErrConfidenceRange, conf)
	}

	name, err := n.className(*raw.Class)

	if err != nil {
		return result.Detection{}, err
	}

	// truncate, python int() style
	box := result.BoxRect{
		XMin: int(raw.Box[0]),
		YMin: int(raw.Box[1]),
		XMax: int(raw.Box[2]),
		YMax: int(raw.Box[3]),
	}

	if box.XMin > box.XMax || box.YMin > box.YMax {
		return result.Detection{}, fmt.Errorf("%w: %v", ErrInvertedBox, raw.Box)
	}

	return result.Detection{
		ClassID:    *raw.Class,
		ClassName:  name,
		Confidence: conf,
		Box:        box,
	}, nil
}

// className looks up the label for the class index
func (n *Normalizer) className(class int) (string, error) {

	if class < 0 {
		return "", fmt.Errorf("%w: %d", ErrUnknownClass, class)
	}

	if len(n.labels) == 0 {
		return strconv.Itoa(class), nil
	}

	if class >= len(n.labels) {
		return "", fmt.Errorf("%w: %d (have %d labels)", ErrUnknownClass,
			class, len(n.labels))
	}

	return n.labels[class], nil
}
