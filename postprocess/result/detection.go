package result

// BoxRect are the pixel dimensions of the bounding box of a detected object
// in the original frame
type BoxRect struct {
	XMin int `json:"x_min"`
	YMin int `json:"y_min"`
	XMax int `json:"x_max"`
	YMax int `json:"y_max"`
}

// Width returns the width of the box
func (b BoxRect) Width() int {
	return b.XMax - b.XMin
}

// Height returns the height of the box
func (b BoxRect) Height() int {
	return b.YMax - b.YMin
}

// Center returns the integer midpoint of the box
func (b BoxRect) Center() (x, y int) {
	return (b.XMin + b.XMax) / 2, (b.YMin + b.YMax) / 2
}

// Detection is the canonical record of a single object reported by the
// detector for one frame.  It is built once per frame by the Normalizer and
// is not changed after the track ID has been reconciled.
//
// The JSON encoding of Detection is the per-frame export format.
type Detection struct {
	// ClassID is the line number in the labels file the Model was trained on
	ClassID int `json:"class_id"`
	// ClassName is the label for ClassID
	ClassName string `json:"class"`
	// Confidence is the detection score in the range [0,1]
	Confidence float32 `json:"confidence"`
	// Box is the bounding box of the object in frame pixels
	Box BoxRect `json:"bbox"`
	// Mask is an optional segmentation mask at the frame resolution, indexed
	// as Mask[row][col]
	Mask [][]float32 `json:"mask,omitempty"`
	// Segments is an optional polygon outline of the object
	Segments [][2]float32 `json:"segments,omitempty"`
	// TrackID is the tracker identity assigned to this detection, nil when
	// the detection could not be reconciled with a track
	TrackID *int `json:"object_id,omitempty"`

	// ID is a unique ID assigned to the detection for the session
	ID int64 `json:"-"`
	// MaskErr records why a mask supplied by the detector was dropped
	MaskErr error `json:"-"`
}

// HasTrack returns true if the detection has been assigned a track ID
func (d *Detection) HasTrack() bool {
	return d.TrackID != nil
}

// GetTrackID returns the track ID and whether one is set
func (d *Detection) GetTrackID() (int, bool) {
	if d.TrackID == nil {
		return 0, false
	}

	return *d.TrackID, true
}

// WithTrackID returns a copy of the detection carrying the given track ID
func (d Detection) WithTrackID(id int) Detection {
	d.TrackID = &id
	return d
}

// WithoutTrackID returns a copy of the detection with no track ID
func (d Detection) WithoutTrackID() Detection {
	d.TrackID = nil
	return d
}
