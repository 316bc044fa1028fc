package tracker

// Object represents a detection handed to a multi object tracker
type Object struct {
	// Rect is the bounding box of the detected object
	Rect Rect
	// Label is the class index of the object detected
	Label int
	// LabelName is the class name of the object detected
	LabelName string
	// Prob is the confidence/probability of the object detected
	Prob float32
	// ID is the unique detection ID which trackers echo back so the track
	// can be linked to the detection that updated it
	ID int64
}

// NewObject is a constructor function for the Object struct
func NewObject(rect Rect, label int, prob float32, id int64) Object {
	return Object{
		Rect:  rect,
		Label: label,
		Prob:  prob,
		ID:    id,
	}
}
