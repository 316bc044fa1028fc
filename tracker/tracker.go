package tracker

// TrackRecord is the tracker's view of a single track after an update
type TrackRecord struct {
	// TrackID is the persistent identity of the track
	TrackID int
	// DetConf is the confidence of the detection that updated the track this
	// frame.  It is nil when the track was only predicted (coasting).
	DetConf *float32
	// DetectionID is the ID of the detection that updated the track this
	// frame, zero when the track was not updated
	DetectionID int64
}

// Updated returns true if a real detection updated the track this frame
func (r TrackRecord) Updated() bool {
	return r.DetConf != nil
}

// MultiObjectTracker is the external tracker used to assign identities to
// the detections of consecutive frames
type MultiObjectTracker interface {
	// UpdateTracks feeds one frame of detections to the tracker and returns
	// the tracks it reports for that frame
	UpdateTracks(objs []Object) ([]TrackRecord, error)
	// Reset clears all track state so a new session starts fresh
	Reset()
}
