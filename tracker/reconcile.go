package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/swdee/go-nightjar/postprocess/result"
	"gonum.org/v1/gonum/floats/scalar"
)

const (
	// confAbsTol and confRelTol are the tolerances used when comparing a
	// detection confidence with a track's detection confidence
	confAbsTol = 1e-8
	confRelTol = 1e-5
)

// ErrTrackerFailed is returned when the tracker update call fails.  The
// detections of that frame are returned without track IDs.
var ErrTrackerFailed = errors.New("tracker update failed")

// MatchMode defines how track records are joined back to detections
type MatchMode int

const (
	// MatchConfidence assigns a detection the first updated track whose
	// detection confidence is approximately equal to its own.  Confidence is
	// not a unique key, so detections with near identical scores can receive
	// the same or swapped identities.
	MatchConfidence MatchMode = 1
	// MatchDetectionID assigns a detection the track that reports its
	// detection ID
	MatchDetectionID MatchMode = 2
)

// String returns the configuration name of the match mode
func (m MatchMode) String() string {
	switch m {
	case MatchDetectionID:
		return "detection_id"
	default:
		return "confidence"
	}
}

// ParseMatchMode returns the MatchMode for a configuration name, an empty
// name selects MatchConfidence
func ParseMatchMode(name string) (MatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "confidence":
		return MatchConfidence, nil
	case "detection_id":
		return MatchDetectionID, nil
	default:
		return 0, fmt.Errorf("unknown reconcile mode %q, use 'confidence' or 'detection_id'", name)
	}
}

// Reconciler attaches the identities reported by a MultiObjectTracker to the
// detections of the same frame
type Reconciler struct {
	tracker MultiObjectTracker
	mode    MatchMode
}

// NewReconciler returns a Reconciler for the given tracker.  A nil tracker
// disables tracking and detections pass through untouched.
func NewReconciler(mot MultiObjectTracker, mode MatchMode) *Reconciler {

	if mode != MatchDetectionID {
		mode = MatchConfidence
	}

	return &Reconciler{
		tracker: mot,
		mode:    mode,
	}
}

// Mode returns the match mode in use
func (r *Reconciler) Mode() MatchMode {
	return r.mode
}

// Reset clears the tracker state
func (r *Reconciler) Reset() {
	if r.tracker != nil {
		r.tracker.Reset()
	}
}

// Reconcile runs the tracker on the frame detections and returns copies of
// them carrying their track IDs.  On failure every detection is returned
// without a track ID along with the error.
func (r *Reconciler) Reconcile(ctx context.Context,
	dets []result.Detection) ([]result.Detection, error) {

	if r.tracker == nil {
		return dets, nil
	}

	if err := ctx.Err(); err != nil {
		return untracked(dets), err
	}

	tracks, err := r.tracker.UpdateTracks(DetectionsToObjects(dets))

	if err != nil {
		return untracked(dets), fmt.Errorf("%w: %w", ErrTrackerFailed, err)
	}

	return MatchTracks(dets, tracks, r.mode), nil
}

// MatchTracks copies track identities onto detections.  For each detection
// the track records are scanned in order and the first eligible one wins, so
// the result only depends on the order of its inputs.  Only updated tracks
// are eligible.  Detections without a match carry no track ID.
func MatchTracks(dets []result.Detection, tracks []TrackRecord,
	mode MatchMode) []result.Detection {

	out := make([]result.Detection, len(dets))

	for i, det := range dets {

		idx := -1

		switch mode {
		case MatchDetectionID:
			idx = findByDetectionID(tracks, det.ID)
		default:
			idx = findByConfidence(tracks, det.Confidence)
		}

		if idx == -1 {
			out[i] = det.WithoutTrackID()
			continue
		}

		out[i] = det.WithTrackID(tracks[idx].TrackID)
	}

	return out
}

// findByConfidence returns the index of the first updated track whose
// detection confidence is close to conf, or -1
func findByConfidence(tracks []TrackRecord, conf float32) int {

	for i, track := range tracks {

		if !track.Updated() {
			continue
		}

		if scalar.EqualWithinAbsOrRel(float64(*track.DetConf), float64(conf),
			confAbsTol, confRelTol) {
			return i
		}
	}

	return -1
}

// findByDetectionID returns the index of the first updated track that was
// updated by the given detection, or -1
func findByDetectionID(tracks []TrackRecord, detID int64) int {

	for i, track := range tracks {
		if track.Updated() && track.DetectionID == detID {
			return i
		}
	}

	return -1
}

// untracked returns copies of the detections with no track IDs
func untracked(dets []result.Detection) []result.Detection {

	out := make([]result.Detection, len(dets))

	for i, det := range dets {
		out[i] = det.WithoutTrackID()
	}

	return out
}
