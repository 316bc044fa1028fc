package tracker

import (
	"fmt"
	"sort"
)

// Config holds the ByteTrack tuning parameters
type Config struct {
	// FrameRate of the video source
	FrameRate int `json:"frame_rate"`
	// TrackBuffer is the number of frames (at 30 FPS) a lost track is kept
	TrackBuffer int `json:"track_buffer"`
	// TrackThresh splits detections into high and low score groups
	TrackThresh float32 `json:"track_thresh"`
	// HighThresh is the minimum score required to start a new track
	HighThresh float32 `json:"high_thresh"`
	// MatchThresh is the IoU distance limit for the first association
	MatchThresh float32 `json:"match_thresh"`
}

// DefaultConfig returns a ByteTrack configuration that keeps a lost track
// for five frames, matching the reference tracker's max age.
func DefaultConfig() Config {
	return Config{
		FrameRate:   30,
		TrackBuffer: 5,
		TrackThresh: 0.5,
		HighThresh:  0.6,
		MatchThresh: 0.8,
	}
}

// BYTETracker represents the BYTE Tracker
type BYTETracker struct {
	// Threshold for tracking objects
	trackThresh float32
	// High threshold for tracking objects
	highThresh float32
	// Matching threshold for associations
	matchThresh float32
	// Maximum time an object can be lost before being remove
	maxTimeLost int
	// Current frame ID
	frameID int
	// Counter for assigning unique track IDs
	trackIDCount int
	// List of currently tracked objects
	trackedStracks []*STrack
	// List of lost objects
	lostStracks []*STrack
	// List of removed objects
	removedStracks []*STrack
}

// NewBYTETracker initializes and returns a new BYTETracker
func NewBYTETracker(cfg Config) *BYTETracker {

	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}

	maxTimeLost := int(float32(cfg.FrameRate) / 30.0 * float32(cfg.TrackBuffer))

	if maxTimeLost < 1 {
		maxTimeLost = 1
	}

	return &BYTETracker{
		trackThresh: cfg.TrackThresh,
		highThresh:  cfg.HighThresh,
		matchThresh: cfg.MatchThresh,
		maxTimeLost: maxTimeLost,
	}
}

// Reset clears the tracked data and resets everything
func (bt *BYTETracker) Reset() {
	bt.frameID = 0
	bt.trackIDCount = 0
	bt.trackedStracks = make([]*STrack, 0)
	bt.lostStracks = make([]*STrack, 0)
	bt.removedStracks = make([]*STrack, 0)
}

// UpdateTracks advances the tracker by one frame and returns a record for
// every confirmed track, including tracks that coasted this frame.  Records
// are ordered by track ID.
func (bt *BYTETracker) UpdateTracks(objects []Object) ([]TrackRecord, error) {

	if _, err := bt.Update(objects); err != nil {
		return nil, err
	}

	var recs []TrackRecord

	for _, track := range bt.trackedStracks {
		if track.IsActivated() {
			recs = append(recs, track.Record(bt.frameID))
		}
	}

	for _, track := range bt.lostStracks {
		recs = append(recs, track.Record(bt.frameID))
	}

	sort.Slice(recs, func(i, j int) bool {
		return recs[i].TrackID < recs[j].TrackID
	})

	return recs, nil
}

// Update updates the tracker with new detections and returns the activated
// tracks
func (bt *BYTETracker) Update(objects []Object) ([]*STrack, error) {

	// Step 1: Get detections
	bt.frameID++

	var detStracks, detLowStracks []*STrack

	for _, object := range objects {

		strack := NewSTrack(object.Rect, object.Prob, object.ID, object.Label)

		if object.Prob >= bt.trackThresh {
			detStracks = append(detStracks, strack)
		} else {
			detLowStracks = append(detLowStracks, strack)
		}
	}

	var activeStracks, nonActiveStracks []*STrack

	for _, trackedStrack := range bt.trackedStracks {
		if !trackedStrack.IsActivated() {
			nonActiveStracks = append(nonActiveStracks, trackedStrack)
		} else {
			activeStracks = append(activeStracks, trackedStrack)
		}
	}

	strackPool := jointStracks(activeStracks, bt.lostStracks)

	// predict current pose by KF
	for _, strack := range strackPool {
		strack.Predict()
	}

	// Step 2: First association, with IoU
	var currentTrackedStracks, remainTrackedStracks, remainDetStracks, refindStracks []*STrack

	matchesIdx, unmatchTrackIdx, unmatchDetectionIdx, err := linearAssignment(
		calcIouDistance(strackPool, detStracks),
		len(strackPool), len(detStracks), bt.matchThresh,
	)

	if err != nil {
		return nil, fmt.Errorf("linear assignment failed, step 2: %w", err)
	}

	for _, matchIdx := range matchesIdx {

		track := strackPool[matchIdx[0]]
		det := detStracks[matchIdx[1]]

		if track.GetSTrackState() == Tracked {
			if err := track.Update(det, bt.frameID); err != nil {
				return nil, fmt.Errorf("error updating track, step 2: %w", err)
			}
			currentTrackedStracks = append(currentTrackedStracks, track)
			continue
		}

		if err := track.ReActivate(det, bt.frameID, -1); err != nil {
			return nil, fmt.Errorf("error reactivating track, step 2: %w", err)
		}
		refindStracks = append(refindStracks, track)
	}

	for _, unmatchIdx := range unmatchDetectionIdx {
		remainDetStracks = append(remainDetStracks, detStracks[unmatchIdx])
	}

	for _, unmatchIdx := range unmatchTrackIdx {
		if strackPool[unmatchIdx].GetSTrackState() == Tracked {
			remainTrackedStracks = append(remainTrackedStracks, strackPool[unmatchIdx])
		}
	}

	// Step 3: Second association, using low score dets
	var currentLostStracks []*STrack

	matchesIdx, unmatchTrackIdx, _, err = linearAssignment(
		calcIouDistance(remainTrackedStracks, detLowStracks),
		len(remainTrackedStracks), len(detLowStracks), 0.5,
	)

	if err != nil {
		return nil, fmt.Errorf("linear assignment failed, step 3: %w", err)
	}

	for _, matchIdx := range matchesIdx {

		track := remainTrackedStracks[matchIdx[0]]
		det := detLowStracks[matchIdx[1]]

		if err := track.Update(det, bt.frameID); err != nil {
			return nil, fmt.Errorf("error updating track, step 3: %w", err)
		}
		currentTrackedStracks = append(currentTrackedStracks, track)
	}

	for _, unmatchTrack := range unmatchTrackIdx {
		track := remainTrackedStracks[unmatchTrack]
		if track.GetSTrackState() != Lost {
			track.MarkAsLost()
			currentLostStracks = append(currentLostStracks, track)
		}
	}

	// Step 4: Init new stracks
	var currentRemovedStracks []*STrack

	matchesIdx, unmatchUnconfirmedIdx, unmatchDetectionIdx, err := linearAssignment(
		calcIouDistance(nonActiveStracks, remainDetStracks),
		len(nonActiveStracks), len(remainDetStracks), 0.7,
	)

	if err != nil {
		return nil, fmt.Errorf("linear assignment failed, step 4: %w", err)
	}

	for _, matchIdx := range matchesIdx {
		track := nonActiveStracks[matchIdx[0]]
		if err := track.Update(remainDetStracks[matchIdx[1]], bt.frameID); err != nil {
			return nil, fmt.Errorf("error updating track, step 4: %w", err)
		}
		currentTrackedStracks = append(currentTrackedStracks, track)
	}

	for _, unmatchIdx := range unmatchUnconfirmedIdx {
		track := nonActiveStracks[unmatchIdx]
		track.MarkAsRemoved()
		currentRemovedStracks = append(currentRemovedStracks, track)
	}

	for _, unmatchIdx := range unmatchDetectionIdx {
		track := remainDetStracks[unmatchIdx]
		if track.GetScore() < bt.highThresh {
			continue
		}
		bt.trackIDCount++
		track.Activate(bt.frameID, bt.trackIDCount)
		currentTrackedStracks = append(currentTrackedStracks, track)
	}

	// Step 5: Update state
	for _, lostStrack := range bt.lostStracks {
		if bt.frameID-lostStrack.GetFrameID() > bt.maxTimeLost {
			lostStrack.MarkAsRemoved()
			currentRemovedStracks = append(currentRemovedStracks, lostStrack)
		}
	}

	bt.trackedStracks = jointStracks(currentTrackedStracks, refindStracks)
	bt.lostStracks = subStracks(jointStracks(subStracks(bt.lostStracks, bt.trackedStracks), currentLostStracks), bt.removedStracks)
	bt.removedStracks = jointStracks(bt.removedStracks, currentRemovedStracks)

	bt.trackedStracks, bt.lostStracks = removeDuplicateStracks(bt.trackedStracks, bt.lostStracks)

	var outputStracks []*STrack

	for _, track := range bt.trackedStracks {
		if track.IsActivated() {
			outputStracks = append(outputStracks, track)
		}
	}

	return outputStracks, nil
}

// jointStracks combines two lists of tracks, avoiding duplicate track IDs
func jointStracks(aTlist []*STrack, bTlist []*STrack) []*STrack {

	exists := make(map[int]bool)
	var res []*STrack

	for _, track := range aTlist {
		exists[track.GetTrackID()] = true
		res = append(res, track)
	}

	for _, track := range bTlist {
		tid := track.GetTrackID()

		if !exists[tid] {
			exists[tid] = true
			res = append(res, track)
		}
	}

	return res
}

// subStracks subtracts bTlist from aTlist preserving the order of aTlist
func subStracks(aTlist []*STrack, bTlist []*STrack) []*STrack {

	drop := make(map[int]bool, len(bTlist))

	for _, track := range bTlist {
		drop[track.GetTrackID()] = true
	}

	var res []*STrack

	for _, track := range aTlist {
		if !drop[track.GetTrackID()] {
			res = append(res, track)
		}
	}

	return res
}

// removeDuplicateStracks drops the younger of any tracked/lost pair that
// overlap almost completely
func removeDuplicateStracks(aStracks, bStracks []*STrack) (aRes, bRes []*STrack) {

	ious := calcIouDistance(aStracks, bStracks)

	aOverlapping := make([]bool, len(aStracks))
	bOverlapping := make([]bool, len(bStracks))

	for i := range ious {
		for j := range ious[i] {
			if ious[i][j] >= 0.15 {
				continue
			}

			timep := aStracks[i].GetFrameID() - aStracks[i].GetStartFrameID()
			timeq := bStracks[j].GetFrameID() - bStracks[j].GetStartFrameID()

			if timep > timeq {
				bOverlapping[j] = true
			} else {
				aOverlapping[i] = true
			}
		}
	}

	for i, overlapping := range aOverlapping {
		if !overlapping {
			aRes = append(aRes, aStracks[i])
		}
	}

	for i, overlapping := range bOverlapping {
		if !overlapping {
			bRes = append(bRes, bStracks[i])
		}
	}

	return aRes, bRes
}

// calcIouDistance returns the 1-IoU cost matrix between two sets of tracks
func calcIouDistance(aTracks, bTracks []*STrack) [][]float32 {

	if len(aTracks) == 0 || len(bTracks) == 0 {
		return nil
	}

	cost := make([][]float32, len(aTracks))

	for ai, a := range aTracks {
		cost[ai] = make([]float32, len(bTracks))

		for bi, b := range bTracks {
			cost[ai][bi] = 1 - b.GetRect().IoU(*a.GetRect())
		}
	}

	return cost
}
