package tracker

import (
	"math"
	"sort"
	"sync"

	"github.com/swdee/go-nightjar/postprocess/result"
)

// DefaultTrailSize is the number of most recent positions kept per track
const DefaultTrailSize = 30

// Point represents the x,y coordinates of the center of a tracked
// bounding box
type Point struct {
	X, Y int
}

// Absent marks a gap in a track history.  Trail never records it itself but
// CompileTrail tolerates it in any history it is given.
var Absent = Point{X: math.MinInt32, Y: math.MinInt32}

// Valid returns false for the Absent sentinel
func (p Point) Valid() bool {
	return p != Absent
}

// Track is a fixed capacity ring buffer of the most recent center points of
// a single track
type Track struct {
	points []Point
	// head is the index of the oldest point
	head  int
	count int
}

// newTrack returns an empty ring buffer holding up to size points
func newTrack(size int) *Track {
	return &Track{
		points: make([]Point, size),
	}
}

// push adds a point, overwriting the oldest one when the buffer is full
func (t *Track) push(p Point) {

	size := len(t.points)

	if t.count < size {
		t.points[(t.head+t.count)%size] = p
		t.count++
		return
	}

	t.points[t.head] = p
	t.head = (t.head + 1) % size
}

// ordered returns a copy of the points from oldest to newest
func (t *Track) ordered() []Point {

	out := make([]Point, t.count)

	for i := 0; i < t.count; i++ {
		out[i] = t.points[(t.head+i)%len(t.points)]
	}

	return out
}

// Trail keeps a bounded history of center points per track ID, used for
// drawing a trail
type Trail struct {
	// size is the maximum number of most recent points to keep in history
	size int
	// history of tracked points, created lazily per track id
	history map[int]*Track
	sync.Mutex
}

// NewTrail returns a new trail history instance.  Size is the maximum
// number of most recent points kept for each track, values below one use
// DefaultTrailSize.
func NewTrail(size int) *Trail {

	if size < 1 {
		size = DefaultTrailSize
	}

	return &Trail{
		size:    size,
		history: make(map[int]*Track),
	}
}

// Size returns the per track capacity
func (t *Trail) Size() int {
	return t.size
}

// Reset clears all history, releasing every per track buffer
func (t *Trail) Reset() {
	t.Lock()
	defer t.Unlock()

	t.history = make(map[int]*Track)
}

// Observe appends a center point to the history of the given track id
func (t *Trail) Observe(id int, p Point) {
	t.Lock()
	defer t.Unlock()

	track, exists := t.history[id]

	if !exists {
		track = newTrack(t.size)
		t.history[id] = track
	}

	track.push(p)
}

// ObserveDetection records the bounding box midpoint of a tracked detection.
// Detections without a track ID are ignored.
func (t *Trail) ObserveDetection(det result.Detection) bool {

	id, ok := det.GetTrackID()

	if !ok {
		return false
	}

	x, y := det.Box.Center()
	t.Observe(id, Point{X: x, Y: y})

	return true
}

// Get returns the point history for a specific track id from oldest to
// newest, or nil if the track has no history
func (t *Trail) Get(id int) []Point {
	t.Lock()
	defer t.Unlock()

	if track, exists := t.history[id]; exists {
		return track.ordered()
	}

	// no history yet
	return nil
}

// TrackIDs returns the ids of all tracks with history in ascending order
func (t *Trail) TrackIDs() []int {
	t.Lock()
	defer t.Unlock()

	ids := make([]int, 0, len(t.history))

	for id := range t.history {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	return ids
}

// Len returns the number of tracks with history
func (t *Trail) Len() int {
	t.Lock()
	defer t.Unlock()

	return len(t.history)
}
