package nightjar

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/swdee/go-nightjar/postprocess"
	"github.com/swdee/go-nightjar/postprocess/result"
	"github.com/swdee/go-nightjar/render"
	"github.com/swdee/go-nightjar/tracker"
	"gocv.io/x/gocv"
)

// Frame is one video frame's worth of detector output
type Frame struct {
	// Width and Height of the video frame in pixels
	Width  int
	Height int
	// Raws are the detections reported by the detector
	Raws []postprocess.RawDetection
}

// FrameResult is the outcome of processing one frame
type FrameResult struct {
	// FrameNum counts frames since the session was last reset, from 1
	FrameNum int
	// Detections are the canonical detections in detector order carrying
	// their track IDs
	Detections []result.Detection
	// Trails holds the compiled trail of every track seen this frame
	Trails map[int][]tracker.Segment
	// ClassCounts is the number of detections of each class name this frame
	ClassCounts map[string]int
	// Errors are the non fatal problems met while processing the frame
	Errors []error
}

// FrameSink records processed frames, see store.Store
type FrameSink interface {
	StartSession(ctx context.Context, id uuid.UUID, source string) error
	EndSession(ctx context.Context, id uuid.UUID) error
	RecordFrame(ctx context.Context, id uuid.UUID, frameNum int, dets []result.Detection) error
}

// Session holds the state of one video stream from start to stop
type Session struct {
	sync.Mutex
	id         uuid.UUID
	frameNum   int
	started    bool
	normalizer *postprocess.Normalizer
	reconciler *tracker.Reconciler
	trail      *tracker.Trail
	renderer   render.Renderer
	sink       FrameSink
}

// SessionOption configures a Session
type SessionOption func(*sessionOptions)

type sessionOptions struct {
	tracker    tracker.MultiObjectTracker
	setTracker bool
	renderer   render.Renderer
	sink       FrameSink
}

// WithTracker replaces the ByteTrack tracker built from the Config, a nil
// tracker disables tracking
func WithTracker(mot tracker.MultiObjectTracker) SessionOption {
	return func(o *sessionOptions) {
		o.tracker = mot
		o.setTracker = true
	}
}

// WithRenderer replaces the renderer built from the Config
func WithRenderer(r render.Renderer) SessionOption {
	return func(o *sessionOptions) {
		o.renderer = r
	}
}

// WithSink records every processed frame to sink
func WithSink(sink FrameSink) SessionOption {
	return func(o *sessionOptions) {
		o.sink = sink
	}
}

// NewSession returns a Session for the given configuration and class labels
func NewSession(cfg Config, labels []string, opts ...SessionOption) (*Session, error) {

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var o sessionOptions

	for _, opt := range opts {
		opt(&o)
	}

	mode, err := tracker.ParseMatchMode(cfg.ReconcileMode)

	if err != nil {
		return nil, err
	}

	mot := o.tracker

	if !o.setTracker && !cfg.DisableTracking {
		mot = tracker.NewBYTETracker(cfg.Tracker)
	}

	rend := o.renderer

	if rend == nil {
		rend, err = newRenderer(cfg)

		if err != nil {
			return nil, err
		}
	}

	s := &Session{
		id:         uuid.New(),
		normalizer: postprocess.NewNormalizer(labels),
		trail:      tracker.NewTrail(cfg.HistoryCapacity),
		renderer:   rend,
		reconciler: tracker.NewReconciler(mot, mode),
		sink:       o.sink,
	}

	return s, nil
}

// newRenderer builds the renderer selected by the configuration
func newRenderer(cfg Config) (render.Renderer, error) {

	opts := []render.Option{render.WithMaskAlpha(cfg.MaskAlpha)}

	if cfg.FontFile != "" {
		face, err := render.LoadTTF(cfg.FontFile, render.TTFSize)

		if err != nil {
			return nil, err
		}

		opts = append(opts, render.WithTTF(face))
	}

	return render.New(cfg.RenderStyle, opts...)
}

// ID returns the identifier of the current session
func (s *Session) ID() uuid.UUID {
	s.Lock()
	defer s.Unlock()

	return s.id
}

// FrameNum returns the number of frames processed since the last reset
func (s *Session) FrameNum() int {
	s.Lock()
	defer s.Unlock()

	return s.frameNum
}

// Start resets the session and records its start in the sink
func (s *Session) Start(ctx context.Context, source string) error {
	s.Lock()
	defer s.Unlock()

	s.reset()

	if s.sink != nil {
		if err := s.sink.StartSession(ctx, s.id, source); err != nil {
			return fmt.Errorf("error starting session %s: %w", s.id, err)
		}
	}

	s.started = true
	log.Printf("session %s started on %s", s.id, source)

	return nil
}

// End records the end of the session in the sink
func (s *Session) End(ctx context.Context) error {
	s.Lock()
	defer s.Unlock()

	if !s.started {
		return nil
	}

	s.started = false
	log.Printf("session %s ended after %d frames", s.id, s.frameNum)

	if s.sink != nil {
		if err := s.sink.EndSession(ctx, s.id); err != nil {
			return fmt.Errorf("error ending session %s: %w", s.id, err)
		}
	}

	return nil
}

// Reset clears the track history and tracker state, zeroes the frame counter
// and starts a new session ID.  It must be called before a new stream.
func (s *Session) Reset() {
	s.Lock()
	defer s.Unlock()

	s.reset()
}

func (s *Session) reset() {
	s.trail.Reset()
	s.reconciler.Reset()
	s.normalizer.Reset()
	s.id = uuid.New()
	s.frameNum = 0
	s.started = false
}

// ProcessFrame normalizes the frame's raw detections, attaches track IDs,
// updates the track history and compiles the trails of the tracks seen on
// this frame.  Rejected detections and tracker failures are reported in
// FrameResult.Errors, the frame is never dropped.  An error is only returned
// when ctx is done before processing starts.
func (s *Session) ProcessFrame(ctx context.Context, frame Frame) (*FrameResult, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.Lock()
	defer s.Unlock()

	s.frameNum++

	res := &FrameResult{
		FrameNum:    s.frameNum,
		Trails:      make(map[int][]tracker.Segment),
		ClassCounts: make(map[string]int),
	}

	dets, errs := s.normalizer.Normalize(frame.Raws, frame.Width, frame.Height)

	for _, err := range errs {
		log.Printf("frame %d: %v", s.frameNum, err)
	}

	res.Errors = append(res.Errors, errs...)

	dets, err := s.reconciler.Reconcile(ctx, dets)

	if err != nil {
		log.Printf("frame %d: %v", s.frameNum, err)
		res.Errors = append(res.Errors, err)
	}

	res.Detections = dets

	for _, det := range dets {
		res.ClassCounts[det.ClassName]++
	}

	for _, det := range dets {
		if s.trail.ObserveDetection(det) {
			id, _ := det.GetTrackID()
			res.Trails[id] = nil
		}
	}

	// compiled after every observation so a track matched by two
	// detections has both points in its trail
	for id := range res.Trails {
		res.Trails[id] = tracker.CompileTrail(s.trail.Get(id))
	}

	if s.sink != nil && s.started {
		if err := s.sink.RecordFrame(ctx, s.id, s.frameNum, dets); err != nil {
			log.Printf("frame %d: error recording frame: %v", s.frameNum, err)
			res.Errors = append(res.Errors, err)
		}
	}

	return res, nil
}

// Render draws the frame result onto img in place
func (s *Session) Render(img *gocv.Mat, res *FrameResult) error {

	if res == nil {
		return nil
	}

	return s.renderer.Render(img, res.Detections, res.Trails)
}

// Histories returns a copy of the point history of every track
func (s *Session) Histories() map[int][]tracker.Point {

	out := make(map[int][]tracker.Point)

	for _, id := range s.trail.TrackIDs() {
		out[id] = s.trail.Get(id)
	}

	return out
}
