// Package capture opens the video frame sources the pipeline reads from.
package capture

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"gocv.io/x/gocv"
)

// ErrEndOfStream is returned by Read when the source has no more frames
var ErrEndOfStream = errors.New("end of stream")

// Source is an opened video file, camera or network stream
type Source struct {
	sync.Mutex
	name  string
	video *gocv.VideoCapture
}

// parseSource returns the camera device index for a numeric source and the
// source string otherwise
func parseSource(source string) (device any, err error) {

	source = strings.TrimSpace(source)

	if source == "" {
		return nil, errors.New("empty video source")
	}

	if idx, err := strconv.Atoi(source); err == nil {
		if idx < 0 {
			return nil, fmt.Errorf("invalid camera device %d", idx)
		}
		return idx, nil
	}

	return source, nil
}

// Open opens a video source.  A number selects a camera device, anything
// else (file path, rtsp:// or http:// URL) is passed to the capture backend.
func Open(source string) (*Source, error) {

	device, err := parseSource(source)

	if err != nil {
		return nil, err
	}

	video, err := gocv.OpenVideoCapture(device)

	if err != nil {
		return nil, fmt.Errorf("error opening video source %q: %w", source, err)
	}

	if !video.IsOpened() {
		video.Close()
		return nil, fmt.Errorf("video source %q could not be opened", source)
	}

	return &Source{
		name:  source,
		video: video,
	}, nil
}

// Name returns the source string the Source was opened with
func (s *Source) Name() string {
	return s.name
}

// Read reads the next frame into img
func (s *Source) Read(img *gocv.Mat) error {
	s.Lock()
	defer s.Unlock()

	if ok := s.video.Read(img); !ok || img.Empty() {
		return ErrEndOfStream
	}

	return nil
}

// FPS returns the frame rate reported by the source, or 30 if unknown
func (s *Source) FPS() float64 {

	fps := s.video.Get(gocv.VideoCaptureFPS)

	if fps <= 0 {
		return 30
	}

	return fps
}

// Size returns the frame width and height reported by the source
func (s *Source) Size() (width, height int) {
	return int(s.video.Get(gocv.VideoCaptureFrameWidth)),
		int(s.video.Get(gocv.VideoCaptureFrameHeight))
}

// Close releases the source
func (s *Source) Close() error {
	s.Lock()
	defer s.Unlock()

	return s.video.Close()
}
