package detector

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/swdee/go-nightjar/postprocess"
	"gocv.io/x/gocv"
)

var (
	// ErrReplayExhausted is returned when a frame is requested past the last
	// line of the replay file
	ErrReplayExhausted = errors.New("replay has no more frames")
	// ErrFrameOrder is returned when a frame earlier than the last one read
	// is requested
	ErrFrameOrder = errors.New("replay frames must be requested in order")
)

// maxLineSize bounds a single replay line, masks make lines large
const maxLineSize = 64 * 1024 * 1024

// Replay is a Detector reading one JSON array of raw detections per line,
// line N holding the detections of frame N
type Replay struct {
	sync.Mutex
	scanner *bufio.Scanner
	closer  io.Closer
	// line is the number of lines consumed so far
	line int
}

// NewReplay returns a Replay reading from r
func NewReplay(r io.Reader) *Replay {

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	rep := &Replay{scanner: scanner}

	if c, ok := r.(io.Closer); ok {
		rep.closer = c
	}

	return rep
}

// OpenReplay opens a JSON lines replay file
func OpenReplay(path string) (*Replay, error) {

	f, err := os.Open(path)

	if err != nil {
		return nil, fmt.Errorf("error opening replay file: %w", err)
	}

	return NewReplay(f), nil
}

// Detect returns the detections recorded for frameNum.  The image is not
// used.
func (r *Replay) Detect(ctx context.Context, frameNum int,
	_ gocv.Mat) ([]postprocess.RawDetection, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return r.Frame(frameNum)
}

// Frame returns the detections recorded for frameNum, skipping any earlier
// lines not requested
func (r *Replay) Frame(frameNum int) ([]postprocess.RawDetection, error) {
	r.Lock()
	defer r.Unlock()

	if frameNum <= r.line {
		return nil, fmt.Errorf("%w: frame %d after %d", ErrFrameOrder, frameNum, r.line)
	}

	for r.line < frameNum {

		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return nil, fmt.Errorf("error reading replay line %d: %w", r.line+1, err)
			}
			return nil, fmt.Errorf("%w: frame %d", ErrReplayExhausted, frameNum)
		}

		r.line++
	}

	text := strings.TrimSpace(r.scanner.Text())

	if text == "" || text == "null" {
		return nil, nil
	}

	var raws []postprocess.RawDetection

	if err := json.Unmarshal([]byte(text), &raws); err != nil {
		return nil, fmt.Errorf("error decoding replay line %d: %w", r.line, err)
	}

	return raws, nil
}

// Close closes the underlying file if there is one
func (r *Replay) Close() error {

	if r.closer != nil {
		return r.closer.Close()
	}

	return nil
}
