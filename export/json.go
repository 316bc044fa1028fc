// Package export writes per frame detection results to the JSON interchange
// format and trail histories to plot images.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/swdee/go-nightjar/postprocess/result"
)

// ErrWriterClosed is returned when writing a frame after Close
var ErrWriterClosed = errors.New("json writer closed")

// JSONWriter streams a JSON array holding one array of detections per frame
type JSONWriter struct {
	sync.Mutex
	w      io.Writer
	frames int
	closed bool
}

// NewJSONWriter returns a JSONWriter writing to w
func NewJSONWriter(w io.Writer) *JSONWriter {
	return &JSONWriter{w: w}
}

// WriteFrame appends the detections of one frame.  A frame without
// detections is written as an empty array.
func (j *JSONWriter) WriteFrame(dets []result.Detection) error {
	j.Lock()
	defer j.Unlock()

	if j.closed {
		return ErrWriterClosed
	}

	if dets == nil {
		dets = []result.Detection{}
	}

	data, err := json.Marshal(dets)

	if err != nil {
		return fmt.Errorf("error encoding frame %d: %w", j.frames, err)
	}

	sep := ",\n"

	if j.frames == 0 {
		sep = "[\n"
	}

	if _, err := io.WriteString(j.w, sep); err != nil {
		return fmt.Errorf("error writing frame %d: %w", j.frames, err)
	}

	if _, err := j.w.Write(data); err != nil {
		return fmt.Errorf("error writing frame %d: %w", j.frames, err)
	}

	j.frames++

	return nil
}

// Frames returns the number of frames written
func (j *JSONWriter) Frames() int {
	j.Lock()
	defer j.Unlock()

	return j.frames
}

// Close terminates the array.  It does not close the underlying writer.
func (j *JSONWriter) Close() error {
	j.Lock()
	defer j.Unlock()

	if j.closed {
		return nil
	}

	j.closed = true

	end := "\n]\n"

	if j.frames == 0 {
		end = "[]\n"
	}

	if _, err := io.WriteString(j.w, end); err != nil {
		return fmt.Errorf("error closing json array: %w", err)
	}

	return nil
}

// JSONFile is a JSONWriter writing to a file it owns
type JSONFile struct {
	*JSONWriter
	f *os.File
}

// CreateJSON creates or truncates the file at path for writing frames
func CreateJSON(path string) (*JSONFile, error) {

	f, err := os.Create(path)

	if err != nil {
		return nil, fmt.Errorf("error creating json file: %w", err)
	}

	return &JSONFile{JSONWriter: NewJSONWriter(f), f: f}, nil
}

// Close terminates the array and closes the file.  The export is only
// valid JSON when Close returns nil.
func (j *JSONFile) Close() error {

	err := j.JSONWriter.Close()

	if cerr := j.f.Close(); cerr != nil && !errors.Is(cerr, os.ErrClosed) && err == nil {
		err = fmt.Errorf("error closing json file: %w", cerr)
	}

	return err
}

// ReadJSON parses a document written by JSONWriter
func ReadJSON(r io.Reader) ([][]result.Detection, error) {

	var frames [][]result.Detection

	if err := json.NewDecoder(r).Decode(&frames); err != nil {
		return nil, fmt.Errorf("error decoding detections: %w", err)
	}

	return frames, nil
}
