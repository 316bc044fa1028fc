package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	nightjar "github.com/swdee/go-nightjar"
	"github.com/swdee/go-nightjar/capture"
	"github.com/swdee/go-nightjar/detector"
	"gocv.io/x/gocv"
)

// StreamHandler serves annotated MJPEG frames.  Every client gets its own
// session from the pool, reset before the first frame, and its own source
// and detector.
type StreamHandler struct {
	config Config
	hub    *Hub
}

// NewStreamHandler creates a new StreamHandler
func NewStreamHandler(config Config, hub *Hub) *StreamHandler {
	return &StreamHandler{config: config, hub: hub}
}

// ServeHTTP streams MJPEG frames until the client disconnects or the source
// ends
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	sess, err := h.config.Pool.Get(ctx)

	if err != nil {
		http.Error(w, "No session available", http.StatusServiceUnavailable)
		return
	}

	defer h.config.Pool.Return(sess)

	src, err := h.config.OpenSource()

	if err != nil {
		log.Printf("error opening stream source: %v", err)
		http.Error(w, "Failed to open video source", http.StatusInternalServerError)
		return
	}

	defer src.Close()

	det, err := h.config.NewDetector()

	if err != nil {
		log.Printf("error creating detector: %v", err)
		http.Error(w, "Failed to create detector", http.StatusInternalServerError)
		return
	}

	if c, ok := det.(io.Closer); ok {
		defer c.Close()
	}

	if err := sess.Start(ctx, src.Name()); err != nil {
		log.Printf("error starting session: %v", err)
		http.Error(w, "Failed to start session", http.StatusInternalServerError)
		return
	}

	id := sess.ID()
	defer h.hub.EndStream(id)

	defer func() {
		// the request context is done by now
		if err := sess.End(context.Background()); err != nil {
			log.Printf("error ending session: %v", err)
		}
	}()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	img := gocv.NewMat()
	defer img.Close()

	var (
		pace  <-chan time.Time
		meter fpsMeter
	)

	if h.config.FrameInterval > 0 {
		ticker := time.NewTicker(h.config.FrameInterval)
		defer ticker.Stop()
		pace = ticker.C
	}

	for frameNum := 1; ; frameNum++ {

		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := src.Read(&img); err != nil {
			if !errors.Is(err, capture.ErrEndOfStream) {
				log.Printf("error reading frame %d: %v", frameNum, err)
			}
			return
		}

		raws, err := det.Detect(ctx, frameNum, img)

		if err != nil {
			if errors.Is(err, detector.ErrReplayExhausted) {
				return
			}
			log.Printf("error detecting frame %d: %v", frameNum, err)
		}

		res, err := sess.ProcessFrame(ctx, nightjar.Frame{
			Width:  img.Cols(),
			Height: img.Rows(),
			Raws:   raws,
		})

		if err != nil {
			return
		}

		if err := sess.Render(&img, res); err != nil {
			log.Printf("error rendering frame %d: %v", frameNum, err)
		}

		h.hub.Broadcast(FrameMessage{
			Session:    id,
			Frame:      res.FrameNum,
			FPS:        meter.tick(time.Now()),
			Counts:     res.ClassCounts,
			Detections: res.Detections,
		})

		if err := h.writeFrame(w, img); err != nil {
			log.Printf("error writing frame %d: %v", frameNum, err)
			return
		}

		if pace != nil {
			select {
			case <-ctx.Done():
				return
			case <-pace:
			}
		}
	}
}

// writeFrame JPEG encodes img and writes it as one multipart part
func (h *StreamHandler) writeFrame(w http.ResponseWriter, img gocv.Mat) error {

	var (
		buf *gocv.NativeByteBuffer
		err error
	)

	if h.config.JPEGQuality > 0 {
		buf, err = gocv.IMEncodeWithParams(gocv.JPEGFileExt, img,
			[]int{gocv.IMWriteJpegQuality, h.config.JPEGQuality})
	} else {
		buf, err = gocv.IMEncode(gocv.JPEGFileExt, img)
	}

	if err != nil {
		return fmt.Errorf("error encoding jpeg: %w", err)
	}

	defer buf.Close()

	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n",
		buf.Len()); err != nil {
		return err
	}

	if _, err := w.Write(buf.GetBytes()); err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
		return err
	}

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	return nil
}

// fpsMeter measures the frame rate from the time between consecutive frames
type fpsMeter struct {
	last time.Time
}

// tick records a frame at now and returns the rate since the previous
// frame, zero for the first frame
func (m *fpsMeter) tick(now time.Time) float64 {

	var fps float64

	if !m.last.IsZero() {
		if d := now.Sub(m.last); d > 0 {
			fps = 1 / d.Seconds()
		}
	}

	m.last = now

	return fps
}
