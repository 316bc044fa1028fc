// Package server provides the HTTP front end streaming annotated video as
// MJPEG and the per frame detections over a WebSocket.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	nightjar "github.com/swdee/go-nightjar"
	"github.com/swdee/go-nightjar/detector"
	"gocv.io/x/gocv"
)

// FrameSource is a video source read frame by frame, see capture.Source
type FrameSource interface {
	Name() string
	Read(img *gocv.Mat) error
	Close() error
}

// Config holds the dependencies of the Server
type Config struct {
	// Pool of sessions, one is taken for every stream client
	Pool *nightjar.Pool
	// OpenSource opens the video source for a new stream client
	OpenSource func() (FrameSource, error)
	// NewDetector returns the detector for a new stream client
	NewDetector func() (detector.Detector, error)
	// FrameInterval paces the stream, zero streams as fast as frames are read
	FrameInterval time.Duration
	// JPEGQuality of the streamed frames, zero uses the encoder default
	JPEGQuality int
}

// Server is the HTTP server for the nightjar stream
type Server struct {
	config  Config
	mux     *http.ServeMux
	hub     *Hub
	started time.Time
}

// New creates a new Server with the given configuration
func New(config Config) (*Server, error) {

	if config.Pool == nil {
		return nil, errors.New("server requires a session pool")
	}

	if config.OpenSource == nil || config.NewDetector == nil {
		return nil, errors.New("server requires a source and detector")
	}

	s := &Server{
		config:  config,
		mux:     http.NewServeMux(),
		hub:     NewHub(),
		started: time.Now(),
	}

	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.Handle("/stream", NewStreamHandler(config, s.hub))
	s.mux.Handle("/detections", s.hub)

	return s, nil
}

// Hub returns the WebSocket hub detections are broadcast on
func (s *Server) Hub() *Hub {
	return s.hub
}

// ServeHTTP implements the http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth reports server status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	resp := map[string]any{
		"status":   "ok",
		"uptime":   time.Since(s.started).String(),
		"sessions": s.config.Pool.Size(),
		"clients":  s.hub.Clients(),
		"streams":  s.hub.Streams(),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// ListenAndServe starts the HTTP server on the given address
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}
