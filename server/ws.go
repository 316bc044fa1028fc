package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/swdee/go-nightjar/postprocess/result"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// writeWait is the time allowed to write a message to a client
const writeWait = time.Second

// FrameMessage is the JSON message pushed to WebSocket clients per frame
type FrameMessage struct {
	Session    uuid.UUID          `json:"session"`
	Frame      int                `json:"frame"`
	FPS        float64            `json:"fps"`
	Counts     map[string]int     `json:"counts"`
	Detections []result.Detection `json:"detections"`
}

// StreamStats is the latest frame statistics of a running stream
type StreamStats struct {
	Session uuid.UUID      `json:"session"`
	Frame   int            `json:"frame"`
	FPS     float64        `json:"fps"`
	Counts  map[string]int `json:"counts"`
}

// Hub broadcasts frame messages to every connected WebSocket client and
// keeps the latest statistics of every stream
type Hub struct {
	clients map[*websocket.Conn]bool
	streams map[uuid.UUID]StreamStats
	mu      sync.Mutex
}

// NewHub creates an empty Hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		streams: make(map[uuid.UUID]StreamStats),
	}
}

// ServeHTTP handles WebSocket upgrade requests
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {

	conn, err := upgrader.Upgrade(w, r, nil)

	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// Broadcast sends one frame's detections to all clients.  Writes are made
// under the hub lock as a connection supports only one writer.
func (h *Hub) Broadcast(msg FrameMessage) {

	h.mu.Lock()
	defer h.mu.Unlock()

	if msg.Detections == nil {
		msg.Detections = []result.Detection{}
	}

	if msg.Counts == nil {
		msg.Counts = map[string]int{}
	}

	h.streams[msg.Session] = StreamStats{
		Session: msg.Session,
		Frame:   msg.Frame,
		FPS:     msg.FPS,
		Counts:  msg.Counts,
	}

	if len(h.clients) == 0 {
		return
	}

	data, err := json.Marshal(msg)

	if err != nil {
		log.Printf("error encoding frame %d: %v", msg.Frame, err)
		return
	}

	for conn := range h.clients {
		// a stalled client must not hold up the streams
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			conn.Close()
			delete(h.clients, conn)
			continue
		}

		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("websocket write error: %v", err)
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// EndStream removes the statistics of a finished stream
func (h *Hub) EndStream(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.streams, id)
}

// Streams returns the latest statistics of every running stream ordered by
// session ID
func (h *Hub) Streams() []StreamStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]StreamStats, 0, len(h.streams))

	for _, st := range h.streams {
		out = append(out, st)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Session.String() < out[j].Session.String()
	})

	return out
}
