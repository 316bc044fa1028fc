package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nightjar "github.com/swdee/go-nightjar"
	"github.com/swdee/go-nightjar/capture"
	"github.com/swdee/go-nightjar/detector"
	"github.com/swdee/go-nightjar/postprocess"
	"gocv.io/x/gocv"
)

// fakeSource produces a fixed number of grey frames
type fakeSource struct {
	frames int
	read   int
	closed bool
}

func (f *fakeSource) Name() string {
	return "fake"
}

func (f *fakeSource) Read(img *gocv.Mat) error {

	if f.read >= f.frames {
		return capture.ErrEndOfStream
	}

	f.read++

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(80, 80, 80, 0), 48, 64,
		gocv.MatTypeCV8UC3)
	defer frame.Close()
	frame.CopyTo(img)

	return nil
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

// oneBird reports a single detection drifting right each frame
func oneBird() (detector.Detector, error) {
	return detector.Func(func(_ context.Context, frameNum int,
		_ gocv.Mat) ([]postprocess.RawDetection, error) {

		class := 0
		conf := float32(0.9)
		x := float32(frameNum * 2)

		return []postprocess.RawDetection{
			{Class: &class, Confidence: &conf, Box: []float32{x, 10, x + 20, 40}},
		}, nil
	}), nil
}

func newTestServer(t *testing.T, frames int) (*Server, *[]*fakeSource) {

	t.Helper()

	pool, err := nightjar.NewPool(1, func() (*nightjar.Session, error) {
		return nightjar.NewSession(nightjar.DefaultConfig(), []string{"nightjar"})
	})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	var sources []*fakeSource

	s, err := New(Config{
		Pool: pool,
		OpenSource: func() (FrameSource, error) {
			src := &fakeSource{frames: frames}
			sources = append(sources, src)
			return src, nil
		},
		NewDetector: oneBird,
	})
	require.NoError(t, err)

	return s, &sources
}

func TestNewRequiresDependencies(t *testing.T) {

	_, err := New(Config{})
	assert.Error(t, err)
}

func TestServerHealth(t *testing.T) {

	s, _ := newTestServer(t, 0)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Contains(t, resp, "uptime")

	req = httptest.NewRequest(http.MethodPost, "/api/health", nil)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStreamWritesFrames(t *testing.T) {

	s, sources := newTestServer(t, 3)

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, "multipart/x-mixed-replace; boundary=frame", rec.Header().Get("Content-Type"))
	assert.Equal(t, 3, strings.Count(rec.Body.String(), "--frame\r\n"))
	assert.Equal(t, 3, strings.Count(rec.Body.String(), "Content-Type: image/jpeg"))

	require.Len(t, *sources, 1)
	assert.True(t, (*sources)[0].closed)

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stream", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStreamBroadcastsDetections(t *testing.T) {

	s, _ := newTestServer(t, 3)

	ts := httptest.NewServer(s)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/detections"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return s.Hub().Clients() == 1
	}, time.Second, 5*time.Millisecond)

	resp, err := http.Get(ts.URL + "/stream")
	require.NoError(t, err)
	_, err = io.Copy(io.Discard, resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var msgs []FrameMessage

	for i := 0; i < 3; i++ {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

		var msg FrameMessage
		require.NoError(t, conn.ReadJSON(&msg))
		msgs = append(msgs, msg)
	}

	for i, msg := range msgs {
		assert.Equal(t, i+1, msg.Frame)
		assert.Equal(t, map[string]int{"nightjar": 1}, msg.Counts)
		assert.GreaterOrEqual(t, msg.FPS, 0.0)
		assert.Equal(t, msgs[0].Session, msg.Session)
		require.Len(t, msg.Detections, 1)
		assert.Equal(t, "nightjar", msg.Detections[0].ClassName)

		id, ok := msg.Detections[0].GetTrackID()
		require.True(t, ok)
		assert.Equal(t, 1, id)
	}
}

func TestStreamNewClientStartsFreshSession(t *testing.T) {

	s, _ := newTestServer(t, 2)

	ts := httptest.NewServer(s)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/detections"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return s.Hub().Clients() == 1
	}, time.Second, 5*time.Millisecond)

	var msgs []FrameMessage

	for run := 0; run < 2; run++ {

		resp, err := http.Get(ts.URL + "/stream")
		require.NoError(t, err)
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		for i := 0; i < 2; i++ {
			require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

			var msg FrameMessage
			require.NoError(t, conn.ReadJSON(&msg))
			msgs = append(msgs, msg)
		}
	}

	require.Len(t, msgs, 4)

	// second stream restarts numbering and track IDs under a new session
	assert.Equal(t, []int{1, 2, 1, 2}, []int{msgs[0].Frame, msgs[1].Frame, msgs[2].Frame, msgs[3].Frame})
	assert.NotEqual(t, msgs[0].Session, msgs[2].Session)

	id, ok := msgs[2].Detections[0].GetTrackID()
	require.True(t, ok)
	assert.Equal(t, 1, id)
}

func TestFPSMeter(t *testing.T) {

	var m fpsMeter
	start := time.Unix(1000, 0)

	assert.Zero(t, m.tick(start))
	assert.InDelta(t, 25.0, m.tick(start.Add(40*time.Millisecond)), 1e-9)
	assert.InDelta(t, 10.0, m.tick(start.Add(140*time.Millisecond)), 1e-9)

	// a clock that does not move gives no rate
	assert.Zero(t, m.tick(start.Add(140*time.Millisecond)))
}

func TestHubStreamStats(t *testing.T) {

	h := NewHub()
	a, b := uuid.New(), uuid.New()

	h.Broadcast(FrameMessage{Session: a, Frame: 1, FPS: 30, Counts: map[string]int{"egg": 2}})
	h.Broadcast(FrameMessage{Session: b, Frame: 1})
	h.Broadcast(FrameMessage{Session: a, Frame: 2, FPS: 25, Counts: map[string]int{"egg": 1}})

	streams := h.Streams()
	require.Len(t, streams, 2)

	byID := map[uuid.UUID]StreamStats{}
	for _, st := range streams {
		byID[st.Session] = st
	}

	assert.Equal(t, StreamStats{Session: a, Frame: 2, FPS: 25,
		Counts: map[string]int{"egg": 1}}, byID[a])
	assert.Equal(t, map[string]int{}, byID[b].Counts)

	h.EndStream(a)
	streams = h.Streams()
	require.Len(t, streams, 1)
	assert.Equal(t, b, streams[0].Session)
}

func TestHealthReportsRunningStreams(t *testing.T) {

	s, _ := newTestServer(t, 0)
	id := uuid.New()

	s.Hub().Broadcast(FrameMessage{Session: id, Frame: 7, FPS: 12.5,
		Counts: map[string]int{"nightjar": 3}})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Streams []StreamStats `json:"streams"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Streams, 1)
	assert.Equal(t, id, resp.Streams[0].Session)
	assert.Equal(t, 7, resp.Streams[0].Frame)
	assert.Equal(t, 12.5, resp.Streams[0].FPS)
	assert.Equal(t, map[string]int{"nightjar": 3}, resp.Streams[0].Counts)
}

func TestStreamEndClearsStats(t *testing.T) {

	s, _ := newTestServer(t, 2)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))

	assert.Empty(t, s.Hub().Streams())
}

func TestBroadcastDropsStalledClient(t *testing.T) {

	h := NewHub()

	ts := httptest.NewServer(h)
	defer ts.Close()

	// the client never reads so the socket buffers fill up
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return h.Clients() == 1
	}, time.Second, 5*time.Millisecond)

	big := map[string]int{strings.Repeat("x", 1<<20): 1}
	deadline := time.Now().Add(20 * time.Second)

	for h.Clients() > 0 {
		require.True(t, time.Now().Before(deadline), "stalled client was never dropped")

		start := time.Now()
		h.Broadcast(FrameMessage{Session: uuid.New(), Counts: big})

		// a single write is bounded by the write deadline
		require.Less(t, time.Since(start), 5*writeWait)
	}
}
