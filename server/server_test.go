package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-postura/capture"
	"github.com/swdee/go-postura/pipeline"
	"github.com/swdee/go-postura/pose"
	"github.com/swdee/go-postura/posture"
)

func testServer() (*Server, Sources) {

	log, _ := test.NewNullLogger()

	src := Sources{
		Keypoints: pipeline.NewState[[]pose.Keypoint](),
		Feedback:  pipeline.NewState[posture.Feedback](),
		Stats: func() pipeline.Snapshot {
			return pipeline.Snapshot{Frames: 12, Confident: 9}
		},
	}

	return New(Config{Addr: "127.0.0.1:0", JPEGQuality: 80}, src, nil, log), src
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestKeypointsEndpoint(t *testing.T) {

	s, src := testServer()

	rec := get(t, s, "/api/keypoints")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"keypoints":[]}`, rec.Body.String())

	src.Keypoints.Set([]pose.Keypoint{{
		BodyPart:   pose.LeftShoulder,
		Coordinate: pose.Coordinate{X: 0.4, Y: 0.3},
		Score:      0.8,
	}})

	rec = get(t, s, "/api/keypoints")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Keypoints []pose.Keypoint `json:"keypoints"`
	}

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Keypoints, 1)
	assert.Equal(t, pose.LeftShoulder, body.Keypoints[0].BodyPart)
	assert.InDelta(t, 0.4, body.Keypoints[0].Coordinate.X, 1e-6)
	assert.InDelta(t, 0.3, body.Keypoints[0].Coordinate.Y, 1e-6)
}

func TestFeedbackEndpoint(t *testing.T) {

	s, src := testServer()

	rec := get(t, s, "/api/feedback")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	src.Feedback.Set(posture.Feedback{
		Quality:     posture.Good,
		Message:     posture.MsgExcellent,
		Corrections: []string{posture.FixNoneKeepItUp},
	})

	rec = get(t, s, "/api/feedback")
	require.Equal(t, http.StatusOK, rec.Code)

	var fb posture.Feedback
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fb))
	assert.Equal(t, posture.Good, fb.Quality)
	assert.Equal(t, posture.MsgExcellent, fb.Message)
}

func TestStatsEndpoint(t *testing.T) {

	s, _ := testServer()

	rec := get(t, s, "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap pipeline.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, uint64(12), snap.Frames)
	assert.Equal(t, 9, snap.Confident)
}

func TestStreamWithoutPreview(t *testing.T) {
	s, _ := testServer()
	rec := get(t, s, "/stream")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebsocketPushesUpdates(t *testing.T) {

	s, src := testServer()

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	src.Feedback.Set(posture.Feedback{
		Quality:     posture.Poor,
		Message:     posture.MsgNeedsAttention,
		Corrections: []string{posture.FixHeadStraight},
	})

	// the first messages may race the update so read until feedback arrives
	for {
		var u Update
		require.NoError(t, conn.ReadJSON(&u))

		if u.Feedback == nil {
			continue
		}

		assert.Equal(t, posture.Poor, u.Feedback.Quality)
		assert.Equal(t, posture.MsgNeedsAttention, u.Feedback.Message)
		assert.NotNil(t, u.Keypoints)
		break
	}
}

func TestServeStopsWithOpenStream(t *testing.T) {

	s, _ := testServer()

	preview := pipeline.NewState[capture.Still]()
	preview.Set(capture.Still{Data: make([]byte, 8*8*3), Width: 8, Height: 8, Seq: 1})
	s.src.Preview = preview

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)

	go func() {
		done <- s.Serve(ctx, ln)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "multipart/x-mixed-replace")

	// wait for the first part so the handler is blocked waiting for stills
	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "--frame\r\n", line)

	start := time.Now()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
		assert.Less(t, time.Since(start), 2*time.Second)
	case <-time.After(4 * time.Second):
		t.Fatal("server did not stop while a stream client was connected")
	}
}

func TestRunInvalidAddr(t *testing.T) {

	log, _ := test.NewNullLogger()
	s := New(Config{Addr: "127.0.0.1:-1", JPEGQuality: 80}, Sources{}, nil, log)

	assert.Error(t, s.Run(context.Background()))
}
