package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-postura/frame"
	"github.com/swdee/go-postura/pose"
	"github.com/swdee/go-postura/posture"
	"gocv.io/x/gocv"
)

// fakeDetector returns canned keypoints and records the tensors it is given
type fakeDetector struct {
	kps   []pose.Keypoint
	panic bool
	calls atomic.Int32
	rows  int
	cols  int
}

func (f *fakeDetector) Detect(tensor gocv.Mat) []pose.Keypoint {
	f.calls.Add(1)
	f.rows, f.cols = tensor.Rows(), tensor.Cols()

	if f.panic {
		panic("native fault")
	}

	return f.kps
}

func uprightPose() []pose.Keypoint {

	kps := make([]pose.Keypoint, pose.NumBodyParts)

	for i := range kps {
		kps[i] = pose.Keypoint{
			BodyPart:   pose.BodyPart(i),
			Coordinate: pose.Coordinate{X: 0.5, Y: 0.5},
			Score:      0.9,
		}
	}

	kps[pose.LeftShoulder].Coordinate = pose.Coordinate{X: 0.4, Y: 0.5}
	kps[pose.RightShoulder].Coordinate = pose.Coordinate{X: 0.6, Y: 0.5}
	kps[pose.Nose].Coordinate = pose.Coordinate{X: 0.5, Y: 0.3}

	return kps
}

// cameraFrame returns a grey 64x48 I420 frame counting its releases
func cameraFrame(t *testing.T, released *atomic.Int32) *frame.Frame {

	rgb := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(128, 128, 128, 0), 48, 64, gocv.MatTypeCV8UC3)
	defer rgb.Close()

	yuv := gocv.NewMat()
	defer yuv.Close()

	gocv.CvtColor(rgb, &yuv, gocv.ColorRGBToYUVI420)

	f, err := frame.NewI420(64, 48, yuv.ToBytes(), 90, func() { released.Add(1) })
	require.NoError(t, err)

	return f
}

func newTestAnalyzer(det KeypointDetector, diag DiagnosticsConfig) (*Analyzer, *test.Hook) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	return NewAnalyzer(det, posture.DefaultThresholds(), diag, log), hook
}

func TestProcessPublishes(t *testing.T) {

	det := &fakeDetector{kps: uprightPose()}
	a, _ := newTestAnalyzer(det, DefaultDiagnostics())
	defer a.Close()

	var released atomic.Int32

	require.NoError(t, a.Process(cameraFrame(t, &released)))

	assert.Equal(t, int32(1), released.Load())
	assert.Equal(t, 256, det.rows)
	assert.Equal(t, 256, det.cols)

	kps, ok := a.Keypoints.Get()
	assert.True(t, ok)
	assert.Len(t, kps, pose.NumBodyParts)

	fb, ok := a.Feedback.Get()
	assert.True(t, ok)
	assert.Equal(t, posture.Good, fb.Quality)

	assert.Equal(t, uint64(1), a.Stats.Frames())
}

func TestProcessDecodeFailureKeepsOutputs(t *testing.T) {

	det := &fakeDetector{kps: uprightPose()}
	a, _ := newTestAnalyzer(det, DefaultDiagnostics())
	defer a.Close()

	var good, bad atomic.Int32

	require.NoError(t, a.Process(cameraFrame(t, &good)))

	// odd dimensions cannot be 4:2:0
	broken := frame.New(63, 48, [3]frame.Plane{}, 0, func() { bad.Add(1) })

	err := a.Process(broken)
	assert.ErrorIs(t, err, frame.ErrInvalidFrame)
	assert.Equal(t, int32(1), bad.Load())
	assert.Equal(t, int32(1), det.calls.Load())

	fb, _ := a.Feedback.Get()
	assert.Equal(t, posture.Good, fb.Quality)
	assert.Equal(t, uint64(1), a.Stats.Frames())
}

func TestProcessInferenceFailurePublishesUnknown(t *testing.T) {

	a, _ := newTestAnalyzer(&fakeDetector{kps: []pose.Keypoint{}}, DefaultDiagnostics())
	defer a.Close()

	var released atomic.Int32

	require.NoError(t, a.Process(cameraFrame(t, &released)))

	kps, ok := a.Keypoints.Get()
	assert.True(t, ok)
	assert.Empty(t, kps)

	fb, _ := a.Feedback.Get()
	assert.Equal(t, posture.Unknown, fb.Quality)
	assert.Equal(t, []string{posture.FixMoveCloser, posture.FixImproveLighting}, fb.Corrections)
}

func TestProcessRecoversPanic(t *testing.T) {

	det := &fakeDetector{panic: true}
	a, _ := newTestAnalyzer(det, DefaultDiagnostics())
	defer a.Close()

	var released atomic.Int32

	err := a.Process(cameraFrame(t, &released))
	assert.ErrorContains(t, err, "native fault")
	assert.Equal(t, int32(1), released.Load())

	_, ok := a.Feedback.Get()
	assert.False(t, ok)
}

func TestRunProcessesLatestFrame(t *testing.T) {

	det := &fakeDetector{kps: uprightPose()}
	a, _ := newTestAnalyzer(det, DefaultDiagnostics())
	defer a.Close()

	updates, cancelSub := a.Feedback.Subscribe()
	defer cancelSub()

	mb := NewMailbox()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, mb) }()

	var released atomic.Int32
	mb.Put(cameraFrame(t, &released))

	select {
	case fb := <-updates:
		assert.Equal(t, posture.Good, fb.Quality)
	case <-time.After(5 * time.Second):
		t.Fatal("no feedback published")
	}

	cancel()
	require.NoError(t, <-done)

	mb.Close()
	assert.Equal(t, int32(1), released.Load())
}

func TestStatsDiagnosticsInterval(t *testing.T) {

	diag := DefaultDiagnostics()
	diag.Interval = 2

	a, hook := newTestAnalyzer(&fakeDetector{kps: uprightPose()}, diag)
	defer a.Close()

	var released atomic.Int32

	for i := 0; i < 5; i++ {
		require.NoError(t, a.Process(cameraFrame(t, &released)))
	}

	var lines []*logrus.Entry
	good := 0

	for _, e := range hook.AllEntries() {
		switch e.Message {
		case "Pipeline diagnostics":
			lines = append(lines, e)
		case "Good detection":
			good++
		}
	}

	require.Len(t, lines, 2)
	assert.Equal(t, 5, good)

	last := lines[1]
	assert.Equal(t, uint64(4), last.Data["frame"])
	assert.Equal(t, pose.NumBodyParts, last.Data["keypoints"])
	assert.Equal(t, 90, last.Data["avg_confidence"])
	assert.Equal(t, posture.MsgExcellent, last.Data["feedback"])
	assert.Equal(t, a.Session(), last.Data["session"])

	snap := a.Stats.Snapshot()
	assert.Equal(t, uint64(4), snap.Frames)
	assert.Equal(t, posture.Good.String(), snap.Quality)
}

func TestStatsDetectionClasses(t *testing.T) {

	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	s := NewStats(DefaultDiagnostics(), log)

	partial := uprightPose()
	for i := 0; i < 10; i++ {
		partial[i].Score = 0.01
	}

	low := uprightPose()
	for i := range low {
		low[i].Score = 0.01
	}
	low[3].Score = 0.04

	tests := []struct {
		kps  []pose.Keypoint
		msg  string
		data logrus.Fields
	}{
		{uprightPose(), "Good detection", logrus.Fields{"confident": 17}},
		{partial, "Partial detection", logrus.Fields{"confident": 7}},
		{low, "Low confidence", logrus.Fields{"max_score": 4}},
		{[]pose.Keypoint{}, "No keypoints detected", logrus.Fields{}},
	}

	for _, tc := range tests {
		hook.Reset()
		s.Record(tc.kps, posture.Evaluate(tc.kps), time.Millisecond, time.Millisecond)

		entry := hook.LastEntry()
		require.NotNil(t, entry)
		assert.Equal(t, tc.msg, entry.Message)
		assert.Equal(t, logrus.DebugLevel, entry.Level)

		for k, v := range tc.data {
			assert.Equal(t, v, entry.Data[k], tc.msg)
		}
	}
}
