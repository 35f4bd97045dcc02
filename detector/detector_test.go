package detector

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-postura/pose"
	"gocv.io/x/gocv"
)

// fakeEngine returns a canned output or error
type fakeEngine struct {
	shape  Shape
	out    []float32
	err    error
	calls  int
	closed bool
}

func (f *fakeEngine) Infer(tensor gocv.Mat) ([]float32, error) {
	f.calls++
	return f.out, f.err
}

func (f *fakeEngine) InputShape() Shape {
	return f.shape
}

func (f *fakeEngine) Close() error {
	f.closed = true
	return nil
}

func newTensor(rows, cols int, mt gocv.MatType) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0.5, 0.5, 0.5, 0), rows, cols, mt)
}

func rawOutput() []float32 {

	raw := make([]float32, OutputSize)

	for i := 0; i < pose.NumBodyParts; i++ {
		raw[i*3] = float32(i) / 100
		raw[i*3+1] = float32(i) / 50
		raw[i*3+2] = 0.1
	}

	// left shoulder row of y=0.3, x=0.4, score=0.8
	raw[15], raw[16], raw[17] = 0.3, 0.4, 0.8

	return raw
}

func TestMapOutput(t *testing.T) {

	kps, err := MapOutput(rawOutput())
	require.NoError(t, err)
	require.Len(t, kps, pose.NumBodyParts)

	for i, kp := range kps {
		assert.Equal(t, pose.BodyPart(i), kp.BodyPart)
	}

	ls := kps[5]
	assert.Equal(t, pose.LeftShoulder, ls.BodyPart)
	assert.Equal(t, pose.Coordinate{X: 0.4, Y: 0.3}, ls.Coordinate)
	assert.Equal(t, float32(0.8), ls.Score)

	// coordinates swap the model's (y, x) row order
	assert.Equal(t, pose.Coordinate{X: 0.02, Y: 0.01}, kps[1].Coordinate)
}

func TestMapOutputWrongSize(t *testing.T) {

	for _, n := range []int{0, 3, OutputSize - 1, OutputSize + 3} {
		_, err := MapOutput(make([]float32, n))
		assert.ErrorIs(t, err, ErrShapeMismatch, "size %d", n)
	}
}

func TestNewRejectsWrongInputShape(t *testing.T) {

	_, err := New(&fakeEngine{shape: Shape{192, 192, 3}}, nil)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = New(nil, nil)
	assert.Error(t, err)
}

func TestDetect(t *testing.T) {

	eng := &fakeEngine{shape: PoseInputShape, out: rawOutput()}
	d, err := New(eng, nil)
	require.NoError(t, err)

	tensor := newTensor(256, 256, gocv.MatTypeCV32FC3)
	defer tensor.Close()

	kps := d.Detect(tensor)
	assert.Len(t, kps, pose.NumBodyParts)
	assert.Equal(t, 1, eng.calls)

	require.NoError(t, d.Close())
	assert.True(t, eng.closed)
}

func TestDetectFailureYieldsEmpty(t *testing.T) {

	log, hook := test.NewNullLogger()

	tests := []struct {
		name   string
		tensor func() gocv.Mat
		engine *fakeEngine
		calls  int
	}{
		{
			name:   "engine error",
			tensor: func() gocv.Mat { return newTensor(256, 256, gocv.MatTypeCV32FC3) },
			engine: &fakeEngine{shape: PoseInputShape, err: errors.New("npu fault")},
			calls:  1,
		},
		{
			name:   "short output",
			tensor: func() gocv.Mat { return newTensor(256, 256, gocv.MatTypeCV32FC3) },
			engine: &fakeEngine{shape: PoseInputShape, out: make([]float32, 10)},
			calls:  1,
		},
		{
			name:   "wrong tensor size",
			tensor: func() gocv.Mat { return newTensor(128, 256, gocv.MatTypeCV32FC3) },
			engine: &fakeEngine{shape: PoseInputShape, out: rawOutput()},
		},
		{
			name:   "wrong tensor type",
			tensor: func() gocv.Mat { return newTensor(256, 256, gocv.MatTypeCV8UC3) },
			engine: &fakeEngine{shape: PoseInputShape, out: rawOutput()},
		},
		{
			name:   "empty tensor",
			tensor: gocv.NewMat,
			engine: &fakeEngine{shape: PoseInputShape, out: rawOutput()},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			hook.Reset()

			d, err := New(tc.engine, log)
			require.NoError(t, err)

			tensor := tc.tensor()
			defer tensor.Close()

			kps := d.Detect(tensor)
			assert.NotNil(t, kps)
			assert.Empty(t, kps)
			assert.Equal(t, tc.calls, tc.engine.calls)

			require.NotNil(t, hook.LastEntry())
			assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
		})
	}
}

func TestDetectTracesRows(t *testing.T) {

	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.TraceLevel)

	d, err := New(&fakeEngine{shape: PoseInputShape, out: rawOutput()}, log)
	require.NoError(t, err)

	tensor := newTensor(256, 256, gocv.MatTypeCV32FC3)
	defer tensor.Close()

	d.Detect(tensor)

	assert.Len(t, hook.AllEntries(), pose.NumBodyParts)
	assert.Equal(t, "LEFT_SHOULDER", hook.AllEntries()[5].Data["part"])
}
