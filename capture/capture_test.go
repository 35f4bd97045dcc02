package capture

import (
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-postura/frame"
	"github.com/swdee/go-postura/pipeline"
	"gocv.io/x/gocv"
)

// collectSink keeps every frame it is given
type collectSink struct {
	frames []*frame.Frame
}

func (c *collectSink) Put(f *frame.Frame) bool {
	c.frames = append(c.frames, f)
	return true
}

func testSource(rotation int) *Source {
	log, _ := test.NewNullLogger()
	return &Source{
		cfg:     Config{Device: "test", Rotation: rotation},
		log:     log,
		Preview: pipeline.NewState[Still](),
	}
}

func TestDeliverOddSizeFrame(t *testing.T) {

	// BGR blue
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 0, 0, 0), 47, 63, gocv.MatTypeCV8UC3)
	defer img.Close()

	s := testSource(90)
	sink := &collectSink{}

	require.NoError(t, s.deliver(img, sink))
	require.Len(t, sink.frames, 1)

	f := sink.frames[0]
	defer f.Release()

	assert.Equal(t, 62, f.Width)
	assert.Equal(t, 46, f.Height)
	assert.Equal(t, 90, f.Rotation)
	require.NoError(t, f.Validate())

	rgb := gocv.NewMat()
	defer rgb.Close()

	require.NoError(t, frame.NewDecoder().Decode(f, &rgb))

	// decoded frame is RGB in display orientation
	assert.Equal(t, 62, rgb.Rows())
	assert.Equal(t, 46, rgb.Cols())

	px := rgb.GetVecbAt(10, 10)
	assert.InDelta(t, 0, px[0], 8)
	assert.InDelta(t, 255, px[2], 8)
}

func TestPreviewRotated(t *testing.T) {

	img := gocv.NewMatWithSize(40, 60, gocv.MatTypeCV8UC3)
	defer img.Close()

	s := testSource(270)
	s.publishPreview(img)
	s.publishPreview(img)

	still, ok := s.Preview.Get()
	require.True(t, ok)

	assert.Equal(t, 40, still.Width)
	assert.Equal(t, 60, still.Height)
	assert.Equal(t, uint64(2), still.Seq)
	assert.Len(t, still.Data, 40*60*3)

	m, err := still.Mat()
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, 60, m.Rows())
	assert.Equal(t, 40, m.Cols())
}
