// Package detector turns a preprocessed 256x256 float tensor into the 17
// body keypoints of a single person using a pose estimation model run by an
// inference Engine.
package detector

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/swdee/go-postura/pose"
	"gocv.io/x/gocv"
)

// ErrShapeMismatch is returned when an input tensor or model output does not
// have the dimensions of the pose model
var ErrShapeMismatch = errors.New("tensor shape mismatch")

// OutputSize is the number of float values in the [1,1,17,3] model output
const OutputSize = pose.NumBodyParts * 3

// Shape is the height, width and channels of an NHWC image tensor
type Shape struct {
	Height   int
	Width    int
	Channels int
}

// PoseInputShape is the [1,256,256,3] input of the pose model
var PoseInputShape = Shape{Height: 256, Width: 256, Channels: 3}

// String returns the shape as HxWxC
func (s Shape) String() string {
	return fmt.Sprintf("%dx%dx%d", s.Height, s.Width, s.Channels)
}

// Engine runs one forward pass of the pose model
type Engine interface {
	// Infer runs the model on a float32 HWC tensor returning the raw output
	Infer(tensor gocv.Mat) ([]float32, error)
	// InputShape returns the model input dimensions
	InputShape() Shape
	// Close releases the engine and the model it holds
	Close() error
}

// Detector maps model output to keypoints.  The Engine is constructed once and
// reused for every frame, calls to Detect are serialized.
type Detector struct {
	engine Engine
	log    logrus.FieldLogger
	mu     sync.Mutex
}

// New returns a Detector running the given Engine.  An engine whose input
// shape is not that of the pose model is rejected.
func New(engine Engine, log logrus.FieldLogger) (*Detector, error) {

	if engine == nil {
		return nil, fmt.Errorf("detector engine is nil")
	}

	if got := engine.InputShape(); got != PoseInputShape {
		return nil, fmt.Errorf("model input %s, expected %s: %w",
			got, PoseInputShape, ErrShapeMismatch)
	}

	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Detector{
		engine: engine,
		log:    log,
	}, nil
}

// InputShape returns the tensor dimensions Detect expects
func (d *Detector) InputShape() Shape {
	return d.engine.InputShape()
}

// Detect runs the pose model on the tensor and returns the 17 keypoints in
// model index order.  Any failure is logged and yields an empty slice so the
// caller can carry on with the next frame.
func (d *Detector) Detect(tensor gocv.Mat) []pose.Keypoint {

	kps, err := d.Infer(tensor)

	if err != nil {
		d.log.WithError(err).Warn("Keypoint detection failed")
		return []pose.Keypoint{}
	}

	return kps
}

// Infer is Detect returning the failure instead of an empty slice
func (d *Detector) Infer(tensor gocv.Mat) ([]pose.Keypoint, error) {

	if err := checkTensor(tensor, d.engine.InputShape()); err != nil {
		return nil, err
	}

	d.mu.Lock()
	raw, err := d.engine.Infer(tensor)
	d.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	traceRows(d.log, raw)

	return MapOutput(raw)
}

// Close releases the Engine
func (d *Detector) Close() error {
	return d.engine.Close()
}

// checkTensor verifies the tensor is a float32 image of the given shape
func checkTensor(tensor gocv.Mat, want Shape) error {

	if tensor.Empty() {
		return fmt.Errorf("input tensor is empty: %w", ErrShapeMismatch)
	}

	got := Shape{Height: tensor.Rows(), Width: tensor.Cols(), Channels: tensor.Channels()}

	if got != want {
		return fmt.Errorf("input tensor %s, expected %s: %w", got, want, ErrShapeMismatch)
	}

	if tensor.Type() != gocv.MatTypeCV32FC3 {
		return fmt.Errorf("input tensor type %v is not float32: %w",
			tensor.Type(), ErrShapeMismatch)
	}

	return nil
}

// MapOutput converts the [1,1,17,3] model output of (y, x, score) rows into
// keypoints.  Row i becomes body part i with coordinate (x, y).
func MapOutput(raw []float32) ([]pose.Keypoint, error) {

	if len(raw) != OutputSize {
		return nil, fmt.Errorf("model output has %d values, expected %d: %w",
			len(raw), OutputSize, ErrShapeMismatch)
	}

	kps := make([]pose.Keypoint, pose.NumBodyParts)

	for i := range kps {
		row := raw[i*3 : i*3+3]

		kps[i] = pose.Keypoint{
			BodyPart:   pose.BodyPart(i),
			Coordinate: pose.Coordinate{X: row[1], Y: row[0]},
			Score:      row[2],
		}
	}

	return kps, nil
}

// traceRows logs each raw output row at Trace level
func traceRows(log logrus.FieldLogger, raw []float32) {

	switch l := log.(type) {
	case *logrus.Entry:
		if !l.Logger.IsLevelEnabled(logrus.TraceLevel) {
			return
		}
	case *logrus.Logger:
		if !l.IsLevelEnabled(logrus.TraceLevel) {
			return
		}
	}

	for i := 0; i+2 < len(raw) && i/3 < pose.NumBodyParts; i += 3 {
		log.WithFields(logrus.Fields{
			"part":  pose.BodyPart(i / 3).String(),
			"y":     raw[i],
			"x":     raw[i+1],
			"score": raw[i+2],
		}).Trace("Model output row")
	}
}
