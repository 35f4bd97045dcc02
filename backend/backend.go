// Package backend constructs the pose Detector on top of either the Rockchip
// NPU runtime or the TensorFlow Lite CPU runtime.
package backend

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/swdee/go-postura/detector"
	"github.com/swdee/go-postura/model"
	"github.com/swdee/go-postura/rknn"
	"github.com/swdee/go-postura/tflite"
	"gocv.io/x/gocv"
)

// Kind names an inference backend
type Kind string

const (
	RKNN   Kind = "rknn"
	TFLite Kind = "tflite"
)

// Options configure the model and engine a Detector is built from
type Options struct {
	// ModelPath is the bundled model file
	ModelPath string
	// Kind is the inference backend to run ModelPath on
	Kind Kind
	// Threads is the number of CPU threads used by TFLite
	Threads int
	// Core is the NPU core to run on, auto|0|1|2|skip
	Core string
}

// Open maps the model file read-only and constructs the inference engine
// once.  Any failure is returned since no frames can be processed without a
// working Detector.
func Open(opts Options, log logrus.FieldLogger) (*detector.Detector, error) {

	eng, err := OpenEngine(opts)

	if err != nil {
		return nil, err
	}

	d, err := detector.New(eng, log)

	if err != nil {
		eng.Close()
		return nil, err
	}

	return d, nil
}

// OpenEngine maps the model file and builds the Engine for the configured
// backend
func OpenEngine(opts Options) (Engine, error) {

	m, err := model.Map(opts.ModelPath)

	if err != nil {
		return nil, fmt.Errorf("error loading model: %w", err)
	}

	var eng Engine

	switch Kind(strings.ToLower(string(opts.Kind))) {
	case RKNN:
		eng, err = newRKNNEngine(m, opts.Core)
	case TFLite:
		eng, err = newTFLiteEngine(m, opts.Threads)
	default:
		err = fmt.Errorf("unknown backend %q", opts.Kind)
	}

	if err != nil {
		m.Close()
		return nil, err
	}

	return eng, nil
}

// Engine is a detector.Engine able to describe its model tensors
type Engine interface {
	detector.Engine
	Query(w io.Writer) error
}

// rknnEngine runs the model on the NPU directly from the mapped model bytes
type rknnEngine struct {
	rt      *rknn.Runtime
	mapping *model.Mapping
	shape   detector.Shape
}

func newRKNNEngine(m *model.Mapping, core string) (*rknnEngine, error) {

	mask, err := rknn.ParseCoreMask(core)

	if err != nil {
		return nil, err
	}

	rt, err := rknn.NewRuntime(m.Bytes(), mask)

	if err != nil {
		return nil, fmt.Errorf("error initializing RKNN runtime: %w", err)
	}

	h, w, c := rt.InputAttrs()[0].HWC()

	return &rknnEngine{
		rt:      rt,
		mapping: m,
		shape:   detector.Shape{Height: h, Width: w, Channels: c},
	}, nil
}

func (e *rknnEngine) Infer(tensor gocv.Mat) ([]float32, error) {
	return e.rt.Infer(tensor)
}

func (e *rknnEngine) InputShape() detector.Shape {
	return e.shape
}

func (e *rknnEngine) Query(w io.Writer) error {
	return e.rt.Query(w)
}

func (e *rknnEngine) Close() error {
	// the runtime references the mapped bytes so it must be destroyed first
	return errors.Join(e.rt.Close(), e.mapping.Close())
}

// tfliteEngine runs the model on the CPU
type tfliteEngine struct {
	rt      *tflite.Runtime
	mapping *model.Mapping
	shape   detector.Shape
}

func newTFLiteEngine(m *model.Mapping, threads int) (*tfliteEngine, error) {

	rt, err := tflite.NewRuntime(m.Bytes(), threads)

	if err != nil {
		return nil, fmt.Errorf("error initializing TFLite runtime: %w", err)
	}

	h, w, c := rt.InputHWC()

	return &tfliteEngine{
		rt:      rt,
		mapping: m,
		shape:   detector.Shape{Height: h, Width: w, Channels: c},
	}, nil
}

func (e *tfliteEngine) Infer(tensor gocv.Mat) ([]float32, error) {
	return e.rt.Infer(tensor)
}

func (e *tfliteEngine) InputShape() detector.Shape {
	return e.shape
}

func (e *tfliteEngine) Query(w io.Writer) error {
	return e.rt.Query(w)
}

func (e *tfliteEngine) Close() error {
	return errors.Join(e.rt.Close(), e.mapping.Close())
}
