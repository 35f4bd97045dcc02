package frame

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrInvalidFrame is returned when the frame dimensions or plane buffers
	// are inconsistent with a 4:2:0 layout
	ErrInvalidFrame = errors.New("invalid frame")
	// ErrUnsupportedRotation is returned for rotations other than
	// 0, 90, 180 or 270 degrees
	ErrUnsupportedRotation = errors.New("unsupported rotation")
)

// Plane is a single image plane of a camera frame
type Plane struct {
	// Data holds the plane bytes
	Data []byte
	// RowStride is the number of bytes between the start of two rows
	RowStride int
	// PixelStride is the number of bytes between two samples in a row, 1 for
	// fully planar data and 2 for semi-planar interleaved chroma
	PixelStride int
}

// plane indexes within a Frame
const (
	PlaneY = 0
	PlaneU = 1
	PlaneV = 2
)

// Frame is a camera frame in YUV 4:2:0 layout.  The frame owns its camera
// buffers until Release is called.
type Frame struct {
	Width  int
	Height int
	// Planes are the Y, U and V planes in that order
	Planes [3]Plane
	// Rotation is the clockwise rotation in degrees needed to display the
	// frame in the device's natural orientation
	Rotation int

	release func()
	once    sync.Once
}

// New returns a Frame over the given planes.  The release function is
// called exactly once when the frame is released, it may be nil.
func New(width, height int, planes [3]Plane, rotation int, release func()) *Frame {
	return &Frame{
		Width:    width,
		Height:   height,
		Planes:   planes,
		Rotation: rotation,
		release:  release,
	}
}

// NewI420 returns a Frame over a contiguous I420 buffer (Y plane followed by
// the U and V planes)
func NewI420(width, height int, buf []byte, rotation int, release func()) (*Frame, error) {

	ySize := width * height
	cSize := (width / 2) * (height / 2)

	if width <= 0 || height <= 0 || len(buf) < ySize+2*cSize {
		return nil, fmt.Errorf("%w: I420 buffer of %d bytes too small for %dx%d",
			ErrInvalidFrame, len(buf), width, height)
	}

	planes := [3]Plane{
		{Data: buf[:ySize], RowStride: width, PixelStride: 1},
		{Data: buf[ySize : ySize+cSize], RowStride: width / 2, PixelStride: 1},
		{Data: buf[ySize+cSize : ySize+2*cSize], RowStride: width / 2, PixelStride: 1},
	}

	return New(width, height, planes, rotation, release), nil
}

// Release hands the camera buffers back to their owner.  It is safe to call
// multiple times, only the first call has an effect.
func (f *Frame) Release() {
	f.once.Do(func() {
		if f.release != nil {
			f.release()
		}
	})
}

// Validate checks the frame dimensions, rotation and that every plane holds
// enough bytes for its stride layout
func (f *Frame) Validate() error {

	if f.Width <= 0 || f.Height <= 0 || f.Width%2 != 0 || f.Height%2 != 0 {
		return fmt.Errorf("%w: dimensions %dx%d must be positive and even",
			ErrInvalidFrame, f.Width, f.Height)
	}

	if err := checkRotation(f.Rotation); err != nil {
		return err
	}

	if err := checkPlane("Y", f.Planes[PlaneY], f.Width, f.Height); err != nil {
		return err
	}

	if err := checkPlane("U", f.Planes[PlaneU], f.Width/2, f.Height/2); err != nil {
		return err
	}

	return checkPlane("V", f.Planes[PlaneV], f.Width/2, f.Height/2)
}

// checkPlane verifies the plane can be sampled for cols x rows
func checkPlane(name string, p Plane, cols, rows int) error {

	if p.PixelStride < 1 || p.RowStride < cols*p.PixelStride-(p.PixelStride-1) {
		return fmt.Errorf("%w: plane %s has row stride %d and pixel stride %d for %d columns",
			ErrInvalidFrame, name, p.RowStride, p.PixelStride, cols)
	}

	need := (rows-1)*p.RowStride + (cols-1)*p.PixelStride + 1

	if len(p.Data) < need {
		return fmt.Errorf("%w: plane %s has %d bytes, need %d",
			ErrInvalidFrame, name, len(p.Data), need)
	}

	return nil
}

func checkRotation(deg int) error {
	switch deg {
	case 0, 90, 180, 270:
		return nil
	default:
		return fmt.Errorf("%w: %d degrees", ErrUnsupportedRotation, deg)
	}
}
