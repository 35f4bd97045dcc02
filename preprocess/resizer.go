package preprocess

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

const (
	// MoveNetSize is the square input tensor size of the single pose model
	MoveNetSize = 256
	// pixelScale maps 8 bit pixel values into the [0,1] range
	pixelScale = 1.0 / 255.0
)

// Resizer defines the struct used for converting a decoded RGB image into
// the float input tensor of the pose model
type Resizer struct {
	// destWidth is the width of the input tensor
	destWidth int
	// destHeight is the height of the input tensor
	destHeight int
	// tempMat holds the resized uint8 image before normalisation
	tempMat gocv.Mat
}

// NewResizer returns a resizer scaling images to the given input tensor size
func NewResizer(destWidth, destHeight int) *Resizer {
	return &Resizer{
		destWidth:  destWidth,
		destHeight: destHeight,
		tempMat:    gocv.NewMat(),
	}
}

// Close frees memory allocated during resize process
func (r *Resizer) Close() error {
	return r.tempMat.Close()
}

// Tensor stretches the 3 channel src image to the tensor dimensions using
// bilinear interpolation and writes it to dest as float32 values scaled
// from [0,255] to [0,1].  The aspect ratio of the source is not preserved.
func (r *Resizer) Tensor(src gocv.Mat, dest *gocv.Mat) error {

	if src.Empty() {
		return fmt.Errorf("source image is empty")
	}

	if src.Channels() != 3 {
		return fmt.Errorf("source image has %d channels, expected 3", src.Channels())
	}

	gocv.Resize(src, &r.tempMat, image.Pt(r.destWidth, r.destHeight),
		0, 0, gocv.InterpolationLinear)

	r.tempMat.ConvertToWithParams(dest, gocv.MatTypeCV32FC3, pixelScale, 0)

	return nil
}

// Width returns the width of the input tensor
func (r *Resizer) Width() int {
	return r.destWidth
}

// Height returns the height of the input tensor
func (r *Resizer) Height() int {
	return r.destHeight
}
