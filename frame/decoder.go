package frame

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Decoder converts camera frames into RGB images.  The NV21 staging buffer
// is reused between frames so a Decoder must only be used from one
// goroutine at a time.
type Decoder struct {
	nv21 []byte
}

// NewDecoder returns a frame decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode converts the frame into a 3 channel RGB Mat rotated clockwise by the
// frame's rotation hint.  The frame is not released, that remains the
// responsibility of the caller.
func (d *Decoder) Decode(f *Frame, dest *gocv.Mat) error {

	if err := f.Validate(); err != nil {
		return err
	}

	size := nv21Size(f.Width, f.Height)

	if cap(d.nv21) < size {
		d.nv21 = make([]byte, size)
	}

	d.nv21 = d.nv21[:size]
	PackNV21(f, d.nv21)

	yuv, err := gocv.NewMatFromBytes(f.Height*3/2, f.Width, gocv.MatTypeCV8UC1, d.nv21)

	if err != nil {
		return fmt.Errorf("%w: error creating NV21 Mat: %v", ErrInvalidFrame, err)
	}

	defer yuv.Close()

	if f.Rotation == 0 {
		gocv.CvtColor(yuv, dest, gocv.ColorYUVToRGBNV21)
	} else {
		rgb := gocv.NewMat()
		defer rgb.Close()

		gocv.CvtColor(yuv, &rgb, gocv.ColorYUVToRGBNV21)
		Rotate(rgb, dest, f.Rotation)
	}

	if dest.Empty() {
		return fmt.Errorf("%w: colorspace conversion produced an empty image", ErrInvalidFrame)
	}

	return nil
}

// Rotate rotates src clockwise by the given degrees into dest.  Degrees must
// be one of 0, 90, 180 or 270.
func Rotate(src gocv.Mat, dest *gocv.Mat, degrees int) {

	switch degrees {
	case 90:
		gocv.Rotate(src, dest, gocv.Rotate90Clockwise)
	case 180:
		gocv.Rotate(src, dest, gocv.Rotate180Clockwise)
	case 270:
		gocv.Rotate(src, dest, gocv.Rotate90CounterClockwise)
	default:
		src.CopyTo(dest)
	}
}

// nv21Size is the number of bytes of an NV21 image
func nv21Size(width, height int) int {
	return width*height + 2*(width/2)*(height/2)
}

// PackNV21 writes the frame into dst in NV21 order, the full resolution Y
// plane followed by the subsampled chroma with V preceding U in each pair.
// dst must hold at least width*height*3/2 bytes and the frame must be valid.
func PackNV21(f *Frame, dst []byte) {

	y := f.Planes[PlaneY]
	off := 0

	for row := 0; row < f.Height; row++ {
		start := row * y.RowStride

		if y.PixelStride == 1 {
			copy(dst[off:off+f.Width], y.Data[start:start+f.Width])
			off += f.Width
			continue
		}

		for col := 0; col < f.Width; col++ {
			dst[off] = y.Data[start+col*y.PixelStride]
			off++
		}
	}

	u := f.Planes[PlaneU]
	v := f.Planes[PlaneV]
	cw := f.Width / 2
	ch := f.Height / 2

	for row := 0; row < ch; row++ {
		for col := 0; col < cw; col++ {
			dst[off] = v.Data[row*v.RowStride+col*v.PixelStride]
			dst[off+1] = u.Data[row*u.RowStride+col*u.PixelStride]
			off += 2
		}
	}
}
