// Package capture reads a camera or video file with OpenCV and hands each
// image to the pipeline as a planar 4:2:0 camera frame.
package capture

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/swdee/go-postura/frame"
	"github.com/swdee/go-postura/pipeline"
	"gocv.io/x/gocv"
)

// Config describes the camera source
type Config struct {
	// Device is a camera index such as "0" or a video file path
	Device string `yaml:"device" validate:"required"`
	// Width and Height request a capture resolution, zero keeps the default
	Width  int `yaml:"width" validate:"min=0"`
	Height int `yaml:"height" validate:"min=0"`
	// FPS paces file sources, zero reads a file as fast as possible.  Camera
	// devices deliver frames at their native rate.
	FPS float64 `yaml:"fps" validate:"min=0"`
	// Rotation is the clockwise rotation in degrees of the camera sensor
	// relative to the display orientation
	Rotation int `yaml:"rotation" validate:"oneof=0 90 180 270"`
	// Loop restarts a video file once its last frame is read
	Loop bool `yaml:"loop"`
}

// Sink receives camera frames, it takes ownership of each frame
type Sink interface {
	Put(f *frame.Frame) bool
}

// Still is an immutable copy of a BGR image in display orientation
type Still struct {
	Data   []byte
	Width  int
	Height int
	Seq    uint64
}

// Mat returns a new Mat holding a copy of the still image which the caller
// must close
func (s Still) Mat() (gocv.Mat, error) {

	m, err := gocv.NewMatFromBytes(s.Height, s.Width, gocv.MatTypeCV8UC3, s.Data)

	if err != nil {
		return m, err
	}

	defer m.Close()

	return m.Clone(), nil
}

// maxReadFailures is the number of consecutive failed camera reads before the
// source gives up
const maxReadFailures = 100

// Source produces frames from a gocv VideoCapture
type Source struct {
	cfg    Config
	video  *gocv.VideoCapture
	isFile bool
	log    logrus.FieldLogger
	// Preview holds the latest captured image rotated for display
	Preview *pipeline.State[Still]
	seq     uint64
}

// Open opens the camera device or video file
func Open(cfg Config, log logrus.FieldLogger) (*Source, error) {

	s := &Source{
		cfg:     cfg,
		log:     log.WithField("device", cfg.Device),
		Preview: pipeline.NewState[Still](),
	}

	if err := s.open(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Source) open() error {

	var err error

	if id, convErr := strconv.Atoi(s.cfg.Device); convErr == nil {
		s.video, err = gocv.VideoCaptureDevice(id)
	} else {
		s.isFile = true
		s.video, err = gocv.VideoCaptureFile(s.cfg.Device)
	}

	if err != nil {
		return fmt.Errorf("error opening video capture %q: %w", s.cfg.Device, err)
	}

	if s.cfg.Width > 0 && s.cfg.Height > 0 && !s.isFile {
		s.video.Set(gocv.VideoCaptureFrameWidth, float64(s.cfg.Width))
		s.video.Set(gocv.VideoCaptureFrameHeight, float64(s.cfg.Height))
	}

	s.log.WithFields(logrus.Fields{
		"width":  s.video.Get(gocv.VideoCaptureFrameWidth),
		"height": s.video.Get(gocv.VideoCaptureFrameHeight),
		"fps":    s.video.Get(gocv.VideoCaptureFPS),
	}).Info("Video capture opened")

	return nil
}

// Run reads frames until the context is cancelled or a video file ends and
// hands each frame to the sink
func (s *Source) Run(ctx context.Context, sink Sink) error {

	var tick <-chan time.Time

	if s.isFile && s.cfg.FPS > 0 {
		ticker := time.NewTicker(time.Duration(float64(time.Second) / s.cfg.FPS))
		defer ticker.Stop()
		tick = ticker.C
	}

	img := gocv.NewMat()
	defer img.Close()

	failures := 0

	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return nil
		}

		if ok := s.video.Read(&img); !ok || img.Empty() {

			if s.isFile {
				if !s.cfg.Loop {
					s.log.Info("End of video file")
					return nil
				}

				s.video.Set(gocv.VideoCapturePosFrames, 0)
				continue
			}

			failures++

			if failures >= maxReadFailures {
				return fmt.Errorf("camera read failed %d times in a row", failures)
			}

			continue
		}

		failures = 0

		if err := s.deliver(img, sink); err != nil {
			s.log.WithError(err).Warn("Dropping camera frame")
		}
	}
}

// deliver publishes the preview and hands the image to the sink as an I420
// frame
func (s *Source) deliver(img gocv.Mat, sink Sink) error {

	s.publishPreview(img)

	f, err := ToFrame(img, s.cfg.Rotation)

	if err != nil {
		return err
	}

	sink.Put(f)

	return nil
}

// ToFrame converts a BGR image to an I420 frame captured with the given
// sensor rotation.  An odd width or height is cropped by one pixel.  The
// frame's release closes the I420 Mat it points into.
func ToFrame(img gocv.Mat, rotation int) (*frame.Frame, error) {

	// 4:2:0 needs even dimensions
	w, h := img.Cols()&^1, img.Rows()&^1

	src := img

	if w != img.Cols() || h != img.Rows() {
		src = img.Region(image.Rect(0, 0, w, h))
		defer src.Close()
	}

	yuv := gocv.NewMat()
	gocv.CvtColor(src, &yuv, gocv.ColorBGRToYUVI420)

	buf, err := yuv.DataPtrUint8()

	if err != nil {
		yuv.Close()
		return nil, fmt.Errorf("error reading I420 buffer: %w", err)
	}

	f, err := frame.NewI420(w, h, buf, rotation, func() { yuv.Close() })

	if err != nil {
		yuv.Close()
		return nil, err
	}

	return f, nil
}

// publishPreview stores a copy of the image in display orientation
func (s *Source) publishPreview(img gocv.Mat) {

	rotated := gocv.NewMat()
	defer rotated.Close()

	frame.Rotate(img, &rotated, s.cfg.Rotation)

	s.seq++

	s.Preview.Set(Still{
		Data:   rotated.ToBytes(),
		Width:  rotated.Cols(),
		Height: rotated.Rows(),
		Seq:    s.seq,
	})
}

// Close releases the video capture
func (s *Source) Close() error {
	return s.video.Close()
}
