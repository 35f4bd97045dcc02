// Package pipeline runs camera frames through decode, pose detection and
// posture evaluation on a single worker and publishes the results as
// observable state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/swdee/go-postura/frame"
	"github.com/swdee/go-postura/pose"
	"github.com/swdee/go-postura/posture"
	"github.com/swdee/go-postura/preprocess"
	"gocv.io/x/gocv"
)

// KeypointDetector returns the 17 keypoints found in a model input tensor, or
// an empty slice when detection fails
type KeypointDetector interface {
	Detect(tensor gocv.Mat) []pose.Keypoint
}

// Analyzer is the per frame worker.  It owns the decode and tensor buffers
// which are reused across frames, so a single Analyzer must only process one
// frame at a time.
type Analyzer struct {
	// Keypoints holds the keypoints of the last processed frame
	Keypoints *State[[]pose.Keypoint]
	// Feedback holds the posture feedback of the last processed frame
	Feedback *State[posture.Feedback]
	// Stats accounts processed frames for diagnostics
	Stats *Stats

	decoder    *frame.Decoder
	resizer    *preprocess.Resizer
	detector   KeypointDetector
	thresholds posture.Thresholds
	log        logrus.FieldLogger
	session    string
	rgb        gocv.Mat
	tensor     gocv.Mat
}

// NewAnalyzer creates an Analyzer running the given detector.  Each Analyzer
// tags its log entries with a unique session id.
func NewAnalyzer(det KeypointDetector, th posture.Thresholds,
	diag DiagnosticsConfig, log logrus.FieldLogger) *Analyzer {

	session := uuid.NewString()
	log = log.WithField("session", session)

	return &Analyzer{
		Keypoints:  NewState[[]pose.Keypoint](),
		Feedback:   NewState[posture.Feedback](),
		Stats:      NewStats(diag, log),
		decoder:    frame.NewDecoder(),
		resizer:    preprocess.NewResizer(preprocess.MoveNetSize, preprocess.MoveNetSize),
		detector:   det,
		thresholds: th,
		log:        log,
		session:    session,
		rgb:        gocv.NewMat(),
		tensor:     gocv.NewMat(),
	}
}

// Session returns the id tagging this Analyzer's log entries
func (a *Analyzer) Session() string {
	return a.session
}

// Run takes frames from the mailbox and processes them one at a time until
// the context is cancelled or the mailbox is closed.  Per frame failures are
// logged and the frame dropped.
func (a *Analyzer) Run(ctx context.Context, mb *Mailbox) error {

	a.Stats.mu.Lock()
	a.Stats.dropped = mb.Dropped
	a.Stats.mu.Unlock()

	a.log.Info("Analyzer started")
	defer a.log.Info("Analyzer stopped")

	for {
		f, err := mb.Take(ctx)

		if err != nil {
			if errors.Is(err, ErrMailboxClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		if err := a.Process(f); err != nil {
			a.log.WithError(err).Error("Frame dropped")
		}
	}
}

// Process decodes, detects and evaluates a single frame and publishes the
// keypoints and feedback.  The frame is always released.  When the frame
// cannot be decoded nothing is published and the previous outputs remain.
func (a *Analyzer) Process(f *frame.Frame) (err error) {

	defer f.Release()

	// a fault inside the native image or inference libraries drops the
	// frame rather than stopping the worker
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing frame: %v", r)
		}
	}()

	start := time.Now()

	if err := a.decoder.Decode(f, &a.rgb); err != nil {
		return fmt.Errorf("error decoding frame: %w", err)
	}

	if err := a.resizer.Tensor(a.rgb, &a.tensor); err != nil {
		return fmt.Errorf("error preparing tensor: %w", err)
	}

	kps, inference := a.detect()
	fb := a.thresholds.Evaluate(kps)

	a.Keypoints.Set(kps)
	a.Feedback.Set(fb)

	a.Stats.Record(kps, fb, time.Since(start), inference)

	return nil
}

// detect runs the detector timing the inference
func (a *Analyzer) detect() ([]pose.Keypoint, time.Duration) {
	start := time.Now()
	kps := a.detector.Detect(a.tensor)
	return kps, time.Since(start)
}

// Close frees the reusable buffers
func (a *Analyzer) Close() error {
	a.rgb.Close()
	a.tensor.Close()
	return a.resizer.Close()
}
