package pipeline

import (
	"math"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"
	"github.com/swdee/go-postura/pose"
	"github.com/swdee/go-postura/posture"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DiagnosticsConfig sets how often the diagnostics line is logged and how
// per frame detection quality is classified
type DiagnosticsConfig struct {
	// Interval is the number of processed frames between diagnostics lines
	Interval int `yaml:"interval" validate:"min=1"`
	// MinConfidence is the score a keypoint must exceed to count as confident
	MinConfidence float32 `yaml:"min_confidence" validate:"gte=0,lte=1"`
	// GoodDetection is the confident keypoint count of a good detection
	GoodDetection int `yaml:"good_detection" validate:"min=0"`
	// PartialDetection is the confident keypoint count of a partial detection
	PartialDetection int `yaml:"partial_detection" validate:"min=0,ltefield=GoodDetection"`
}

// DefaultDiagnostics logs every 30 frames, about once a second at 30fps
func DefaultDiagnostics() DiagnosticsConfig {
	return DiagnosticsConfig{
		Interval:         30,
		MinConfidence:    0.05,
		GoodDetection:    10,
		PartialDetection: 5,
	}
}

// Snapshot is the most recent diagnostics summary
type Snapshot struct {
	Frames        uint64  `json:"frames"`
	FPS           float64 `json:"fps"`
	Confident     int     `json:"confident_keypoints"`
	Total         int     `json:"total_keypoints"`
	AvgConfidence float64 `json:"avg_confidence"`
	Quality       string  `json:"quality"`
	Feedback      string  `json:"feedback"`
	ProcessingMs  int64   `json:"processing_ms"`
	InferenceMs   int64   `json:"inference_ms"`
	RSSMB         float64 `json:"rss_mb"`
	Dropped       uint64  `json:"dropped_frames"`
}

// Stats counts processed frames and periodically logs pipeline diagnostics.
// The output is for observability only.
type Stats struct {
	cfg     DiagnosticsConfig
	log     logrus.FieldLogger
	proc    *process.Process
	now     func() time.Time
	mu      sync.Mutex
	frames  uint64
	lastLog time.Time
	last    Snapshot
	dropped func() uint64
}

// NewStats creates a Stats logging to log
func NewStats(cfg DiagnosticsConfig, log logrus.FieldLogger) *Stats {

	if cfg.Interval < 1 {
		cfg.Interval = DefaultDiagnostics().Interval
	}

	s := &Stats{
		cfg: cfg,
		log: log,
		now: time.Now,
	}

	s.lastLog = s.now()

	// resident memory is optional diagnostics, omit it when unavailable
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		s.proc = p
	}

	return s
}

// Record accounts for one processed frame
func (s *Stats) Record(kps []pose.Keypoint, fb posture.Feedback, processing, inference time.Duration) {

	s.mu.Lock()
	defer s.mu.Unlock()

	s.frames++

	confident := pose.CountAbove(kps, s.cfg.MinConfidence)
	scores := pose.Scores(kps)

	s.logDetection(confident, scores)

	if s.frames%uint64(s.cfg.Interval) != 0 {
		return
	}

	now := s.now()
	elapsed := now.Sub(s.lastLog).Seconds()
	s.lastLog = now

	snap := Snapshot{
		Frames:       s.frames,
		Confident:    confident,
		Total:        len(kps),
		Quality:      fb.Quality.String(),
		Feedback:     fb.Message,
		ProcessingMs: processing.Milliseconds(),
		InferenceMs:  inference.Milliseconds(),
	}

	if elapsed > 0 {
		snap.FPS = float64(s.cfg.Interval) / elapsed
	}

	if len(scores) > 0 {
		snap.AvgConfidence = stat.Mean(scores, nil)
	}

	if s.proc != nil {
		if mem, err := s.proc.MemoryInfo(); err == nil {
			snap.RSSMB = float64(mem.RSS) / (1024 * 1024)
		}
	}

	if s.dropped != nil {
		snap.Dropped = s.dropped()
	}

	s.last = snap

	s.log.WithFields(logrus.Fields{
		"frame":          snap.Frames,
		"fps":            int(snap.FPS),
		"keypoints":      confident,
		"total":          snap.Total,
		"avg_confidence": percent(snap.AvgConfidence),
		"feedback":       snap.Feedback,
		"processing_ms":  snap.ProcessingMs,
		"inference_ms":   snap.InferenceMs,
		"rss_mb":         int(snap.RSSMB),
		"dropped":        snap.Dropped,
	}).Info("Pipeline diagnostics")
}

// logDetection logs the detection quality of a single frame at debug level
func (s *Stats) logDetection(confident int, scores []float64) {

	switch {
	case confident >= s.cfg.GoodDetection:
		s.log.WithField("confident", confident).Debug("Good detection")

	case confident >= s.cfg.PartialDetection:
		s.log.WithField("confident", confident).Debug("Partial detection")

	case len(scores) > 0:
		s.log.WithField("max_score", percent(floats.Max(scores))).Debug("Low confidence")

	default:
		s.log.Debug("No keypoints detected")
	}
}

// percent converts a [0,1] score to a whole percentage
func percent(v float64) int {
	return int(math.Round(v * 100))
}

// Frames returns the number of processed frames
func (s *Stats) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Snapshot returns the summary from the last diagnostics line
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
