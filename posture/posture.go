// Package posture derives a qualitative posture judgement from the keypoints
// of a single frame.  Evaluation is a pure function of its input, no state
// is carried between frames.
package posture

import (
	"fmt"
	"strings"

	"github.com/swdee/go-postura/pose"
)

// Quality is the coarse posture judgement
type Quality int

const (
	Unknown Quality = iota
	Good
	Fair
	Poor
)

// String returns the upper case name of the quality
func (q Quality) String() string {
	switch q {
	case Good:
		return "GOOD"
	case Fair:
		return "FAIR"
	case Poor:
		return "POOR"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the quality by name
func (q Quality) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalText decodes a quality name
func (q *Quality) UnmarshalText(text []byte) error {
	switch strings.ToUpper(string(text)) {
	case "GOOD":
		*q = Good
	case "FAIR":
		*q = Fair
	case "POOR":
		*q = Poor
	case "UNKNOWN":
		*q = Unknown
	default:
		return fmt.Errorf("unknown posture quality %q", string(text))
	}

	return nil
}

// Message returns the summary shown to the user for the quality
func (q Quality) Message() string {
	switch q {
	case Good:
		return MsgExcellent
	case Fair:
		return MsgRoomForImprovement
	case Poor:
		return MsgNeedsAttention
	default:
		return MsgUnableToAnalyze
	}
}

// user facing feedback text
const (
	MsgNotEnoughKeypoints = "Not enough keypoints detected"
	MsgPoorDetection      = "Poor detection quality"
	MsgExcellent          = "Excellent posture!"
	MsgRoomForImprovement = "Good posture with room for improvement"
	MsgNeedsAttention     = "Posture needs attention"
	MsgUnableToAnalyze    = "Unable to analyze posture"
	FixMoveCloser         = "Move closer to camera"
	FixStandCloser        = "Stand closer to camera"
	FixFaceCamera         = "Face camera directly"
	FixImproveLighting    = "Improve lighting"
	FixLevelShoulders     = "Level your shoulders"
	FixHeadStraight       = "Keep your head straight"
	FixNoneKeepItUp       = "Great posture! Keep it up!"
)

// Feedback is the result of evaluating a frame's keypoints
type Feedback struct {
	Quality     Quality  `json:"quality"`
	Message     string   `json:"message"`
	Corrections []string `json:"corrections"`
}

// Thresholds are the tunable values used by the heuristics
type Thresholds struct {
	// MinConfidence is the score a keypoint must exceed to be counted as
	// confidently detected.  Shoulder and nose keypoints scoring below it
	// make the sub-judgement UNKNOWN
	MinConfidence float32 `yaml:"min_confidence" validate:"gte=0,lte=1"`
	// MinConfidentKeypoints is the number of confident keypoints required
	// before any geometry is judged
	MinConfidentKeypoints int `yaml:"min_confident_keypoints" validate:"gte=0,lte=17"`
	// GoodOffset is the exclusive upper bound of a GOOD vertical shoulder
	// difference or horizontal head offset
	GoodOffset float32 `yaml:"good_offset" validate:"gt=0"`
	// FairOffset is the exclusive upper bound of a FAIR difference/offset
	FairOffset float32 `yaml:"fair_offset" validate:"gtfield=GoodOffset"`
}

// DefaultThresholds returns the thresholds the heuristics were tuned with
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinConfidence:         0.05,
		MinConfidentKeypoints: 5,
		GoodOffset:            0.05,
		FairOffset:            0.10,
	}
}

// Evaluate judges the keypoints using the default thresholds
func Evaluate(kps []pose.Keypoint) Feedback {
	return DefaultThresholds().Evaluate(kps)
}

// Evaluate judges the posture from the keypoints of one frame
func (t Thresholds) Evaluate(kps []pose.Keypoint) Feedback {

	if len(kps) < pose.NumBodyParts {
		return Feedback{
			Quality:     Unknown,
			Message:     MsgNotEnoughKeypoints,
			Corrections: []string{FixMoveCloser, FixImproveLighting},
		}
	}

	if pose.CountAbove(kps, t.MinConfidence) < t.MinConfidentKeypoints {
		return Feedback{
			Quality:     Poor,
			Message:     MsgPoorDetection,
			Corrections: []string{FixStandCloser, FixFaceCamera, FixImproveLighting},
		}
	}

	leftShoulder, lok := pose.Find(kps, pose.LeftShoulder)
	rightShoulder, rok := pose.Find(kps, pose.RightShoulder)
	nose, nok := pose.Find(kps, pose.Nose)

	shoulders := Unknown

	if lok && rok && t.usable(leftShoulder, rightShoulder) {
		shoulders = t.grade(abs(leftShoulder.Coordinate.Y - rightShoulder.Coordinate.Y))
	}

	head := Unknown

	if nok && lok && rok && t.usable(nose, leftShoulder, rightShoulder) {
		centerX := (leftShoulder.Coordinate.X + rightShoulder.Coordinate.X) / 2
		head = t.grade(abs(nose.Coordinate.X - centerX))
	}

	overall := Fair

	switch {
	case shoulders == Good && head == Good:
		overall = Good
	case shoulders == Poor || head == Poor:
		overall = Poor
	}

	corrections := make([]string, 0, 2)

	if shoulders == Poor {
		corrections = append(corrections, FixLevelShoulders)
	}

	if head == Poor {
		corrections = append(corrections, FixHeadStraight)
	}

	if len(corrections) == 0 {
		corrections = append(corrections, FixNoneKeepItUp)
	}

	return Feedback{
		Quality:     overall,
		Message:     overall.Message(),
		Corrections: corrections,
	}
}

// usable reports if none of the keypoints score below the minimum confidence
func (t Thresholds) usable(kps ...pose.Keypoint) bool {
	for _, kp := range kps {
		if kp.Score < t.MinConfidence {
			return false
		}
	}

	return true
}

// grade maps a normalised distance onto a quality
func (t Thresholds) grade(diff float32) Quality {
	switch {
	case diff < t.GoodOffset:
		return Good
	case diff < t.FairOffset:
		return Fair
	default:
		return Poor
	}
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
