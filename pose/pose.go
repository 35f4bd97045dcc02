package pose

import (
	"fmt"
	"strings"
)

// BodyPart identifies one of the 17 COCO body landmarks.  The numeric value
// of each BodyPart is the row index of that landmark in the pose model output.
type BodyPart int

const (
	Nose BodyPart = iota
	LeftEye
	RightEye
	LeftEar
	RightEar
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
)

// NumBodyParts is the number of keypoints a single pose consists of
const NumBodyParts = 17

var bodyPartNames = [NumBodyParts]string{
	"NOSE",
	"LEFT_EYE",
	"RIGHT_EYE",
	"LEFT_EAR",
	"RIGHT_EAR",
	"LEFT_SHOULDER",
	"RIGHT_SHOULDER",
	"LEFT_ELBOW",
	"RIGHT_ELBOW",
	"LEFT_WRIST",
	"RIGHT_WRIST",
	"LEFT_HIP",
	"RIGHT_HIP",
	"LEFT_KNEE",
	"RIGHT_KNEE",
	"LEFT_ANKLE",
	"RIGHT_ANKLE",
}

// BodyPartFromIndex returns the BodyPart for the given model output row
func BodyPartFromIndex(idx int) (BodyPart, error) {
	if idx < 0 || idx >= NumBodyParts {
		return 0, fmt.Errorf("body part index %d out of range [0-%d)", idx, NumBodyParts)
	}

	return BodyPart(idx), nil
}

// Valid reports if b is one of the 17 known body parts
func (b BodyPart) Valid() bool {
	return b >= 0 && b < NumBodyParts
}

// String returns the canonical upper case name of the body part
func (b BodyPart) String() string {
	if !b.Valid() {
		return fmt.Sprintf("BODY_PART(%d)", int(b))
	}

	return bodyPartNames[b]
}

// MarshalText encodes the body part by name
func (b BodyPart) MarshalText() ([]byte, error) {
	if !b.Valid() {
		return nil, fmt.Errorf("invalid body part %d", int(b))
	}

	return []byte(b.String()), nil
}

// UnmarshalText decodes a body part name, case insensitive
func (b *BodyPart) UnmarshalText(text []byte) error {
	name := strings.ToUpper(strings.TrimSpace(string(text)))

	for i, n := range bodyPartNames {
		if n == name {
			*b = BodyPart(i)
			return nil
		}
	}

	return fmt.Errorf("unknown body part %q", string(text))
}

// Coordinate is a point normalised to the [0,1] x [0,1] image space
type Coordinate struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Keypoint is a single detected body landmark
type Keypoint struct {
	BodyPart   BodyPart   `json:"body_part"`
	Coordinate Coordinate `json:"coordinate"`
	// Score is the model confidence in the range [0,1]
	Score float32 `json:"score"`
}

// Find returns the first keypoint in kps for the given body part
func Find(kps []Keypoint, part BodyPart) (Keypoint, bool) {
	for _, kp := range kps {
		if kp.BodyPart == part {
			return kp, true
		}
	}

	return Keypoint{}, false
}

// CountAbove returns the number of keypoints with a score strictly greater
// than the threshold
func CountAbove(kps []Keypoint, threshold float32) int {
	cnt := 0

	for _, kp := range kps {
		if kp.Score > threshold {
			cnt++
		}
	}

	return cnt
}

// Scores returns the keypoint confidence scores as float64 values
func Scores(kps []Keypoint) []float64 {
	scores := make([]float64, len(kps))

	for i, kp := range kps {
		scores[i] = float64(kp.Score)
	}

	return scores
}
