package render

import (
	"github.com/swdee/go-postura/pose"
	"github.com/swdee/go-postura/posture"
	"gocv.io/x/gocv"
)

// Overlay draws the skeleton and the text panels of one frame's results
type Overlay struct {
	Style  Style
	Panels *Panels
	// Debug adds the debug panel
	Debug bool
}

// Draw renders the keypoints and, when set, the feedback onto the BGR image
func (o *Overlay) Draw(img *gocv.Mat, kps []pose.Keypoint, fb *posture.Feedback) error {

	PoseKeyPoints(img, kps, o.Style)

	if err := o.Panels.DetectionStatus(img, kps); err != nil {
		return err
	}

	if fb != nil {
		if err := o.Panels.Feedback(img, *fb); err != nil {
			return err
		}
	}

	if o.Debug {
		return o.Panels.Debug(img, kps)
	}

	return nil
}
