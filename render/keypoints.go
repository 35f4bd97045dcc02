package render

import (
	"image"
	"image/color"

	"github.com/swdee/go-postura/pose"
	"gocv.io/x/gocv"
)

// Style sets the confidence thresholds and sizes used to draw the skeleton
type Style struct {
	// MinConfidence is the score above which a joint is drawn green
	MinConfidence float32 `yaml:"min_confidence" validate:"gte=0,lte=1"`
	// LowConfidence is the score above which a joint is drawn yellow, joints
	// at or below it are drawn red
	LowConfidence float32 `yaml:"low_confidence" validate:"gte=0,lte=1"`
	// LineThreshold is the score both ends of a limb must exceed for the limb
	// line to be drawn
	LineThreshold float32 `yaml:"line_threshold" validate:"gte=0,lte=1"`
	CircleRadius  int     `yaml:"circle_radius" validate:"min=1"`
	LineThickness int     `yaml:"line_thickness" validate:"min=1"`
}

// DefaultStyle returns the default overlay style
func DefaultStyle() Style {
	return Style{
		MinConfidence: 0.05,
		LowConfidence: 0.02,
		LineThreshold: 0.3,
		CircleRadius:  8,
		LineThickness: 4,
	}
}

// KeyPointColor returns the joint color for a keypoint score
func (s Style) KeyPointColor(score float32) color.RGBA {
	switch {
	case score > s.MinConfidence:
		return Green
	case score > s.LowConfidence:
		return Yellow
	default:
		return Red
	}
}

// DrawLimb reports if the line between two keypoints is drawn
func (s Style) DrawLimb(a, b pose.Keypoint) bool {
	return a.Score > s.LineThreshold && b.Score > s.LineThreshold
}

// PoseKeyPoints renders the keypoints of a single pose onto img.  Keypoint
// coordinates are normalised to the image dimensions.
func PoseKeyPoints(img *gocv.Mat, kps []pose.Keypoint, style Style) {

	// draw skeleton lines
	for _, limb := range pose.Skeleton {
		a, aok := pose.Find(kps, limb.From)
		b, bok := pose.Find(kps, limb.To)

		if !aok || !bok || !style.DrawLimb(a, b) {
			continue
		}

		gocv.Line(img, toPixel(img, a.Coordinate), toPixel(img, b.Coordinate),
			Green, style.LineThickness)
	}

	// draw circles at skeleton joints
	for _, kp := range kps {
		gocv.Circle(img, toPixel(img, kp.Coordinate), style.CircleRadius,
			style.KeyPointColor(kp.Score), -1)
	}
}

// toPixel scales a normalised coordinate to a pixel position in img
func toPixel(img *gocv.Mat, c pose.Coordinate) image.Point {
	return image.Pt(int(c.X*float32(img.Cols())), int(c.Y*float32(img.Rows())))
}
