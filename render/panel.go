package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/swdee/go-postura/pose"
	"github.com/swdee/go-postura/posture"
	"gocv.io/x/gocv"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// Corner is the image corner a panel is anchored to
type Corner int

const (
	TopLeft Corner = iota
	BottomLeft
	BottomRight
)

// PanelConfig sets the thresholds of the detection status and debug panels
type PanelConfig struct {
	// StatusConfidence is the score a keypoint must exceed to count as
	// confident on the detection status panel
	StatusConfidence float32 `yaml:"status_confidence" validate:"gte=0,lte=1"`
	GoodDetection    int     `yaml:"good_detection" validate:"min=0"`
	PartialDetection int     `yaml:"partial_detection" validate:"min=0,ltefield=GoodDetection"`
	// DebugConfident and DebugHigh are the scores counted on the debug panel
	DebugConfident float32 `yaml:"debug_confident" validate:"gte=0,lte=1"`
	DebugHigh      float32 `yaml:"debug_high" validate:"gte=0,lte=1"`
}

// DefaultPanelConfig returns the default panel thresholds
func DefaultPanelConfig() PanelConfig {
	return PanelConfig{
		StatusConfidence: 0.05,
		GoodDetection:    10,
		PartialDetection: 5,
		DebugConfident:   0.5,
		DebugHigh:        0.7,
	}
}

// Panels draws text panels over a BGR image
type Panels struct {
	face font.Face
	cfg  PanelConfig
	// pad is the space in pixels between the panel border and text
	pad int
	// margin is the space in pixels between the panel and image edge
	margin int
}

// NewPanels creates a panel renderer writing with the given font face
func NewPanels(face font.Face, cfg PanelConfig) *Panels {
	return &Panels{
		face:   face,
		cfg:    cfg,
		pad:    8,
		margin: 16,
	}
}

// StatusLines returns the detection status text and its color
func StatusLines(kps []pose.Keypoint, cfg PanelConfig) ([]string, color.RGBA) {

	confident := pose.CountAbove(kps, cfg.StatusConfidence)

	var status string
	col := Red

	switch {
	case confident >= cfg.GoodDetection:
		status, col = "Good Detection", Green
	case confident >= cfg.PartialDetection:
		status, col = "Partial Detection", Yellow
	case confident > 0:
		status = "Poor Detection"
	default:
		status = "No Detection"
	}

	lines := []string{
		status,
		fmt.Sprintf("Keypoints: %d/%d", confident, len(kps)),
	}

	if avg, peak, ok := scoreSummary(kps); ok {
		lines = append(lines, fmt.Sprintf("Avg: %d%% | Max: %d%%", avg, peak))
	}

	return lines, col
}

// FeedbackLines returns the posture feedback panel text
func FeedbackLines(fb posture.Feedback) []string {

	lines := []string{"Posture Analysis", fb.Message, "Suggestions:"}

	for _, c := range fb.Corrections {
		lines = append(lines, "- "+c)
	}

	return lines
}

// DebugLines returns the debug panel text
func DebugLines(kps []pose.Keypoint, cfg PanelConfig) []string {

	lines := []string{
		"Debug Mode",
		fmt.Sprintf("Total Keypoints: %d", len(kps)),
		fmt.Sprintf("Confident (>%g): %d", cfg.DebugConfident, pose.CountAbove(kps, cfg.DebugConfident)),
		fmt.Sprintf("High (>%g): %d", cfg.DebugHigh, pose.CountAbove(kps, cfg.DebugHigh)),
	}

	if avg, _, ok := scoreSummary(kps); ok {
		lines = append(lines, fmt.Sprintf("Avg: %d%%", avg))
	}

	return lines
}

// scoreSummary returns the average and maximum score as percentages
func scoreSummary(kps []pose.Keypoint) (avg, peak int, ok bool) {

	if len(kps) == 0 {
		return 0, 0, false
	}

	var sum, top float32

	for _, kp := range kps {
		sum += kp.Score
		top = float32(math.Max(float64(top), float64(kp.Score)))
	}

	return percent(sum / float32(len(kps))), percent(top), true
}

func percent(v float32) int {
	return int(math.Round(float64(v) * 100))
}

// DetectionStatus draws the detection status panel in the top left corner
func (p *Panels) DetectionStatus(img *gocv.Mat, kps []pose.Keypoint) error {
	lines, col := StatusLines(kps, p.cfg)
	return p.draw(img, lines, TopLeft, withAlpha(Black, 0.7), col)
}

// Feedback draws the posture feedback panel in the bottom left corner on a
// background colored by the posture quality
func (p *Panels) Feedback(img *gocv.Mat, fb posture.Feedback) error {
	return p.draw(img, FeedbackLines(fb), BottomLeft,
		withAlpha(QualityColor(fb.Quality), 0.8), White)
}

// Debug draws the debug panel in the bottom right corner
func (p *Panels) Debug(img *gocv.Mat, kps []pose.Keypoint) error {
	return p.draw(img, DebugLines(kps, p.cfg), BottomRight, withAlpha(Black, 0.8), White)
}

// draw renders the text lines on a translucent background blended over the
// image at the given corner.  The panel is clipped to the image.
func (p *Panels) draw(img *gocv.Mat, lines []string, corner Corner,
	bg color.NRGBA, fg color.Color) error {

	if img.Empty() || img.Type() != gocv.MatTypeCV8UC3 {
		return fmt.Errorf("panel target must be a 3 channel 8 bit image")
	}

	rect := p.bounds(lines, corner, img.Cols(), img.Rows())

	if rect.Empty() {
		return nil
	}

	region := img.Region(rect)
	defer region.Close()

	// clone the region so its pixels are continuous for conversion
	under := region.Clone()
	defer under.Close()

	src, err := under.ToImage()

	if err != nil {
		return fmt.Errorf("error converting panel region: %w", err)
	}

	panel := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(panel, panel.Bounds(), src, src.Bounds().Min, draw.Src)
	draw.Draw(panel, panel.Bounds(), image.NewUniform(bg), image.Point{}, draw.Over)

	lineHeight := p.face.Metrics().Height.Ceil()
	ascent := p.face.Metrics().Ascent.Ceil()

	dr := &font.Drawer{
		Dst:  panel,
		Src:  image.NewUniform(fg),
		Face: p.face,
	}

	for i, line := range lines {
		dr.Dot = fixed.P(p.pad, p.pad+ascent+i*lineHeight)
		dr.DrawString(line)
	}

	out, err := gocv.ImageToMatRGB(panel)

	if err != nil {
		return fmt.Errorf("error converting panel to Mat: %w", err)
	}

	defer out.Close()

	out.CopyTo(&region)

	return nil
}

// bounds returns the panel rectangle for the text anchored at the corner of
// an image of the given size
func (p *Panels) bounds(lines []string, corner Corner, cols, rows int) image.Rectangle {

	width := 0

	for _, line := range lines {
		if w := font.MeasureString(p.face, line).Ceil(); w > width {
			width = w
		}
	}

	width += 2 * p.pad
	height := len(lines)*p.face.Metrics().Height.Ceil() + 2*p.pad

	var r image.Rectangle

	switch corner {
	case TopLeft:
		r = image.Rect(p.margin, p.margin, p.margin+width, p.margin+height)
	case BottomLeft:
		r = image.Rect(p.margin, rows-p.margin-height, p.margin+width, rows-p.margin)
	case BottomRight:
		r = image.Rect(cols-p.margin-width, rows-p.margin-height, cols-p.margin, rows-p.margin)
	}

	return r.Intersect(image.Rect(0, 0, cols, rows))
}
