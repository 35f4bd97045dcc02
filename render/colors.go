package render

import (
	"image/color"

	"github.com/swdee/go-postura/posture"
)

var (
	Black  = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Green  = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	Yellow = color.RGBA{R: 255, G: 255, B: 0, A: 255}
	Red    = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	Gray   = color.RGBA{R: 136, G: 136, B: 136, A: 255}

	// qualityColors are the feedback panel backgrounds per posture quality
	qualityColors = map[posture.Quality]color.RGBA{
		posture.Good:    Green,
		posture.Fair:    Yellow,
		posture.Poor:    Red,
		posture.Unknown: Gray,
	}
)

// QualityColor returns the panel color for the posture quality
func QualityColor(q posture.Quality) color.RGBA {
	if c, ok := qualityColors[q]; ok {
		return c
	}
	return Gray
}

// withAlpha returns the color as non premultiplied with the given opacity
func withAlpha(c color.RGBA, alpha float64) color.NRGBA {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: uint8(alpha * 255)}
}
