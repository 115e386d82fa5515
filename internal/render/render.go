// Package render draws detection boxes and labels onto a 2D surface aligned
// with the video's native resolution.
package render

import (
	"image/color"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/pkg/types"
)

// Surface is the subset of a 2D canvas the renderer needs.
type Surface interface {
	Clear()
	StrokeRect(x, y, w, h float64, c color.Color, lineWidth float64)
	FillRect(x, y, w, h float64, c color.Color)
	MeasureText(text string) float64
	FillText(text string, x, y float64, c color.Color)
}

// Renderer draws detections. The zero value is not usable; use NewRenderer.
type Renderer struct {
	FontSize  float64 // Label font size in px; also the label box text height
	LineWidth float64
	LabelPadX float64 // Added to the measured text width
	LabelPadY float64 // Added to the font size
	TextColor color.Color
	// Scale divides every coordinate. Reserved for coordinate-space
	// adjustment and fixed at 1.
	Scale float64
}

// NewRenderer returns a renderer with the monitor's default label style.
func NewRenderer() *Renderer {
	return &Renderer{
		FontSize:  16,
		LineWidth: 4,
		LabelPadX: 8,
		LabelPadY: 4,
		TextColor: color.Black,
		Scale:     1,
	}
}

// Render clears s and draws every detection. Label texts are drawn in a second
// pass so no box or label background can cover them.
func (r *Renderer) Render(s Surface, detections []types.Detection) {
	s.Clear()

	for _, det := range detections {
		left, top := r.origin(det)
		c := ParseColor(det.Color)

		s.StrokeRect(left, top, det.BBox.Width/r.Scale, det.BBox.Height/r.Scale, c, r.LineWidth)

		textWidth := s.MeasureText(det.Class)
		s.FillRect(left, top, textWidth+r.LabelPadX, r.FontSize+r.LabelPadY, c)
	}

	for _, det := range detections {
		left, top := r.origin(det)
		s.FillText(det.Class, left+r.LabelPadX/2, top+1, r.TextColor)
	}
}

func (r *Renderer) origin(det types.Detection) (float64, float64) {
	return det.BBox.Left() / r.Scale, det.BBox.Top() / r.Scale
}

// DefaultColor is used when a detection carries no parseable color.
var DefaultColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

// ParseColor converts "#rrggbb" (or "#rgb") to a color.
func ParseColor(hex string) color.Color {
	c, err := colorful.Hex(hex)
	if err != nil {
		return DefaultColor
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}
