package render

import (
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

var labelFont *truetype.Font

func init() {
	var err error
	labelFont, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// GGSurface is a transparent canvas backed by fogleman/gg.
type GGSurface struct {
	dc *gg.Context
}

// NewGGSurface allocates a canvas of the frame's native size.
func NewGGSurface(width, height int, fontSize float64) *GGSurface {
	dc := gg.NewContext(width, height)
	dc.SetFontFace(truetype.NewFace(labelFont, &truetype.Options{Size: fontSize}))
	return &GGSurface{dc: dc}
}

// Clear resets every pixel to transparent.
func (s *GGSurface) Clear() {
	s.dc.SetRGBA(0, 0, 0, 0)
	s.dc.Clear()
}

func (s *GGSurface) StrokeRect(x, y, w, h float64, c color.Color, lineWidth float64) {
	s.dc.SetColor(c)
	s.dc.SetLineWidth(lineWidth)
	s.dc.DrawRectangle(x, y, w, h)
	s.dc.Stroke()
}

func (s *GGSurface) FillRect(x, y, w, h float64, c color.Color) {
	s.dc.SetColor(c)
	s.dc.DrawRectangle(x, y, w, h)
	s.dc.Fill()
}

func (s *GGSurface) MeasureText(text string) float64 {
	w, _ := s.dc.MeasureString(text)
	return w
}

// FillText draws text with (x, y) as its top-left corner.
func (s *GGSurface) FillText(text string, x, y float64, c color.Color) {
	s.dc.SetColor(c)
	s.dc.DrawStringAnchored(text, x, y, 0, 1)
}

// Image returns the canvas pixels. The image is reused by later draws.
func (s *GGSurface) Image() image.Image {
	return s.dc.Image()
}

// Size returns the canvas resolution.
func (s *GGSurface) Size() (int, int) {
	return s.dc.Width(), s.dc.Height()
}

// Compose draws overlay on top of frame and returns a new image.
func Compose(frame, overlay image.Image) *image.NRGBA {
	return imaging.Overlay(frame, overlay, image.Pt(0, 0), 1.0)
}

// EncodeJPEG writes img as a JPEG for the MJPEG stream.
func EncodeJPEG(w io.Writer, img image.Image, quality int) error {
	return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
}

// EncodePNG writes img as a PNG, keeping transparency.
func EncodePNG(w io.Writer, img image.Image) error {
	return imaging.Encode(w, img, imaging.PNG)
}
