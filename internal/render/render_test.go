package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/pkg/types"
)

type drawOp struct {
	kind       string
	x, y, w, h float64
	text       string
	color      color.Color
}

// recordingSurface logs every draw call in order.
type recordingSurface struct {
	ops []drawOp
}

func (s *recordingSurface) Clear() { s.ops = append(s.ops, drawOp{kind: "clear"}) }

func (s *recordingSurface) StrokeRect(x, y, w, h float64, c color.Color, _ float64) {
	s.ops = append(s.ops, drawOp{kind: "stroke", x: x, y: y, w: w, h: h, color: c})
}

func (s *recordingSurface) FillRect(x, y, w, h float64, c color.Color) {
	s.ops = append(s.ops, drawOp{kind: "fill", x: x, y: y, w: w, h: h, color: c})
}

func (s *recordingSurface) MeasureText(text string) float64 { return float64(len(text)) * 10 }

func (s *recordingSurface) FillText(text string, x, y float64, c color.Color) {
	s.ops = append(s.ops, drawOp{kind: "text", x: x, y: y, text: text, color: c})
}

func (s *recordingSurface) count(kind string) int {
	n := 0
	for _, op := range s.ops {
		if op.kind == kind {
			n++
		}
	}
	return n
}

func sampleDetections() []types.Detection {
	return []types.Detection{
		{Class: "label", BBox: types.BBox{X: 100, Y: 100, Width: 80, Height: 60}, Color: "#ff0000"},
		{Class: "barcode", BBox: types.BBox{X: 120, Y: 110, Width: 40, Height: 40}, Color: "#00ff00"},
		{Class: "address", BBox: types.BBox{X: 300, Y: 200, Width: 100, Height: 50}, Color: "bogus"},
	}
}

func TestRenderDrawsOneBoxAndBackgroundPerDetection(t *testing.T) {
	s := &recordingSurface{}
	NewRenderer().Render(s, sampleDetections())

	assert.Equal(t, "clear", s.ops[0].kind)
	assert.Equal(t, 3, s.count("stroke"))
	assert.Equal(t, 3, s.count("fill"))
	assert.Equal(t, 3, s.count("text"))
}

func TestRenderDrawsAllLabelsLast(t *testing.T) {
	s := &recordingSurface{}
	NewRenderer().Render(s, sampleDetections())

	firstText := -1
	for i, op := range s.ops {
		if op.kind == "text" && firstText < 0 {
			firstText = i
		}
		if firstText >= 0 {
			assert.Equal(t, "text", op.kind, "op %d drawn after a label", i)
		}
	}
	require.Equal(t, 7, firstText)
}

func TestRenderConvertsCenterToTopLeft(t *testing.T) {
	s := &recordingSurface{}
	NewRenderer().Render(s, sampleDetections()[:1])

	box := s.ops[1]
	assert.Equal(t, drawOp{kind: "stroke", x: 60, y: 70, w: 80, h: 60, color: color.RGBA{R: 255, A: 255}}, box)

	bg := s.ops[2]
	assert.Equal(t, 60.0, bg.x)
	assert.Equal(t, 70.0, bg.y)
	assert.Equal(t, 50.0+8, bg.w)
	assert.Equal(t, 16.0+4, bg.h)

	label := s.ops[3]
	assert.Equal(t, "label", label.text)
	assert.Equal(t, 64.0, label.x)
	assert.Equal(t, 71.0, label.y)
	assert.Equal(t, color.Black, label.color)
}

func TestRenderEmptyListOnlyClears(t *testing.T) {
	s := &recordingSurface{}
	NewRenderer().Render(s, nil)
	require.Len(t, s.ops, 1)
	assert.Equal(t, "clear", s.ops[0].kind)
}

func TestParseColor(t *testing.T) {
	assert.Equal(t, color.RGBA{R: 0x12, G: 0x34, B: 0x56, A: 255}, ParseColor("#123456"))
	assert.Equal(t, DefaultColor, ParseColor("not-a-color"))
}

func TestGGSurfaceDrawsOnTransparentCanvas(t *testing.T) {
	s := NewGGSurface(200, 100, 16)
	NewRenderer().Render(s, []types.Detection{
		{Class: "label", BBox: types.BBox{X: 100, Y: 50, Width: 80, Height: 40}, Color: "#ff0000"},
	})

	w, h := s.Size()
	assert.Equal(t, 200, w)
	assert.Equal(t, 100, h)

	img := s.Image()
	_, _, _, a := img.At(5, 5).RGBA()
	assert.Zero(t, a, "untouched pixels stay transparent")

	r, _, _, a := img.At(60, 50).RGBA()
	assert.NotZero(t, a, "left box edge is stroked")
	assert.NotZero(t, r)
}

func TestComposeAndEncode(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 64, 48))
	overlay := NewGGSurface(64, 48, 16)
	overlay.Clear()
	overlay.FillRect(0, 0, 10, 10, color.RGBA{R: 255, A: 255})

	out := Compose(frame, overlay.Image())
	assert.Equal(t, frame.Bounds(), out.Bounds())
	r, _, _, _ := out.At(2, 2).RGBA()
	assert.Equal(t, uint32(0xffff), r)

	var jpg bytes.Buffer
	require.NoError(t, EncodeJPEG(&jpg, out, 75))
	assert.Equal(t, []byte{0xff, 0xd8}, jpg.Bytes()[:2])

	var pngBuf bytes.Buffer
	require.NoError(t, EncodePNG(&pngBuf, overlay.Image()))
	decoded, err := png.Decode(&pngBuf)
	require.NoError(t, err)
	assert.Equal(t, overlay.Image().Bounds(), decoded.Bounds())
}

func TestClassColorIsStable(t *testing.T) {
	a := ClassColor("parcel_label")
	assert.Equal(t, a, ClassColor("parcel_label"))
	assert.Regexp(t, `^#[0-9a-f]{6}$`, a)
	assert.NotEqual(t, DefaultColor, ParseColor(a))
}
