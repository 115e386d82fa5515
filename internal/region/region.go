// Package region crops a detection's pixels out of a frame and prepares them
// for text recognition.
package region

import (
	"bytes"
	"errors"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/pkg/types"
)

// ErrEmptyRegion is returned when a box lies entirely outside the frame.
var ErrEmptyRegion = errors.New("region: crop is empty")

// CropRect converts a center-based box into a pixel rectangle clamped to
// [0,frameW)×[0,frameH). The rectangle is relative to the frame origin.
func CropRect(box types.BBox, frameW, frameH int) image.Rectangle {
	x := math.Max(0, box.Left())
	y := math.Max(0, box.Top())
	w := math.Min(box.Width, float64(frameW)-x)
	h := math.Min(box.Height, float64(frameH)-y)

	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	dx, dy := floorNonNegative(w), floorNonNegative(h)
	if x0 >= frameW || y0 >= frameH || dx == 0 || dy == 0 {
		return image.Rectangle{}
	}
	// Flooring both origin and extent can't push past the frame edge, but the
	// clamp keeps that explicit.
	dx = min(dx, frameW-x0)
	dy = min(dy, frameH-y0)
	return image.Rect(x0, y0, x0+dx, y0+dy)
}

func floorNonNegative(v float64) int {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	return int(math.Floor(v))
}

// Extract copies the detection's region from frame into a new image of
// exactly the clamped size and applies Enhance to it.
func Extract(frame image.Image, det types.Detection) (*image.NRGBA, error) {
	b := frame.Bounds()
	rect := CropRect(det.BBox, b.Dx(), b.Dy())
	if rect.Empty() {
		return nil, ErrEmptyRegion
	}

	crop := imaging.Crop(frame, rect.Add(b.Min))
	Enhance(crop)
	return crop, nil
}

// Enhance converts img to luminance and stretches contrast in place: values
// below 128 are halved, the rest scaled by 1.5 and clamped to 255. All three
// color channels receive the result; alpha is left as is.
func Enhance(img *image.NRGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for i := 0; i < len(row); i += 4 {
			v := stretch(luminance(row[i], row[i+1], row[i+2]))
			row[i], row[i+1], row[i+2] = v, v, v
		}
	}
}

func luminance(r, g, b uint8) float64 {
	return float64(r)*0.299 + float64(g)*0.587 + float64(b)*0.114
}

func stretch(gray float64) uint8 {
	var v float64
	if gray < 128 {
		v = gray * 0.5
	} else {
		v = math.Min(255, gray*1.5)
	}
	return uint8(math.RoundToEven(v))
}

// EncodePNG serializes a region for backends that take encoded bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
