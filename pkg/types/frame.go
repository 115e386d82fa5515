package types

import (
	"image"
	"time"
)

// Frame is one decoded video image, valid for a single detection cycle.
type Frame struct {
	Image      image.Image // Decoded pixels at the camera's native resolution
	Seq        uint64      // Sequential capture number assigned by the source
	CapturedAt time.Time   // Capture timestamp
}

// Width returns the intrinsic frame width in pixels.
func (f *Frame) Width() int {
	if f == nil || f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// Height returns the intrinsic frame height in pixels.
func (f *Frame) Height() int {
	if f == nil || f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}

// BBox is a bounding box in video pixel space. X and Y are the box center.
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Left returns the x coordinate of the box's left edge.
func (b BBox) Left() float64 { return b.X - b.Width/2 }

// Top returns the y coordinate of the box's top edge.
func (b BBox) Top() float64 { return b.Y - b.Height/2 }

// Detection is a single object found in a frame.
type Detection struct {
	Class      string  `json:"class"`
	BBox       BBox    `json:"bbox"`
	Color      string  `json:"color"`                // Display color as "#rrggbb"
	Confidence float64 `json:"confidence,omitempty"` // 0 when the backend reports none
}

// RecognitionStatus is the lifecycle state of a recognition entry.
type RecognitionStatus string

const (
	RecognitionPending RecognitionStatus = "pending"
	RecognitionDone    RecognitionStatus = "done"
	RecognitionEmpty   RecognitionStatus = "empty"
	RecognitionError   RecognitionStatus = "error"
)

// RecognitionResult is the text recognized for one detection in one throttle window.
type RecognitionResult struct {
	Window     uint64            `json:"window"`
	Index      int               `json:"index"` // Position of the detection in its cycle
	Detection  Detection         `json:"detection"`
	Status     RecognitionStatus `json:"status"`
	Text       string            `json:"text,omitempty"`
	Confidence float64           `json:"confidence,omitempty"` // Percent, 0 when unknown
	Error      string            `json:"error,omitempty"`
}

// Message returns the text shown for the entry in the monitor panel.
func (r RecognitionResult) Message() string {
	switch r.Status {
	case RecognitionPending:
		return "Processing..."
	case RecognitionEmpty:
		return "No text detected"
	case RecognitionError:
		return "Recognition error: " + r.Error
	default:
		return r.Text
	}
}

// Final reports whether the entry will not change again within its window.
func (r RecognitionResult) Final() bool {
	return r.Status != RecognitionPending
}
