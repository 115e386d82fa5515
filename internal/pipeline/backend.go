// Package pipeline runs the detection loop: it pulls frames, asks the
// detection backend for boxes, presents the overlay, and feeds large enough
// boxes to a throttled text-recognition pass.
package pipeline

import (
	"context"
	"image"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/pkg/types"
)

// FrameSource provides the current video frame.
type FrameSource interface {
	// WaitReady blocks until the first frame can be decoded.
	WaitReady(ctx context.Context) error
	// Frame returns the most recent frame.
	Frame() (*types.Frame, error)
}

// ModelRef identifies the detection model to load.
type ModelRef struct {
	ID          string
	Version     string
	AccessToken string
}

// DetectionBackend starts detection sessions.
type DetectionBackend interface {
	Initialize(ctx context.Context, model ModelRef) (DetectionSession, error)
}

// DetectionSession runs inference for one loaded model.
type DetectionSession interface {
	Infer(ctx context.Context, frame *types.Frame) ([]types.Detection, error)
	Close() error
}

// RecognizeOptions tune a single recognition call.
type RecognizeOptions struct {
	CharWhitelist string
	PageSegMode   int
}

// TextResult is the raw output of a recognition call.
type TextResult struct {
	Text       string
	Confidence float64 // Percent; 0 when the backend reports none
}

// TextBackend starts text recognition workers.
type TextBackend interface {
	Initialize(ctx context.Context, language string, engineMode int) (TextWorker, error)
}

// TextWorker recognizes text in an image. Implementations must be safe for
// concurrent use; calls for one throttle window run in parallel.
type TextWorker interface {
	Recognize(ctx context.Context, img image.Image, opts RecognizeOptions) (TextResult, error)
	Close() error
}
