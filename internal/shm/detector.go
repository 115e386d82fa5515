package shm

import (
	"context"
	"errors"
	"sync"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/pipeline"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/render"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/pkg/types"
)

// DetectionReader yields the detection segment.
type DetectionReader interface {
	LatestDetections() (*DetectionSnapshot, bool)
}

// Detector serves detections produced by the camera daemon's on-device model.
type Detector struct {
	reader DetectionReader
}

// NewDetector creates a Detector over reader.
func NewDetector(reader DetectionReader) *Detector {
	return &Detector{reader: reader}
}

// Initialize checks that the detection segment is mapped. The model reference
// is informational; the daemon owns the model.
func (d *Detector) Initialize(ctx context.Context, model pipeline.ModelRef) (pipeline.DetectionSession, error) {
	if d.reader == nil {
		return nil, errors.New("shm: detection segment not mapped")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger.Info("Detector", "Using on-device detections (model %s/%s ignored)", model.ID, model.Version)
	return &session{reader: d.reader}, nil
}

type session struct {
	reader DetectionReader

	mu      sync.Mutex
	version uint32
	last    []types.Detection
}

// Infer returns the latest detections. The daemon publishes asynchronously,
// so an unchanged version repeats the previous result.
func (s *session) Infer(ctx context.Context, frame *types.Frame) ([]types.Detection, error) {
	snap, ok := s.reader.LatestDetections()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	if snap.Version != s.version {
		s.version = snap.Version
		s.last = Convert(snap.Detections)
	}
	return s.last, nil
}

func (s *session) Close() error { return nil }

// Convert maps top-left daemon boxes to center-based detections.
func Convert(raw []RawDetection) []types.Detection {
	out := make([]types.Detection, 0, len(raw))
	for _, r := range raw {
		out = append(out, types.Detection{
			Class: r.Class,
			BBox: types.BBox{
				X:      float64(r.X) + float64(r.W)/2,
				Y:      float64(r.Y) + float64(r.H)/2,
				Width:  float64(r.W),
				Height: float64(r.H),
			},
			Color:      render.ClassColor(r.Class),
			Confidence: r.Confidence,
		})
	}
	return out
}
