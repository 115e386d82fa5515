package webmonitor

import (
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/geometry"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/pkg/types"
)

// FrameInfo describes the most recently presented frame.
type FrameInfo struct {
	Seq       uint64  `json:"seq"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Timestamp float64 `json:"timestamp"`
}

// DetectionResult is one presented cycle's detections.
type DetectionResult struct {
	Seq        uint64            `json:"seq"`
	Timestamp  float64           `json:"timestamp"`
	Detections []types.Detection `json:"detections"`
}

// RecognitionView is a recognition entry with its panel message.
type RecognitionView struct {
	types.RecognitionResult
	Message string `json:"message"`
}

// RecognitionSet is the entry list of the current throttle window.
type RecognitionSet struct {
	Window  uint64            `json:"window"`
	Entries []RecognitionView `json:"entries"`
}

// Status is the /api/status payload.
type Status struct {
	State            string            `json:"state"`
	Error            string            `json:"error,omitempty"`
	FPS              float64           `json:"fps"`
	Frame            *FrameInfo        `json:"frame"`
	LatestDetection  *DetectionResult  `json:"latest_detection"`
	DetectionHistory []DetectionResult `json:"detection_history"`
	Recognitions     RecognitionSet    `json:"recognitions"`
	Timestamp        float64           `json:"timestamp"`
}

// LayoutResponse is the /api/layout payload.
type LayoutResponse struct {
	geometry.Layout
	// Changed is false when the request was degenerate and the previous
	// layout was returned.
	Changed bool `json:"changed"`
}

type statePayload struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

type fpsPayload struct {
	FPS float64 `json:"fps"`
}

func viewOf(r types.RecognitionResult) RecognitionView {
	return RecognitionView{RecognitionResult: r, Message: r.Message()}
}
