package shm

import "time"

// FrameSnapshot is a copy of one ring entry.
type FrameSnapshot struct {
	FrameNumber uint64
	Timestamp   time.Time
	Width       int
	Height      int
	Format      int
	Data        []byte
}

// RawDetection is a detection as written by the camera daemon. X and Y are
// the top-left corner.
type RawDetection struct {
	Class      string
	Confidence float64
	X, Y, W, H int
}

// DetectionSnapshot is a copy of the detection segment.
type DetectionSnapshot struct {
	FrameNumber uint64
	Timestamp   time.Time
	Version     uint32
	Detections  []RawDetection
}
