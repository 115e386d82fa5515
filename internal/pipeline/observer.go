package pipeline

import (
	"image"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/pkg/types"
)

// State is the detection loop lifecycle state.
type State int

const (
	AwaitingBackend State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case AwaitingBackend:
		return "awaiting_backend"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Presentation is one rendered cycle.
type Presentation struct {
	Seq        uint64
	Frame      *types.Frame
	Overlay    image.Image // Transparent canvas at the frame's native size
	Detections []types.Detection
}

// Observer receives pipeline events. Calls come from the loop's goroutines and
// must not block for long.
type Observer interface {
	StateChanged(state State, err error)
	FramePresented(p Presentation)
	FrameRateUpdated(fps float64)
	// RecognitionsReset starts a new window; entries are all pending.
	RecognitionsReset(window uint64, entries []types.RecognitionResult)
	RecognitionUpdated(result types.RecognitionResult)
}

// Observers fans events out to several observers in order.
type Observers []Observer

func (o Observers) StateChanged(state State, err error) {
	for _, obs := range o {
		obs.StateChanged(state, err)
	}
}

func (o Observers) FramePresented(p Presentation) {
	for _, obs := range o {
		obs.FramePresented(p)
	}
}

func (o Observers) FrameRateUpdated(fps float64) {
	for _, obs := range o {
		obs.FrameRateUpdated(fps)
	}
}

func (o Observers) RecognitionsReset(window uint64, entries []types.RecognitionResult) {
	for _, obs := range o {
		obs.RecognitionsReset(window, entries)
	}
}

func (o Observers) RecognitionUpdated(result types.RecognitionResult) {
	for _, obs := range o {
		obs.RecognitionUpdated(result)
	}
}

// NopObserver ignores every event. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) StateChanged(State, error)                           {}
func (NopObserver) FramePresented(Presentation)                         {}
func (NopObserver) FrameRateUpdated(float64)                            {}
func (NopObserver) RecognitionsReset(uint64, []types.RecognitionResult) {}
func (NopObserver) RecognitionUpdated(types.RecognitionResult)          {}
