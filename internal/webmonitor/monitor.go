package webmonitor

import (
	"image"
	"sync"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/geometry"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/pipeline"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/pkg/types"
)

// Monitor observes the detection loop and keeps the view served over HTTP.
// Every update is also fanned out to stream and event subscribers.
type Monitor struct {
	historySize int
	now         func() time.Time
	frames      *FrameBroadcaster
	events      *EventBroadcaster
	tracker     geometry.Tracker

	mu       sync.RWMutex
	state    pipeline.State
	stateErr error
	fps      float64
	frame    *FrameInfo
	overlay  image.Image
	latest   *DetectionResult
	history  []DetectionResult
	window   uint64
	entries  []types.RecognitionResult
}

var _ pipeline.Observer = (*Monitor)(nil)

// NewMonitor creates a monitor in the awaiting-backend state.
func NewMonitor(cfg Config) *Monitor {
	cfg = cfg.withDefaults()
	return &Monitor{
		historySize: cfg.HistorySize,
		now:         time.Now,
		frames:      NewFrameBroadcaster(cfg.JPEGQuality),
		events:      NewEventBroadcaster(),
		state:       pipeline.AwaitingBackend,
	}
}

// StateChanged records a loop state transition.
func (m *Monitor) StateChanged(state pipeline.State, err error) {
	m.mu.Lock()
	m.state = state
	m.stateErr = err
	payload := m.statePayloadLocked()
	m.mu.Unlock()

	if err != nil {
		logger.Warn("Monitor", "Pipeline %s: %v", state, err)
	}
	m.events.Publish("state", payload)
}

// FramePresented records the frame, overlay and detections of one cycle.
func (m *Monitor) FramePresented(p pipeline.Presentation) {
	ts := m.now()
	if p.Frame != nil && !p.Frame.CapturedAt.IsZero() {
		ts = p.Frame.CapturedAt
	}

	dets := p.Detections
	if dets == nil {
		dets = []types.Detection{}
	}
	result := DetectionResult{Seq: p.Seq, Timestamp: unixSeconds(ts), Detections: dets}

	m.mu.Lock()
	m.frame = &FrameInfo{
		Seq:       p.Seq,
		Width:     p.Frame.Width(),
		Height:    p.Frame.Height(),
		Timestamp: result.Timestamp,
	}
	m.overlay = p.Overlay
	m.latest = &result
	if len(dets) > 0 {
		m.history = append([]DetectionResult{result}, m.history...)
		if len(m.history) > m.historySize {
			m.history = m.history[:m.historySize]
		}
	}
	m.mu.Unlock()

	if p.Frame != nil {
		m.frames.Publish(p.Frame.Image, p.Overlay)
	}
	m.events.Publish("detections", result)
}

// FrameRateUpdated records the smoothed detection rate.
func (m *Monitor) FrameRateUpdated(fps float64) {
	m.mu.Lock()
	m.fps = fps
	m.mu.Unlock()

	m.events.Publish("fps", fpsPayload{FPS: fps})
}

// RecognitionsReset replaces the entry list with a new window's pending entries.
func (m *Monitor) RecognitionsReset(window uint64, entries []types.RecognitionResult) {
	m.mu.Lock()
	m.window = window
	m.entries = append([]types.RecognitionResult(nil), entries...)
	set := m.recognitionsLocked()
	m.mu.Unlock()

	m.events.Publish("recognitions", set)
}

// RecognitionUpdated replaces one entry of the current window. Results of
// older windows are dropped.
func (m *Monitor) RecognitionUpdated(result types.RecognitionResult) {
	m.mu.Lock()
	if result.Window != m.window {
		m.mu.Unlock()
		logger.Debug("Monitor", "Dropping recognition from stale window %d (current %d)", result.Window, m.window)
		return
	}
	slot := -1
	for i, e := range m.entries {
		if e.Index == result.Index {
			slot = i
			break
		}
	}
	if slot < 0 {
		m.mu.Unlock()
		logger.Debug("Monitor", "Ignoring recognition for window %d detection %d", result.Window, result.Index)
		return
	}
	m.entries[slot] = result
	set := m.recognitionsLocked()
	m.mu.Unlock()

	m.events.Publish("recognitions", set)
}

// Status returns a snapshot for /api/status.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := Status{
		State:            m.state.String(),
		FPS:              m.fps,
		DetectionHistory: append([]DetectionResult{}, m.history...),
		Recognitions:     m.recognitionsLocked(),
		Timestamp:        unixSeconds(m.now()),
	}
	if m.stateErr != nil {
		status.Error = m.stateErr.Error()
	}
	if m.frame != nil {
		frame := *m.frame
		status.Frame = &frame
	}
	if m.latest != nil {
		latest := *m.latest
		status.LatestDetection = &latest
	}
	return status
}

// Recognitions returns the current window's entries.
func (m *Monitor) Recognitions() RecognitionSet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recognitionsLocked()
}

func (m *Monitor) recognitionsLocked() RecognitionSet {
	set := RecognitionSet{Window: m.window, Entries: make([]RecognitionView, 0, len(m.entries))}
	for _, e := range m.entries {
		set.Entries = append(set.Entries, viewOf(e))
	}
	return set
}

// Overlay returns the overlay of the last presented frame, or nil.
func (m *Monitor) Overlay() image.Image {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.overlay
}

// Layout fits the last frame's canvas into a display element. changed is
// false when the input was degenerate and the previous layout was kept; ok is
// false when no layout has ever been computed.
func (m *Monitor) Layout(element, viewport geometry.Size) (layout geometry.Layout, changed, ok bool) {
	m.mu.RLock()
	var intrinsic geometry.Size
	if m.frame != nil {
		intrinsic = geometry.Size{Width: float64(m.frame.Width), Height: float64(m.frame.Height)}
	}
	m.mu.RUnlock()

	_, changed = geometry.Fit(intrinsic, element, viewport)
	layout, ok = m.tracker.Update(intrinsic, element, viewport)
	return layout, changed, ok
}

func (m *Monitor) statePayload() statePayload {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statePayloadLocked()
}

func (m *Monitor) statePayloadLocked() statePayload {
	p := statePayload{State: m.state.String()}
	if m.stateErr != nil {
		p.Error = m.stateErr.Error()
	}
	return p
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
