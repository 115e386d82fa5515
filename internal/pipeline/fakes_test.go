package pipeline

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/pkg/types"
)

type fakeSource struct {
	frame *types.Frame
	err   error
}

func (s *fakeSource) WaitReady(ctx context.Context) error { return nil }

func (s *fakeSource) Frame() (*types.Frame, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.frame, nil
}

func testFrame(w, h int) *types.Frame {
	return &types.Frame{Image: image.NewRGBA(image.Rect(0, 0, w, h))}
}

type fakeSession struct {
	InferFunc func(ctx context.Context, frame *types.Frame) ([]types.Detection, error)
	closed    atomic.Bool
}

func (s *fakeSession) Infer(ctx context.Context, frame *types.Frame) ([]types.Detection, error) {
	return s.InferFunc(ctx, frame)
}

func (s *fakeSession) Close() error {
	s.closed.Store(true)
	return nil
}

// fakeDetector fails the first `failures` Initialize calls, or every call
// with err when it is set.
type fakeDetector struct {
	failures int32
	err      error
	calls    atomic.Int32
	session  *fakeSession
}

func (d *fakeDetector) Initialize(ctx context.Context, model ModelRef) (DetectionSession, error) {
	if d.calls.Add(1) <= d.failures {
		return nil, errors.New("model not loaded")
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.session, nil
}

type fakeTextBackend struct {
	failures  int32
	calls     atomic.Int32
	worker    *fakeWorker
	gotLang   string
	gotEngine int
	mu        sync.Mutex
}

func (b *fakeTextBackend) Initialize(ctx context.Context, language string, engineMode int) (TextWorker, error) {
	b.mu.Lock()
	b.gotLang, b.gotEngine = language, engineMode
	b.mu.Unlock()
	if b.calls.Add(1) <= b.failures {
		return nil, errors.New("traineddata missing")
	}
	return b.worker, nil
}

type fakeWorker struct {
	RecognizeFunc func(ctx context.Context, img image.Image, opts RecognizeOptions) (TextResult, error)
	closed        atomic.Bool
}

func (w *fakeWorker) Recognize(ctx context.Context, img image.Image, opts RecognizeOptions) (TextResult, error) {
	return w.RecognizeFunc(ctx, img, opts)
}

func (w *fakeWorker) Close() error {
	w.closed.Store(true)
	return nil
}

type stateEvent struct {
	state State
	err   error
}

type recordingObserver struct {
	mu            sync.Mutex
	states        []stateEvent
	presentations []Presentation
	fps           []float64
	resets        map[uint64][]types.RecognitionResult
	updates       []types.RecognitionResult
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{resets: make(map[uint64][]types.RecognitionResult)}
}

func (o *recordingObserver) StateChanged(state State, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, stateEvent{state, err})
}

func (o *recordingObserver) FramePresented(p Presentation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.presentations = append(o.presentations, p)
}

func (o *recordingObserver) FrameRateUpdated(fps float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fps = append(o.fps, fps)
}

func (o *recordingObserver) RecognitionsReset(window uint64, entries []types.RecognitionResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resets[window] = entries
}

func (o *recordingObserver) RecognitionUpdated(result types.RecognitionResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.updates = append(o.updates, result)
}

func (o *recordingObserver) presented() []Presentation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Presentation(nil), o.presentations...)
}

func (o *recordingObserver) windows() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.resets)
}

func (o *recordingObserver) reset(window uint64) ([]types.RecognitionResult, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	entries, ok := o.resets[window]
	return entries, ok
}

func (o *recordingObserver) results() []types.RecognitionResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]types.RecognitionResult(nil), o.updates...)
}

func (o *recordingObserver) rates() []float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]float64(nil), o.fps...)
}

func (o *recordingObserver) initErrors() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, ev := range o.states {
		var initErr *BackendInitError
		if errors.As(ev.err, &initErr) {
			n++
		}
	}
	return n
}
