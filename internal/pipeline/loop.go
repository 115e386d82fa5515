package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/metrics"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/region"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/render"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/pkg/types"
)

// Config holds detection loop settings.
type Config struct {
	Model               ModelRef
	TickInterval        time.Duration // Display cadence
	InferTimeout        time.Duration
	RecognitionInterval time.Duration
	RecognizeTimeout    time.Duration
	MinRegionSize       float64 // Minimum box width and height sent to recognition
	FrameRateWindow     int
	InitRetryInitial    time.Duration
	InitRetryMax        time.Duration
}

// DefaultConfig returns the loop defaults. Model is left empty.
func DefaultConfig() Config {
	return Config{
		TickInterval:        33 * time.Millisecond,
		InferTimeout:        10 * time.Second,
		RecognitionInterval: DefaultRecognitionInterval,
		RecognizeTimeout:    30 * time.Second,
		MinRegionSize:       50,
		FrameRateWindow:     DefaultFrameRateWindow,
		InitRetryInitial:    500 * time.Millisecond,
		InitRetryMax:        30 * time.Second,
	}
}

// Option customizes a Loop.
type Option func(*Loop)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(l *Loop) { l.clock = c }
}

// WithObserver registers an event observer.
func WithObserver(o Observer) Option {
	return func(l *Loop) { l.observers = append(l.observers, o) }
}

// WithRecognizer enables the text recognition pass.
func WithRecognizer(r *Recognizer) Option {
	return func(l *Loop) { l.recognizer = r }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

// WithRenderer replaces the default label renderer.
func WithRenderer(r *render.Renderer) Option {
	return func(l *Loop) { l.renderer = r }
}

type cycle struct {
	seq        uint64
	frame      *types.Frame
	detections []types.Detection
}

// Loop drives detection at the display cadence and hands each successful
// cycle to a presenter goroutine that renders and triggers recognition.
type Loop struct {
	cfg        Config
	source     FrameSource
	detector   DetectionBackend
	recognizer *Recognizer
	renderer   *render.Renderer
	throttle   *Throttler
	fps        *FrameRate
	observers  Observers
	metrics    *metrics.Metrics
	clock      clock.Clock
	log        logger.Module

	mu      sync.Mutex
	state   State
	lastErr error

	// Owned by the Run goroutine.
	session     DetectionSession
	seq         uint64
	prevSuccess time.Time

	handoff chan cycle

	// Owned by the presenter goroutine.
	lastPresented uint64

	window atomic.Uint64
	recWG  sync.WaitGroup
}

// NewLoop creates a loop over source and detector.
func NewLoop(cfg Config, source FrameSource, detector DetectionBackend, opts ...Option) *Loop {
	def := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.InferTimeout <= 0 {
		cfg.InferTimeout = def.InferTimeout
	}
	if cfg.RecognizeTimeout <= 0 {
		cfg.RecognizeTimeout = def.RecognizeTimeout
	}
	if cfg.InitRetryInitial <= 0 {
		cfg.InitRetryInitial = def.InitRetryInitial
	}
	if cfg.InitRetryMax <= 0 {
		cfg.InitRetryMax = def.InitRetryMax
	}

	l := &Loop{
		cfg:      cfg,
		source:   source,
		detector: detector,
		renderer: render.NewRenderer(),
		throttle: NewThrottler(cfg.RecognitionInterval),
		fps:      NewFrameRate(cfg.FrameRateWindow),
		clock:    clock.New(),
		log:      logger.For("Loop"),
		handoff:  make(chan cycle, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.metrics == nil {
		l.metrics = metrics.New()
	}
	return l
}

// State returns the current state and the last backend error.
func (l *Loop) State() (State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state, l.lastErr
}

// FPS returns the current detection rate.
func (l *Loop) FPS() float64 {
	return l.fps.FPS()
}

func (l *Loop) setState(state State, err error) {
	l.mu.Lock()
	l.state = state
	l.lastErr = err
	l.mu.Unlock()

	metrics.SetFlag(&l.metrics.DetectionReady, state == Running)
	l.observers.StateChanged(state, err)
}

// Run drives the loop until ctx is cancelled. It owns the detection session
// and the recognizer: both are closed before Run returns, after in-flight
// recognition calls have finished.
func (l *Loop) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l.setState(AwaitingBackend, nil)
	if l.recognizer != nil {
		l.recognizer.Warmup(ctx)
	}

	ready := make(chan DetectionSession, 1)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		l.awaitReady(ctx, ready)
	}()
	go func() {
		defer wg.Done()
		l.presentLoop(ctx)
	}()

	ticker := l.clock.Ticker(l.cfg.TickInterval)
	l.log.Info("Detection loop started (tick=%v)", l.cfg.TickInterval)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case session := <-ready:
			l.session = session
			l.setState(Running, nil)
			l.log.Info("Detection backend ready")
		case <-ticker.C:
			if l.session == nil {
				continue
			}
			l.runCycle(ctx)
		}
	}

	ticker.Stop()
	cancel()
	wg.Wait()
	l.recWG.Wait()

	var err error
	select {
	case session := <-ready:
		err = multierr.Append(err, session.Close())
	default:
	}
	if l.session != nil {
		err = multierr.Append(err, l.session.Close())
		l.session = nil
	}
	if l.recognizer != nil {
		err = multierr.Append(err, l.recognizer.Close())
	}

	l.setState(Stopped, nil)
	l.log.Info("Detection loop stopped")
	return err
}

// awaitReady waits for the first frame and a detection session in parallel.
func (l *Loop) awaitReady(ctx context.Context, ready chan<- DetectionSession) {
	var session DetectionSession

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := l.source.WaitReady(gctx); err != nil {
			return err
		}
		l.log.Info("Frame source ready")
		return nil
	})
	g.Go(func() error {
		s, err := l.initDetection(gctx)
		if err != nil {
			return err
		}
		session = s
		return nil
	})

	if err := g.Wait(); err != nil {
		if session != nil {
			_ = session.Close()
		}
		if ctx.Err() == nil {
			l.log.Error("Startup failed: %v", err)
			l.setState(AwaitingBackend, err)
		}
		return
	}
	ready <- session
}

func (l *Loop) initDetection(ctx context.Context) (DetectionSession, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = l.cfg.InitRetryInitial
	eb.MaxInterval = l.cfg.InitRetryMax
	eb.MaxElapsedTime = 0

	var session DetectionSession
	op := func() error {
		s, err := l.detector.Initialize(ctx, l.cfg.Model)
		if errors.Is(err, ErrInvalidModel) {
			return backoff.Permanent(err)
		}
		if err != nil {
			return err
		}
		session = s
		return nil
	}
	notify := func(err error, next time.Duration) {
		initErr := &BackendInitError{Backend: "detection", Err: err}
		l.metrics.BackendInitFails.Add(1)
		l.log.Error("%v (retry in %v)", initErr, next.Round(time.Millisecond))
		l.setState(AwaitingBackend, initErr)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(eb, ctx), notify); err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		// Not retried: awaitReady reports it once and the loop stays idle.
		l.metrics.BackendInitFails.Add(1)
		return nil, &BackendInitError{Backend: "detection", Err: err}
	}
	return session, nil
}

// runCycle performs one detection pass. Failures are contained to the cycle.
func (l *Loop) runCycle(ctx context.Context) {
	frame, err := l.source.Frame()
	if err != nil {
		l.metrics.FrameErrors.Add(1)
		l.log.Warn("Frame unavailable: %v", err)
		return
	}

	inferCtx, cancel := context.WithTimeout(ctx, l.cfg.InferTimeout)
	start := l.clock.Now()
	detections, err := l.session.Infer(inferCtx, frame)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		l.metrics.InferenceErrors.Add(1)
		l.log.Error("%v", &InferenceError{Seq: l.seq + 1, Err: err})
		return
	}

	now := l.clock.Now()
	l.metrics.UpdateInferLatency(now.Sub(start))
	l.metrics.Cycles.Add(1)
	l.seq++
	l.handOff(cycle{seq: l.seq, frame: frame, detections: detections})

	if !l.prevSuccess.IsZero() {
		l.fps.Add(now.Sub(l.prevSuccess))
		fps := l.fps.FPS()
		l.metrics.SetFPS(fps)
		l.observers.FrameRateUpdated(fps)
	}
	l.prevSuccess = now
}

// handOff replaces any cycle the presenter has not picked up yet.
func (l *Loop) handOff(c cycle) {
	select {
	case l.handoff <- c:
		return
	default:
	}
	select {
	case old := <-l.handoff:
		l.metrics.StaleDropped.Add(1)
		l.log.Debug("Presenter busy, dropping cycle %d", old.seq)
	default:
	}
	l.handoff <- c
}

func (l *Loop) presentLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-l.handoff:
			l.present(ctx, c)
		}
	}
}

// present renders one cycle unless a newer one was already shown.
func (l *Loop) present(ctx context.Context, c cycle) {
	if c.seq <= l.lastPresented {
		l.metrics.StaleDropped.Add(1)
		return
	}
	l.lastPresented = c.seq

	w, h := c.frame.Width(), c.frame.Height()
	if w <= 0 || h <= 0 {
		l.log.Warn("Skipping cycle %d: empty frame", c.seq)
		return
	}

	surface := render.NewGGSurface(w, h, l.renderer.FontSize)
	l.renderer.Render(surface, c.detections)
	l.metrics.Presented.Add(1)
	l.observers.FramePresented(Presentation{
		Seq:        c.seq,
		Frame:      c.frame,
		Overlay:    surface.Image(),
		Detections: c.detections,
	})

	if len(c.detections) > 0 {
		l.triggerRecognition(ctx, c)
	}
}

// triggerRecognition opens a new recognition window when the recognizer is
// ready and the throttle allows it.
func (l *Loop) triggerRecognition(ctx context.Context, c cycle) {
	if l.recognizer == nil {
		return
	}
	if !l.recognizer.Ready() {
		metrics.SetFlag(&l.metrics.RecognitionReady, false)
		l.recognizer.Warmup(ctx)
		return
	}
	metrics.SetFlag(&l.metrics.RecognitionReady, true)

	if !l.throttle.ShouldRun(l.clock.Now()) {
		l.metrics.RecognitionThrottled.Add(1)
		return
	}

	window := l.window.Add(1)
	entries := make([]types.RecognitionResult, 0, len(c.detections))
	for i, det := range c.detections {
		if det.BBox.Width < l.cfg.MinRegionSize || det.BBox.Height < l.cfg.MinRegionSize {
			l.metrics.RegionsSkipped.Add(1)
			continue
		}
		entries = append(entries, types.RecognitionResult{
			Window:    window,
			Index:     i,
			Detection: det,
			Status:    types.RecognitionPending,
		})
	}

	l.metrics.RecognitionWindows.Add(1)
	l.log.Debug("Recognition window %d: %d of %d detections", window, len(entries), len(c.detections))
	l.observers.RecognitionsReset(window, entries)

	for _, entry := range entries {
		l.recWG.Add(1)
		go func(entry types.RecognitionResult) {
			defer l.recWG.Done()
			l.recognize(ctx, c.frame, entry)
		}(entry)
	}
}

func (l *Loop) recognize(ctx context.Context, frame *types.Frame, entry types.RecognitionResult) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.cfg.RecognizeTimeout)
	defer cancel()

	var result types.RecognitionResult
	img, err := region.Extract(frame.Image, entry.Detection)
	if err != nil {
		result = entry
		result.Status = types.RecognitionError
		result.Error = err.Error()
	} else {
		start := l.clock.Now()
		result = l.recognizer.Recognize(rctx, entry.Detection, img)
		l.metrics.UpdateRecognizeLatency(l.clock.Since(start))
	}
	result.Window = entry.Window
	result.Index = entry.Index

	if result.Status == types.RecognitionError {
		l.metrics.RecognitionErrors.Add(1)
	} else {
		l.metrics.Recognitions.Add(1)
	}

	if ctx.Err() != nil {
		return
	}
	if result.Window != l.window.Load() {
		l.log.Debug("Dropping result for superseded window %d", result.Window)
		return
	}
	l.observers.RecognitionUpdated(result)
}
