package pipeline

import (
	"context"
	"image"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/pkg/types"
)

// DefaultCharWhitelist limits recognition to letters, digits, space and
// common punctuation.
const DefaultCharWhitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789 .,;:!?-()[]{}\"/\\@#$%^&*+=<>|~`"

// RecognizerConfig configures text recognition.
type RecognizerConfig struct {
	Language    string
	EngineMode  int
	Options     RecognizeOptions
	InitTimeout time.Duration
}

// DefaultRecognizerConfig returns English, LSTM engine, single-block layout.
func DefaultRecognizerConfig() RecognizerConfig {
	return RecognizerConfig{
		Language:   "eng",
		EngineMode: 1,
		Options: RecognizeOptions{
			CharWhitelist: DefaultCharWhitelist,
			PageSegMode:   6,
		},
		InitTimeout: 30 * time.Second,
	}
}

// Recognizer owns a lazily initialized TextWorker.
type Recognizer struct {
	backend TextBackend
	cfg     RecognizerConfig
	log     logger.Module

	mu           sync.Mutex
	worker       TextWorker
	initializing bool
	lastErr      error
	closed       bool

	wg sync.WaitGroup
}

// NewRecognizer creates a Recognizer. Nothing is initialized until Warmup.
func NewRecognizer(backend TextBackend, cfg RecognizerConfig) *Recognizer {
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = 30 * time.Second
	}
	return &Recognizer{backend: backend, cfg: cfg, log: logger.For("Recognizer")}
}

// Ready reports whether a worker is available.
func (r *Recognizer) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.worker != nil
}

// Err returns the last initialization error, if any.
func (r *Recognizer) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Warmup starts initialization in the background unless a worker exists or
// an attempt is already running. It reports whether an attempt was started.
func (r *Recognizer) Warmup(ctx context.Context) bool {
	r.mu.Lock()
	if r.worker != nil || r.initializing || r.closed {
		r.mu.Unlock()
		return false
	}
	r.initializing = true
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()

		initCtx, cancel := context.WithTimeout(ctx, r.cfg.InitTimeout)
		defer cancel()

		r.log.Info("Initializing text recognition (language=%s, engine=%d)", r.cfg.Language, r.cfg.EngineMode)
		worker, err := r.backend.Initialize(initCtx, r.cfg.Language, r.cfg.EngineMode)

		r.mu.Lock()
		defer r.mu.Unlock()
		r.initializing = false
		if err != nil {
			r.lastErr = &BackendInitError{Backend: "recognition", Err: err}
			r.log.Error("Text recognition unavailable: %v", err)
			return
		}
		if r.closed {
			_ = worker.Close()
			return
		}
		r.worker = worker
		r.lastErr = nil
		r.log.Info("Text recognition ready")
	}()
	return true
}

// Recognize runs the worker on img and maps the outcome onto a result for det.
// Window and Index are left for the caller.
func (r *Recognizer) Recognize(ctx context.Context, det types.Detection, img image.Image) types.RecognitionResult {
	result := types.RecognitionResult{Detection: det}

	r.mu.Lock()
	worker := r.worker
	r.mu.Unlock()

	if worker == nil {
		return r.failed(result, &RecognitionError{Class: det.Class, Err: ErrRecognizerUnavailable})
	}

	out, err := worker.Recognize(ctx, img, r.cfg.Options)
	if err != nil {
		return r.failed(result, &RecognitionError{Class: det.Class, Err: err})
	}

	text := strings.TrimSpace(out.Text)
	if text == "" {
		result.Status = types.RecognitionEmpty
		return result
	}
	result.Status = types.RecognitionDone
	result.Text = text
	if out.Confidence != 0 {
		result.Confidence = math.Round(out.Confidence)
	}
	return result
}

func (r *Recognizer) failed(result types.RecognitionResult, err *RecognitionError) types.RecognitionResult {
	r.log.Warn("%v", err)
	result.Status = types.RecognitionError
	result.Error = err.Err.Error()
	return result
}

// Close waits for a pending initialization and releases the worker.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.worker == nil {
		return nil
	}
	err := r.worker.Close()
	r.worker = nil
	return err
}
