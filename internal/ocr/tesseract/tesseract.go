// Package tesseract recognizes text locally with libtesseract.
package tesseract

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/pipeline"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/region"
)

// Backend creates Tesseract workers.
type Backend struct{}

var _ pipeline.TextBackend = Backend{}

// supportedEngine reports whether gosseract can run the requested OCR engine
// mode. gosseract always uses the library default, which is the LSTM engine
// for standard traineddata.
func supportedEngine(mode int) bool {
	return mode == 1 || mode == 3
}

// Initialize loads language data and runs one blank page through the engine
// so missing traineddata fails here.
func (Backend) Initialize(ctx context.Context, language string, engineMode int) (pipeline.TextWorker, error) {
	if !supportedEngine(engineMode) {
		return nil, fmt.Errorf("tesseract: engine mode %d not supported", engineMode)
	}

	client := gosseract.NewClient()
	if err := client.SetLanguage(language); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}

	blank, err := region.EncodePNG(image.NewGray(image.Rect(0, 0, 16, 16)))
	if err != nil {
		client.Close()
		return nil, err
	}
	if err := client.SetImageFromBytes(blank); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR image: %w", err)
	}
	if _, err := client.Text(); err != nil {
		client.Close()
		return nil, fmt.Errorf("tesseract init (%s): %w", language, err)
	}
	if err := ctx.Err(); err != nil {
		client.Close()
		return nil, err
	}

	logger.Info("Tesseract", "Worker ready (tesseract %s, language=%s)", gosseract.Version(), language)
	return &Worker{client: client}, nil
}

// Worker wraps one gosseract client. Calls are serialized.
type Worker struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// Recognize runs OCR on img.
func (w *Worker) Recognize(ctx context.Context, img image.Image, opts pipeline.RecognizeOptions) (pipeline.TextResult, error) {
	data, err := region.EncodePNG(img)
	if err != nil {
		return pipeline.TextResult{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return pipeline.TextResult{}, err
	}
	if err := w.client.SetWhitelist(opts.CharWhitelist); err != nil {
		return pipeline.TextResult{}, fmt.Errorf("set whitelist: %w", err)
	}
	if err := w.client.SetPageSegMode(gosseract.PageSegMode(opts.PageSegMode)); err != nil {
		return pipeline.TextResult{}, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := w.client.SetImageFromBytes(data); err != nil {
		return pipeline.TextResult{}, fmt.Errorf("failed to set OCR image: %w", err)
	}

	text, err := w.client.Text()
	if err != nil {
		return pipeline.TextResult{}, fmt.Errorf("failed to extract text: %w", err)
	}

	// Confidence is optional; missing boxes leave it at zero.
	boxes, err := w.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		logger.Debug("Tesseract", "Failed to get bounding boxes: %v", err)
	}
	return pipeline.TextResult{Text: text, Confidence: meanConfidence(boxes)}, nil
}

// meanConfidence averages positive word confidences.
func meanConfidence(boxes []gosseract.BoundingBox) float64 {
	var total float64
	var n int
	for _, b := range boxes {
		if b.Confidence > 0 {
			total += b.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// Close releases the client.
func (w *Worker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.client.Close()
}
