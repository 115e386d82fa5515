// Package roboflow runs object detection against the Roboflow hosted
// inference API.
package roboflow

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/pipeline"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/render"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/pkg/types"
)

// ErrInvalidModel is returned when the model reference is incomplete.
var ErrInvalidModel = fmt.Errorf("roboflow: model id, version and access token are required: %w", pipeline.ErrInvalidModel)

// APIError is a non-2xx response from the inference API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("roboflow http %d", e.Status)
	}
	return fmt.Sprintf("roboflow http %d: %s", e.Status, e.Message)
}

type prediction struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

type inferResponse struct {
	Predictions []prediction `json:"predictions"`
	Message     string       `json:"message"`
}

// Backend loads hosted models.
type Backend struct {
	cfg    Config
	client *http.Client
}

var _ pipeline.DetectionBackend = (*Backend)(nil)

// New creates a Backend. A nil client gets NewHTTPClient(cfg.Timeout).
func New(cfg Config, client *http.Client) *Backend {
	def := DefaultConfig()
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = def.JPEGQuality
	}
	if client == nil {
		client = NewHTTPClient(cfg.Timeout)
	}
	return &Backend{cfg: cfg, client: client}
}

// Initialize validates model and probes the endpoint with a blank frame so a
// bad key or model fails here rather than on every cycle.
func (b *Backend) Initialize(ctx context.Context, model pipeline.ModelRef) (pipeline.DetectionSession, error) {
	if model.ID == "" || model.Version == "" || model.AccessToken == "" {
		return nil, ErrInvalidModel
	}

	s := &Session{backend: b, model: model}
	probe := &types.Frame{Image: image.NewRGBA(image.Rect(0, 0, 32, 32))}
	if _, err := s.Infer(ctx, probe); err != nil {
		return nil, fmt.Errorf("probe %s/%s: %w", model.ID, model.Version, err)
	}
	logger.Info("Roboflow", "Model %s/%s loaded", model.ID, model.Version)
	return s, nil
}

// Session runs inference for one model.
type Session struct {
	backend *Backend
	model   pipeline.ModelRef
}

func (s *Session) endpoint() string {
	q := url.Values{}
	q.Set("api_key", s.model.AccessToken)
	return fmt.Sprintf("%s/%s/%s?%s",
		strings.TrimRight(s.backend.cfg.Endpoint, "/"),
		url.PathEscape(s.model.ID),
		url.PathEscape(s.model.Version),
		q.Encode())
}

// Infer uploads frame and returns its detections.
func (s *Session) Infer(ctx context.Context, frame *types.Frame) ([]types.Detection, error) {
	if frame == nil || frame.Image == nil {
		return nil, errors.New("roboflow: empty frame")
	}

	var jpg bytes.Buffer
	if err := imaging.Encode(&jpg, frame.Image, imaging.JPEG, imaging.JPEGQuality(s.backend.cfg.JPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	body := base64.StdEncoding.EncodeToString(jpg.Bytes())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(), strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := s.backend.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			logger.Warn("Roboflow", "failed to close response body: %v", err)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var out inferResponse
	decodeErr := json.Unmarshal(raw, &out)
	if res.StatusCode >= 400 {
		return nil, &APIError{Status: res.StatusCode, Message: out.Message}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}

	return s.backend.detections(out.Predictions), nil
}

func (b *Backend) detections(preds []prediction) []types.Detection {
	dets := make([]types.Detection, 0, len(preds))
	for _, p := range preds {
		c, ok := b.cfg.Colors[p.Class]
		if !ok {
			c = render.ClassColor(p.Class)
		}
		dets = append(dets, types.Detection{
			Class:      p.Class,
			BBox:       types.BBox{X: p.X, Y: p.Y, Width: p.Width, Height: p.Height},
			Color:      c,
			Confidence: p.Confidence,
		})
	}
	return dets
}

// Close releases idle connections.
func (s *Session) Close() error {
	s.backend.client.CloseIdleConnections()
	return nil
}
