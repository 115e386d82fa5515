// Package config loads annotator settings from defaults, an optional YAML
// file and the environment. Command-line flags are applied by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/pipeline"
)

// Environment variables read by Load.
const (
	EnvAccessToken  = "ANNOTATOR_ACCESS_TOKEN"
	EnvMQTTPassword = "ANNOTATOR_MQTT_PASSWORD"
)

// Source kinds.
const (
	CaptureCamera = "camera"
	CaptureStill  = "still"
	CaptureSHM    = "shm"

	DetectionRoboflow = "roboflow"
	DetectionSHM      = "shm"

	RecognitionTesseract = "tesseract"
	RecognitionVision    = "vision"
	RecognitionNone      = "none"
)

type HTTPConfig struct {
	Addr         string   `yaml:"addr"`
	MetricsAddr  string   `yaml:"metrics_addr"` // Empty disables /metrics
	CORSOrigins  []string `yaml:"cors_origins"`
	MJPEGQuality int      `yaml:"mjpeg_quality"`
}

type CaptureConfig struct {
	Kind         string        `yaml:"kind"`
	Device       string        `yaml:"device"`
	Width        int           `yaml:"width"`
	Height       int           `yaml:"height"`
	StillPath    string        `yaml:"still_path"`
	FrameShm     string        `yaml:"frame_shm"`
	DetectionShm string        `yaml:"detection_shm"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type DetectionConfig struct {
	Kind         string            `yaml:"kind"`
	ModelID      string            `yaml:"model_id"`
	ModelVersion string            `yaml:"model_version"`
	AccessToken  string            `yaml:"access_token"`
	Endpoint     string            `yaml:"endpoint"`
	Timeout      time.Duration     `yaml:"timeout"`
	JPEGQuality  int               `yaml:"jpeg_quality"`
	Colors       map[string]string `yaml:"colors"`
}

type RecognitionConfig struct {
	Kind              string        `yaml:"kind"`
	Language          string        `yaml:"language"`
	EngineMode        int           `yaml:"engine_mode"`
	PageSegMode       int           `yaml:"page_seg_mode"`
	CharWhitelist     string        `yaml:"char_whitelist"`
	Interval          time.Duration `yaml:"interval"`
	MinRegionSize     float64       `yaml:"min_region_size"`
	Timeout           time.Duration `yaml:"timeout"`
	VisionCredentials string        `yaml:"vision_credentials"`
	VisionEndpoint    string        `yaml:"vision_endpoint"`
}

type LoopConfig struct {
	TickInterval    time.Duration `yaml:"tick_interval"`
	InferTimeout    time.Duration `yaml:"infer_timeout"`
	FrameRateWindow int           `yaml:"frame_rate_window"`
}

type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

type LogConfig struct {
	Level logger.LogLevel `yaml:"level"`
	Color bool            `yaml:"color"`
}

// Config is the full annotator configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Capture     CaptureConfig     `yaml:"capture"`
	Detection   DetectionConfig   `yaml:"detection"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Loop        LoopConfig        `yaml:"loop"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Log         LogConfig         `yaml:"log"`
}

// Default returns a config for a local camera, the hosted parcel label model
// and Tesseract.
func Default() Config {
	loop := pipeline.DefaultConfig()
	rec := pipeline.DefaultRecognizerConfig()
	return Config{
		HTTP: HTTPConfig{
			Addr:         ":8080",
			MetricsAddr:  ":9090",
			MJPEGQuality: 80,
		},
		Capture: CaptureConfig{
			Kind:         CaptureCamera,
			Device:       "0",
			FrameShm:     "/pet_camera_stream",
			DetectionShm: "/pet_camera_detections",
			PollInterval: 30 * time.Millisecond,
		},
		Detection: DetectionConfig{
			Kind:         DetectionRoboflow,
			ModelID:      "parcel_recipient_details",
			ModelVersion: "3",
			Endpoint:     "https://detect.roboflow.com",
			Timeout:      loop.InferTimeout,
			JPEGQuality:  80,
		},
		Recognition: RecognitionConfig{
			Kind:          RecognitionTesseract,
			Language:      rec.Language,
			EngineMode:    rec.EngineMode,
			PageSegMode:   rec.Options.PageSegMode,
			CharWhitelist: rec.Options.CharWhitelist,
			Interval:      loop.RecognitionInterval,
			MinRegionSize: loop.MinRegionSize,
			Timeout:       loop.RecognizeTimeout,
		},
		Loop: LoopConfig{
			TickInterval:    loop.TickInterval,
			InferTimeout:    loop.InferTimeout,
			FrameRateWindow: loop.FrameRateWindow,
		},
		MQTT: MQTTConfig{
			ClientID:    "label-annotator",
			TopicPrefix: "label-annotator",
		},
		Log: LogConfig{Level: logger.INFO, Color: true},
	}
}

// Load returns Default overlaid with the YAML file at path (if any) and the
// environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := Parse(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// Parse decodes YAML into cfg. Unknown keys are rejected.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv fills secrets from the environment when set.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvAccessToken); v != "" {
		c.Detection.AccessToken = v
	}
	if v := getenv(EnvMQTTPassword); v != "" {
		c.MQTT.Password = v
	}
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var err error
	if c.HTTP.Addr == "" {
		err = multierr.Append(err, errors.New("http.addr is required"))
	}
	if c.HTTP.MJPEGQuality < 1 || c.HTTP.MJPEGQuality > 100 {
		err = multierr.Append(err, fmt.Errorf("http.mjpeg_quality %d out of range 1-100", c.HTTP.MJPEGQuality))
	}

	switch c.Capture.Kind {
	case CaptureCamera:
		if c.Capture.Device == "" {
			err = multierr.Append(err, errors.New("capture.device is required for camera capture"))
		}
	case CaptureStill:
		if c.Capture.StillPath == "" {
			err = multierr.Append(err, errors.New("capture.still_path is required for still capture"))
		}
	case CaptureSHM:
		if c.Capture.FrameShm == "" {
			err = multierr.Append(err, errors.New("capture.frame_shm is required for shm capture"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("capture.kind %q unknown", c.Capture.Kind))
	}

	switch c.Detection.Kind {
	case DetectionRoboflow:
		if c.Detection.ModelID == "" || c.Detection.ModelVersion == "" {
			err = multierr.Append(err, errors.New("detection.model_id and detection.model_version are required"))
		}
		if c.Detection.AccessToken == "" {
			err = multierr.Append(err, fmt.Errorf("detection.access_token is required (or set %s)", EnvAccessToken))
		}
	case DetectionSHM:
		if c.Capture.DetectionShm == "" {
			err = multierr.Append(err, errors.New("capture.detection_shm is required for shm detection"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("detection.kind %q unknown", c.Detection.Kind))
	}

	switch c.Recognition.Kind {
	case RecognitionTesseract, RecognitionVision, RecognitionNone:
	default:
		err = multierr.Append(err, fmt.Errorf("recognition.kind %q unknown", c.Recognition.Kind))
	}
	if c.Recognition.Interval <= 0 {
		err = multierr.Append(err, errors.New("recognition.interval must be positive"))
	}
	if c.Recognition.MinRegionSize < 0 {
		err = multierr.Append(err, errors.New("recognition.min_region_size must not be negative"))
	}
	if c.Loop.TickInterval <= 0 {
		err = multierr.Append(err, errors.New("loop.tick_interval must be positive"))
	}
	if c.Loop.FrameRateWindow <= 0 {
		err = multierr.Append(err, errors.New("loop.frame_rate_window must be positive"))
	}
	return err
}

// Model returns the detection model reference.
func (c Config) Model() pipeline.ModelRef {
	return pipeline.ModelRef{
		ID:          c.Detection.ModelID,
		Version:     c.Detection.ModelVersion,
		AccessToken: c.Detection.AccessToken,
	}
}

// LoopSettings maps the config onto the detection loop.
func (c Config) LoopSettings() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.Model = c.Model()
	cfg.TickInterval = c.Loop.TickInterval
	cfg.InferTimeout = c.Loop.InferTimeout
	cfg.FrameRateWindow = c.Loop.FrameRateWindow
	cfg.RecognitionInterval = c.Recognition.Interval
	cfg.RecognizeTimeout = c.Recognition.Timeout
	cfg.MinRegionSize = c.Recognition.MinRegionSize
	return cfg
}

// RecognizerSettings maps the config onto the recognizer.
func (c Config) RecognizerSettings() pipeline.RecognizerConfig {
	cfg := pipeline.DefaultRecognizerConfig()
	cfg.Language = c.Recognition.Language
	cfg.EngineMode = c.Recognition.EngineMode
	cfg.Options = pipeline.RecognizeOptions{
		CharWhitelist: c.Recognition.CharWhitelist,
		PageSegMode:   c.Recognition.PageSegMode,
	}
	return cfg
}
