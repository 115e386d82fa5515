package main

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/capture"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/capture/gocvcam"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/config"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/detect/roboflow"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/metrics"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/mqtt"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/ocr/tesseract"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/ocr/vision"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/pipeline"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/shm"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/webmonitor"
)

// App wires the frame source, backends, detection loop and HTTP surfaces.
type App struct {
	cfg       config.Config
	metrics   *metrics.Metrics
	monitor   *webmonitor.Monitor
	web       *webmonitor.Server
	loop      *pipeline.Loop
	camera    *gocvcam.Camera
	reader    *shm.Reader
	publisher *mqtt.Publisher
}

// NewApp builds every component named by cfg. Shared memory is waited for
// when a shm source or detector is configured.
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{cfg: cfg, metrics: metrics.New()}

	if cfg.Capture.Kind == config.CaptureSHM || cfg.Detection.Kind == config.DetectionSHM {
		detectionName := ""
		if cfg.Detection.Kind == config.DetectionSHM {
			detectionName = cfg.Capture.DetectionShm
		}
		reader, err := shm.OpenWait(ctx, cfg.Capture.FrameShm, detectionName)
		if err != nil {
			return nil, err
		}
		a.reader = reader
	}

	source, err := a.frameSource()
	if err != nil {
		a.Close()
		return nil, err
	}
	detector := a.detector()

	a.monitor = webmonitor.NewMonitor(webmonitor.Config{JPEGQuality: cfg.HTTP.MJPEGQuality})
	a.web = webmonitor.NewServer(webmonitor.Config{
		Addr:        cfg.HTTP.Addr,
		CORSOrigins: cfg.HTTP.CORSOrigins,
		JPEGQuality: cfg.HTTP.MJPEGQuality,
	}, a.monitor, a.metrics)

	opts := []pipeline.Option{
		pipeline.WithMetrics(a.metrics),
		pipeline.WithObserver(a.monitor),
	}
	if rec := a.recognizer(); rec != nil {
		opts = append(opts, pipeline.WithRecognizer(rec))
	}
	if cfg.MQTT.Broker != "" {
		mcfg := mqtt.DefaultConfig()
		mcfg.Broker = cfg.MQTT.Broker
		mcfg.ClientID = cfg.MQTT.ClientID
		mcfg.Username = cfg.MQTT.Username
		mcfg.Password = cfg.MQTT.Password
		mcfg.TopicPrefix = cfg.MQTT.TopicPrefix
		a.publisher = mqtt.New(mcfg)
		opts = append(opts, pipeline.WithObserver(a.publisher))
	}

	a.loop = pipeline.NewLoop(cfg.LoopSettings(), source, detector, opts...)
	return a, nil
}

func (a *App) frameSource() (pipeline.FrameSource, error) {
	switch a.cfg.Capture.Kind {
	case config.CaptureStill:
		still, err := capture.OpenStill(a.cfg.Capture.StillPath)
		if err != nil {
			return nil, err
		}
		return still, nil
	case config.CaptureSHM:
		return shm.NewSource(a.reader, a.cfg.Capture.PollInterval), nil
	case config.CaptureCamera:
		a.camera = gocvcam.New(gocvcam.Config{
			Device: a.cfg.Capture.Device,
			Width:  a.cfg.Capture.Width,
			Height: a.cfg.Capture.Height,
		})
		return a.camera, nil
	default:
		return nil, fmt.Errorf("unknown capture kind %q", a.cfg.Capture.Kind)
	}
}

func (a *App) detector() pipeline.DetectionBackend {
	if a.cfg.Detection.Kind == config.DetectionSHM {
		return shm.NewDetector(a.reader)
	}
	rcfg := roboflow.DefaultConfig()
	rcfg.Endpoint = a.cfg.Detection.Endpoint
	rcfg.Timeout = a.cfg.Detection.Timeout
	rcfg.JPEGQuality = a.cfg.Detection.JPEGQuality
	rcfg.Colors = a.cfg.Detection.Colors
	return roboflow.New(rcfg, roboflow.NewHTTPClient(rcfg.Timeout))
}

func (a *App) recognizer() *pipeline.Recognizer {
	var backend pipeline.TextBackend
	switch a.cfg.Recognition.Kind {
	case config.RecognitionTesseract:
		backend = tesseract.Backend{}
	case config.RecognitionVision:
		backend = vision.New(vision.Config{
			CredentialsFile: a.cfg.Recognition.VisionCredentials,
			Endpoint:        a.cfg.Recognition.VisionEndpoint,
		})
	default:
		logger.Info("Main", "Text recognition disabled")
		return nil
	}
	return pipeline.NewRecognizer(backend, a.cfg.RecognizerSettings())
}

// Run starts every component and blocks until ctx is cancelled or one of
// them fails.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)

	if a.camera != nil {
		g.Go(func() error { return a.camera.Run(gctx) })
	}
	if a.publisher != nil {
		if err := a.publisher.Connect(gctx); err != nil {
			logger.Warn("Main", "MQTT connect failed, will keep retrying: %v", err)
		}
		g.Go(func() error { return a.publisher.Run(gctx) })
	}
	if addr := a.cfg.HTTP.MetricsAddr; addr != "" {
		g.Go(func() error {
			logger.Info("Main", "Metrics server on %s", addr)
			return a.metrics.Serve(gctx, addr)
		})
	}
	g.Go(func() error { return a.web.ListenAndServe(gctx) })
	g.Go(func() error { return a.loop.Run(gctx) })

	return g.Wait()
}

// Close releases resources not owned by the loop.
func (a *App) Close() error {
	var err error
	if a.reader != nil {
		err = multierr.Append(err, a.reader.Close())
		a.reader = nil
	}
	return err
}
