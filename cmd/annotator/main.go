package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/config"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/logger"
)

var (
	// Command-line flags. Explicitly set flags override the config file.
	configPath  = flag.String("config", "", "YAML config file")
	httpAddr    = flag.String("http", "", "HTTP server address")
	metricsAddr = flag.String("metrics", "", "Metrics server address (empty disables)")
	captureKind = flag.String("capture", "", "Frame source (camera, still, shm)")
	device      = flag.String("device", "", "Camera index or stream URL")
	stillPath   = flag.String("still", "", "Still image path for -capture=still")
	detectKind  = flag.String("detection", "", "Detection backend (roboflow, shm)")
	modelID     = flag.String("model", "", "Detection model ID")
	modelVer    = flag.String("model-version", "", "Detection model version")
	recognition = flag.String("recognition", "", "Text recognition backend (tesseract, vision, none)")
	mqttBroker  = flag.String("mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883")
	logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error, silent)")
	logColor    = flag.Bool("log-color", true, "Enable colored log output")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := applyFlags(&cfg); err != nil {
		log.Fatalf("Invalid flag: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Initialize logger
	logger.Init(cfg.Log.Level, os.Stderr, cfg.Log.Color)

	logger.Info("Main", "Label annotator starting...")
	logger.Info("Main", "Log level: %s", cfg.Log.Level)
	logger.Info("Main", "Capture: %s, detection: %s (%s/%s), recognition: %s",
		cfg.Capture.Kind, cfg.Detection.Kind, cfg.Detection.ModelID, cfg.Detection.ModelVersion, cfg.Recognition.Kind)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create annotator: %v", err)
	}

	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Main", "Annotator stopped with error: %v", err)
		os.Exit(1)
	}
	logger.Info("Main", "Annotator stopped")
}

// applyFlags copies explicitly set flags into cfg.
func applyFlags(cfg *config.Config) error {
	var err error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "http":
			cfg.HTTP.Addr = *httpAddr
		case "metrics":
			cfg.HTTP.MetricsAddr = *metricsAddr
		case "capture":
			cfg.Capture.Kind = *captureKind
		case "device":
			cfg.Capture.Device = *device
		case "still":
			cfg.Capture.StillPath = *stillPath
		case "detection":
			cfg.Detection.Kind = *detectKind
		case "model":
			cfg.Detection.ModelID = *modelID
		case "model-version":
			cfg.Detection.ModelVersion = *modelVer
		case "recognition":
			cfg.Recognition.Kind = *recognition
		case "mqtt-broker":
			cfg.MQTT.Broker = *mqttBroker
		case "log-level":
			level, parseErr := logger.ParseLevel(*logLevel)
			if parseErr != nil {
				err = parseErr
				return
			}
			cfg.Log.Level = level
		case "log-color":
			cfg.Log.Color = *logColor
		}
	})
	return err
}
