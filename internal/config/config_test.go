package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/logger"
)

func validConfig() Config {
	cfg := Default()
	cfg.Detection.AccessToken = "secret"
	return cfg
}

func TestDefaultsMatchPipeline(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "parcel_recipient_details", cfg.Detection.ModelID)
	assert.Equal(t, "3", cfg.Detection.ModelVersion)
	assert.Equal(t, 3*time.Second, cfg.Recognition.Interval)
	assert.Equal(t, 50.0, cfg.Recognition.MinRegionSize)
	assert.Equal(t, 33*time.Millisecond, cfg.Loop.TickInterval)
	assert.Equal(t, 30, cfg.Loop.FrameRateWindow)
	assert.Equal(t, "eng", cfg.Recognition.Language)
	assert.Equal(t, 6, cfg.Recognition.PageSegMode)

	// The access token has no default.
	assert.Error(t, cfg.Validate())
	assert.NoError(t, validConfig().Validate())
}

func TestParseOverlaysDefaults(t *testing.T) {
	cfg := Default()
	err := Parse([]byte(`
capture:
  kind: still
  still_path: /tmp/parcel.jpg
recognition:
  kind: vision
  interval: 5s
  min_region_size: 80
log:
  level: debug
`), &cfg)
	require.NoError(t, err)

	assert.Equal(t, CaptureStill, cfg.Capture.Kind)
	assert.Equal(t, "/tmp/parcel.jpg", cfg.Capture.StillPath)
	assert.Equal(t, RecognitionVision, cfg.Recognition.Kind)
	assert.Equal(t, 5*time.Second, cfg.Recognition.Interval)
	assert.Equal(t, 80.0, cfg.Recognition.MinRegionSize)
	assert.Equal(t, logger.DEBUG, cfg.Log.Level)
	// Untouched sections keep their defaults.
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "eng", cfg.Recognition.Language)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	cfg := Default()
	assert.Error(t, Parse([]byte("capture:\n  kindd: still\n"), &cfg))
}

func TestParseEmptyDocument(t *testing.T) {
	cfg := Default()
	require.NoError(t, Parse(nil, &cfg))
	assert.Equal(t, Default(), cfg)
}

func TestLoadReadsFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "annotator.yaml")
	require.NoError(t, os.WriteFile(path, []byte("detection:\n  model_version: \"4\"\n"), 0o644))
	t.Setenv(EnvAccessToken, "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "4", cfg.Detection.ModelVersion)
	assert.Equal(t, "from-env", cfg.Detection.AccessToken)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyEnvKeepsFileValuesWhenUnset(t *testing.T) {
	cfg := Default()
	cfg.MQTT.Password = "file"
	cfg.ApplyEnv(func(string) string { return "" })
	assert.Equal(t, "file", cfg.MQTT.Password)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"shm detection needs no token", func(c *Config) {
			c.Detection.Kind = DetectionSHM
			c.Detection.AccessToken = ""
		}, true},
		{"unknown capture", func(c *Config) { c.Capture.Kind = "rtsp" }, false},
		{"still without path", func(c *Config) { c.Capture.Kind = CaptureStill }, false},
		{"unknown recognition", func(c *Config) { c.Recognition.Kind = "easyocr" }, false},
		{"recognition off", func(c *Config) { c.Recognition.Kind = RecognitionNone }, true},
		{"zero interval", func(c *Config) { c.Recognition.Interval = 0 }, false},
		{"zero tick", func(c *Config) { c.Loop.TickInterval = 0 }, false},
		{"bad quality", func(c *Config) { c.HTTP.MJPEGQuality = 0 }, false},
		{"missing model", func(c *Config) { c.Detection.ModelID = "" }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSettingsMapping(t *testing.T) {
	cfg := validConfig()
	cfg.Recognition.Interval = 7 * time.Second
	cfg.Recognition.PageSegMode = 11

	loop := cfg.LoopSettings()
	assert.Equal(t, 7*time.Second, loop.RecognitionInterval)
	assert.Equal(t, "parcel_recipient_details", loop.Model.ID)
	assert.Equal(t, "secret", loop.Model.AccessToken)

	rec := cfg.RecognizerSettings()
	assert.Equal(t, 11, rec.Options.PageSegMode)
	assert.Equal(t, cfg.Recognition.CharWhitelist, rec.Options.CharWhitelist)
}
