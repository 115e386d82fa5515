// Package gocvcam reads frames from a camera or stream through OpenCV.
package gocvcam

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gocv.io/x/gocv"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/capture"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/pkg/types"
)

// Config selects the capture device.
type Config struct {
	Device string // Camera index ("0") or stream URL
	Width  int    // Requested resolution; 0 keeps the device default
	Height int
}

// Camera continuously reads frames into a capture.Latest.
type Camera struct {
	cfg    Config
	latest *capture.Latest
	log    logger.Module
}

// New creates a camera source. Call Run to start reading.
func New(cfg Config) *Camera {
	return &Camera{cfg: cfg, latest: capture.NewLatest(), log: logger.For("Camera")}
}

// WaitReady blocks until the first frame has been read.
func (c *Camera) WaitReady(ctx context.Context) error {
	return c.latest.WaitReady(ctx)
}

// Frame returns the newest frame.
func (c *Camera) Frame() (*types.Frame, error) {
	return c.latest.Frame()
}

// device converts a numeric device string to a camera index.
func device(s string) interface{} {
	if id, err := strconv.Atoi(s); err == nil {
		return id
	}
	return s
}

// Run reads frames until ctx is cancelled.
func (c *Camera) Run(ctx context.Context) error {
	vc, err := gocv.OpenVideoCapture(device(c.cfg.Device))
	if err != nil {
		return fmt.Errorf("open capture device %q: %w", c.cfg.Device, err)
	}
	defer vc.Close()

	if c.cfg.Width > 0 && c.cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(c.cfg.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(c.cfg.Height))
	}
	vc.Set(gocv.VideoCaptureBufferSize, 1)
	c.log.Info("Opened capture device %s", c.cfg.Device)

	mat := gocv.NewMat()
	defer mat.Close()

	misses := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		if ok := vc.Read(&mat); !ok || mat.Empty() {
			misses++
			if misses%30 == 1 {
				c.log.Warn("No frame from %s (%d misses)", c.cfg.Device, misses)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}
		misses = 0

		img, err := mat.ToImage()
		if err != nil {
			c.log.Warn("Frame conversion failed: %v", err)
			continue
		}
		seq := c.latest.Store(img, time.Now())
		if seq == 1 {
			c.log.Info("First frame %dx%d", mat.Cols(), mat.Rows())
		}
	}
}
