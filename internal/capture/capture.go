// Package capture holds the most recent video frame for the detection loop.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/pkg/types"
)

// ErrNoFrame is returned before the first frame arrives.
var ErrNoFrame = errors.New("capture: no frame available")

// Latest keeps only the newest frame. Older frames are dropped on Store.
type Latest struct {
	mu    sync.RWMutex
	frame *types.Frame
	seq   uint64

	ready chan struct{}
	once  sync.Once
}

// NewLatest creates an empty holder.
func NewLatest() *Latest {
	return &Latest{ready: make(chan struct{})}
}

// Store publishes img as the current frame and returns its sequence number.
func (l *Latest) Store(img image.Image, capturedAt time.Time) uint64 {
	l.mu.Lock()
	l.seq++
	seq := l.seq
	l.frame = &types.Frame{Image: img, Seq: seq, CapturedAt: capturedAt}
	l.mu.Unlock()

	l.once.Do(func() { close(l.ready) })
	return seq
}

// Frame returns the current frame.
func (l *Latest) Frame() (*types.Frame, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.frame == nil {
		return nil, ErrNoFrame
	}
	return l.frame, nil
}

// WaitReady blocks until the first frame is stored.
func (l *Latest) WaitReady(ctx context.Context) error {
	select {
	case <-l.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewStill returns a holder that always serves img.
func NewStill(img image.Image) *Latest {
	l := NewLatest()
	l.Store(img, time.Now())
	return l
}

// OpenStill loads an image file as a still source.
func OpenStill(path string) (*Latest, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("open still image %s: %w", path, err)
	}
	return NewStill(img), nil
}
