package shm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/pkg/types"
)

var (
	// ErrNoFrame is returned while the ring holds no JPEG frame.
	ErrNoFrame = errors.New("shm: no frame available")
	// ErrUnsupportedFormat is returned for non-JPEG ring entries.
	ErrUnsupportedFormat = errors.New("shm: frame is not JPEG")
)

// FrameReader yields the newest ring entry.
type FrameReader interface {
	LatestFrame() (*FrameSnapshot, bool)
}

// FrameNotifier blocks until the writer signals a new ring entry or timeout
// elapses, returning ErrTimeout in that case. Reader implements it over the
// ring's semaphore.
type FrameNotifier interface {
	WaitNewFrame(timeout time.Duration) error
}

// Source adapts the frame ring to a detection loop frame source. Frames are
// decoded once per frame number.
type Source struct {
	reader   FrameReader
	notifier FrameNotifier
	poll     time.Duration

	mu   sync.Mutex
	last *types.Frame
}

// NewSource creates a source over reader. While waiting for the first frame it
// blocks on the ring's new-frame signal when reader is a FrameNotifier, and
// polls every poll interval otherwise.
func NewSource(reader FrameReader, poll time.Duration) *Source {
	if poll <= 0 {
		poll = 30 * time.Millisecond
	}
	s := &Source{reader: reader, poll: poll}
	if n, ok := reader.(FrameNotifier); ok {
		s.notifier = n
	}
	return s
}

// Frame decodes the newest JPEG frame.
func (s *Source) Frame() (*types.Frame, error) {
	snap, ok := s.reader.LatestFrame()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !ok {
		if s.last != nil {
			return s.last, nil
		}
		return nil, ErrNoFrame
	}
	if s.last != nil && s.last.Seq == snap.FrameNumber {
		return s.last, nil
	}
	if snap.Format != FormatJPEG {
		return nil, fmt.Errorf("%w (format %d)", ErrUnsupportedFormat, snap.Format)
	}

	img, err := imaging.Decode(bytes.NewReader(snap.Data))
	if err != nil {
		return nil, fmt.Errorf("decode frame %d: %w", snap.FrameNumber, err)
	}
	s.last = &types.Frame{Image: img, Seq: snap.FrameNumber, CapturedAt: snap.Timestamp}
	return s.last, nil
}

// WaitReady waits until a frame decodes.
func (s *Source) WaitReady(ctx context.Context) error {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		if _, err := s.Frame(); err == nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.notifier != nil {
			// Bounded by poll so cancellation is noticed
			err := s.notifier.WaitNewFrame(s.poll)
			if err == nil || errors.Is(err, ErrTimeout) {
				continue
			}
			logger.Debug("Source", "Frame signal unavailable, polling: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
