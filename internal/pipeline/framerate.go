package pipeline

import (
	"sync"
	"time"
)

// DefaultFrameRateWindow is the number of inter-cycle samples kept for FPS.
const DefaultFrameRateWindow = 30

// FrameRate keeps a bounded FIFO window of inter-cycle durations.
type FrameRate struct {
	mu      sync.Mutex
	max     int
	samples []time.Duration
}

// NewFrameRate creates a window holding at most size samples.
func NewFrameRate(size int) *FrameRate {
	if size <= 0 {
		size = DefaultFrameRateWindow
	}
	return &FrameRate{max: size, samples: make([]time.Duration, 0, size)}
}

// Add records a sample, evicting the oldest one when the window is full.
func (f *FrameRate) Add(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.samples) == f.max {
		copy(f.samples, f.samples[1:])
		f.samples = f.samples[:f.max-1]
	}
	f.samples = append(f.samples, d)
}

// FPS returns sampleCount / sum(sample seconds), or 0 with no usable samples.
func (f *FrameRate) FPS() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	var total float64
	for _, d := range f.samples {
		total += d.Seconds()
	}
	if total <= 0 {
		return 0
	}
	return float64(len(f.samples)) / total
}

// Samples returns a copy of the window, oldest first.
func (f *FrameRate) Samples() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]time.Duration, len(f.samples))
	copy(out, f.samples)
	return out
}
