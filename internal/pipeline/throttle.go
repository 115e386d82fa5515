package pipeline

import (
	"sync"
	"time"
)

// DefaultRecognitionInterval is the minimum spacing between recognition passes.
const DefaultRecognitionInterval = 3 * time.Second

// Throttler admits at most one recognition pass per interval, measured from
// the last admitted call. Rejected calls leave no trace.
type Throttler struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	admitted bool
}

// NewThrottler creates a Throttler. A non-positive interval uses the default.
func NewThrottler(interval time.Duration) *Throttler {
	if interval <= 0 {
		interval = DefaultRecognitionInterval
	}
	return &Throttler{interval: interval}
}

// ShouldRun reports whether a pass may start at now and, if so, makes now the
// new baseline.
func (t *Throttler) ShouldRun(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.admitted && now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	t.admitted = true
	return true
}

// Interval returns the configured interval.
func (t *Throttler) Interval() time.Duration {
	return t.interval
}
