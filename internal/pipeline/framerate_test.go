package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFrameRateEmpty(t *testing.T) {
	f := NewFrameRate(0)
	assert.Equal(t, 0.0, f.FPS())
	assert.Empty(t, f.Samples())
}

func TestFrameRateSteadyCadence(t *testing.T) {
	f := NewFrameRate(30)
	for i := 0; i < 10; i++ {
		f.Add(50 * time.Millisecond)
	}
	assert.InDelta(t, 20.0, f.FPS(), 1e-9)
}

func TestFrameRateEvictsOldest(t *testing.T) {
	f := NewFrameRate(30)
	for i := 1; i <= 35; i++ {
		f.Add(time.Duration(i) * time.Millisecond)
	}

	samples := f.Samples()
	assert.Len(t, samples, 30)
	assert.Equal(t, 6*time.Millisecond, samples[0])
	assert.Equal(t, 35*time.Millisecond, samples[29])

	var sum float64
	for i := 6; i <= 35; i++ {
		sum += float64(i) / 1000
	}
	assert.InDelta(t, 30/sum, f.FPS(), 1e-9)
}

func TestFrameRateZeroDurations(t *testing.T) {
	f := NewFrameRate(5)
	f.Add(0)
	f.Add(0)
	assert.Equal(t, 0.0, f.FPS())
}
