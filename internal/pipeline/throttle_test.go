package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThrottlerAcceptsFirstCall(t *testing.T) {
	th := NewThrottler(0)
	assert.Equal(t, DefaultRecognitionInterval, th.Interval())
	assert.True(t, th.ShouldRun(time.Unix(0, 0)))
}

func TestThrottlerWindow(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	th := NewThrottler(3 * time.Second)

	steps := []struct {
		offset time.Duration
		want   bool
	}{
		{0, true},
		{1000 * time.Millisecond, false},
		{2999 * time.Millisecond, false},
		{3000 * time.Millisecond, true},
		{4000 * time.Millisecond, false},
		{5999 * time.Millisecond, false},
		{6000 * time.Millisecond, true},
	}
	for _, s := range steps {
		assert.Equal(t, s.want, th.ShouldRun(t0.Add(s.offset)), "at +%v", s.offset)
	}
}

func TestThrottlerRejectionsDoNotMoveBaseline(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	th := NewThrottler(3 * time.Second)

	assert.True(t, th.ShouldRun(t0))
	for ms := 100; ms < 3000; ms += 100 {
		assert.False(t, th.ShouldRun(t0.Add(time.Duration(ms)*time.Millisecond)))
	}
	assert.True(t, th.ShouldRun(t0.Add(3*time.Second)))
}

func TestThrottlerAtMostOncePerInterval(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	th := NewThrottler(3 * time.Second)

	var accepted []time.Time
	for ms := 0; ms <= 20000; ms += 33 {
		now := t0.Add(time.Duration(ms) * time.Millisecond)
		if th.ShouldRun(now) {
			accepted = append(accepted, now)
		}
	}
	for i := 1; i < len(accepted); i++ {
		assert.GreaterOrEqual(t, accepted[i].Sub(accepted[i-1]), 3*time.Second)
	}
	assert.Len(t, accepted, 7)
}
