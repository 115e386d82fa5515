package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitSizeWideElementClampsWidth(t *testing.T) {
	fitted, ok := FitSize(Size{1920, 1080}, Size{800, 300})
	require.True(t, ok)
	assert.Equal(t, 300.0, fitted.Height)
	assert.InDelta(t, 533.33, fitted.Width, 0.01)
}

func TestFitSizeTallElementClampsHeight(t *testing.T) {
	fitted, ok := FitSize(Size{1920, 1080}, Size{400, 900})
	require.True(t, ok)
	assert.Equal(t, 400.0, fitted.Width)
	assert.InDelta(t, 225.0, fitted.Height, 1e-9)
}

func TestFitSizeEqualRatio(t *testing.T) {
	fitted, ok := FitSize(Size{640, 480}, Size{320, 240})
	require.True(t, ok)
	assert.Equal(t, Size{320, 240}, fitted)
}

func TestFitCentersInViewport(t *testing.T) {
	layout, ok := Fit(Size{1920, 1080}, Size{800, 300}, Size{1000, 500})
	require.True(t, ok)
	assert.Equal(t, Size{1920, 1080}, layout.Canvas)
	assert.InDelta(t, (1000-533.333)/2, layout.Left, 0.01)
	assert.InDelta(t, 100.0, layout.Top, 1e-9)
}

func TestFitRejectsDegenerateInput(t *testing.T) {
	cases := []struct {
		name                         string
		intrinsic, element, viewport Size
	}{
		{"zero intrinsic width", Size{0, 480}, Size{800, 600}, Size{800, 600}},
		{"zero intrinsic height", Size{640, 0}, Size{800, 600}, Size{800, 600}},
		{"zero element", Size{640, 480}, Size{0, 0}, Size{800, 600}},
		{"negative viewport", Size{640, 480}, Size{800, 600}, Size{-1, 600}},
		{"nan element", Size{640, 480}, Size{math.NaN(), 600}, Size{800, 600}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := Fit(tc.intrinsic, tc.element, tc.viewport)
			assert.False(t, ok)
		})
	}
}

func TestTrackerKeepsPriorLayoutOnDegenerateInput(t *testing.T) {
	var tr Tracker
	_, ok := tr.Current()
	assert.False(t, ok)

	first, ok := tr.Update(Size{640, 480}, Size{800, 600}, Size{800, 600})
	require.True(t, ok)

	second, ok := tr.Update(Size{0, 0}, Size{800, 600}, Size{800, 600})
	require.True(t, ok)
	assert.Equal(t, first, second)
	assert.False(t, math.IsNaN(second.Fitted.Width))

	current, _ := tr.Current()
	assert.Equal(t, first, current)
}
