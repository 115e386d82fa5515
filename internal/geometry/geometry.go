// Package geometry maps between intrinsic video pixels, the displayed video
// element and the overlay canvas.
package geometry

import (
	"math"
	"sync"
)

// Size is a width/height pair in pixels. Displayed sizes may be fractional.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether both dimensions are finite and positive.
func (s Size) Valid() bool {
	return positive(s.Width) && positive(s.Height)
}

// Ratio returns width/height.
func (s Size) Ratio() float64 {
	return s.Width / s.Height
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// Layout positions the overlay canvas over the displayed video.
type Layout struct {
	// Canvas is the drawing surface resolution; always the intrinsic size so
	// detections can be drawn in video pixel space.
	Canvas Size `json:"canvas"`
	// Fitted is the largest intrinsic-ratio rectangle inside the element.
	Fitted Size    `json:"fitted"`
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
}

// FitSize returns the largest rectangle with the intrinsic aspect ratio that
// fits inside element. The second result is false for degenerate input.
func FitSize(intrinsic, element Size) (Size, bool) {
	if !intrinsic.Valid() || !element.Valid() {
		return Size{}, false
	}

	videoRatio := intrinsic.Ratio()
	fitted := element
	if element.Ratio() > videoRatio {
		// Short and wide element: height is the binding edge.
		fitted.Width = element.Height * videoRatio
	} else {
		fitted.Height = element.Width / videoRatio
	}
	return fitted, true
}

// Fit computes the full overlay layout, centering the fitted canvas in viewport.
func Fit(intrinsic, element, viewport Size) (Layout, bool) {
	fitted, ok := FitSize(intrinsic, element)
	if !ok || !viewport.Valid() {
		return Layout{}, false
	}
	return Layout{
		Canvas: intrinsic,
		Fitted: fitted,
		Left:   (viewport.Width - fitted.Width) / 2,
		Top:    (viewport.Height - fitted.Height) / 2,
	}, true
}

// Tracker remembers the last good layout so a degenerate resize (for example a
// video element that has not decoded its first frame yet) leaves it unchanged.
type Tracker struct {
	mu     sync.Mutex
	layout Layout
	valid  bool
}

// Update recomputes the layout. It returns the current layout and whether any
// valid layout has been computed so far.
func (t *Tracker) Update(intrinsic, element, viewport Size) (Layout, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if layout, ok := Fit(intrinsic, element, viewport); ok {
		t.layout = layout
		t.valid = true
	}
	return t.layout, t.valid
}

// Current returns the last good layout.
func (t *Tracker) Current() (Layout, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.layout, t.valid
}
