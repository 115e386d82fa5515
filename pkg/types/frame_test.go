package types

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameDimensions(t *testing.T) {
	f := &Frame{Image: image.NewRGBA(image.Rect(0, 0, 640, 480))}
	assert.Equal(t, 640, f.Width())
	assert.Equal(t, 480, f.Height())

	var missing *Frame
	assert.Zero(t, missing.Width())
	assert.Zero(t, (&Frame{}).Height())
}

func TestBBoxEdges(t *testing.T) {
	b := BBox{X: 100, Y: 100, Width: 80, Height: 40}
	assert.Equal(t, 60.0, b.Left())
	assert.Equal(t, 80.0, b.Top())
}

func TestRecognitionResultMessage(t *testing.T) {
	cases := []struct {
		result RecognitionResult
		want   string
		final  bool
	}{
		{RecognitionResult{Status: RecognitionPending}, "Processing...", false},
		{RecognitionResult{Status: RecognitionEmpty}, "No text detected", true},
		{RecognitionResult{Status: RecognitionError, Error: "timeout"}, "Recognition error: timeout", true},
		{RecognitionResult{Status: RecognitionDone, Text: "ACME 42"}, "ACME 42", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.result.Message())
		assert.Equal(t, tc.final, tc.result.Final())
	}
}
