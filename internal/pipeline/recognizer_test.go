package pipeline

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/pkg/types"
)

func readyRecognizer(t *testing.T, fn func(ctx context.Context, img image.Image, opts RecognizeOptions) (TextResult, error)) *Recognizer {
	t.Helper()
	backend := &fakeTextBackend{worker: &fakeWorker{RecognizeFunc: fn}}
	r := NewRecognizer(backend, DefaultRecognizerConfig())
	require.True(t, r.Warmup(context.Background()))
	require.Eventually(t, r.Ready, time.Second, time.Millisecond)
	return r
}

func TestRecognizerNotReadyReportsError(t *testing.T) {
	r := NewRecognizer(&fakeTextBackend{}, DefaultRecognizerConfig())
	assert.False(t, r.Ready())

	res := r.Recognize(context.Background(), types.Detection{Class: "label"}, image.NewNRGBA(image.Rect(0, 0, 1, 1)))
	assert.Equal(t, types.RecognitionError, res.Status)
	assert.Equal(t, ErrRecognizerUnavailable.Error(), res.Error)
	require.NoError(t, r.Close())
}

func TestRecognizerWarmupPassesLanguageAndEngine(t *testing.T) {
	backend := &fakeTextBackend{worker: &fakeWorker{}}
	r := NewRecognizer(backend, DefaultRecognizerConfig())
	r.Warmup(context.Background())
	require.Eventually(t, r.Ready, time.Second, time.Millisecond)

	backend.mu.Lock()
	assert.Equal(t, "eng", backend.gotLang)
	assert.Equal(t, 1, backend.gotEngine)
	backend.mu.Unlock()

	require.NoError(t, r.Close())
	assert.True(t, backend.worker.closed.Load())
}

func TestRecognizerRetriesAfterInitFailure(t *testing.T) {
	backend := &fakeTextBackend{failures: 1, worker: &fakeWorker{}}
	r := NewRecognizer(backend, DefaultRecognizerConfig())

	require.True(t, r.Warmup(context.Background()))
	require.Eventually(t, func() bool { return r.Err() != nil }, time.Second, time.Millisecond)
	assert.False(t, r.Ready())

	var initErr *BackendInitError
	require.ErrorAs(t, r.Err(), &initErr)
	assert.Equal(t, "recognition", initErr.Backend)

	require.True(t, r.Warmup(context.Background()))
	require.Eventually(t, r.Ready, time.Second, time.Millisecond)
	assert.NoError(t, r.Err())
	assert.Equal(t, int32(2), backend.calls.Load())

	// A ready recognizer does not initialize again.
	assert.False(t, r.Warmup(context.Background()))
	require.NoError(t, r.Close())
}

func TestRecognizerMapsResults(t *testing.T) {
	cases := []struct {
		name   string
		out    TextResult
		err    error
		status types.RecognitionStatus
		text   string
		conf   float64
		errMsg string
	}{
		{"trimmed text", TextResult{Text: "  ACME 42\n", Confidence: 87.6}, nil, types.RecognitionDone, "ACME 42", 88, ""},
		{"no confidence", TextResult{Text: "x"}, nil, types.RecognitionDone, "x", 0, ""},
		{"whitespace only", TextResult{Text: " \n\t", Confidence: 50}, nil, types.RecognitionEmpty, "", 0, ""},
		{"backend error", TextResult{}, errors.New("engine crashed"), types.RecognitionError, "", 0, "engine crashed"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var gotOpts RecognizeOptions
			r := readyRecognizer(t, func(ctx context.Context, img image.Image, opts RecognizeOptions) (TextResult, error) {
				gotOpts = opts
				return tc.out, tc.err
			})
			defer r.Close()

			det := types.Detection{Class: "label", BBox: types.BBox{X: 10, Y: 10, Width: 60, Height: 60}}
			res := r.Recognize(context.Background(), det, image.NewNRGBA(image.Rect(0, 0, 60, 60)))

			assert.Equal(t, tc.status, res.Status)
			assert.Equal(t, tc.text, res.Text)
			assert.Equal(t, tc.conf, res.Confidence)
			assert.Equal(t, tc.errMsg, res.Error)
			assert.Equal(t, det, res.Detection)
			assert.Equal(t, DefaultCharWhitelist, gotOpts.CharWhitelist)
			assert.Equal(t, 6, gotOpts.PageSegMode)
		})
	}
}

func TestRecognizerCloseWithoutWorker(t *testing.T) {
	r := NewRecognizer(&fakeTextBackend{}, RecognizerConfig{})
	assert.NoError(t, r.Close())
	assert.False(t, r.Warmup(context.Background()))
}
