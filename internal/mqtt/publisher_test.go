package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/pipeline"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/pkg/types"
)

type sink struct {
	mu   sync.Mutex
	msgs []message
}

func (s *sink) publish(topic string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, message{topic, payload})
	return nil
}

func (s *sink) all() []message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]message(nil), s.msgs...)
}

func TestRecognitionPayload(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	data, err := RecognitionPayload(types.RecognitionResult{
		Window:     3,
		Index:      1,
		Detection:  types.Detection{Class: "recipient", BBox: types.BBox{X: 10, Y: 20, Width: 60, Height: 70}},
		Status:     types.RecognitionDone,
		Text:       "JANE DOE",
		Confidence: 88,
	}, at)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, float64(3), got["window"])
	assert.Equal(t, "recipient", got["class"])
	assert.Equal(t, "done", got["status"])
	assert.Equal(t, "JANE DOE", got["text"])
	assert.Equal(t, "JANE DOE", got["message"])
	assert.Equal(t, float64(88), got["confidence"])
	assert.Equal(t, "2026-01-02T03:04:05Z", got["timestamp"])
	assert.Equal(t, map[string]any{"x": 10.0, "y": 20.0, "width": 60.0, "height": 70.0}, got["bbox"])
}

func TestPublisherSkipsPendingEntries(t *testing.T) {
	p := New(Config{TopicPrefix: "dock/"})
	s := &sink{}
	p.publish = s.publish

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()

	p.RecognitionUpdated(types.RecognitionResult{Status: types.RecognitionPending})
	p.RecognitionUpdated(types.RecognitionResult{Status: types.RecognitionEmpty})
	p.StateChanged(pipeline.AwaitingBackend, errors.New("401"))

	require.Eventually(t, func() bool { return len(s.all()) == 2 }, time.Second, time.Millisecond)
	cancel()
	<-done

	msgs := s.all()
	assert.Equal(t, "dock/recognition", msgs[0].topic)
	assert.Contains(t, string(msgs[0].payload), `"message":"No text detected"`)
	assert.Equal(t, "dock/state", msgs[1].topic)
	assert.Contains(t, string(msgs[1].payload), `"state":"awaiting_backend"`)
	assert.Contains(t, string(msgs[1].payload), `"error":"401"`)
}

func TestStatePayload(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	data, err := StatePayload(pipeline.Running, nil, at)
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"running","timestamp":"2026-01-02T03:04:05Z"}`, string(data))
}

func TestPublisherSkipsUnencodablePayloads(t *testing.T) {
	orig := marshalJSON
	marshalJSON = func(any) ([]byte, error) { return nil, errors.New("unsupported value") }
	t.Cleanup(func() { marshalJSON = orig })

	p := New(Config{})
	p.StateChanged(pipeline.Running, nil)
	p.RecognitionUpdated(types.RecognitionResult{Status: types.RecognitionDone, Text: "a"})
	assert.Empty(t, p.queue)
}

func TestPublisherDropsWhenQueueFull(t *testing.T) {
	p := New(Config{QueueSize: 1})
	p.RecognitionUpdated(types.RecognitionResult{Status: types.RecognitionDone, Text: "a"})
	p.RecognitionUpdated(types.RecognitionResult{Status: types.RecognitionDone, Text: "b"})
	assert.Len(t, p.queue, 1)
}

func TestPublishWithoutConnection(t *testing.T) {
	p := New(Config{})
	assert.Error(t, p.publishToBroker("t", []byte("x")))
}
