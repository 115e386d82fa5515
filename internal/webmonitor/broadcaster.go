package webmonitor

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/render"
)

// hub fans values out to subscriber channels. A subscriber whose buffer is
// full misses the value instead of blocking the publisher.
type hub[T any] struct {
	name string

	mu      sync.Mutex
	clients map[int]chan T
	nextID  int
}

func newHub[T any](name string) *hub[T] {
	return &hub[T]{name: name, clients: make(map[int]chan T)}
}

func (h *hub[T]) subscribe() (int, chan T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan T, 2) // Buffer 2 values to avoid blocking
	h.clients[id] = ch

	logger.Debug(h.name, "Client #%d subscribed (total clients: %d)", id, len(h.clients))
	return id, ch
}

func (h *hub[T]) unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.clients[id]; ok {
		close(ch)
		delete(h.clients, id)
		logger.Debug(h.name, "Client #%d unsubscribed (remaining clients: %d)", id, len(h.clients))
	}
}

func (h *hub[T]) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub[T]) broadcast(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.clients {
		select {
		case ch <- v:
		default:
			// Client too slow, skip this value for this client
		}
	}
}

// FrameBroadcaster encodes annotated frames as JPEG and fans them out to
// MJPEG clients. Nothing is encoded while no client is connected.
type FrameBroadcaster struct {
	hub     *hub[[]byte]
	quality int

	mu        sync.Mutex
	last      []byte
	skipCount int
}

// NewFrameBroadcaster creates a broadcaster encoding at the given JPEG quality.
func NewFrameBroadcaster(quality int) *FrameBroadcaster {
	return &FrameBroadcaster{hub: newHub[[]byte]("FrameBroadcaster"), quality: quality}
}

// Subscribe adds a client. The most recent frame, if any, is queued at once
// unless newer frames already filled the client's buffer.
func (fb *FrameBroadcaster) Subscribe() (int, <-chan []byte) {
	id, ch := fb.hub.subscribe()
	fb.mu.Lock()
	if fb.last != nil {
		select {
		case ch <- fb.last:
		default:
		}
	}
	fb.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a client.
func (fb *FrameBroadcaster) Unsubscribe(id int) {
	fb.hub.unsubscribe(id)
}

// Clients returns the number of connected clients.
func (fb *FrameBroadcaster) Clients() int {
	return fb.hub.count()
}

// Publish composes overlay onto frame and sends the JPEG to every client.
func (fb *FrameBroadcaster) Publish(frame, overlay image.Image) {
	if frame == nil {
		return
	}
	if fb.hub.count() == 0 {
		fb.mu.Lock()
		fb.skipCount++
		if fb.skipCount%300 == 0 {
			logger.Debug("FrameBroadcaster", "No clients connected, skipped %d frames", fb.skipCount)
		}
		fb.last = nil
		fb.mu.Unlock()
		return
	}

	annotated := frame
	if overlay != nil {
		annotated = render.Compose(frame, overlay)
	}
	var buf bytes.Buffer
	if err := render.EncodeJPEG(&buf, annotated, fb.quality); err != nil {
		logger.Warn("FrameBroadcaster", "JPEG encode failed: %v", err)
		return
	}
	data := buf.Bytes()

	fb.mu.Lock()
	fb.skipCount = 0
	fb.last = data
	fb.mu.Unlock()

	fb.hub.broadcast(data)
}

// SerializedEvent holds one SSE event pre-serialized in both formats so it is
// encoded once regardless of the number of clients.
type SerializedEvent struct {
	Name         string
	JSONData     []byte // Pre-serialized JSON
	ProtobufData []byte // google.protobuf.Struct, base64 encoded for SSE
}

// EncodeEvent serializes payload, which must marshal to a JSON object.
func EncodeEvent(name string, payload any) (*SerializedEvent, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", name, err)
	}

	var fields map[string]any
	if err := json.Unmarshal(jsonData, &fields); err != nil {
		return nil, fmt.Errorf("%s event is not an object: %w", name, err)
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("convert %s event: %w", name, err)
	}
	pbData, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("protobuf marshal %s event: %w", name, err)
	}

	return &SerializedEvent{
		Name:         name,
		JSONData:     jsonData,
		ProtobufData: []byte(base64.StdEncoding.EncodeToString(pbData)),
	}, nil
}

// EventBroadcaster fans monitor events out to SSE clients.
type EventBroadcaster struct {
	hub *hub[*SerializedEvent]
}

// NewEventBroadcaster creates an empty broadcaster.
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{hub: newHub[*SerializedEvent]("EventBroadcaster")}
}

// Subscribe adds a client and returns a channel for receiving events.
func (eb *EventBroadcaster) Subscribe() (int, <-chan *SerializedEvent) {
	return eb.hub.subscribe()
}

// Unsubscribe removes a client.
func (eb *EventBroadcaster) Unsubscribe(id int) {
	eb.hub.unsubscribe(id)
}

// Publish serializes and sends an event when at least one client listens.
func (eb *EventBroadcaster) Publish(name string, payload any) {
	if eb.hub.count() == 0 {
		return
	}
	event, err := EncodeEvent(name, payload)
	if err != nil {
		logger.Error("EventBroadcaster", "%v", err)
		return
	}
	eb.hub.broadcast(event)
}
