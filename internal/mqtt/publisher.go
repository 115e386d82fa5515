// Package mqtt publishes finished recognition results to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/pipeline"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/pkg/types"
)

// Config holds the configuration for the MQTT publisher.
type Config struct {
	Broker         string // e.g. tcp://localhost:1883; empty disables publishing
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	QoS            byte
	Retain         bool
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	QueueSize      int
}

// DefaultConfig returns publisher defaults without a broker.
func DefaultConfig() Config {
	return Config{
		ClientID:       "label-annotator",
		TopicPrefix:    "label-annotator",
		ConnectTimeout: 30 * time.Second,
		PublishTimeout: 10 * time.Second,
		QueueSize:      64,
	}
}

type message struct {
	topic   string
	payload []byte
}

// Publisher forwards pipeline events to the broker from its own goroutine so
// observer callbacks never wait on the network.
type Publisher struct {
	pipeline.NopObserver

	cfg     Config
	client  mqtt.Client
	publish func(topic string, payload []byte) error
	queue   chan message
	log     logger.Module
}

// New creates a Publisher. Call Connect, then Run.
func New(cfg Config) *Publisher {
	def := DefaultConfig()
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = def.TopicPrefix
	}
	if cfg.ClientID == "" {
		cfg.ClientID = def.ClientID
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	p := &Publisher{cfg: cfg, queue: make(chan message, cfg.QueueSize), log: logger.For("MQTT")}
	p.publish = p.publishToBroker
	return p
}

// Connect establishes the broker connection.
func (p *Publisher) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.cfg.Broker)
	opts.SetClientID(p.cfg.ClientID)
	opts.SetUsername(p.cfg.Username)
	opts.SetPassword(p.cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		p.log.Info("Connected to MQTT broker: %s", p.cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.log.Warn("Connection to MQTT broker lost: %s, error: %v", p.cfg.Broker, err)
	})

	p.client = mqtt.NewClient(opts)
	token := p.client.Connect()

	timeout := p.cfg.ConnectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connection error: %w", err)
	}
	return nil
}

func (p *Publisher) publishToBroker(topic string, payload []byte) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("not connected to MQTT broker")
	}
	token := p.client.Publish(topic, p.cfg.QoS, p.cfg.Retain, payload)
	if !token.WaitTimeout(p.cfg.PublishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	return token.Error()
}

// Run publishes queued messages until ctx is cancelled, then disconnects.
func (p *Publisher) Run(ctx context.Context) error {
	defer func() {
		if p.client != nil && p.client.IsConnected() {
			p.client.Disconnect(250)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-p.queue:
			if err := p.publish(msg.topic, msg.payload); err != nil {
				p.log.Warn("Publish to %s failed: %v", msg.topic, err)
			}
		}
	}
}

func (p *Publisher) topic(name string) string {
	return strings.TrimRight(p.cfg.TopicPrefix, "/") + "/" + name
}

func (p *Publisher) enqueue(topic string, payload []byte) {
	select {
	case p.queue <- message{topic: topic, payload: payload}:
	default:
		p.log.Warn("Queue full, dropping message for %s", topic)
	}
}

// RecognitionUpdated publishes final entries.
func (p *Publisher) RecognitionUpdated(result types.RecognitionResult) {
	if !result.Final() {
		return
	}
	payload, err := RecognitionPayload(result, time.Now())
	if err != nil {
		p.log.Error("Encode recognition: %v", err)
		return
	}
	p.enqueue(p.topic("recognition"), payload)
}

// StateChanged publishes loop state transitions.
func (p *Publisher) StateChanged(state pipeline.State, err error) {
	payload, encErr := StatePayload(state, err, time.Now())
	if encErr != nil {
		p.log.Error("Encode state: %v", encErr)
		return
	}
	p.enqueue(p.topic("state"), payload)
}

type statePayload struct {
	State     string `json:"state"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// marshalJSON encodes every outgoing payload.
var marshalJSON = json.Marshal

// StatePayload encodes a loop state transition for the state topic.
func StatePayload(state pipeline.State, err error, at time.Time) ([]byte, error) {
	msg := statePayload{State: state.String(), Timestamp: at.UTC().Format(time.RFC3339Nano)}
	if err != nil {
		msg.Error = err.Error()
	}
	return marshalJSON(msg)
}

type recognitionPayload struct {
	Window     uint64                  `json:"window"`
	Index      int                     `json:"index"`
	Class      string                  `json:"class"`
	BBox       types.BBox              `json:"bbox"`
	Status     types.RecognitionStatus `json:"status"`
	Text       string                  `json:"text"`
	Message    string                  `json:"message"`
	Confidence float64                 `json:"confidence,omitempty"`
	Timestamp  string                  `json:"timestamp"`
}

// RecognitionPayload encodes one result for the recognition topic.
func RecognitionPayload(result types.RecognitionResult, at time.Time) ([]byte, error) {
	return marshalJSON(recognitionPayload{
		Window:     result.Window,
		Index:      result.Index,
		Class:      result.Detection.Class,
		BBox:       result.Detection.BBox,
		Status:     result.Status,
		Text:       result.Text,
		Message:    result.Message(),
		Confidence: result.Confidence,
		Timestamp:  at.UTC().Format(time.RFC3339Nano),
	})
}
