package metrics

import (
	"context"
	"errors"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	// Detection loop counters
	Cycles          atomic.Uint64
	FrameErrors     atomic.Uint64
	InferenceErrors atomic.Uint64
	StaleDropped    atomic.Uint64 // Cycles replaced before the presenter picked them up
	Presented       atomic.Uint64

	// Recognition counters
	RecognitionWindows   atomic.Uint64
	RecognitionThrottled atomic.Uint64
	RegionsSkipped       atomic.Uint64 // Detections below the minimum region size
	Recognitions         atomic.Uint64
	RecognitionErrors    atomic.Uint64

	// Latency tracking
	InferLatencyMs     atomic.Uint64
	RecognizeLatencyMs atomic.Uint64

	// Backend state
	DetectionReady   atomic.Uint64 // 0 = awaiting, 1 = running
	RecognitionReady atomic.Uint64
	BackendInitFails atomic.Uint64

	// Stream client tracking
	ActiveClients atomic.Uint64
	TotalClients  atomic.Uint64

	fpsBits atomic.Uint64

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.registerPrometheusMetrics()

	return m
}

func (m *Metrics) counter(name, help string, v *atomic.Uint64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: name, Help: help},
		func() float64 { return float64(v.Load()) },
	))
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	// Detection loop
	m.counter("annotator_cycles_total", "Total successful detection cycles", &m.Cycles)
	m.counter("annotator_frame_errors_total", "Total frame capture errors", &m.FrameErrors)
	m.counter("annotator_inference_errors_total", "Total detection inference errors", &m.InferenceErrors)
	m.counter("annotator_stale_cycles_dropped_total", "Cycles superseded before rendering", &m.StaleDropped)
	m.counter("annotator_cycles_presented_total", "Cycles rendered to the overlay", &m.Presented)

	// Recognition
	m.counter("annotator_recognition_windows_total", "Accepted recognition windows", &m.RecognitionWindows)
	m.counter("annotator_recognition_throttled_total", "Recognition triggers rejected by the throttle", &m.RecognitionThrottled)
	m.counter("annotator_regions_skipped_total", "Detections too small for recognition", &m.RegionsSkipped)
	m.counter("annotator_recognitions_total", "Completed recognition calls", &m.Recognitions)
	m.counter("annotator_recognition_errors_total", "Failed recognition calls", &m.RecognitionErrors)

	// Latency
	m.counter("annotator_infer_latency_ms", "Last detection inference latency in milliseconds", &m.InferLatencyMs)
	m.counter("annotator_recognize_latency_ms", "Last recognition latency in milliseconds", &m.RecognizeLatencyMs)

	// Backend state
	m.counter("annotator_detection_ready", "Detection backend ready (0=awaiting, 1=running)", &m.DetectionReady)
	m.counter("annotator_recognition_ready", "Recognition backend ready (0=no, 1=yes)", &m.RecognitionReady)
	m.counter("annotator_backend_init_failures_total", "Backend initialization failures", &m.BackendInitFails)

	// Clients
	m.counter("annotator_active_clients", "Number of connected stream clients", &m.ActiveClients)
	m.counter("annotator_total_clients", "Total stream clients connected", &m.TotalClients)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "annotator_fps",
			Help: "Detection cycles per second over the sample window",
		},
		m.FPS,
	))
}

// SetFPS stores the current detection rate.
func (m *Metrics) SetFPS(fps float64) {
	m.fpsBits.Store(math.Float64bits(fps))
}

// FPS returns the last stored detection rate.
func (m *Metrics) FPS() float64 {
	return math.Float64frombits(m.fpsBits.Load())
}

// UpdateInferLatency records the duration of the last detection call
func (m *Metrics) UpdateInferLatency(d time.Duration) {
	m.InferLatencyMs.Store(uint64(d.Milliseconds()))
}

// UpdateRecognizeLatency records the duration of the last recognition call
func (m *Metrics) UpdateRecognizeLatency(d time.Duration) {
	m.RecognizeLatencyMs.Store(uint64(d.Milliseconds()))
}

// SetFlag stores 1 for true and 0 for false.
func SetFlag(v *atomic.Uint64, on bool) {
	if on {
		v.Store(1)
		return
	}
	v.Store(0)
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs the metrics HTTP server until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
