package webmonitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/cors"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/geometry"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/metrics"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/render"
)

// Server serves the monitor page, the annotated stream and the JSON/SSE API.
type Server struct {
	cfg     Config
	monitor *Monitor
	metrics *metrics.Metrics
}

// NewServer returns a server for monitor. m may be nil.
func NewServer(cfg Config, monitor *Monitor, m *metrics.Metrics) *Server {
	if m == nil {
		m = metrics.New()
	}
	return &Server{
		cfg:     cfg.withDefaults(),
		monitor: monitor,
		metrics: m,
	}
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /stream", s.handleStream)
	mux.HandleFunc("GET /overlay.png", s.handleOverlay)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/layout", s.handleLayout)
	mux.HandleFunc("GET /api/recognitions", s.handleRecognitions)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	// Empty AllowedOrigins allows every origin.
	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	})
	return c.Handler(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("WebMonitor", "Listening on %s", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownWait)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown web monitor: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) trackClient() func() {
	s.metrics.ActiveClients.Add(1)
	s.metrics.TotalClients.Add(1)
	return func() { s.metrics.ActiveClients.Add(^uint64(0)) }
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	defer s.trackClient()()

	id, frameCh := s.monitor.frames.Subscribe()
	defer s.monitor.frames.Unsubscribe(id)
	streamMJPEG(r.Context(), w, frameCh, s.cfg.IdleFrame)
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	overlay := s.monitor.Overlay()
	if overlay == nil {
		writeJSONWithStatus(w, map[string]any{"error": "no frame presented yet"}, http.StatusServiceUnavailable)
		return
	}

	var buf bytes.Buffer
	if err := render.EncodePNG(&buf, overlay); err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.monitor.Status())
}

func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var values [4]float64
	for i, key := range []string{"element_w", "element_h", "viewport_w", "viewport_h"} {
		v, err := strconv.ParseFloat(q.Get(key), 64)
		if err != nil {
			writeJSONWithStatus(w, map[string]any{"error": fmt.Sprintf("invalid %s", key)}, http.StatusBadRequest)
			return
		}
		values[i] = v
	}

	element := geometry.Size{Width: values[0], Height: values[1]}
	viewport := geometry.Size{Width: values[2], Height: values[3]}
	layout, changed, ok := s.monitor.Layout(element, viewport)
	if !ok {
		writeJSONWithStatus(w, map[string]any{"error": "layout unavailable"}, http.StatusConflict)
		return
	}
	writeJSON(w, LayoutResponse{Layout: layout, Changed: changed})
}

func (s *Server) handleRecognitions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.monitor.Recognitions())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	defer s.trackClient()()

	id, eventCh := s.monitor.events.Subscribe()
	defer s.monitor.events.Unsubscribe(id)

	// Content negotiation based on Accept header
	accept := r.Header.Get("Accept")
	useProtobuf := strings.Contains(accept, "application/protobuf") ||
		strings.Contains(accept, "application/x-protobuf")

	var initial []*SerializedEvent
	if event, err := EncodeEvent("state", s.monitor.statePayload()); err == nil {
		initial = append(initial, event)
	}
	if event, err := EncodeEvent("recognitions", s.monitor.Recognitions()); err == nil {
		initial = append(initial, event)
	}

	streamEvents(r.Context(), w, eventCh, initial, useProtobuf, s.cfg.KeepAlive)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status": "ok",
		"state":  s.monitor.statePayload().State,
	})
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":%q}`, err.Error())
	}
}
