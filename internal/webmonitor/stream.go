package webmonitor

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"net/http"
	"time"

	"github.com/disintegration/imaging"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/render"
)

// placeholderJPEG is sent to MJPEG clients before the first frame and while
// the pipeline is not presenting.
func placeholderJPEG() ([]byte, error) {
	img := imaging.New(640, 480, color.NRGBA{R: 32, G: 32, B: 32, A: 255})
	var buf bytes.Buffer
	if err := render.EncodeJPEG(&buf, img, 75); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// streamMJPEG writes frames from frameCh as a multipart MJPEG response until
// the client disconnects or the channel closes.
func streamMJPEG(ctx context.Context, w http.ResponseWriter, frameCh <-chan []byte, idle time.Duration) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	placeholder, err := placeholderJPEG()
	if err != nil {
		http.Error(w, "Failed to render frame", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")

	timer := time.NewTimer(0) // Placeholder first so the client renders something
	defer timer.Stop()

	for {
		var jpegData []byte
		select {
		case <-ctx.Done():
			return
		case data, ok := <-frameCh:
			if !ok {
				return
			}
			jpegData = data
		case <-timer.C:
			jpegData = placeholder
		}
		timer.Reset(idle)

		if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpegData)); err != nil {
			logger.Debug("MJPEG", "Client disconnected during write: %v", err)
			return
		}
		if _, err := w.Write(jpegData); err != nil {
			logger.Debug("MJPEG", "Client disconnected during frame write: %v", err)
			return
		}
		if _, err := w.Write([]byte("\r\n")); err != nil {
			logger.Debug("MJPEG", "Client disconnected during delimiter write: %v", err)
			return
		}
		flusher.Flush()
	}
}

// streamEvents writes pre-serialized events as named SSE events. initial is
// written before anything from eventCh.
func streamEvents(ctx context.Context, w http.ResponseWriter, eventCh <-chan *SerializedEvent, initial []*SerializedEvent, useProtobuf bool, keepAlive time.Duration) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	if useProtobuf {
		w.Header().Set("X-Content-Format", "application/protobuf")
	} else {
		w.Header().Set("X-Content-Format", "application/json")
	}

	write := func(event *SerializedEvent) error {
		data := event.JSONData
		if useProtobuf {
			data = event.ProtobufData
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Name, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	for _, event := range initial {
		if err := write(event); err != nil {
			logger.Debug("SSE", "Client disconnected during initial write: %v", err)
			return
		}
	}
	if len(initial) == 0 {
		flusher.Flush()
	}

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			if err := write(event); err != nil {
				logger.Debug("SSE", "Client disconnected during event write: %v", err)
				return
			}
		case <-ticker.C:
			// Keepalive comment so proxies do not time the stream out
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				logger.Debug("SSE", "Client disconnected during keepalive: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}
