package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// sseStream writes server-sent events and flushes after each one.
type sseStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// startSSE sets the event stream headers. On failure it writes an error
// response and returns false.
func startSSE(w http.ResponseWriter) (*sseStream, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseStream{w: w, flusher: flusher}, true
}

// send writes one event. A write error means the client is gone.
func (s *sseStream) send(eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, jsonData); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
