package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// Event names sent on /process/stream.
const (
	eventProgress = "progress"
	eventResult   = "result"
	eventError    = "error"
	eventComplete = "complete"
)

// SSEWriter writes numbered Server-Sent Events. It is safe for concurrent use.
type SSEWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	next    int
}

// NewSSEWriter sends the stream headers. w must support flushing.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer cannot stream")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSEWriter{w: w, flusher: flusher, next: 1}, nil
}

// WriteEvent sends data as JSON under the given event name.
func (s *SSEWriter) WriteEvent(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", s.next, event, payload); err != nil {
		return err
	}
	s.next++
	s.flusher.Flush()
	return nil
}

// Ping writes a comment line so idle proxies keep the connection open.
func (s *SSEWriter) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteError sends an error event. Write failures are ignored; the client is gone.
func (s *SSEWriter) WriteError(message string) {
	_ = s.WriteEvent(eventError, map[string]string{"error": message})
}

// WriteComplete sends the terminal event of a run.
func (s *SSEWriter) WriteComplete(sessionID, status string) {
	_ = s.WriteEvent(eventComplete, map[string]string{"session_id": sessionID, "status": status})
}
