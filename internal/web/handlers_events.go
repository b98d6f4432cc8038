package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

var (
	eventsHeartbeatInterval = 15 * time.Second
	eventsRetryMillis       = 3000
)

// sseStream writes server-sent events with increasing ids.
type sseStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	nextID  uint64
}

func newSSEStream(w http.ResponseWriter) (*sseStream, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	return &sseStream{w: w, flusher: flusher, nextID: 1}, true
}

// send writes one JSON event.
func (s *sseStream) send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", s.nextID, event, data); err != nil {
		return err
	}
	s.nextID++
	s.flusher.Flush()
	return nil
}

// raw writes lines that are not events: comments and the retry hint.
func (s *sseStream) raw(format string, args ...any) error {
	if _, err := fmt.Fprintf(s.w, format, args...); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// handleEvents streams deck events as server-sent events. The first event
// is a "sessions" snapshot so clients need no separate list call.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	// Subscribe before the snapshot so nothing published in between is lost.
	events, cancel := s.deck.Subscribe()
	defer cancel()

	stream, ok := newSSEStream(w)
	if !ok {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "stream unavailable")
		return
	}
	if err := stream.raw("retry: %d\n\n", eventsRetryMillis); err != nil {
		return
	}
	if err := stream.send("sessions", s.sessionsSnapshot()); err != nil {
		return
	}

	heartbeat := time.NewTicker(eventsHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if err := stream.raw(": keepalive\n\n"); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := stream.send(string(ev.Type), ev); err != nil {
				return
			}
		}
	}
}
