// ABOUTME: Server-sent event stream of newly stored pushes
// ABOUTME: Emits push_added events and keepalive comments until the client goes away

package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// EventPushAdded is the SSE event name for a newly stored push.
const EventPushAdded = "push_added"

// handleStream handles GET /api/pushes/stream.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events, subID := s.broadcaster.Subscribe(r.Context())
	defer s.broadcaster.Unsubscribe(subID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// An initial comment lets clients see the stream is open before any push.
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	interval := s.config.Stream.KeepaliveInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	keepalive := time.NewTicker(interval)
	defer keepalive.Stop()

	s.logger.Debug("stream opened", "sub_id", subID)
	defer s.logger.Debug("stream closed", "sub_id", subID)

	for {
		select {
		case <-r.Context().Done():
			return

		case rec, ok := <-events:
			if !ok {
				return
			}
			s.writeSSEEvent(w, EventPushAdded, toPushResponse(rec))
			flusher.Flush()

		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes a single SSE event to the response writer.
func (s *Server) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}
