package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/kozaktomas/face-gate/internal/web/middleware"
)

// sendSSEEvent writes one named event and flushes it.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	_, _ = io.WriteString(w, "event: "+eventType+"\n")
	_, _ = io.WriteString(w, "data: ")
	_, _ = io.Copy(w, bytes.NewReader(jsonData))
	_, _ = io.WriteString(w, "\n\n")
	flusher.Flush()
}

// setupSSEConnection sets the event-stream headers.
// On failure it writes an error response and returns false.
func setupSSEConnection(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return flusher, true
}

// streamSSEEvents sends the session status, then relays session events until the
// client disconnects or the session is closed. Idle streams get a comment line every keepAlive.
func streamSSEEvents(w http.ResponseWriter, r *http.Request, s *middleware.Session, keepAlive time.Duration) {
	flusher, ok := setupSSEConnection(w)
	if !ok {
		return
	}

	eventCh := s.Events().AddListener()
	defer s.Events().RemoveListener(eventCh)

	sendSSEEvent(w, flusher, "status", s.Status())

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			_, _ = io.WriteString(w, ": keep-alive\n\n")
			flusher.Flush()
		case event, ok := <-eventCh:
			if !ok {
				sendSSEEvent(w, flusher, "closed", map[string]string{"id": s.ID})
				return
			}
			sendSSEEvent(w, flusher, string(event.Type), event)
		}
	}
}
