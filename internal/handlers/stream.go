package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sshwatch/sshwatch/internal/broadcast"
	"github.com/sshwatch/sshwatch/internal/logging"
)

// StreamHandler serves the live event stream over server-sent events: one
// JSON-encoded message per frame, starting with the synthetic connected
// acknowledgment.
type StreamHandler struct {
	hub    *broadcast.Hub
	logger *logging.Logger
}

func NewStreamHandler(hub *broadcast.Hub, logger *logging.Logger) *StreamHandler {
	return &StreamHandler{hub: hub, logger: logger}
}

// Stream subscribes the connection to a broadcast topic and forwards frames
// until the client disconnects. The subscription is torn down when the
// request context ends; the client never needs an explicit unsubscribe.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	topic := broadcast.TopicEvents
	if r.URL.Query().Get("topic") == string(broadcast.TopicSuspicious) {
		topic = broadcast.TopicSuspicious
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := h.hub.Subscribe(topic)
	defer sub.Close()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-sub.C():
			if !ok {
				// Hub shut down.
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.ErrorContext(r.Context(), "Failed to encode stream message", logging.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
