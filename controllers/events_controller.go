package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const sseHeartbeatInterval = 30 * time.Second

// StreamEvents is the SSE endpoint for live import updates. Each
// observer gets its own subscription; events published before the
// connection are never replayed. A periodic heartbeat comment keeps
// idle connections from being reclaimed by proxies.
func StreamEvents(c *gin.Context) {
	w := c.Writer
	flusher, ok := w.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering
	w.WriteHeader(http.StatusOK)

	clientID, events := eventHub.Subscribe()
	defer eventHub.Unsubscribe(clientID)

	fmt.Fprintf(w, "data: {\"type\":\"connected\",\"client_id\":%q}\n\n", clientID)
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

// EventsStatus reports how many observers are currently connected.
func EventsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": eventHub.SubscriberCount(),
		"timestamp":         time.Now(),
	})
}
