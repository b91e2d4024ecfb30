package stats

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// StreamHandler serves GET /v1/campaigns/:id/stream as server-sent events:
// the current snapshot first, then every published update, with a periodic
// keepalive comment.
func StreamHandler(agg *Aggregator, hub *Hub, keepalive time.Duration) gin.HandlerFunc {
	if keepalive <= 0 {
		keepalive = 25 * time.Second
	}
	return func(c *gin.Context) {
		id := c.Param("id")
		if id == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "id required"})
			return
		}

		updates, cancel := hub.Subscribe(Channel(id))
		defer cancel()

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		if initial, err := json.Marshal(agg.Snapshot(id)); err == nil {
			c.SSEvent("stats", string(initial))
			c.Writer.Flush()
		}

		ticker := time.NewTicker(keepalive)
		defer ticker.Stop()
		ctx := c.Request.Context()

		c.Stream(func(w io.Writer) bool {
			select {
			case <-ctx.Done():
				return false
			case payload, ok := <-updates:
				if !ok {
					return false
				}
				c.SSEvent("stats", string(payload))
				return true
			case <-ticker.C:
				_, _ = io.WriteString(w, ": keepalive\n\n")
				return true
			}
		})
	}
}
