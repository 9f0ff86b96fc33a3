package handler

import (
	"io"
	"net/http"
	"time"

	"reelforge/app/logger"
	"reelforge/app/progress"

	"github.com/gin-gonic/gin"
)

// keepAliveInterval is how often the stream pings an idle client.
const keepAliveInterval = 25 * time.Second

// ProgressHandler exposes the live progress stream and the latest-value
// lookup for reconnecting clients.
type ProgressHandler struct {
	logger *logger.Logger
	hub    *progress.Hub
}

// NewProgressHandler creates the progress handler.
func NewProgressHandler(log *logger.Logger, hub *progress.Hub) *ProgressHandler {
	return &ProgressHandler{
		logger: log,
		hub:    hub,
	}
}

// Stream pushes the caller's progress events over SSE. Events for one task
// arrive in non-decreasing progress order; a client that reconnects after
// a gap catches up through GetLatest.
func (h *ProgressHandler) Stream(c *gin.Context) {
	userID := c.GetUint("user_id")
	events, cancel := h.hub.Subscribe(progress.UserKey(userID))
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	h.logger.Debugf("progress stream opened for user %d", userID)
	defer h.logger.Debugf("progress stream closed for user %d", userID)

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("progress", ev)
			return true
		case <-ticker.C:
			c.SSEvent("ping", time.Now().Unix())
			return true
		case <-clientGone:
			return false
		}
	})
}

// GetLatest returns the last known progress of a task.
func (h *ProgressHandler) GetLatest(c *gin.Context) {
	ev, ok := h.hub.Latest(c.Param("id"))
	if !ok {
		fail(c, http.StatusNotFound, 404, "no progress recorded for task")
		return
	}
	success(c, ev, "ok")
}
