package handler

import (
	"net/http"
	"time"

	"reelforge/app/config"
	"reelforge/app/logger"
	"reelforge/app/queue"

	"github.com/gin-gonic/gin"
)

// AdminHandler exposes the queue administration operations.
type AdminHandler struct {
	config     *config.Config
	logger     *logger.Logger
	dispatcher *queue.Dispatcher
	recovery   *queue.Recovery
}

// NewAdminHandler creates the admin handler.
func NewAdminHandler(cfg *config.Config, log *logger.Logger, dispatcher *queue.Dispatcher, recovery *queue.Recovery) *AdminHandler {
	return &AdminHandler{
		config:     cfg,
		logger:     log,
		dispatcher: dispatcher,
		recovery:   recovery,
	}
}

// RequeueFailedRequest bounds the requeue window.
type RequeueFailedRequest struct {
	MaxAgeHours int `json:"max_age_hours"`
}

// RequeueFailed puts recent failures back into their queues.
func (h *AdminHandler) RequeueFailed(c *gin.Context) {
	var req RequeueFailedRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		fail(c, http.StatusBadRequest, 400, "invalid request: "+err.Error())
		return
	}
	if req.MaxAgeHours <= 0 {
		req.MaxAgeHours = h.config.Sweep.RequeueMaxAgeHours
	}

	count, err := h.recovery.RequeueFailed(time.Duration(req.MaxAgeHours) * time.Hour)
	if err != nil {
		h.logger.Errorf("requeue of failed tasks failed: %v", err)
		fail(c, http.StatusInternalServerError, 500, "failed to requeue tasks")
		return
	}
	success(c, gin.H{"requeued": count}, "ok")
}

// CleanupStuck force-fails tasks stuck past their hard time limit.
func (h *AdminHandler) CleanupStuck(c *gin.Context) {
	failed, err := h.recovery.CleanupStuck(c.Query("queue"))
	if err != nil {
		h.logger.Errorf("stuck-task cleanup failed: %v", err)
		fail(c, http.StatusInternalServerError, 500, "failed to clean up stuck tasks")
		return
	}
	success(c, gin.H{"failed": failed, "count": len(failed)}, "ok")
}

// ScaleQueueRequest carries the desired worker count.
type ScaleQueueRequest struct {
	Workers int `json:"workers" binding:"required"`
}

// ScaleQueue changes a queue's concurrency at runtime.
func (h *AdminHandler) ScaleQueue(c *gin.Context) {
	var req ScaleQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 400, "invalid request: "+err.Error())
		return
	}

	if err := h.dispatcher.ScaleQueue(c.Param("queue"), req.Workers); err != nil {
		fail(c, http.StatusBadRequest, 400, err.Error())
		return
	}
	success(c, gin.H{"queue": c.Param("queue"), "workers": req.Workers}, "queue scaled")
}
