package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"reelforge/app/logger"
	"reelforge/app/model"
	"reelforge/app/queue"
	"reelforge/app/taskerr"

	"github.com/gin-gonic/gin"
)

// TaskHandler exposes task submission and status.
type TaskHandler struct {
	logger     *logger.Logger
	dispatcher *queue.Dispatcher
}

// NewTaskHandler creates the task handler.
func NewTaskHandler(log *logger.Logger, dispatcher *queue.Dispatcher) *TaskHandler {
	return &TaskHandler{
		logger:     log,
		dispatcher: dispatcher,
	}
}

// SubmitTaskRequest is the task submission body.
type SubmitTaskRequest struct {
	Kind     model.TaskKind  `json:"kind" binding:"required"`
	Payload  json.RawMessage `json:"payload"`
	Priority *int            `json:"priority"` // 0-10, defaults to 5
}

// SubmitTask accepts a new task.
func (h *TaskHandler) SubmitTask(c *gin.Context) {
	var req SubmitTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 400, "invalid request: "+err.Error())
		return
	}

	priority := 5
	if req.Priority != nil {
		priority = *req.Priority
	}

	task, err := h.dispatcher.Submit(c.GetUint("user_id"), req.Kind, req.Payload, priority)
	if err != nil {
		switch {
		case taskerr.IsValidation(err):
			fail(c, http.StatusBadRequest, 400, err.Error())
		case errors.Is(err, taskerr.ErrQueueUnavailable):
			fail(c, http.StatusBadRequest, 400, "unknown task kind: "+string(req.Kind))
		default:
			h.logger.Errorf("task submission failed: %v", err)
			fail(c, http.StatusInternalServerError, 500, "failed to submit task")
		}
		return
	}

	success(c, gin.H{
		"task_id":  task.ID,
		"queue":    task.Queue,
		"priority": task.Priority,
		"state":    task.State,
	}, "task submitted")
}

// GetTask returns a task snapshot.
func (h *TaskHandler) GetTask(c *gin.Context) {
	task, err := h.dispatcher.GetTask(c.Param("id"))
	if err != nil {
		if errors.Is(err, taskerr.ErrNotFound) {
			fail(c, http.StatusNotFound, 404, "task not found")
			return
		}
		fail(c, http.StatusInternalServerError, 500, "failed to load task")
		return
	}
	success(c, task, "ok")
}

// ListTasks returns tasks filtered by queue and state.
func (h *TaskHandler) ListTasks(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	state := model.TaskState(c.Query("state"))
	if state == "" {
		state = model.TaskStateActive
	}

	tasks, err := h.dispatcher.ListTasks(c.Query("queue"), state, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, 500, "failed to list tasks")
		return
	}
	success(c, tasks, "ok")
}

// GetQueueStats returns the per-queue counters.
func (h *TaskHandler) GetQueueStats(c *gin.Context) {
	stats, err := h.dispatcher.Stats()
	if err != nil {
		fail(c, http.StatusInternalServerError, 500, "failed to collect queue stats")
		return
	}
	success(c, stats, "ok")
}

// CancelTask revokes a task.
func (h *TaskHandler) CancelTask(c *gin.Context) {
	err := h.dispatcher.Cancel(c.Param("id"))
	if err != nil {
		if errors.Is(err, taskerr.ErrNotFound) {
			fail(c, http.StatusNotFound, 404, "task not found")
			return
		}
		fail(c, http.StatusInternalServerError, 500, "failed to cancel task")
		return
	}
	success(c, nil, "cancellation requested")
}
