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

// WorkflowHandler exposes workflow submission and status.
type WorkflowHandler struct {
	logger      *logger.Logger
	coordinator *queue.Coordinator
}

// NewWorkflowHandler creates the workflow handler.
func NewWorkflowHandler(log *logger.Logger, coordinator *queue.Coordinator) *WorkflowHandler {
	return &WorkflowHandler{
		logger:      log,
		coordinator: coordinator,
	}
}

// CreateWorkflowRequest is the custom workflow submission body.
type CreateWorkflowRequest struct {
	Name   string            `json:"name"`
	Stages []queue.StageSpec `json:"stages" binding:"required"`
}

// CreateWorkflow starts a workflow from an explicit stage list.
func (h *WorkflowHandler) CreateWorkflow(c *gin.Context) {
	var req CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 400, "invalid request: "+err.Error())
		return
	}

	workflow, err := h.coordinator.Start(c.GetUint("user_id"), req.Name, req.Stages)
	if err != nil {
		if taskerr.IsValidation(err) || errors.Is(err, taskerr.ErrQueueUnavailable) {
			fail(c, http.StatusBadRequest, 400, err.Error())
			return
		}
		h.logger.Errorf("workflow submission failed: %v", err)
		fail(c, http.StatusInternalServerError, 500, "failed to start workflow")
		return
	}

	success(c, gin.H{"workflow_id": workflow.ID, "stages": len(workflow.Stages)}, "workflow started")
}

// CreateReelRequest is the canned reel workflow body.
type CreateReelRequest struct {
	Topic      string `json:"topic" binding:"required"`
	Audience   string `json:"audience"`
	Style      string `json:"style"`
	Duration   int    `json:"duration"`
	Voice      string `json:"voice"`
	Resolution string `json:"resolution"`
	Ultra      bool   `json:"ultra"`
	Platform   string `json:"platform"` // empty skips publishing
	Caption    string `json:"caption"`
}

// CreateReel starts the standard content -> tts -> video -> publish chain.
func (h *WorkflowHandler) CreateReel(c *gin.Context) {
	var req CreateReelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 400, "invalid request: "+err.Error())
		return
	}

	contentPayload, _ := json.Marshal(gin.H{
		"topic":    req.Topic,
		"audience": req.Audience,
		"style":    req.Style,
		"duration": req.Duration,
	})
	ttsPayload, _ := json.Marshal(gin.H{"voice": req.Voice})
	videoKind := model.TaskKindVideo
	if req.Ultra {
		videoKind = model.TaskKindRenderUltra
	}
	videoPayload, _ := json.Marshal(gin.H{
		"style":      req.Style,
		"resolution": req.Resolution,
	})

	stages := []queue.StageSpec{
		{Kind: model.TaskKindContent, Payload: contentPayload},
		{Kind: model.TaskKindTTS, Payload: ttsPayload},
		{Kind: videoKind, Payload: videoPayload},
	}
	if req.Platform != "" {
		publishPayload, _ := json.Marshal(gin.H{
			"platform": req.Platform,
			"caption":  req.Caption,
		})
		stages = append(stages, queue.StageSpec{Kind: model.TaskKindPublish, Payload: publishPayload})
	}

	workflow, err := h.coordinator.Start(c.GetUint("user_id"), "reel: "+req.Topic, stages)
	if err != nil {
		h.logger.Errorf("reel workflow submission failed: %v", err)
		fail(c, http.StatusInternalServerError, 500, "failed to start workflow")
		return
	}

	success(c, gin.H{"workflow_id": workflow.ID, "stages": len(workflow.Stages)}, "workflow started")
}

// GetWorkflow returns a workflow with its stages.
func (h *WorkflowHandler) GetWorkflow(c *gin.Context) {
	workflow, err := h.coordinator.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, taskerr.ErrNotFound) {
			fail(c, http.StatusNotFound, 404, "workflow not found")
			return
		}
		fail(c, http.StatusInternalServerError, 500, "failed to load workflow")
		return
	}
	success(c, workflow, "ok")
}

// ListWorkflows returns the caller's workflows.
func (h *WorkflowHandler) ListWorkflows(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	workflows, err := h.coordinator.List(c.GetUint("user_id"), limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, 500, "failed to list workflows")
		return
	}
	success(c, workflows, "ok")
}
