package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"reelforge/app/logger"
	"reelforge/app/model"
	"reelforge/app/taskerr"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StageSpec describes one planned workflow stage. The payload is a
// template; from the second stage on, the previous stage's result is
// injected into it under the "input" key before submission. Templates
// instead of builder closures keep chains resumable across restarts.
type StageSpec struct {
	Kind     model.TaskKind  `json:"kind" binding:"required"`
	Payload  json.RawMessage `json:"payload"`
	Optional bool            `json:"optional"`
}

// Coordinator chains dependent tasks into workflows. Stages within one
// workflow are strictly sequential; independent workflows run in parallel
// bounded only by their stages' queue concurrency.
type Coordinator struct {
	db         *gorm.DB
	log        *logger.Logger
	dispatcher *Dispatcher

	// Serializes workflow advancement; terminal hooks can fire from
	// several worker goroutines at once.
	mu sync.Mutex
}

// NewCoordinator wires the coordinator into the dispatcher's terminal hook.
func NewCoordinator(db *gorm.DB, log *logger.Logger, dispatcher *Dispatcher) *Coordinator {
	c := &Coordinator{
		db:         db,
		log:        log,
		dispatcher: dispatcher,
	}
	dispatcher.SetTerminalHook(c.OnTaskTerminal)
	return c
}

// Start validates the stage list, persists the workflow and submits the
// first stage.
func (c *Coordinator) Start(userID uint, name string, stages []StageSpec) (*model.Workflow, error) {
	if len(stages) == 0 {
		return nil, taskerr.Validation("workflow needs at least one stage")
	}
	for i, stage := range stages {
		if _, err := c.dispatcher.router.Route(stage.Kind); err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
	}

	workflow := &model.Workflow{
		ID:     uuid.NewString(),
		Name:   name,
		State:  model.WorkflowStateRunning,
		UserID: userID,
	}
	stageRows := make([]model.WorkflowStage, len(stages))
	for i, stage := range stages {
		payload := stage.Payload
		if len(payload) == 0 {
			payload = json.RawMessage("{}")
		}
		stageRows[i] = model.WorkflowStage{
			WorkflowID: workflow.ID,
			Index:      i,
			Kind:       stage.Kind,
			Payload:    string(payload),
			Optional:   stage.Optional,
		}
	}

	err := c.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(workflow).Error; err != nil {
			return err
		}
		return tx.Create(&stageRows).Error
	})
	if err != nil {
		c.log.Errorf("failed to persist workflow: %v", err)
		return nil, err
	}

	if err := c.submitStage(workflow, &stageRows[0], nil); err != nil {
		c.failWorkflow(workflow, 0, err)
		return workflow, err
	}

	c.log.Infof("workflow started: id=%s name=%s stages=%d", workflow.ID, name, len(stages))
	workflow.Stages = stageRows
	return workflow, nil
}

// Get returns a workflow with its stages.
func (c *Coordinator) Get(workflowID string) (*model.Workflow, error) {
	var workflow model.Workflow
	err := c.db.Preload("Stages", func(db *gorm.DB) *gorm.DB {
		return db.Order("workflow_stages.`index` ASC")
	}).First(&workflow, "id = ?", workflowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, taskerr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &workflow, nil
}

// List returns a user's workflows, newest first.
func (c *Coordinator) List(userID uint, limit int) ([]model.Workflow, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var workflows []model.Workflow
	err := c.db.Where("user_id = ?", userID).
		Order("created_at DESC").Limit(limit).
		Find(&workflows).Error
	return workflows, err
}

// OnTaskTerminal advances or halts the owning workflow of a finished task.
// Installed as the dispatcher's terminal hook.
func (c *Coordinator) OnTaskTerminal(task *model.Task) {
	if task.WorkflowID == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	workflow, err := c.Get(*task.WorkflowID)
	if err != nil {
		c.log.Errorf("terminal task %s references unknown workflow %s: %v", task.ID, *task.WorkflowID, err)
		return
	}

	switch task.State {
	case model.TaskStateSuccess:
		// A requeued stage that succeeds resurrects a failed workflow.
		if workflow.State == model.WorkflowStateFailed && workflow.FailedStage != nil && *workflow.FailedStage == task.StageIndex {
			c.log.Infof("workflow %s resumes after requeued stage %d succeeded", workflow.ID, task.StageIndex)
			c.db.Model(workflow).Updates(map[string]interface{}{
				"state":        model.WorkflowStateRunning,
				"failed_stage": nil,
				"last_error":   "",
				"completed_at": nil,
			})
			workflow.State = model.WorkflowStateRunning
			workflow.CompletedAt = nil
		}
		if workflow.State != model.WorkflowStateRunning {
			return
		}
		c.advance(workflow, task, json.RawMessage(task.Result))
	case model.TaskStateFailure, model.TaskStateRevoked:
		if workflow.State != model.WorkflowStateRunning {
			return
		}
		stage := stageAt(workflow, task.StageIndex)
		if stage != nil && stage.Optional {
			c.log.Warnf("optional stage %d of workflow %s failed, continuing: %s", task.StageIndex, workflow.ID, task.LastError)
			c.advance(workflow, task, nil)
			return
		}
		c.failWorkflow(workflow, task.StageIndex, errors.New(task.LastError))
	}
}

// advance submits the stage after the finished one, or completes the
// workflow when it was the last. Artifacts of completed stages are kept
// either way; there is no rollback.
func (c *Coordinator) advance(workflow *model.Workflow, task *model.Task, result json.RawMessage) {
	next := stageAt(workflow, task.StageIndex+1)
	if next == nil {
		now := time.Now()
		c.db.Model(workflow).Updates(map[string]interface{}{
			"state":         model.WorkflowStateCompleted,
			"current_stage": task.StageIndex,
			"completed_at":  now,
		})
		c.log.Infof("workflow completed: id=%s name=%s", workflow.ID, workflow.Name)
		return
	}

	if err := c.submitStage(workflow, next, result); err != nil {
		c.failWorkflow(workflow, next.Index, err)
	}
}

// submitStage merges the previous result into the stage template and
// submits the stage task.
func (c *Coordinator) submitStage(workflow *model.Workflow, stage *model.WorkflowStage, input json.RawMessage) error {
	payload, err := mergeInput(json.RawMessage(stage.Payload), input)
	if err != nil {
		return taskerr.Validation("stage %d payload template: %v", stage.Index, err)
	}

	task, err := c.dispatcher.submit(workflow.UserID, stage.Kind, payload, 5, &workflow.ID, stage.Index)
	if err != nil {
		return err
	}

	if err := c.db.Model(stage).Update("task_id", task.ID).Error; err != nil {
		return err
	}
	if err := c.db.Model(workflow).Update("current_stage", stage.Index).Error; err != nil {
		return err
	}

	c.log.Infof("workflow %s submitted stage %d (%s) as task %s", workflow.ID, stage.Index, stage.Kind, task.ID)
	return nil
}

// failWorkflow halts the chain. Later stages are never submitted.
func (c *Coordinator) failWorkflow(workflow *model.Workflow, stageIndex int, cause error) {
	now := time.Now()
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	err := c.db.Model(workflow).Updates(map[string]interface{}{
		"state":        model.WorkflowStateFailed,
		"failed_stage": stageIndex,
		"last_error":   msg,
		"completed_at": now,
	}).Error
	if err != nil {
		c.log.Errorf("failed to mark workflow %s as failed: %v", workflow.ID, err)
		return
	}
	c.log.Errorf("workflow failed: id=%s stage=%d error=%s", workflow.ID, stageIndex, msg)
}

func stageAt(workflow *model.Workflow, index int) *model.WorkflowStage {
	for i := range workflow.Stages {
		if workflow.Stages[i].Index == index {
			return &workflow.Stages[i]
		}
	}
	return nil
}

// mergeInput sets the previous stage's result as the "input" field of the
// payload template.
func mergeInput(template, input json.RawMessage) (json.RawMessage, error) {
	if len(input) == 0 {
		return template, nil
	}
	payload := make(map[string]json.RawMessage)
	if len(template) > 0 {
		if err := json.Unmarshal(template, &payload); err != nil {
			return nil, err
		}
	}
	payload["input"] = input
	return json.Marshal(payload)
}
