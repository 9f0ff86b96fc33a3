package model

import (
	"time"
)

// WorkflowState is the lifecycle state of a workflow.
type WorkflowState string

const (
	WorkflowStateRunning   WorkflowState = "RUNNING"
	WorkflowStateCompleted WorkflowState = "COMPLETED"
	WorkflowStateFailed    WorkflowState = "FAILED"
)

// Workflow is an ordered chain of tasks forming one logical job,
// e.g. content -> tts -> video -> publish.
type Workflow struct {
	ID           string          `json:"id" gorm:"primaryKey;size:36"`
	Name         string          `json:"name"`
	State        WorkflowState   `json:"state" gorm:"default:'RUNNING';index"`
	UserID       uint            `json:"user_id" gorm:"index"`
	CurrentStage int             `json:"current_stage"`
	FailedStage  *int            `json:"failed_stage,omitempty"`
	LastError    string          `json:"last_error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	Stages       []WorkflowStage `json:"stages,omitempty" gorm:"foreignKey:WorkflowID"`
}

// TableName sets the table name.
func (Workflow) TableName() string {
	return "workflows"
}

// WorkflowStage is one planned step of a workflow. The stage payload is a
// template; when the stage is submitted the previous stage's result is
// injected under the "input" key.
type WorkflowStage struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	WorkflowID string    `json:"workflow_id" gorm:"index;not null;size:36"`
	Index      int       `json:"index"`
	Kind       TaskKind  `json:"kind"`
	Payload    string    `json:"payload"` // JSON template
	Optional   bool      `json:"optional" gorm:"default:false"` // best-effort stage, failure does not halt the workflow
	TaskID     *string   `json:"task_id,omitempty" gorm:"size:36"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName sets the table name.
func (WorkflowStage) TableName() string {
	return "workflow_stages"
}
