package model

import (
	"time"
)

// TaskState is the lifecycle state of a task.
type TaskState string

const (
	TaskStatePending TaskState = "PENDING"
	TaskStateActive  TaskState = "ACTIVE"
	TaskStateRetry   TaskState = "RETRY"
	TaskStateSuccess TaskState = "SUCCESS"
	TaskStateFailure TaskState = "FAILURE"
	TaskStateRevoked TaskState = "REVOKED"
)

// Terminal reports whether the state is final. Terminal tasks are never
// mutated again and emit no further progress.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateSuccess, TaskStateFailure, TaskStateRevoked:
		return true
	}
	return false
}

// TaskKind identifies the handler that executes a task.
type TaskKind string

const (
	TaskKindContent     TaskKind = "content"
	TaskKindTTS         TaskKind = "tts"
	TaskKindVideo       TaskKind = "video"
	TaskKindRenderUltra TaskKind = "render_ultra"
	TaskKindPublish     TaskKind = "publish"
	TaskKindMaintenance TaskKind = "maintenance"
)

// Task is one unit of asynchronous work.
type Task struct {
	ID            string     `json:"id" gorm:"primaryKey;size:36"`
	Kind          TaskKind   `json:"kind" gorm:"not null;index"`
	Queue         string     `json:"queue" gorm:"not null;index"`
	Payload       string     `json:"payload"` // JSON document
	Priority      int        `json:"priority" gorm:"default:5"`
	State         TaskState  `json:"state" gorm:"default:'PENDING';index"`
	Attempts      int        `json:"attempts" gorm:"default:0"`
	UserID        uint       `json:"user_id" gorm:"index"`
	WorkflowID    *string    `json:"workflow_id,omitempty" gorm:"index"`
	StageIndex    int        `json:"stage_index"`
	CreatedAt     time.Time  `json:"created_at" gorm:"index"`
	UpdatedAt     time.Time  `json:"updated_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	HeartbeatAt   *time.Time `json:"-"`
	NextAttemptAt *time.Time `json:"-" gorm:"index"`
	Result        string     `json:"result,omitempty"`  // JSON document
	LastError     string     `json:"last_error,omitempty"`
}

// TableName sets the table name.
func (Task) TableName() string {
	return "tasks"
}
