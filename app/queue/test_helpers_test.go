package queue

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"reelforge/app/config"
	"reelforge/app/logger"
	"reelforge/app/model"
	"reelforge/app/progress"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue_test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&model.Task{}, &model.Workflow{}, &model.WorkflowStage{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// stubHandler is a configurable handler for dispatcher tests.
type stubHandler struct {
	kind     model.TaskKind
	validate func(payload json.RawMessage) error
	execute  func(ctx context.Context, payload json.RawMessage, sink progress.Sink) (json.RawMessage, error)
}

func (h *stubHandler) Kind() model.TaskKind { return h.kind }

func (h *stubHandler) Validate(payload json.RawMessage) error {
	if h.validate != nil {
		return h.validate(payload)
	}
	return nil
}

func (h *stubHandler) Execute(ctx context.Context, payload json.RawMessage, sink progress.Sink) (json.RawMessage, error) {
	if h.execute != nil {
		return h.execute(ctx, payload, sink)
	}
	return json.RawMessage(`{}`), nil
}

type testEnv struct {
	db   *gorm.DB
	hub  *progress.Hub
	disp *Dispatcher
}

// newTestEnv builds a dispatcher over a temp database with a fast poll
// interval. The dispatcher is not started; tests that need the queue loops
// call Start themselves.
func newTestEnv(t *testing.T, routes map[model.TaskKind]string, queues map[string]config.QueueConfig, policy RetryPolicy, handlers ...Handler) *testEnv {
	t.Helper()

	db := openTestDB(t)
	log := logger.NewNop()
	hub := progress.NewHub(log, time.Hour)

	registry := NewRegistry()
	for _, h := range handlers {
		registry.Register(h)
	}
	router := &Router{routes: routes}

	disp := NewDispatcher(db, log, registry, router, hub, Options{
		Queues:       queues,
		Policy:       policy,
		PollInterval: 10 * time.Millisecond,
	})
	return &testEnv{db: db, hub: hub, disp: disp}
}

func (e *testEnv) start(t *testing.T) {
	t.Helper()
	if err := e.disp.Start(); err != nil {
		t.Fatalf("dispatcher start failed: %v", err)
	}
	t.Cleanup(e.disp.Stop)
}

// waitForState polls until the task reaches the wanted state.
func waitForState(t *testing.T, db *gorm.DB, taskID string, want model.TaskState, timeout time.Duration) model.Task {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var task model.Task
	for time.Now().Before(deadline) {
		task = model.Task{}
		if err := db.First(&task, "id = ?", taskID).Error; err != nil {
			t.Fatalf("failed to load task %s: %v", taskID, err)
		}
		if task.State == want {
			return task
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s never reached %s, last state %s (error: %s)", taskID, want, task.State, task.LastError)
	return task
}

func waitForWorkflowState(t *testing.T, db *gorm.DB, workflowID string, want model.WorkflowState, timeout time.Duration) model.Workflow {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var workflow model.Workflow
	for time.Now().Before(deadline) {
		workflow = model.Workflow{}
		if err := db.First(&workflow, "id = ?", workflowID).Error; err != nil {
			t.Fatalf("failed to load workflow %s: %v", workflowID, err)
		}
		if workflow.State == want {
			return workflow
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("workflow %s never reached %s, last state %s (error: %s)", workflowID, want, workflow.State, workflow.LastError)
	return workflow
}

// singleQueue is a one-queue config shared by most dispatcher tests.
func singleQueue(workers int) map[string]config.QueueConfig {
	return map[string]config.QueueConfig{
		"work": {Workers: workers, SoftTimeLimit: 30, HardTimeLimit: 60},
	}
}

var testPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: 20 * time.Millisecond, MaxDelay: 200 * time.Millisecond}
