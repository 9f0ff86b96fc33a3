package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"reelforge/app/config"
	"reelforge/app/logger"
	"reelforge/app/model"
	"reelforge/app/progress"
	"reelforge/app/taskerr"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// defaultPollInterval is how often each queue loop looks for claimable work.
const defaultPollInterval = 500 * time.Millisecond

// Options configures the dispatcher.
type Options struct {
	Queues       map[string]config.QueueConfig
	Policy       RetryPolicy
	PollInterval time.Duration
}

// Dispatcher runs the per-queue worker pools. It is the only component,
// together with the recovery manager, that mutates task state; every
// transition is a guarded update so that the two cannot race.
type Dispatcher struct {
	db       *gorm.DB
	log      *logger.Logger
	registry *Registry
	router   *Router
	hub      *progress.Hub
	policy   RetryPolicy
	poll     time.Duration

	queues map[string]*queueWorkers

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	activeMu sync.Mutex
	active   map[string]*activeTask

	onTerminal func(*model.Task)
}

// queueWorkers holds one queue's concurrency state. Permits are a counter
// under the mutex: in-flight tasks stay counted across a resize, so the
// queue never runs more than the current ceiling. Shrinking takes effect
// as running tasks finish.
type queueWorkers struct {
	name string
	soft time.Duration
	hard time.Duration

	mu       sync.Mutex
	capacity int
	inflight int
}

func (q *queueWorkers) tryAcquire() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inflight >= q.capacity {
		return false
	}
	q.inflight++
	return true
}

func (q *queueWorkers) release() {
	q.mu.Lock()
	q.inflight--
	q.mu.Unlock()
}

func (q *queueWorkers) resize(workers int) {
	q.mu.Lock()
	q.capacity = workers
	q.mu.Unlock()
}

type activeTask struct {
	cancel  context.CancelFunc
	revoked bool
}

// NewDispatcher creates the dispatcher. Queues missing from the options get
// a single worker with generous limits.
func NewDispatcher(db *gorm.DB, log *logger.Logger, registry *Registry, router *Router, hub *progress.Hub, opts Options) *Dispatcher {
	poll := opts.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	queues := make(map[string]*queueWorkers)
	for _, name := range router.Queues() {
		qc, ok := opts.Queues[name]
		if !ok {
			qc = config.QueueConfig{Workers: 1, SoftTimeLimit: 1800, HardTimeLimit: 3600}
		}
		queues[name] = &queueWorkers{
			name:     name,
			soft:     qc.SoftLimit(),
			hard:     qc.HardLimit(),
			capacity: qc.Workers,
		}
	}

	return &Dispatcher{
		db:       db,
		log:      log,
		registry: registry,
		router:   router,
		hub:      hub,
		policy:   opts.Policy,
		poll:     poll,
		queues:   queues,
		active:   make(map[string]*activeTask),
	}
}

// SetTerminalHook installs the callback fired after a task reaches a
// terminal state. Must be set before Start; the workflow coordinator uses
// it to advance or halt chains.
func (d *Dispatcher) SetTerminalHook(fn func(*model.Task)) {
	d.onTerminal = fn
}

// Start launches the queue loops. Tasks left ACTIVE by a previous process
// were never acknowledged and are put back to PENDING first.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return nil
	}

	if err := d.registry.CheckComplete(d.router); err != nil {
		return err
	}
	if err := d.resetActive(); err != nil {
		return err
	}

	d.running = true
	d.stopCh = make(chan struct{})

	for _, q := range d.queues {
		d.wg.Add(1)
		go d.runQueue(q)
	}

	d.log.Infof("dispatcher started with %d queues", len(d.queues))
	return nil
}

// Stop shuts the queue loops down and waits for in-flight executors.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stopCh)
	d.mu.Unlock()

	d.wg.Wait()
	d.log.Info("dispatcher stopped")
}

// resetActive requeues tasks that were in flight when the process died.
func (d *Dispatcher) resetActive() error {
	res := d.db.Model(&model.Task{}).
		Where("state = ?", model.TaskStateActive).
		Updates(map[string]interface{}{
			"state":        model.TaskStatePending,
			"started_at":   nil,
			"heartbeat_at": nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		d.log.Warnf("requeued %d tasks left ACTIVE by a previous run", res.RowsAffected)
	}
	return nil
}

// Submit validates and persists a new task. The task is visible to the
// queue loops as soon as the insert commits.
func (d *Dispatcher) Submit(userID uint, kind model.TaskKind, payload json.RawMessage, priority int) (*model.Task, error) {
	return d.submit(userID, kind, payload, priority, nil, 0)
}

func (d *Dispatcher) submit(userID uint, kind model.TaskKind, payload json.RawMessage, priority int, workflowID *string, stageIndex int) (*model.Task, error) {
	handler, ok := d.registry.Get(kind)
	if !ok {
		return nil, taskerr.ErrQueueUnavailable
	}
	queueName, err := d.router.Route(kind)
	if err != nil {
		return nil, err
	}

	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if err := handler.Validate(payload); err != nil {
		return nil, err
	}

	if priority < 0 {
		priority = 0
	}
	if priority > 10 {
		priority = 10
	}

	task := &model.Task{
		ID:         uuid.NewString(),
		Kind:       kind,
		Queue:      queueName,
		Payload:    string(payload),
		Priority:   priority,
		State:      model.TaskStatePending,
		UserID:     userID,
		WorkflowID: workflowID,
		StageIndex: stageIndex,
	}

	if err := d.db.Create(task).Error; err != nil {
		d.log.Errorf("failed to persist task: %v", err)
		return nil, err
	}

	d.log.Infof("task submitted: id=%s kind=%s queue=%s priority=%d", task.ID, kind, queueName, priority)
	return task, nil
}

// GetTask returns a task snapshot.
func (d *Dispatcher) GetTask(taskID string) (*model.Task, error) {
	var task model.Task
	err := d.db.First(&task, "id = ?", taskID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, taskerr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks returns tasks filtered by queue and/or state, newest first.
func (d *Dispatcher) ListTasks(queueName string, state model.TaskState, limit int) ([]model.Task, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := d.db.Model(&model.Task{})
	if queueName != "" {
		q = q.Where("queue = ?", queueName)
	}
	if state != "" {
		q = q.Where("state = ?", state)
	}
	var tasks []model.Task
	err := q.Order("created_at DESC").Limit(limit).Find(&tasks).Error
	return tasks, err
}

// QueueStats are the per-queue counters exposed by the status API.
type QueueStats struct {
	Pending   int64 `json:"pending"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Stats counts tasks per queue. RETRY tasks count as pending, they are
// waiting for dispatch just like PENDING ones.
func (d *Dispatcher) Stats() (map[string]QueueStats, error) {
	stats := make(map[string]QueueStats)
	for _, name := range d.router.Queues() {
		var s QueueStats
		counts := []struct {
			states []model.TaskState
			target *int64
		}{
			{[]model.TaskState{model.TaskStatePending, model.TaskStateRetry}, &s.Pending},
			{[]model.TaskState{model.TaskStateActive}, &s.Active},
			{[]model.TaskState{model.TaskStateSuccess}, &s.Completed},
			{[]model.TaskState{model.TaskStateFailure}, &s.Failed},
		}
		for _, c := range counts {
			if err := d.db.Model(&model.Task{}).
				Where("queue = ? AND state IN ?", name, c.states).
				Count(c.target).Error; err != nil {
				return nil, err
			}
		}
		stats[name] = s
	}
	return stats, nil
}

// ScaleQueue changes a queue's concurrency ceiling at runtime. Shrinking
// takes effect as in-flight tasks finish.
func (d *Dispatcher) ScaleQueue(name string, workers int) error {
	q, ok := d.queues[name]
	if !ok {
		return fmt.Errorf("unknown queue %q", name)
	}
	if workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	q.resize(workers)
	d.log.Infof("queue %s scaled to %d workers", name, workers)
	return nil
}

// Cancel revokes a task. PENDING and RETRY tasks are removed before
// dispatch; an ACTIVE task gets a cooperative cancellation signal and is
// finalized as REVOKED when its handler returns.
func (d *Dispatcher) Cancel(taskID string) error {
	task, err := d.GetTask(taskID)
	if err != nil {
		return err
	}
	if task.State.Terminal() {
		return nil
	}

	now := time.Now()
	res := d.db.Model(&model.Task{}).
		Where("id = ? AND state IN ?", taskID, []model.TaskState{model.TaskStatePending, model.TaskStateRetry}).
		Updates(map[string]interface{}{
			"state":        model.TaskStateRevoked,
			"completed_at": now,
			"last_error":   "revoked by caller",
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		d.log.Infof("task revoked before dispatch: id=%s", taskID)
		d.hub.PublishFinal(taskID, progress.UserKey(task.UserID), 0, "revoked", nil)
		task.State = model.TaskStateRevoked
		task.CompletedAt = &now
		task.LastError = "revoked by caller"
		if d.onTerminal != nil {
			d.onTerminal(task)
		}
		return nil
	}

	// Task is already claimed. Signal the handler, or leave a revoke marker
	// when the executor has not registered its cancel func yet.
	d.activeMu.Lock()
	if at, ok := d.active[taskID]; ok {
		at.revoked = true
		at.cancel()
		d.log.Infof("cancellation signalled to active task: id=%s", taskID)
	} else {
		d.active[taskID] = &activeTask{revoked: true, cancel: func() {}}
		d.log.Infof("cancellation recorded for claimed task: id=%s", taskID)
	}
	d.activeMu.Unlock()

	// If the task finished in the window above, the marker has no executor
	// left to consume it.
	if fresh, err := d.GetTask(taskID); err == nil && fresh.State.Terminal() {
		d.clearActive(taskID)
	}
	return nil
}

// runQueue is one queue's claim loop.
func (d *Dispatcher) runQueue(q *queueWorkers) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.drainQueue(q)
		}
	}
}

// drainQueue claims work while both a permit and an eligible task exist.
func (d *Dispatcher) drainQueue(q *queueWorkers) {
	for {
		if !q.tryAcquire() {
			return
		}
		task, ok := d.claimNext(q.name)
		if !ok {
			q.release()
			return
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			defer q.release()
			d.execute(q, task)
		}()
	}
}

// claimNext atomically takes the next eligible task: due retries are
// promoted, then the highest-priority PENDING task (FIFO within a
// priority) transitions to ACTIVE.
func (d *Dispatcher) claimNext(queueName string) (*model.Task, bool) {
	var task model.Task
	now := time.Now()

	err := d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Task{}).
			Where("queue = ? AND state = ? AND next_attempt_at <= ?", queueName, model.TaskStateRetry, now).
			Updates(map[string]interface{}{"state": model.TaskStatePending, "next_attempt_at": nil}).Error; err != nil {
			return err
		}

		if err := tx.Where("queue = ? AND state = ?", queueName, model.TaskStatePending).
			Order("priority DESC, created_at ASC").
			First(&task).Error; err != nil {
			return err
		}

		task.Attempts++
		return tx.Model(&model.Task{}).
			Where("id = ? AND state = ?", task.ID, model.TaskStatePending).
			Updates(map[string]interface{}{
				"state":        model.TaskStateActive,
				"started_at":   now,
				"heartbeat_at": now,
				"attempts":     task.Attempts,
			}).Error
	})

	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			d.log.Errorf("failed to claim task from queue %s: %v", queueName, err)
		}
		return nil, false
	}

	task.State = model.TaskStateActive
	task.StartedAt = &now
	return &task, true
}

// execute runs one claimed task under the queue's time limits. The soft
// limit cancels the handler's context; the hard limit abandons the handler
// goroutine and finalizes the task as a timeout failure.
func (d *Dispatcher) execute(q *queueWorkers, task *model.Task) {
	d.log.Infof("task started: id=%s kind=%s queue=%s attempt=%d", task.ID, task.Kind, q.name, task.Attempts)

	handler, ok := d.registry.Get(task.Kind)
	if !ok {
		// CheckComplete makes this unreachable, guard anyway
		d.finish(task, nil, taskerr.Fatal(nil, "no handler for kind %s", task.Kind), 0)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	softCtx, cancelSoft := context.WithTimeout(ctx, q.soft)
	defer cancelSoft()

	// A Cancel between the claim and this point has left a revoke marker
	// behind; keep its flag and honor it immediately.
	d.activeMu.Lock()
	at, pending := d.active[task.ID]
	if pending {
		at.cancel = cancel
	} else {
		at = &activeTask{cancel: cancel}
		d.active[task.ID] = at
	}
	revokedEarly := at.revoked
	d.activeMu.Unlock()
	if revokedEarly {
		cancel()
	}

	sink := d.hub.Sink(task.ID, progress.UserKey(task.UserID), func() {
		d.touchHeartbeat(task.ID)
	})

	type outcome struct {
		result json.RawMessage
		err    error
	}
	done := make(chan outcome, 1)
	start := time.Now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: taskerr.Fatal(nil, "handler panic: %v", r)}
			}
		}()
		result, err := handler.Execute(softCtx, json.RawMessage(task.Payload), sink)
		done <- outcome{result: result, err: err}
	}()

	hard := time.NewTimer(q.hard)
	defer hard.Stop()

	select {
	case out := <-done:
		d.finish(task, out.result, out.err, time.Since(start))
	case <-hard.C:
		cancel()
		d.log.Errorf("task %s exceeded the hard time limit of %s", task.ID, q.hard)
		d.finish(task, nil, taskerr.Timeout("hard time limit of %s exceeded", q.hard), time.Since(start))
	case <-d.stopCh:
		// Shutting down. The task stays ACTIVE and is requeued on the next
		// boot, which is exactly the late-acknowledgment contract.
		cancel()
		d.clearActive(task.ID)
	}
}

// finish classifies the handler outcome and applies the state transition.
// The update is guarded on the task still being ACTIVE so a sweep that
// already intervened wins.
func (d *Dispatcher) finish(task *model.Task, result json.RawMessage, err error, elapsed time.Duration) {
	revoked := d.clearActive(task.ID)
	now := time.Now()
	ownerKey := progress.UserKey(task.UserID)

	var newState model.TaskState
	var lastError string
	updates := map[string]interface{}{}

	switch {
	case revoked:
		newState = model.TaskStateRevoked
		lastError = "revoked by caller"
		updates["completed_at"] = now
	case err == nil:
		newState = model.TaskStateSuccess
		updates["completed_at"] = now
		updates["result"] = string(result)
	case d.policy.ShouldRetry(err, task.Attempts):
		newState = model.TaskStateRetry
		lastError = err.Error()
		updates["next_attempt_at"] = now.Add(d.policy.Delay(task.Attempts))
	case errors.Is(err, context.DeadlineExceeded):
		newState = model.TaskStateFailure
		lastError = taskerr.Timeout("soft time limit exceeded").Error()
		updates["completed_at"] = now
	default:
		newState = model.TaskStateFailure
		lastError = err.Error()
		updates["completed_at"] = now
	}
	updates["state"] = newState
	updates["last_error"] = lastError

	res := d.db.Model(&model.Task{}).
		Where("id = ? AND state = ?", task.ID, model.TaskStateActive).
		Updates(updates)
	if res.Error != nil {
		d.log.Errorf("failed to finalize task %s: %v", task.ID, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		// The recovery sweep or the hard-limit path got there first.
		d.log.Warnf("task %s was finalized elsewhere, dropping %s transition", task.ID, newState)
		return
	}

	task.State = newState
	task.LastError = lastError
	task.Result = string(result)
	if newState != model.TaskStateRetry {
		task.CompletedAt = &now
	}

	switch newState {
	case model.TaskStateSuccess:
		d.log.Infof("task completed: id=%s kind=%s elapsed=%s", task.ID, task.Kind, elapsed)
		d.hub.PublishFinal(task.ID, ownerKey, 100, "completed", nil)
	case model.TaskStateRetry:
		delay := d.policy.Delay(task.Attempts)
		d.log.Warnf("task will retry: id=%s attempt=%d/%d delay=%s error=%v",
			task.ID, task.Attempts, d.policy.MaxAttempts, delay, err)
		d.hub.Publish(task.ID, ownerKey, 0, "retrying", map[string]interface{}{
			"error":   lastError,
			"attempt": task.Attempts,
		})
	case model.TaskStateFailure:
		d.log.Errorf("task failed: id=%s kind=%s attempts=%d error=%s", task.ID, task.Kind, task.Attempts, lastError)
		d.hub.PublishFinal(task.ID, ownerKey, 0, "failed", map[string]interface{}{"error": lastError})
	case model.TaskStateRevoked:
		d.log.Infof("task revoked: id=%s", task.ID)
		d.hub.PublishFinal(task.ID, ownerKey, 0, "revoked", nil)
	}

	if task.State.Terminal() && d.onTerminal != nil {
		d.onTerminal(task)
	}
}

// clearActive drops the cancellation entry, reporting whether a revoke was
// requested while the task ran.
func (d *Dispatcher) clearActive(taskID string) bool {
	d.activeMu.Lock()
	defer d.activeMu.Unlock()
	at, ok := d.active[taskID]
	if !ok {
		return false
	}
	delete(d.active, taskID)
	return at.revoked
}

// touchHeartbeat refreshes the liveness marker of a running task. The
// stuck-task sweep uses it to tell a slow task from a dead one.
func (d *Dispatcher) touchHeartbeat(taskID string) {
	err := d.db.Model(&model.Task{}).
		Where("id = ? AND state = ?", taskID, model.TaskStateActive).
		Update("heartbeat_at", time.Now()).Error
	if err != nil {
		d.log.Warnf("failed to refresh heartbeat of task %s: %v", taskID, err)
	}
}
