package queue

import (
	"time"

	"reelforge/app/config"
	"reelforge/app/logger"
	"reelforge/app/model"
	"reelforge/app/progress"
	"reelforge/app/taskerr"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// Recovery runs the periodic sweeps: force-failing stuck tasks, requeueing
// recent failures on request, and expiring old terminal tasks. Together
// with the dispatcher it is the only component allowed to mutate task
// state.
type Recovery struct {
	db         *gorm.DB
	log        *logger.Logger
	hub        *progress.Hub
	dispatcher *Dispatcher
	cfg        config.SweepConfig
	cron       *cron.Cron
}

// NewRecovery creates the recovery manager.
func NewRecovery(db *gorm.DB, log *logger.Logger, hub *progress.Hub, dispatcher *Dispatcher, cfg config.SweepConfig) *Recovery {
	return &Recovery{
		db:         db,
		log:        log,
		hub:        hub,
		dispatcher: dispatcher,
		cfg:        cfg,
		cron:       cron.New(),
	}
}

// Start schedules the sweeps.
func (r *Recovery) Start() error {
	if _, err := r.cron.AddFunc(r.cfg.StuckInterval, func() {
		if _, err := r.CleanupStuck(""); err != nil {
			r.log.Errorf("stuck-task sweep failed: %v", err)
		}
	}); err != nil {
		return err
	}
	if _, err := r.cron.AddFunc(r.cfg.FailedCheckInterval, func() {
		if _, err := r.CheckFailed(); err != nil {
			r.log.Errorf("failed-task check failed: %v", err)
		}
	}); err != nil {
		return err
	}
	if _, err := r.cron.AddFunc(r.cfg.CleanupInterval, func() {
		if err := r.CleanupExpired(); err != nil {
			r.log.Errorf("expired-task cleanup failed: %v", err)
		}
	}); err != nil {
		return err
	}
	r.cron.Start()
	r.log.Info("recovery sweeps scheduled")
	return nil
}

// Stop halts the sweeps and waits for a running one to finish.
func (r *Recovery) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.log.Info("recovery sweeps stopped")
}

// CleanupStuck force-fails tasks that have been ACTIVE past their queue's
// hard time limit without a heartbeat. An empty queue name sweeps all
// queues. Returns the ids of the tasks it failed.
func (r *Recovery) CleanupStuck(queueName string) ([]string, error) {
	var failed []string
	for name, q := range r.dispatcher.queues {
		if queueName != "" && queueName != name {
			continue
		}
		cutoff := time.Now().Add(-q.hard)

		var stuck []model.Task
		err := r.db.Where("queue = ? AND state = ?", name, model.TaskStateActive).
			Where("heartbeat_at < ? OR (heartbeat_at IS NULL AND started_at < ?)", cutoff, cutoff).
			Find(&stuck).Error
		if err != nil {
			return failed, err
		}

		for i := range stuck {
			task := &stuck[i]
			if r.forceFail(task, q.hard) {
				failed = append(failed, task.ID)
			}
		}
	}
	if len(failed) > 0 {
		r.log.Warnf("stuck sweep force-failed %d tasks", len(failed))
	}
	return failed, nil
}

// forceFail finalizes one stuck task. Guarded on the task still being
// ACTIVE; if the worker finished in the meantime, its transition wins.
func (r *Recovery) forceFail(task *model.Task, limit time.Duration) bool {
	now := time.Now()
	lastError := taskerr.Timeout("stuck: no heartbeat within the hard time limit of %s", limit).Error()

	res := r.db.Model(&model.Task{}).
		Where("id = ? AND state = ?", task.ID, model.TaskStateActive).
		Updates(map[string]interface{}{
			"state":        model.TaskStateFailure,
			"completed_at": now,
			"last_error":   lastError,
		})
	if res.Error != nil {
		r.log.Errorf("failed to force-fail stuck task %s: %v", task.ID, res.Error)
		return false
	}
	if res.RowsAffected == 0 {
		return false
	}

	r.log.Errorf("stuck task force-failed: id=%s kind=%s queue=%s", task.ID, task.Kind, task.Queue)
	r.hub.PublishFinal(task.ID, progress.UserKey(task.UserID), 0, "failed", map[string]interface{}{"error": lastError})

	task.State = model.TaskStateFailure
	task.CompletedAt = &now
	task.LastError = lastError
	if r.dispatcher.onTerminal != nil {
		r.dispatcher.onTerminal(task)
	}
	return true
}

// CheckFailed counts FAILURE tasks still inside the requeue window and
// surfaces them in the log. Putting them back stays an operator decision
// through the requeue endpoint.
func (r *Recovery) CheckFailed() (int64, error) {
	cutoff := time.Now().Add(-time.Duration(r.cfg.RequeueMaxAgeHours) * time.Hour)
	var count int64
	err := r.db.Model(&model.Task{}).
		Where("state = ? AND completed_at >= ?", model.TaskStateFailure, cutoff).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	if count > 0 {
		r.log.Warnf("%d failed tasks are eligible for requeue (window %dh)", count, r.cfg.RequeueMaxAgeHours)
	}
	return count, nil
}

// RequeueFailed puts FAILURE tasks younger than maxAge back to PENDING
// with a fresh attempt budget. Returns how many were requeued.
func (r *Recovery) RequeueFailed(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge)
	res := r.db.Model(&model.Task{}).
		Where("state = ? AND completed_at >= ?", model.TaskStateFailure, cutoff).
		Updates(map[string]interface{}{
			"state":           model.TaskStatePending,
			"attempts":        0,
			"started_at":      nil,
			"completed_at":    nil,
			"heartbeat_at":    nil,
			"next_attempt_at": nil,
			"result":          "",
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		r.log.Infof("requeued %d failed tasks (max age %s)", res.RowsAffected, maxAge)
	}
	return res.RowsAffected, nil
}

// CleanupExpired deletes terminal tasks past their retention window.
func (r *Recovery) CleanupExpired() error {
	completedCutoff := time.Now().AddDate(0, 0, -r.cfg.CompletedRetentionDays)
	res := r.db.Where("state = ? AND completed_at < ?", model.TaskStateSuccess, completedCutoff).
		Delete(&model.Task{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		r.log.Infof("cleaned up %d completed tasks older than %d days", res.RowsAffected, r.cfg.CompletedRetentionDays)
	}

	failedCutoff := time.Now().AddDate(0, 0, -r.cfg.FailedRetentionDays)
	res = r.db.Where("state IN ? AND completed_at < ?",
		[]model.TaskState{model.TaskStateFailure, model.TaskStateRevoked}, failedCutoff).
		Delete(&model.Task{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		r.log.Infof("cleaned up %d failed tasks older than %d days", res.RowsAffected, r.cfg.FailedRetentionDays)
	}
	return nil
}
