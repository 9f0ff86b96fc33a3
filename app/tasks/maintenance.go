package tasks

import (
	"context"
	"encoding/json"

	"reelforge/app/logger"
	"reelforge/app/model"
	"reelforge/app/progress"
	"reelforge/app/taskerr"
)

// Cleaner is the retention sweep the maintenance kind triggers on demand.
// The recovery manager implements it.
type Cleaner interface {
	CleanupExpired() error
}

// MaintenancePayload is the input of a maintenance task.
type MaintenancePayload struct {
	Job string `json:"job"` // currently only "cleanup_expired"
}

// MaintenanceHandler runs housekeeping jobs through the maintenance queue
// so they compete for resources like any other work.
type MaintenanceHandler struct {
	cleaner Cleaner
	logger  *logger.Logger
}

// NewMaintenanceHandler creates the maintenance handler.
func NewMaintenanceHandler(cleaner Cleaner, log *logger.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{cleaner: cleaner, logger: log}
}

func (h *MaintenanceHandler) Kind() model.TaskKind {
	return model.TaskKindMaintenance
}

func (h *MaintenanceHandler) Validate(payload json.RawMessage) error {
	var p MaintenancePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return taskerr.Validation("maintenance payload is not valid JSON: %v", err)
	}
	if p.Job != "" && p.Job != "cleanup_expired" {
		return taskerr.Validation("unknown maintenance job %q", p.Job)
	}
	return nil
}

func (h *MaintenanceHandler) Execute(ctx context.Context, payload json.RawMessage, sink progress.Sink) (json.RawMessage, error) {
	sink.Publish(10, "cleaning_up", nil)
	if err := h.cleaner.CleanupExpired(); err != nil {
		return nil, taskerr.Transient(err, "cleanup failed")
	}
	sink.Publish(95, "finishing", nil)
	return json.RawMessage(`{"job":"cleanup_expired","done":true}`), nil
}
