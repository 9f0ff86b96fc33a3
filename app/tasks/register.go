// Package tasks holds the built-in handlers for the closed set of task
// kinds. Each handler validates its payload, calls its external service and
// reports progress through the sink it is handed; failures are returned
// pre-classified for the retry policy.
package tasks

import (
	"reelforge/app/logger"
	"reelforge/app/model"
	"reelforge/app/queue"
	"reelforge/app/service"
)

// RegisterAll wires every built-in handler into the registry. The cleaner
// is the retention sweep the maintenance kind triggers on demand.
func RegisterAll(registry *queue.Registry, clients *service.Clients, cleaner Cleaner, log *logger.Logger) {
	registry.Register(NewContentHandler(clients.Content, log))
	registry.Register(NewTTSHandler(clients.TTS, log))
	registry.Register(NewVideoHandler(model.TaskKindVideo, clients.Render, log))
	registry.Register(NewVideoHandler(model.TaskKindRenderUltra, clients.Render, log))
	registry.Register(NewPublishHandler(clients.Social, log))
	registry.Register(NewMaintenanceHandler(cleaner, log))
}
