package queue

import (
	"reelforge/app/model"
	"reelforge/app/taskerr"
)

// Queue names. The set is static per deployment; resource-heavy work (GPU
// rendering) is isolated from light, high-throughput work so that one
// queue's backlog cannot starve another.
const (
	QueueContent     = "content"
	QueueVideo       = "video"
	QueueGPU         = "gpu"
	QueueSocial      = "social"
	QueueMaintenance = "maintenance"
)

// Router maps task kinds to queues. Within a queue tasks are ordered by
// priority descending, submission time ascending.
type Router struct {
	routes map[model.TaskKind]string
}

// NewRouter builds the default routing table.
func NewRouter() *Router {
	return &Router{
		routes: map[model.TaskKind]string{
			model.TaskKindContent:     QueueContent,
			model.TaskKindTTS:         QueueContent,
			model.TaskKindVideo:       QueueVideo,
			model.TaskKindRenderUltra: QueueGPU,
			model.TaskKindPublish:     QueueSocial,
			model.TaskKindMaintenance: QueueMaintenance,
		},
	}
}

// Route resolves the queue for a kind.
func (r *Router) Route(kind model.TaskKind) (string, error) {
	queue, ok := r.routes[kind]
	if !ok {
		return "", taskerr.ErrQueueUnavailable
	}
	return queue, nil
}

// Kinds returns every routed kind.
func (r *Router) Kinds() []model.TaskKind {
	kinds := make([]model.TaskKind, 0, len(r.routes))
	for kind := range r.routes {
		kinds = append(kinds, kind)
	}
	return kinds
}

// Queues returns the distinct queue names in the table.
func (r *Router) Queues() []string {
	seen := make(map[string]struct{})
	queues := make([]string, 0, len(r.routes))
	for _, q := range r.routes {
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		queues = append(queues, q)
	}
	return queues
}
