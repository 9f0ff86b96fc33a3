package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"reelforge/app/model"
	"reelforge/app/progress"
)

// Handler executes tasks of one kind. Implementations call external
// services, publish progress through the sink, and return classified
// errors from the taskerr package.
type Handler interface {
	Kind() model.TaskKind
	// Validate checks the payload shape before the task is accepted.
	Validate(payload json.RawMessage) error
	// Execute runs the task. The context carries the soft time limit and
	// the cancellation signal; handlers must honor it.
	Execute(ctx context.Context, payload json.RawMessage, sink progress.Sink) (json.RawMessage, error)
}

// Registry maps the closed set of task kinds to their handlers.
type Registry struct {
	handlers map[model.TaskKind]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[model.TaskKind]Handler)}
}

// Register adds a handler. Registering the same kind twice panics; that is
// a wiring bug, not a runtime condition.
func (r *Registry) Register(h Handler) {
	if _, ok := r.handlers[h.Kind()]; ok {
		panic(fmt.Sprintf("handler for kind %q registered twice", h.Kind()))
	}
	r.handlers[h.Kind()] = h
}

// Get looks up the handler for a kind.
func (r *Registry) Get(kind model.TaskKind) (Handler, bool) {
	h, ok := r.handlers[kind]
	return h, ok
}

// CheckComplete verifies at startup that every routed kind has a handler.
func (r *Registry) CheckComplete(router *Router) error {
	for _, kind := range router.Kinds() {
		if _, ok := r.handlers[kind]; !ok {
			return fmt.Errorf("no handler registered for task kind %q", kind)
		}
	}
	return nil
}
