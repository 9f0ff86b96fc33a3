// Package progress fans incremental task status out to dashboard clients.
// Progress for one task is monotonically non-decreasing and stops at the
// terminal state; the latest value per task is cached so reconnecting
// observers can catch up without replaying history.
package progress

import (
	"fmt"
	"sync"
	"time"

	"reelforge/app/logger"

	"github.com/patrickmn/go-cache"
)

// Event is one progress update for a task.
type Event struct {
	TaskID    string                 `json:"task_id"`
	Progress  float64                `json:"progress"` // 0-100
	Status    string                 `json:"status"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Sink is the narrow capability handed to a running handler. It publishes
// progress for exactly one task and carries no authority over task state.
type Sink interface {
	Publish(progress float64, status string, details map[string]interface{})
}

// UserKey builds the observer key for a user's dashboard connection.
func UserKey(userID uint) string {
	return fmt.Sprintf("user:%d", userID)
}

// TaskKey builds the observer key for watching a single task.
func TaskKey(taskID string) string {
	return "task:" + taskID
}

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls behind loses events; the latest-value cache covers the gap.
const subscriberBuffer = 16

// Hub is the in-process progress broadcast.
type Hub struct {
	log       *logger.Logger
	mu        sync.RWMutex
	observers map[string]map[chan Event]struct{}
	latest    *cache.Cache // task id -> last Event
	terminal  *cache.Cache // task id -> struct{}, tasks that reached a terminal state
}

// NewHub creates a progress hub. Latest values expire after ttl.
func NewHub(log *logger.Logger, ttl time.Duration) *Hub {
	return &Hub{
		log:       log,
		observers: make(map[string]map[chan Event]struct{}),
		latest:    cache.New(ttl, 10*time.Minute),
		terminal:  cache.New(ttl, 10*time.Minute),
	}
}

// Subscribe registers an observer. The returned cancel function must be
// called when the observer disconnects; it closes the channel.
func (h *Hub) Subscribe(observerKey string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	set, ok := h.observers[observerKey]
	if !ok {
		set = make(map[chan Event]struct{})
		h.observers[observerKey] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.observers[observerKey]; ok {
			if _, member := set[ch]; member {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(h.observers, observerKey)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers a progress update to every observer of the task and of
// its owner. Progress below the monotonic floor is raised to the floor;
// events after the terminal state are dropped.
func (h *Hub) Publish(taskID string, ownerKey string, progress float64, status string, details map[string]interface{}) {
	if _, done := h.terminal.Get(taskID); done {
		h.log.Debugf("dropping progress for terminal task %s", taskID)
		return
	}
	h.emit(taskID, ownerKey, progress, status, details)
}

// PublishFinal emits a task's last event and seals it in one step. The seal
// lands before the event goes out, so a straggling Publish cannot slip in
// behind the terminal update.
func (h *Hub) PublishFinal(taskID string, ownerKey string, progress float64, status string, details map[string]interface{}) {
	if _, done := h.terminal.Get(taskID); done {
		return
	}
	h.terminal.SetDefault(taskID, struct{}{})
	h.emit(taskID, ownerKey, progress, status, details)
}

func (h *Hub) emit(taskID string, ownerKey string, progress float64, status string, details map[string]interface{}) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	if last, ok := h.Latest(taskID); ok && progress < last.Progress {
		progress = last.Progress
	}

	ev := Event{
		TaskID:    taskID,
		Progress:  progress,
		Status:    status,
		Details:   details,
		Timestamp: time.Now(),
	}
	h.latest.SetDefault(taskID, ev)

	h.mu.RLock()
	defer h.mu.RUnlock()
	h.fanOut(h.observers[ownerKey], ev)
	h.fanOut(h.observers[TaskKey(taskID)], ev)
}

// fanOut delivers without blocking; a full subscriber buffer drops the event.
func (h *Hub) fanOut(set map[chan Event]struct{}, ev Event) {
	for ch := range set {
		select {
		case ch <- ev:
		default:
		}
	}
}

// MarkTerminal seals a task. Further publishes for it are ignored.
func (h *Hub) MarkTerminal(taskID string) {
	h.terminal.SetDefault(taskID, struct{}{})
}

// Close disconnects every observer. Used on shutdown so streaming
// handlers unblock.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, set := range h.observers {
		for ch := range set {
			close(ch)
		}
		delete(h.observers, key)
	}
}

// Latest returns the last known event for a task.
func (h *Hub) Latest(taskID string) (Event, bool) {
	v, ok := h.latest.Get(taskID)
	if !ok {
		return Event{}, false
	}
	return v.(Event), true
}

// Sink binds a publish capability to one task. heartbeat, if non-nil, is
// invoked on every publish so the dispatcher can refresh the task's
// liveness marker.
func (h *Hub) Sink(taskID string, ownerKey string, heartbeat func()) Sink {
	return &taskSink{hub: h, taskID: taskID, ownerKey: ownerKey, heartbeat: heartbeat}
}

type taskSink struct {
	hub       *Hub
	taskID    string
	ownerKey  string
	heartbeat func()
}

func (s *taskSink) Publish(progress float64, status string, details map[string]interface{}) {
	if s.heartbeat != nil {
		s.heartbeat()
	}
	s.hub.Publish(s.taskID, s.ownerKey, progress, status, details)
}
