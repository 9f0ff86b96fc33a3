package progress

import (
	"testing"
	"time"

	"reelforge/app/logger"
)

func newTestHub() *Hub {
	return NewHub(logger.NewNop(), time.Hour)
}

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestPublishReachesUserAndTaskObservers(t *testing.T) {
	hub := newTestHub()

	userCh, cancelUser := hub.Subscribe(UserKey(7))
	defer cancelUser()
	taskCh, cancelTask := hub.Subscribe(TaskKey("t1"))
	defer cancelTask()

	hub.Publish("t1", UserKey(7), 25, "working", map[string]interface{}{"step": "render"})

	for _, ch := range []<-chan Event{userCh, taskCh} {
		ev := recv(t, ch)
		if ev.TaskID != "t1" || ev.Progress != 25 || ev.Status != "working" {
			t.Errorf("unexpected event: %+v", ev)
		}
		if ev.Details["step"] != "render" {
			t.Errorf("details lost: %+v", ev.Details)
		}
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	hub := newTestHub()
	ch, cancel := hub.Subscribe(TaskKey("t1"))
	defer cancel()

	hub.Publish("t1", "user:1", 60, "working", nil)
	hub.Publish("t1", "user:1", 40, "working", nil) // below the floor

	first := recv(t, ch)
	second := recv(t, ch)
	if first.Progress != 60 {
		t.Errorf("first event: got %.0f, want 60", first.Progress)
	}
	if second.Progress != 60 {
		t.Errorf("regressing publish not clamped: got %.0f, want 60", second.Progress)
	}
}

func TestPublishClampsRange(t *testing.T) {
	hub := newTestHub()

	hub.Publish("t1", "user:1", -5, "working", nil)
	if ev, _ := hub.Latest("t1"); ev.Progress != 0 {
		t.Errorf("negative progress: got %.0f, want 0", ev.Progress)
	}

	hub.Publish("t2", "user:1", 250, "working", nil)
	if ev, _ := hub.Latest("t2"); ev.Progress != 100 {
		t.Errorf("overflowing progress: got %.0f, want 100", ev.Progress)
	}
}

func TestTerminalSealsTask(t *testing.T) {
	hub := newTestHub()
	ch, cancel := hub.Subscribe(TaskKey("t1"))
	defer cancel()

	hub.Publish("t1", "user:1", 100, "completed", nil)
	hub.MarkTerminal("t1")
	hub.Publish("t1", "user:1", 50, "working", nil) // late straggler

	recv(t, ch)
	select {
	case ev := <-ch:
		t.Fatalf("event delivered after terminal: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	if ev, ok := hub.Latest("t1"); !ok || ev.Status != "completed" {
		t.Errorf("latest after terminal: %+v, %v", ev, ok)
	}
}

func TestPublishFinalSealsBeforeEmitting(t *testing.T) {
	hub := newTestHub()
	ch, cancel := hub.Subscribe(TaskKey("t1"))
	defer cancel()

	hub.PublishFinal("t1", "user:1", 100, "completed", nil)

	// A straggler from an abandoned handler goroutine must not get through,
	// even right behind the final event.
	hub.Publish("t1", "user:1", 80, "working", nil)

	ev := recv(t, ch)
	if ev.Progress != 100 || ev.Status != "completed" {
		t.Errorf("final event: got %.0f/%s, want 100/completed", ev.Progress, ev.Status)
	}
	select {
	case ev := <-ch:
		t.Fatalf("event delivered after final: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	// A second final is dropped too.
	hub.PublishFinal("t1", "user:1", 0, "failed", nil)
	if ev, ok := hub.Latest("t1"); !ok || ev.Status != "completed" {
		t.Errorf("latest after repeated final: %+v, %v", ev, ok)
	}
}

func TestLatestMissingTask(t *testing.T) {
	hub := newTestHub()
	if _, ok := hub.Latest("nope"); ok {
		t.Error("latest returned a value for an unknown task")
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	hub := newTestHub()
	_, cancel := hub.Subscribe(TaskKey("t1"))
	defer cancel()

	// Overflow the subscriber buffer; Publish must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			hub.Publish("t1", "user:1", float64(i%100), "working", nil)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	hub := newTestHub()
	ch, cancel := hub.Subscribe(TaskKey("t1"))
	cancel()

	// The channel is closed, not left dangling.
	if _, ok := <-ch; ok {
		t.Error("cancelled subscription still delivered an event")
	}

	// Double cancel is safe.
	cancel()
	hub.Publish("t1", "user:1", 10, "working", nil)
}

func TestCloseDisconnectsObservers(t *testing.T) {
	hub := newTestHub()
	ch, cancel := hub.Subscribe(UserKey(1))

	hub.Close()
	if _, ok := <-ch; ok {
		t.Error("channel still open after hub close")
	}
	// Cancel after close is a no-op.
	cancel()
}

func TestSinkPublishesAndHeartbeats(t *testing.T) {
	hub := newTestHub()
	beats := 0
	sink := hub.Sink("t1", UserKey(3), func() { beats++ })

	ch, cancel := hub.Subscribe(UserKey(3))
	defer cancel()

	sink.Publish(30, "rendering", nil)
	ev := recv(t, ch)
	if ev.TaskID != "t1" || ev.Progress != 30 {
		t.Errorf("unexpected event: %+v", ev)
	}
	if beats != 1 {
		t.Errorf("heartbeat calls: got %d, want 1", beats)
	}
}
