package events

import (
	"testing"
	"time"
)

func jobEvent(kind string) *JobEvent {
	return &JobEvent{
		BaseEvent: BaseEvent{EventType: EventJobRunning, Time: time.Now()},
		Kind:      kind,
		UserKey:   "u1",
	}
}

func TestSubscribeReceivesMatchingType(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	running := bus.Subscribe(EventJobRunning)
	stopped := bus.Subscribe(EventJobStopped)

	bus.Publish(jobEvent("heartbeat"))

	select {
	case ev := <-running:
		je, ok := ev.(*JobEvent)
		if !ok || je.Kind != "heartbeat" {
			t.Errorf("got %+v", ev)
		}
	default:
		t.Fatal("running subscriber received nothing")
	}

	select {
	case ev := <-stopped:
		t.Errorf("stopped subscriber received %+v", ev)
	default:
	}
}

func TestSubscribeAllReceivesEverything(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	all := bus.SubscribeAll()
	bus.Publish(jobEvent("heartbeat"))
	bus.PublishJobStopped("heartbeat", "u1", nil)

	for i := 0; i < 2; i++ {
		select {
		case <-all:
		default:
			t.Fatalf("all-subscriber missing event %d", i)
		}
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	bus := NewEventBus(1)
	defer bus.Close()

	bus.Subscribe(EventJobRunning) // never drained

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			bus.Publish(jobEvent("heartbeat"))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	if got := bus.GetDroppedEventCount(); got != 9 {
		t.Errorf("dropped = %d, want 9", got)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventJobRunning)
	bus.Unsubscribe(EventJobRunning, ch)
	bus.Publish(jobEvent("heartbeat"))

	select {
	case ev := <-ch:
		t.Errorf("received %+v after unsubscribe", ev)
	default:
	}
}

func TestCloseClosesSubscriberChannels(t *testing.T) {
	bus := NewEventBus(10)
	ch := bus.Subscribe(EventJobRunning)
	bus.Close()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Close")
	}

	// Publishing after close is a no-op, not a panic.
	bus.Publish(jobEvent("heartbeat"))
}
