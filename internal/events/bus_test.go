package events

import (
	"testing"
	"time"
)

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventInvalidDatetime)

	bus.Publish(EventInvalidDatetime, Payload{"invalid_value": "nope"})

	select {
	case payload := <-sub:
		if payload["invalid_value"] != "nope" {
			t.Fatalf("unexpected payload: %v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBusIgnoresOtherEventTypes(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventBlockClaimed)

	bus.Publish(EventInvalidDatetime, Payload{})

	select {
	case payload := <-sub:
		t.Fatalf("unexpected delivery: %v", payload)
	default:
	}
}

func TestBusPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	bus := NewBus()
	_ = bus.Subscribe(EventBlockClaimed)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(EventBlockClaimed, Payload{"i": i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventAvailabilityCreated)
	bus.Unsubscribe(EventAvailabilityCreated, sub)

	if _, ok := <-sub; ok {
		t.Fatal("expected closed channel after unsubscribe")
	}
}
