package event

import (
	"context"
	"testing"
	"time"

	"github.com/fleetbridge/fleetbridge/pkg/plugin"
	"go.uber.org/zap"
)

func TestPublish_delivers_synchronously_in_subscription_order(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var got []string
	bus.Subscribe("device.online", func(_ context.Context, e plugin.Event) {
		got = append(got, "first:"+e.Topic)
	})
	bus.Subscribe("device.online", func(_ context.Context, _ plugin.Event) {
		got = append(got, "second")
	})
	bus.SubscribeAll(func(_ context.Context, _ plugin.Event) {
		got = append(got, "wildcard")
	})

	if err := bus.Publish(context.Background(), plugin.Event{Topic: "device.online"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	// Synchronous dispatch: all handlers ran before Publish returned, topic
	// subscribers before wildcards.
	want := []string{"first:device.online", "second", "wildcard"}
	if len(got) != len(want) {
		t.Fatalf("deliveries = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delivery[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPublish_skips_other_topics(t *testing.T) {
	bus := NewBus(zap.NewNop())

	called := false
	bus.Subscribe("device.online", func(_ context.Context, _ plugin.Event) {
		called = true
	})

	bus.Publish(context.Background(), plugin.Event{Topic: "device.offline"})
	if called {
		t.Error("handler received an event for a different topic")
	}
}

func TestUnsubscribe_stops_delivery(t *testing.T) {
	bus := NewBus(zap.NewNop())

	count := 0
	unsub := bus.Subscribe("tick", func(_ context.Context, _ plugin.Event) {
		count++
	})

	bus.Publish(context.Background(), plugin.Event{Topic: "tick"})
	unsub()
	bus.Publish(context.Background(), plugin.Event{Topic: "tick"})

	if count != 1 {
		t.Errorf("deliveries after unsubscribe = %d, want 1", count)
	}
}

func TestPublish_isolates_handler_panics(t *testing.T) {
	bus := NewBus(zap.NewNop())

	bus.Subscribe("tick", func(_ context.Context, _ plugin.Event) {
		panic("handler bug")
	})
	survived := false
	bus.Subscribe("tick", func(_ context.Context, _ plugin.Event) {
		survived = true
	})

	if err := bus.Publish(context.Background(), plugin.Event{Topic: "tick"}); err != nil {
		t.Fatalf("Publish after panic: %v", err)
	}
	if !survived {
		t.Error("a panicking handler stopped delivery to later subscribers")
	}
}

func TestPublishAsync_delivers(t *testing.T) {
	bus := NewBus(zap.NewNop())

	done := make(chan string, 1)
	bus.Subscribe("tick", func(_ context.Context, e plugin.Event) {
		done <- e.Source
	})

	bus.PublishAsync(context.Background(), plugin.Event{Topic: "tick", Source: "vitals"})

	select {
	case src := <-done:
		if src != "vitals" {
			t.Errorf("event source = %q, want vitals", src)
		}
	case <-time.After(time.Second):
		t.Fatal("async event never delivered")
	}
}

func TestSubscribe_during_dispatch(t *testing.T) {
	bus := NewBus(zap.NewNop())

	lateCalls := 0
	bus.Subscribe("tick", func(_ context.Context, _ plugin.Event) {
		// Subscribing mid-dispatch must not deadlock; the new handler sees
		// only subsequent events.
		bus.Subscribe("tick", func(_ context.Context, _ plugin.Event) {
			lateCalls++
		})
	})

	bus.Publish(context.Background(), plugin.Event{Topic: "tick"})
	if lateCalls != 0 {
		t.Errorf("handler added mid-dispatch saw the in-flight event (%d calls)", lateCalls)
	}
}
