package events

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestEmitReachesSubscribers(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	got := make(chan Event, 2)
	for _, name := range []string{"a", "b"} {
		bus.Subscribe(EventCommandExecuted, name, func(_ context.Context, e Event) error {
			got <- e
			return nil
		})
	}

	bus.Emit(context.Background(), Event{
		Type:    EventCommandExecuted,
		Source:  "test",
		Payload: CommandPayload{Command: "status"},
	})

	for i := 0; i < 2; i++ {
		select {
		case e := <-got:
			p, ok := e.Payload.(CommandPayload)
			if !ok || p.Command != "status" {
				t.Fatalf("unexpected payload %#v", e.Payload)
			}
			if e.Time.IsZero() {
				t.Fatalf("event time not set")
			}
		case <-time.After(time.Second):
			t.Fatalf("handler %d not called", i)
		}
	}
}

func TestEmitSyncJoinsErrors(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	errA := errors.New("a failed")
	bus.Subscribe(EventCommandFailed, "a", func(context.Context, Event) error { return errA })
	bus.Subscribe(EventCommandFailed, "b", func(context.Context, Event) error { panic("boom") })
	bus.Subscribe(EventCommandFailed, "c", func(context.Context, Event) error { return nil })

	err := bus.EmitSync(context.Background(), Event{Type: EventCommandFailed})
	if !errors.Is(err, errA) {
		t.Fatalf("expected joined error to contain errA, got %v", err)
	}
	if !strings.Contains(err.Error(), "panicked") {
		t.Fatalf("expected panic to surface as error, got %v", err)
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	var calls atomic.Int32
	bus.Subscribe(EventSessionClosed, "counter", func(context.Context, Event) error {
		calls.Add(1)
		return nil
	})
	if n := bus.HandlerCount(EventSessionClosed); n != 1 {
		t.Fatalf("handler count = %d, want 1", n)
	}

	bus.Unsubscribe(EventSessionClosed, "counter")
	if n := bus.HandlerCount(EventSessionClosed); n != 0 {
		t.Fatalf("handler count after unsubscribe = %d", n)
	}

	if err := bus.EmitSync(context.Background(), Event{Type: EventSessionClosed}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("unsubscribed handler was called")
	}
}

func TestStopWaitsAndRejects(t *testing.T) {
	bus := NewEventBus()

	var done atomic.Bool
	bus.Subscribe(EventShutdown, "slow", func(context.Context, Event) error {
		time.Sleep(20 * time.Millisecond)
		done.Store(true)
		return nil
	})

	bus.Emit(context.Background(), Event{Type: EventShutdown})
	bus.Stop()

	if !done.Load() {
		t.Fatalf("Stop returned before in-flight handler finished")
	}

	select {
	case <-bus.StopCh():
	default:
		t.Fatalf("stop channel not closed")
	}

	done.Store(false)
	bus.Emit(context.Background(), Event{Type: EventShutdown})
	if err := bus.EmitSync(context.Background(), Event{Type: EventShutdown}); err != nil {
		t.Fatalf("emit after stop: %v", err)
	}
	if done.Load() {
		t.Fatalf("handler ran after Stop")
	}

	bus.Stop()
}
