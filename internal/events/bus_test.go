package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitReachesSubscribers(t *testing.T) {
	bus := NewEventBus()

	var mu sync.Mutex
	var got []Event
	bus.Subscribe(EventLoginAccepted, "test", func(ctx context.Context, event Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, event)
		return nil
	})

	bus.Emit(context.Background(), Event{Type: EventLoginAccepted, Payload: LoginPayload{Username: "bob"}})
	bus.Emit(context.Background(), Event{Type: EventLoginRejected})
	bus.Stop()

	require.Len(t, got, 1)
	assert.Equal(t, LoginPayload{Username: "bob"}, got[0].Payload)
	assert.False(t, got[0].Time.IsZero())
}

func TestStopWaitsAndDropsLateEvents(t *testing.T) {
	bus := NewEventBus()

	var count atomic.Int32
	bus.SubscribeAll("counter", func(ctx context.Context, event Event) error {
		count.Add(1)
		return nil
	})

	for _, eventType := range AllEventTypes {
		bus.Emit(context.Background(), Event{Type: eventType})
	}
	bus.Stop()
	assert.Equal(t, int32(len(AllEventTypes)), count.Load())

	bus.Emit(context.Background(), Event{Type: EventSessionEnded})
	bus.Stop()
	assert.Equal(t, int32(len(AllEventTypes)), count.Load())
}

func TestEmitSyncReturnsFirstError(t *testing.T) {
	bus := NewEventBus()
	boom := errors.New("boom")

	bus.Subscribe(EventSessionEnded, "fails", func(ctx context.Context, event Event) error {
		return boom
	})
	bus.Subscribe(EventSessionEnded, "panics", func(ctx context.Context, event Event) error {
		panic("handler bug")
	})

	err := bus.EmitSync(context.Background(), Event{Type: EventSessionEnded})
	assert.ErrorIs(t, err, boom)
}

func TestUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	bus.Subscribe(EventRevalidated, "a", func(ctx context.Context, event Event) error { return nil })
	bus.Subscribe(EventRevalidated, "b", func(ctx context.Context, event Event) error { return nil })
	require.Equal(t, 2, bus.HandlerCount(EventRevalidated))

	bus.Unsubscribe(EventRevalidated, "a")
	assert.Equal(t, 1, bus.HandlerCount(EventRevalidated))
}
