package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryDispatcher_JoinsHandlerErrors(t *testing.T) {
	d := NewInMemoryDispatcher()
	var seen []string
	d.Subscribe(EventTicketCreated, func(_ context.Context, e Event) error {
		seen = append(seen, e.TicketID)
		return errors.New("first")
	})
	d.Subscribe(EventTicketCreated, func(_ context.Context, e Event) error {
		seen = append(seen, e.ID)
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTicketCreated, TicketID: "t-1"})

	require.Error(t, err)
	require.Len(t, seen, 2)
	assert.Equal(t, "t-1", seen[0])
	assert.NotEmpty(t, seen[1])
}

func TestQueueDispatcher_DeliversAsync(t *testing.T) {
	d := NewQueueDispatcher(8, 2, nil, nil)
	var mu sync.Mutex
	got := map[string]EventType{}
	done := make(chan struct{}, 2)
	handler := func(_ context.Context, e Event) error {
		mu.Lock()
		got[e.TicketID] = e.Type
		mu.Unlock()
		done <- struct{}{}
		return nil
	}
	d.Subscribe(EventTicketAssigned, handler)
	d.Subscribe(EventTicketStatusChanged, handler)
	d.Start(context.Background())

	require.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketAssigned, TicketID: "a"}))
	require.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketStatusChanged, TicketID: "b"}))
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("event not delivered")
		}
	}
	d.Stop()

	assert.Equal(t, map[string]EventType{"a": EventTicketAssigned, "b": EventTicketStatusChanged}, got)
}

func TestQueueDispatcher_DropsWhenFull(t *testing.T) {
	d := NewQueueDispatcher(1, 1, nil, nil)
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error { return nil })

	require.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketCreated}))
	assert.ErrorIs(t, d.Publish(context.Background(), Event{Type: EventTicketCreated}), ErrQueueFull)
}

func TestQueueDispatcher_StopDrainsAndRejects(t *testing.T) {
	d := NewQueueDispatcher(4, 1, nil, nil)
	var mu sync.Mutex
	delivered := 0
	d.Subscribe(EventTicketUpdated, func(context.Context, Event) error {
		mu.Lock()
		delivered++
		mu.Unlock()
		return nil
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketUpdated}))
	}
	d.Start(context.Background())
	d.Stop()

	assert.Equal(t, 3, delivered)
	assert.ErrorIs(t, d.Publish(context.Background(), Event{Type: EventTicketUpdated}), ErrStopped)
	assert.NotPanics(t, d.Stop)
}

func TestQueueDispatcher_SkipsUnsubscribedEvents(t *testing.T) {
	d := NewQueueDispatcher(1, 1, nil, nil)

	for i := 0; i < 3; i++ {
		assert.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketUpdated}))
	}
}

func TestQueueDispatcher_RecoversHandlerPanic(t *testing.T) {
	d := NewQueueDispatcher(4, 1, nil, nil)
	after := make(chan struct{}, 1)
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error { panic("boom") })
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		after <- struct{}{}
		return nil
	})
	d.Start(context.Background())
	defer d.Stop()

	require.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketCreated}))
	select {
	case <-after:
	case <-time.After(2 * time.Second):
		t.Fatal("second handler not reached")
	}
}
