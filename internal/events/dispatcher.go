package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sla-engine/internal/observability"
)

var (
	// ErrQueueFull is returned when the outbound queue has no room; the event is dropped.
	ErrQueueFull = errors.New("event queue full")
	// ErrStopped is returned by Publish after Stop.
	ErrStopped = errors.New("event queue stopped")
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
}

type registry struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventHandler
}

func (r *registry) Subscribe(eventType EventType, handler EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[eventType] = append(r.listeners[eventType], handler)
}

func (r *registry) handlers(eventType EventType) []EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]EventHandler{}, r.listeners[eventType]...)
}

func stamp(event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
}

// inMemoryDispatcher is a simple synchronous dispatcher.
type inMemoryDispatcher struct {
	registry
}

// NewInMemoryDispatcher creates a dispatcher that runs handlers inline.
func NewInMemoryDispatcher() Dispatcher {
	return &inMemoryDispatcher{registry{listeners: make(map[EventType][]EventHandler)}}
}

// Publish synchronously invokes handlers for the given event and returns
// their joined errors.
func (d *inMemoryDispatcher) Publish(ctx context.Context, event Event) error {
	stamp(&event)
	var errs []error
	for _, handler := range d.handlers(event.Type) {
		if err := handler(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// QueueDispatcher decouples publishers from handlers with a bounded queue
// drained by a fixed worker pool. Publish never blocks.
type QueueDispatcher struct {
	registry
	queue   chan Event
	workers int
	logger  *zap.Logger
	metrics *observability.Metrics

	state   sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewQueueDispatcher builds a dispatcher with room for size pending events.
func NewQueueDispatcher(size, workers int, logger *zap.Logger, metrics *observability.Metrics) *QueueDispatcher {
	if size <= 0 {
		size = 1
	}
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueDispatcher{
		registry: registry{listeners: make(map[EventType][]EventHandler)},
		queue:    make(chan Event, size),
		workers:  workers,
		logger:   logger,
		metrics:  metrics,
	}
}

// Publish enqueues event. Events nobody subscribed to are discarded and a
// full queue drops the event.
func (d *QueueDispatcher) Publish(_ context.Context, event Event) error {
	stamp(&event)

	d.state.RLock()
	defer d.state.RUnlock()
	if d.stopped {
		return ErrStopped
	}
	if len(d.handlers(event.Type)) == 0 {
		return nil
	}
	select {
	case d.queue <- event:
		return nil
	default:
		d.metrics.RecordNotification(string(event.Type), "dropped")
		d.logger.Warn("event queue full, dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID))
		return ErrQueueFull
	}
}

// Start launches the workers. Handlers receive ctx, not the publisher's.
func (d *QueueDispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for event := range d.queue {
				d.deliver(ctx, event)
			}
		}()
	}
}

// Stop refuses new events, drains what is queued and waits for the workers.
func (d *QueueDispatcher) Stop() {
	d.state.Lock()
	if d.stopped {
		d.state.Unlock()
		return
	}
	d.stopped = true
	close(d.queue)
	d.state.Unlock()
	d.wg.Wait()
}

func (d *QueueDispatcher) deliver(ctx context.Context, event Event) {
	for _, handler := range d.handlers(event.Type) {
		if err := safeCall(ctx, handler, event); err != nil {
			d.logger.Warn("event handler failed",
				zap.String("event_type", string(event.Type)),
				zap.String("ticket_id", event.TicketID),
				zap.Error(err))
		}
	}
}

func safeCall(ctx context.Context, handler EventHandler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, event)
}
