package events

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

// EventHandler observes a published event. Handlers run on the dispatcher's
// delivery goroutine and must not assume they share the publisher's context.
type EventHandler func(context.Context, Event)

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event Event)
	Subscribe(name EventName, handler EventHandler) (unsubscribe func())
	Close()
}

const defaultBuffer = 256

// asyncDispatcher queues events and delivers them on one goroutine, in
// publication order. Publish never blocks: a full queue drops the event.
type asyncDispatcher struct {
	logger *zap.Logger
	queue  chan Event
	done   chan struct{}
	once   sync.Once

	mu        sync.RWMutex
	listeners map[EventName]map[uint64]EventHandler
	nextID    uint64
	closed    bool
}

// NewAsyncDispatcher creates a dispatcher and starts its delivery loop.
func NewAsyncDispatcher(logger *zap.Logger, buffer int) Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	d := &asyncDispatcher{
		logger:    logger,
		queue:     make(chan Event, buffer),
		done:      make(chan struct{}),
		listeners: make(map[EventName]map[uint64]EventHandler),
	}
	go d.run()
	return d
}

// Publish enqueues the event for delivery.
func (d *asyncDispatcher) Publish(ctx context.Context, event Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- event:
	default:
		d.logger.Warn("analytics queue full; dropping event", zap.String("event", string(event.Name)))
	}
}

// Subscribe registers a handler for the given event name, or EventAny.
func (d *asyncDispatcher) Subscribe(name EventName, handler EventHandler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	if d.listeners[name] == nil {
		d.listeners[name] = make(map[uint64]EventHandler)
	}
	d.listeners[name][id] = handler
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.listeners[name], id)
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *asyncDispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
		<-d.done
	})
}

func (d *asyncDispatcher) run() {
	defer close(d.done)
	for event := range d.queue {
		d.deliver(event)
	}
}

func (d *asyncDispatcher) deliver(event Event) {
	d.mu.RLock()
	handlers := make([]EventHandler, 0, len(d.listeners[event.Name])+len(d.listeners[EventAny]))
	for _, h := range d.listeners[event.Name] {
		handlers = append(handlers, h)
	}
	for _, h := range d.listeners[EventAny] {
		handlers = append(handlers, h)
	}
	d.mu.RUnlock()

	for _, handler := range handlers {
		d.safeCall(handler, event)
	}
}

func (d *asyncDispatcher) safeCall(handler EventHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("analytics observer panicked",
				zap.String("event", string(event.Name)),
				zap.String("panic", fmt.Sprintf("%v", r)),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	handler(context.Background(), event)
}
