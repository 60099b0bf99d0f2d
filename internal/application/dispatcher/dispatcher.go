package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/garyjia/barangay-docflow/internal/domain/event"
)

// ErrClosed is returned when publishing to a closed dispatcher
var ErrClosed = errors.New("dispatcher is closed")

// Dispatcher delivers domain events to subscribed handlers.
//
// Async delivery keeps publish order per lane: the handlers of a request's
// events run one event at a time, as do those of a document type's
// configuration events. Different lanes run concurrently.
type Dispatcher interface {
	// Subscribe registers a named handler for an event type
	Subscribe(eventType event.Type, name string, handler Handler)

	// Dispatch runs every handler for the event in the caller's goroutine
	// and returns their joined errors
	Dispatch(ctx context.Context, evt *event.Event) error

	// DispatchAsync queues the event on its lane and returns immediately.
	// Handlers run detached from ctx cancellation.
	DispatchAsync(ctx context.Context, evt *event.Event)

	// Handlers lists handler names subscribed to an event type
	Handlers(eventType event.Type) []string

	// Wait blocks until every queued async event has been handled
	Wait()

	// Close rejects new events and waits for queued ones
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type eventDispatcher struct {
	mu            sync.RWMutex
	subscriptions map[event.Type][]subscription

	laneMu sync.Mutex
	lanes  map[string]chan struct{}

	logger         Logger
	handlerTimeout time.Duration

	wg     sync.WaitGroup
	closed atomic.Bool
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// WithHandlerTimeout bounds each async handler invocation
func WithHandlerTimeout(timeout time.Duration) Option {
	return func(d *eventDispatcher) {
		d.handlerTimeout = timeout
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		subscriptions: make(map[event.Type][]subscription),
		lanes:         make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *eventDispatcher) Subscribe(eventType event.Type, name string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if name == "" {
		name = fmt.Sprintf("%s#%d", eventType, len(d.subscriptions[eventType]))
	}
	d.subscriptions[eventType] = append(d.subscriptions[eventType], subscription{name: name, handler: handler})
	d.logInfo("Handler subscribed", "event_type", eventType, "handler_name", name)
}

func (d *eventDispatcher) Handlers(eventType event.Type) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.subscriptions[eventType]))
	for _, s := range d.subscriptions[eventType] {
		names = append(names, s.name)
	}
	return names
}

func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	if d.closed.Load() {
		return ErrClosed
	}
	return d.deliver(ctx, evt)
}

func (d *eventDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	if d.closed.Load() {
		d.logError("Dropping event, dispatcher is closed", "event_type", evt.Type, "event_id", evt.ID)
		return
	}

	ctx = context.WithoutCancel(ctx)
	key := laneKey(evt)
	done := make(chan struct{})

	var prev chan struct{}
	if key != "" {
		d.laneMu.Lock()
		prev = d.lanes[key]
		d.lanes[key] = done
		d.laneMu.Unlock()
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.release(key, done)

		if prev != nil {
			<-prev
		}
		_ = d.deliver(ctx, evt)
	}()
}

// release closes the lane slot and forgets the lane once it is idle
func (d *eventDispatcher) release(key string, done chan struct{}) {
	close(done)
	if key == "" {
		return
	}
	d.laneMu.Lock()
	if d.lanes[key] == done {
		delete(d.lanes, key)
	}
	d.laneMu.Unlock()
}

// deliver runs every subscribed handler in order; one failing handler never skips the rest
func (d *eventDispatcher) deliver(ctx context.Context, evt *event.Event) error {
	d.mu.RLock()
	subs := append([]subscription(nil), d.subscriptions[evt.Type]...)
	d.mu.RUnlock()

	var errs []error
	for _, s := range subs {
		if err := d.invoke(ctx, evt, s); err != nil {
			d.logError("Event handler failed",
				"event_type", evt.Type,
				"event_id", evt.ID,
				"request_id", evt.RequestID,
				"document_type_id", evt.DocumentTypeID,
				"handler_name", s.name,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

func (d *eventDispatcher) invoke(ctx context.Context, evt *event.Event, s subscription) (err error) {
	if d.handlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.handlerTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return s.handler(ctx, evt)
}

func (d *eventDispatcher) Wait() {
	d.wg.Wait()
}

func (d *eventDispatcher) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	d.wg.Wait()
	d.logInfo("Dispatcher closed")
	return nil
}

func (d *eventDispatcher) logInfo(msg string, kv ...interface{}) {
	if d.logger != nil {
		d.logger.Info(msg, kv...)
	}
}

func (d *eventDispatcher) logError(msg string, kv ...interface{}) {
	if d.logger != nil {
		d.logger.Error(msg, kv...)
	}
}
