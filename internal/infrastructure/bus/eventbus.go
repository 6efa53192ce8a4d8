package bus

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"marketplace-settlement/internal/domain/event"
)

// AllEvents subscribes a handler to every event type
const AllEvents = "*"

// EventBus defines the contract for event publishing/subscribing
type EventBus interface {
	Publish(ctx context.Context, event event.DomainEvent) error
	Subscribe(eventType string, handler EventHandler) error
	Start(ctx context.Context) error
	Stop() error
}

// EventHandler handles domain events
type EventHandler interface {
	Handle(ctx context.Context, event event.DomainEvent) error
}

// EventHandlerFunc allows functions to implement EventHandler
type EventHandlerFunc func(ctx context.Context, event event.DomainEvent) error

func (f EventHandlerFunc) Handle(ctx context.Context, event event.DomainEvent) error {
	return f(ctx, event)
}

type registry struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
}

func (r *registry) subscribe(eventType string, handler EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = make(map[string][]EventHandler)
	}
	r.handlers[eventType] = append(r.handlers[eventType], handler)
}

func (r *registry) lookup(eventType string) []EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]EventHandler, 0, len(r.handlers[eventType])+len(r.handlers[AllEvents]))
	out = append(out, r.handlers[eventType]...)
	return append(out, r.handlers[AllEvents]...)
}

// InMemoryEventBus delivers events synchronously on the publishing goroutine
type InMemoryEventBus struct {
	registry
}

func NewInMemoryEventBus() *InMemoryEventBus {
	return &InMemoryEventBus{}
}

func (b *InMemoryEventBus) Publish(ctx context.Context, evt event.DomainEvent) error {
	var errs []error
	for _, handler := range b.lookup(evt.EventType()) {
		if err := handler.Handle(ctx, evt); err != nil {
			errs = append(errs, fmt.Errorf("handler error for %s: %w", evt.EventType(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("event handling errors: %v", errs)
	}
	return nil
}

func (b *InMemoryEventBus) Subscribe(eventType string, handler EventHandler) error {
	b.subscribe(eventType, handler)
	return nil
}

func (b *InMemoryEventBus) Start(ctx context.Context) error { return nil }
func (b *InMemoryEventBus) Stop() error                     { return nil }

// AsyncEventBus hands each event to its handlers on separate goroutines. Handlers outlive the
// publishing request, so they get a context without its cancellation.
type AsyncEventBus struct {
	registry
	wg      sync.WaitGroup
	errorCh chan error
	logger  *zap.Logger
}

// NewAsyncEventBus creates a new async event bus
func NewAsyncEventBus(logger *zap.Logger) *AsyncEventBus {
	return &AsyncEventBus{
		errorCh: make(chan error, 100),
		logger:  logger.Named("eventbus"),
	}
}

// Subscribe registers a handler for an event type, or AllEvents
func (b *AsyncEventBus) Subscribe(eventType string, handler EventHandler) error {
	b.subscribe(eventType, handler)
	return nil
}

// Start launches the error monitor
func (b *AsyncEventBus) Start(ctx context.Context) error {
	go func() {
		for {
			select {
			case err, ok := <-b.errorCh:
				if !ok {
					return
				}
				b.logger.Warn("async event handler error", zap.Error(err))
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Stop waits for in-flight handlers
func (b *AsyncEventBus) Stop() error {
	b.wg.Wait()
	close(b.errorCh)
	return nil
}

// Publish never blocks on handlers
func (b *AsyncEventBus) Publish(ctx context.Context, evt event.DomainEvent) error {
	handlers := b.lookup(evt.EventType())
	if len(handlers) == 0 {
		return nil
	}

	detached := context.WithoutCancel(ctx)
	b.wg.Add(len(handlers))
	for _, handler := range handlers {
		go b.deliver(detached, handler, evt)
	}
	return nil
}

// Wait blocks until every handler started so far returned
func (b *AsyncEventBus) Wait() {
	b.wg.Wait()
}

func (b *AsyncEventBus) deliver(ctx context.Context, handler EventHandler, evt event.DomainEvent) {
	defer b.wg.Done()

	if err := handler.Handle(ctx, evt); err != nil {
		select {
		case b.errorCh <- fmt.Errorf("%s %s: %w", evt.EventType(), evt.AggregateID(), err):
		default:
			b.logger.Error("error channel full, dropping handler error", zap.Error(err))
		}
	}
}
