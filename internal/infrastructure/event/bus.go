package event

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/marketrelay/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// HandlerObserver is told about every handler invocation
type HandlerObserver interface {
	ObserveHandler(ctx context.Context, eventType, handler string, duration time.Duration, err error)
}

// InMemoryEventBus delivers events to subscribed handlers synchronously, in
// subscription order, on the publisher's goroutine. A failing or panicking
// handler does not stop delivery to the others; all failures are returned
// joined so the publisher can log them.
type InMemoryEventBus struct {
	registry *HandlerRegistry
	observer HandlerObserver
	logger   *zap.Logger
	running  atomic.Bool
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &InMemoryEventBus{
		registry: NewHandlerRegistry(),
		logger:   logger,
	}
	b.running.Store(true)
	return b
}

// SetObserver installs a handler observer, typically the metrics recorder
func (b *InMemoryEventBus) SetObserver(observer HandlerObserver) {
	b.observer = observer
}

// Publish delivers each event to its handlers
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	if !b.running.Load() {
		return fmt.Errorf("event bus stopped, dropped %d event(s)", len(events))
	}

	var errs []error
	for _, event := range events {
		if event == nil {
			continue
		}
		for _, reg := range b.registry.GetRegistrations(event.EventType()) {
			if err := b.dispatch(ctx, reg, event); err != nil {
				b.logger.Error("event handler failed",
					zap.String("event_type", event.EventType()),
					zap.String("event_id", event.EventID().String()),
					zap.String("aggregate_id", event.AggregateID().String()),
					zap.String("tenant_id", event.TenantID().String()),
					zap.String("handler", reg.Name),
					zap.Error(err),
				)
				errs = append(errs, fmt.Errorf("%s: %w", reg.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers a handler. Without explicit event types the handler's
// own EventTypes are used; an empty list subscribes to every event.
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.registry.Register(handler, eventTypes...)
	b.logger.Debug("handler subscribed",
		zap.String("handler", HandlerName(handler)),
		zap.Strings("event_types", eventTypes),
	)
}

// Unsubscribe removes a handler
func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.registry.Unregister(handler)
	b.logger.Debug("handler unsubscribed", zap.String("handler", HandlerName(handler)))
}

// Start accepts events again after Stop
func (b *InMemoryEventBus) Start(_ context.Context) error {
	b.running.Store(true)
	b.logger.Info("event bus started", zap.Int("handlers", len(b.registry.GetAllHandlers())))
	return nil
}

// Stop rejects further events. Deliveries already running finish on their
// publishers' goroutines.
func (b *InMemoryEventBus) Stop(_ context.Context) error {
	b.running.Store(false)
	b.logger.Info("event bus stopped")
	return nil
}

func (b *InMemoryEventBus) dispatch(ctx context.Context, reg Registration, event shared.DomainEvent) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
		if b.observer != nil {
			b.observer.ObserveHandler(ctx, event.EventType(), reg.Name, time.Since(start), err)
		}
	}()
	return reg.Handler.Handle(ctx, event)
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
