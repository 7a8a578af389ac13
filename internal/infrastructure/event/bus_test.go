package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testEvent implements DomainEvent for testing
type testEvent struct {
	shared.BaseDomainEvent
	Data string `json:"data"`
}

func newTestEvent(eventType string, tenantID uuid.UUID) *testEvent {
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "TestAggregate", uuid.New(), tenantID),
		Data:            "test data",
	}
}

// testHandler implements EventHandler for testing
type testHandler struct {
	eventTypes []string
	handled    []shared.DomainEvent
	err        error
	panicMsg   string
	mu         sync.Mutex
}

func newTestHandler(eventTypes ...string) *testHandler {
	return &testHandler{
		eventTypes: eventTypes,
		handled:    make([]shared.DomainEvent, 0),
	}
}

func (h *testHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, event)
	if h.panicMsg != "" {
		panic(h.panicMsg)
	}
	return h.err
}

func (h *testHandler) EventTypes() []string {
	return h.eventTypes
}

func (h *testHandler) setError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}

func (h *testHandler) getHandled() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]shared.DomainEvent, len(h.handled))
	copy(out, h.handled)
	return out
}

type namedHandler struct {
	*testHandler
	name string
}

func (h *namedHandler) HandlerName() string { return h.name }

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
	errs  []error
}

func (o *recordingObserver) ObserveHandler(_ context.Context, eventType, handler string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, eventType+"/"+handler)
	o.errs = append(o.errs, err)
}

func TestInMemoryEventBus_Publish(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := newTestHandler("RelayCreated")
	bus.Subscribe(handler)

	event := newTestEvent("RelayCreated", uuid.New())
	err := bus.Publish(context.Background(), event)

	require.NoError(t, err)
	handled := handler.getHandled()
	require.Len(t, handled, 1)
	assert.Equal(t, event.EventID(), handled[0].EventID())
}

func TestInMemoryEventBus_Publish_MultipleEvents(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := newTestHandler("RelayCreated", "RelayCancelled")
	bus.Subscribe(handler)

	tenantID := uuid.New()
	err := bus.Publish(context.Background(),
		newTestEvent("RelayCreated", tenantID),
		newTestEvent("RelayCancelled", tenantID),
		newTestEvent("RelayFulfilled", tenantID),
	)

	require.NoError(t, err)
	assert.Len(t, handler.getHandled(), 2)
}

func TestInMemoryEventBus_Publish_SubscriptionOrder(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	var order []string
	var mu sync.Mutex
	for _, name := range []string{"first", "second", "third"} {
		name := name
		h := &funcHandler{types: []string{"X"}, fn: func(context.Context, shared.DomainEvent) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}}
		bus.Subscribe(h)
	}

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("X", uuid.New())))
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestInMemoryEventBus_Publish_WildcardHandler(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	wildcard := newTestHandler()
	bus.Subscribe(wildcard)

	tenantID := uuid.New()
	err := bus.Publish(context.Background(),
		newTestEvent("RelayCreated", tenantID),
		newTestEvent("SettlementBatchClosed", tenantID),
	)

	require.NoError(t, err)
	assert.Len(t, wildcard.getHandled(), 2)
}

func TestInMemoryEventBus_Publish_HandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	failing := &namedHandler{testHandler: newTestHandler("RelayCreated"), name: "failing"}
	failing.setError(errors.New("boom"))
	healthy := newTestHandler("RelayCreated")
	bus.Subscribe(failing)
	bus.Subscribe(healthy)

	err := bus.Publish(context.Background(), newTestEvent("RelayCreated", uuid.New()))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failing: boom")
	assert.Len(t, healthy.getHandled(), 1)
}

func TestInMemoryEventBus_Publish_RecoversPanic(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	panicking := newTestHandler("RelayCreated")
	panicking.panicMsg = "nil map"
	healthy := newTestHandler("RelayCreated")
	bus.Subscribe(panicking)
	bus.Subscribe(healthy)

	err := bus.Publish(context.Background(), newTestEvent("RelayCreated", uuid.New()))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler panicked: nil map")
	assert.Len(t, healthy.getHandled(), 1)
}

func TestInMemoryEventBus_Publish_NoMatchingHandlers(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := newTestHandler("RelayCreated")
	bus.Subscribe(handler)

	err := bus.Publish(context.Background(), newTestEvent("CommissionCreated", uuid.New()))

	require.NoError(t, err)
	assert.Empty(t, handler.getHandled())
}

func TestInMemoryEventBus_Publish_SkipsNilEvents(t *testing.T) {
	bus := NewInMemoryEventBus(nil)
	handler := newTestHandler()
	bus.Subscribe(handler)

	require.NoError(t, bus.Publish(context.Background(), nil, newTestEvent("X", uuid.New())))
	assert.Len(t, handler.getHandled(), 1)
}

func TestInMemoryEventBus_Observer(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	observer := &recordingObserver{}
	bus.SetObserver(observer)

	ok := &namedHandler{testHandler: newTestHandler("RelayCreated"), name: "ok"}
	bad := &namedHandler{testHandler: newTestHandler("RelayCreated"), name: "bad"}
	bad.setError(errors.New("nope"))
	bus.Subscribe(ok)
	bus.Subscribe(bad)

	_ = bus.Publish(context.Background(), newTestEvent("RelayCreated", uuid.New()))

	assert.Equal(t, []string{"RelayCreated/ok", "RelayCreated/bad"}, observer.calls)
	assert.NoError(t, observer.errs[0])
	assert.EqualError(t, observer.errs[1], "nope")
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := newTestHandler("RelayCreated")
	bus.Subscribe(handler)
	bus.Unsubscribe(handler)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("RelayCreated", uuid.New())))
	assert.Empty(t, handler.getHandled())
}

func TestInMemoryEventBus_StartStop(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := newTestHandler()
	bus.Subscribe(handler)
	ctx := context.Background()

	require.NoError(t, bus.Stop(ctx))
	err := bus.Publish(ctx, newTestEvent("X", uuid.New()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event bus stopped")
	assert.Empty(t, handler.getHandled())

	require.NoError(t, bus.Start(ctx))
	require.NoError(t, bus.Publish(ctx, newTestEvent("X", uuid.New())))
	assert.Len(t, handler.getHandled(), 1)
}

type funcHandler struct {
	types []string
	fn    func(context.Context, shared.DomainEvent) error
}

func (h *funcHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	return h.fn(ctx, event)
}

func (h *funcHandler) EventTypes() []string { return h.types }
