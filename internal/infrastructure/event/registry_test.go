package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlerRegistry_Register_SpecificTypes(t *testing.T) {
	registry := NewHandlerRegistry()
	handler := newTestHandler("RelayCreated", "RelayCancelled")

	registry.Register(handler, "RelayCreated", "RelayCancelled")

	handlers := registry.GetHandlers("RelayCreated")
	assert.Len(t, handlers, 1)
	assert.Equal(t, handler, handlers[0])

	assert.Len(t, registry.GetHandlers("RelayCancelled"), 1)
	assert.Empty(t, registry.GetHandlers("RelayFulfilled"))
}

func TestHandlerRegistry_Register_Wildcard(t *testing.T) {
	registry := NewHandlerRegistry()
	handler := newTestHandler()

	registry.Register(handler)

	assert.Len(t, registry.GetHandlers("RelayCreated"), 1)
	assert.Len(t, registry.GetHandlers("AnyEventType"), 1)
}

func TestHandlerRegistry_TypedBeforeWildcard(t *testing.T) {
	registry := NewHandlerRegistry()
	wildcard := newTestHandler()
	specific := newTestHandler("RelayCreated")

	registry.Register(wildcard)
	registry.Register(specific, "RelayCreated")

	handlers := registry.GetHandlers("RelayCreated")
	assert.Len(t, handlers, 2)
	assert.Equal(t, specific, handlers[0])
	assert.Equal(t, wildcard, handlers[1])

	handlers = registry.GetHandlers("OtherEvent")
	assert.Len(t, handlers, 1)
	assert.Equal(t, wildcard, handlers[0])
}

func TestHandlerRegistry_RegisterTwiceIsNoop(t *testing.T) {
	registry := NewHandlerRegistry()
	handler := newTestHandler("RelayCreated")

	registry.Register(handler, "RelayCreated")
	registry.Register(handler, "RelayCreated")

	assert.Len(t, registry.GetHandlers("RelayCreated"), 1)
}

func TestHandlerRegistry_Unregister(t *testing.T) {
	registry := NewHandlerRegistry()
	a := newTestHandler("RelayCreated")
	b := newTestHandler()

	registry.Register(a, "RelayCreated", "RelayCancelled")
	registry.Register(b)
	registry.Unregister(a)

	handlers := registry.GetHandlers("RelayCreated")
	assert.Len(t, handlers, 1)
	assert.Equal(t, b, handlers[0])
	assert.Len(t, registry.GetAllHandlers(), 1)
}

func TestHandlerRegistry_GetAllHandlers_Distinct(t *testing.T) {
	registry := NewHandlerRegistry()
	a := newTestHandler()
	b := newTestHandler()

	registry.Register(a, "X", "Y")
	registry.Register(b)

	assert.Len(t, registry.GetAllHandlers(), 2)
}

func TestHandlerName(t *testing.T) {
	assert.Equal(t, "event.testHandler", HandlerName(newTestHandler()))
	assert.Equal(t, "custom", HandlerName(&namedHandler{testHandler: newTestHandler(), name: "custom"}))
}
