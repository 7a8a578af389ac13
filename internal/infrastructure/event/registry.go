package event

import (
	"fmt"
	"strings"
	"sync"

	"github.com/marketrelay/backend/internal/domain/shared"
)

// Named lets a handler choose the name used in logs, metrics and idempotency keys
type Named interface {
	HandlerName() string
}

// HandlerName returns the handler's stable name: its HandlerName when it
// implements Named, otherwise its Go type name
func HandlerName(handler shared.EventHandler) string {
	if n, ok := handler.(Named); ok {
		return n.HandlerName()
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", handler), "*")
}

// Registration is one subscribed handler
type Registration struct {
	Name    string
	Handler shared.EventHandler
}

// HandlerRegistry maps event types to handlers
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string][]Registration
	wildcard []Registration
}

// NewHandlerRegistry creates a new handler registry
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string][]Registration),
	}
}

// Register adds a handler for the given event types, or for every event
// when none are given. Registering the same handler twice for a type is a no-op.
func (r *HandlerRegistry) Register(handler shared.EventHandler, eventTypes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg := Registration{Name: HandlerName(handler), Handler: handler}
	if len(eventTypes) == 0 {
		if !contains(r.wildcard, handler) {
			r.wildcard = append(r.wildcard, reg)
		}
		return
	}
	for _, eventType := range eventTypes {
		if !contains(r.handlers[eventType], handler) {
			r.handlers[eventType] = append(r.handlers[eventType], reg)
		}
	}
}

// Unregister removes a handler from every event type
func (r *HandlerRegistry) Unregister(handler shared.EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.wildcard = without(r.wildcard, handler)
	for eventType, regs := range r.handlers {
		remaining := without(regs, handler)
		if len(remaining) == 0 {
			delete(r.handlers, eventType)
			continue
		}
		r.handlers[eventType] = remaining
	}
}

// GetRegistrations returns the type-specific handlers followed by the wildcard ones
func (r *HandlerRegistry) GetRegistrations(eventType string) []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	typed := r.handlers[eventType]
	out := make([]Registration, 0, len(typed)+len(r.wildcard))
	out = append(out, typed...)
	out = append(out, r.wildcard...)
	return out
}

// GetHandlers returns the handlers for an event type
func (r *HandlerRegistry) GetHandlers(eventType string) []shared.EventHandler {
	regs := r.GetRegistrations(eventType)
	out := make([]shared.EventHandler, len(regs))
	for i, reg := range regs {
		out[i] = reg.Handler
	}
	return out
}

// GetAllHandlers returns every distinct registered handler
func (r *HandlerRegistry) GetAllHandlers() []shared.EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[shared.EventHandler]bool)
	var out []shared.EventHandler
	add := func(regs []Registration) {
		for _, reg := range regs {
			if !seen[reg.Handler] {
				seen[reg.Handler] = true
				out = append(out, reg.Handler)
			}
		}
	}
	add(r.wildcard)
	for _, regs := range r.handlers {
		add(regs)
	}
	return out
}

func contains(regs []Registration, handler shared.EventHandler) bool {
	for _, reg := range regs {
		if reg.Handler == handler {
			return true
		}
	}
	return false
}

func without(regs []Registration, handler shared.EventHandler) []Registration {
	out := make([]Registration, 0, len(regs))
	for _, reg := range regs {
		if reg.Handler != handler {
			out = append(out, reg)
		}
	}
	return out
}
