// Package connector holds the channel connector registry and its implementations.
package connector

import (
	"fmt"
	"sort"
	"sync"

	"github.com/marketrelay/backend/internal/domain/channel"
)

// Registry maps channel codes to connectors. Adding a channel is a
// Register call at wiring time; nothing switches on the code.
type Registry struct {
	mu         sync.RWMutex
	connectors map[channel.Code]channel.Connector
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{connectors: make(map[channel.Code]channel.Connector)}
}

// Register adds a connector under its metadata code
func (r *Registry) Register(c channel.Connector) error {
	code := c.Metadata().Code
	if !code.IsValid() {
		return fmt.Errorf("register connector %q: %w", code, channel.ErrConnectorNotFound)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.connectors[code]; exists {
		return fmt.Errorf("register %s: %w", code, channel.ErrConnectorRegistered)
	}
	r.connectors[code] = c
	return nil
}

// MustRegister registers c and panics on a duplicate
func (r *Registry) MustRegister(c channel.Connector) {
	if err := r.Register(c); err != nil {
		panic(err)
	}
}

// Get returns the connector for a code
func (r *Registry) Get(code channel.Code) (channel.Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[channel.NormalizeCode(code.String())]
	if !ok {
		return nil, fmt.Errorf("%s: %w", code, channel.ErrConnectorNotFound)
	}
	return c, nil
}

// List returns the registered connectors ordered by code
func (r *Registry) List() []channel.Connector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codes := make([]string, 0, len(r.connectors))
	for code := range r.connectors {
		codes = append(codes, code.String())
	}
	sort.Strings(codes)

	out := make([]channel.Connector, len(codes))
	for i, code := range codes {
		out[i] = r.connectors[channel.Code(code)]
	}
	return out
}

var _ channel.Registry = (*Registry)(nil)
