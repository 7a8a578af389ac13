package memory

import (
	"context"
	"sync"

	"github.com/marketrelay/backend/internal/domain/channel"
)

// OrderStore keeps sandbox orders in process memory
type OrderStore struct {
	mu     sync.RWMutex
	orders map[string][]channel.ExternalOrder
}

// NewOrderStore creates an empty in-memory order store
func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string][]channel.ExternalOrder)}
}

// Append adds orders for an account
func (s *OrderStore) Append(_ context.Context, accountKey string, orders ...channel.ExternalOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[accountKey] = append(s.orders[accountKey], orders...)
	return nil
}

// List returns a copy of an account's orders
func (s *OrderStore) List(_ context.Context, accountKey string) ([]channel.ExternalOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]channel.ExternalOrder, len(s.orders[accountKey]))
	copy(out, s.orders[accountKey])
	return out, nil
}

// Clear removes an account's orders
func (s *OrderStore) Clear(_ context.Context, accountKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orders, accountKey)
	return nil
}

var _ channel.OrderStore = (*OrderStore)(nil)
