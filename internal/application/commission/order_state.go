package commission

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/relay"
	"github.com/marketrelay/backend/internal/domain/shared"
)

// RelayOrderState answers order-voided questions from the relay of the order.
// Orders without a relay are treated as valid.
type RelayOrderState struct {
	relayRepo relay.Repository
}

// NewRelayOrderState creates a new RelayOrderState
func NewRelayOrderState(relayRepo relay.Repository) *RelayOrderState {
	return &RelayOrderState{relayRepo: relayRepo}
}

// IsOrderVoided reports whether the order's relay was cancelled
func (p *RelayOrderState) IsOrderVoided(ctx context.Context, tenantID, orderID uuid.UUID) (bool, error) {
	r, err := p.relayRepo.FindByOrderID(ctx, tenantID, orderID)
	if errors.Is(err, shared.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return r.Status.VoidsOrder(), nil
}
