package commission

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/relay"
	"github.com/marketrelay/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockRelayLookup implements relay.Repository for order state tests
type mockRelayLookup struct {
	relay.Repository
	mock.Mock
}

func (m *mockRelayLookup) FindByOrderID(ctx context.Context, tenantID, orderID uuid.UUID) (*relay.OrderRelay, error) {
	args := m.Called(ctx, tenantID, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*relay.OrderRelay), args.Error(1)
}

func TestRelayOrderState_IsOrderVoided(t *testing.T) {
	active := newAttributedRelay(t, "")
	cancelled := newAttributedRelay(t, "")
	require.NoError(t, cancelled.Cancel("fraud", time.Now()))
	missing := uuid.New()

	repo := new(mockRelayLookup)
	repo.On("FindByOrderID", mock.Anything, active.TenantID, active.OrderID).Return(active, nil)
	repo.On("FindByOrderID", mock.Anything, cancelled.TenantID, cancelled.OrderID).Return(cancelled, nil)
	repo.On("FindByOrderID", mock.Anything, active.TenantID, missing).Return(nil, shared.ErrNotFound)
	provider := NewRelayOrderState(repo)

	voided, err := provider.IsOrderVoided(context.Background(), active.TenantID, active.OrderID)
	require.NoError(t, err)
	assert.False(t, voided)

	voided, err = provider.IsOrderVoided(context.Background(), cancelled.TenantID, cancelled.OrderID)
	require.NoError(t, err)
	assert.True(t, voided)

	voided, err = provider.IsOrderVoided(context.Background(), active.TenantID, missing)
	require.NoError(t, err)
	assert.False(t, voided)
}
