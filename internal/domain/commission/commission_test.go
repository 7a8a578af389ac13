package commission

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testPolicy() *Policy {
	return &Policy{ID: "default", Type: PolicyTypeFlatRate, Rate: d("0.1"), HoldWindow: 7 * 24 * time.Hour}
}

func testConversion() ConversionEvent {
	sellerID := uuid.New()
	return ConversionEvent{
		ConversionID: "relay:TAOBAO:1001",
		TenantID:     uuid.New(),
		PartnerID:    uuid.New(),
		SellerID:     &sellerID,
		OrderID:      uuid.New(),
		OrderDate:    t0.Add(-time.Hour),
		OrderAmount:  d("250"),
		Currency:     "USD",
		ReferralCode: "ALICE10",
	}
}

func newPending(t *testing.T) *Commission {
	t.Helper()
	c, err := NewCommission(testConversion(), testPolicy(), t0)
	require.NoError(t, err)
	c.ClearDomainEvents()
	return c
}

func TestNewCommission(t *testing.T) {
	event := testConversion()
	c, err := NewCommission(event, testPolicy(), t0)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, c.Status)
	assert.Equal(t, event.ConversionID, c.ConversionID)
	assert.Equal(t, event.TenantID, c.TenantID)
	assert.True(t, d("25").Equal(c.CommissionAmount))
	assert.True(t, d("0.1").Equal(c.CommissionRate))
	assert.Equal(t, "default", c.PolicyID)
	assert.Equal(t, t0, c.CreatedAt)
	assert.Equal(t, t0.Add(7*24*time.Hour), c.HoldUntil)
	assert.False(t, c.HoldUntil.Before(c.CreatedAt))
	assert.Nil(t, c.SettlementBatchID)

	events := c.GetDomainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeCommissionCreated, events[0].EventType())
}

func TestNewCommission_Rejects(t *testing.T) {
	t.Run("missing conversion id", func(t *testing.T) {
		e := testConversion()
		e.ConversionID = ""
		_, err := NewCommission(e, testPolicy(), t0)
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "INVALID_CONVERSION", domainErr.Code)
	})

	t.Run("nil policy", func(t *testing.T) {
		_, err := NewCommission(testConversion(), nil, t0)
		assert.ErrorIs(t, err, ErrPolicyNotFound)
	})

	t.Run("policy not effective for order date", func(t *testing.T) {
		p := testPolicy()
		from := t0
		p.EffectiveFrom = &from
		_, err := NewCommission(testConversion(), p, t0)
		assert.Error(t, err)
	})
}

func TestCommission_HoldWindowScenario(t *testing.T) {
	c := newPending(t)

	err := c.Confirm(t0.Add(6 * 24 * time.Hour))
	assert.ErrorIs(t, err, ErrHoldNotExpired)
	assert.Equal(t, StatusPending, c.Status)

	require.NoError(t, c.Confirm(t0.Add(7*24*time.Hour)))
	assert.Equal(t, StatusConfirmed, c.Status)
	require.NotNil(t, c.ConfirmedAt)

	err = c.Confirm(t0.Add(8 * 24 * time.Hour))
	sc, ok := shared.IsStateConflict(err)
	require.True(t, ok)
	assert.Equal(t, "CONFIRMED", sc.CurrentState)
}

func TestCommission_Cancel(t *testing.T) {
	t.Run("pending", func(t *testing.T) {
		c := newPending(t)
		require.NoError(t, c.Cancel("order refunded", t0))
		assert.Equal(t, StatusCancelled, c.Status)
		assert.Equal(t, "order refunded", c.CancelReason)
		assert.Len(t, c.GetDomainEvents(), 1)
	})

	t.Run("confirmed", func(t *testing.T) {
		c := newPending(t)
		require.NoError(t, c.Confirm(c.HoldUntil))
		require.NoError(t, c.Cancel("order cancelled", c.HoldUntil))
		assert.Equal(t, StatusCancelled, c.Status)
	})

	t.Run("paid is rejected", func(t *testing.T) {
		c := newPending(t)
		require.NoError(t, c.Confirm(c.HoldUntil))
		require.NoError(t, c.AssignToBatch(uuid.New(), c.HoldUntil))
		require.NoError(t, c.MarkPaid(c.HoldUntil))

		err := c.Cancel("late refund", c.HoldUntil)
		assert.True(t, errors.Is(err, shared.ErrInvalidState))
		sc, _ := shared.IsStateConflict(err)
		assert.Equal(t, "PAID", sc.CurrentState)
		assert.Equal(t, StatusPaid, c.Status)
	})

	t.Run("in closed batch is rejected", func(t *testing.T) {
		c := newPending(t)
		require.NoError(t, c.Confirm(c.HoldUntil))
		require.NoError(t, c.AssignToBatch(uuid.New(), c.HoldUntil))
		assert.ErrorIs(t, c.Cancel("x", c.HoldUntil), ErrInSettlement)
		assert.Equal(t, StatusConfirmed, c.Status)
	})

	t.Run("cancelled twice", func(t *testing.T) {
		c := newPending(t)
		require.NoError(t, c.Cancel("x", t0))
		_, ok := shared.IsStateConflict(c.Cancel("x", t0))
		assert.True(t, ok)
	})
}

func TestCommission_BatchLifecycle(t *testing.T) {
	c := newPending(t)
	batchID := uuid.New()

	_, ok := shared.IsStateConflict(c.AssignToBatch(batchID, t0))
	assert.True(t, ok, "pending commissions cannot be settled")

	require.NoError(t, c.Confirm(c.HoldUntil))
	assert.Error(t, c.MarkPaid(c.HoldUntil), "unstamped commissions cannot be paid")

	require.NoError(t, c.AssignToBatch(batchID, c.HoldUntil))
	assert.ErrorIs(t, c.AssignToBatch(uuid.New(), c.HoldUntil), ErrInSettlement)

	require.NoError(t, c.ReleaseFromBatch(c.HoldUntil))
	assert.Nil(t, c.SettlementBatchID)

	require.NoError(t, c.AssignToBatch(batchID, c.HoldUntil))
	require.NoError(t, c.MarkPaid(c.HoldUntil))
	assert.Equal(t, StatusPaid, c.Status)
	assert.Error(t, c.ReleaseFromBatch(c.HoldUntil))
}
