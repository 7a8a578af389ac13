package relay

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/channel"
	"github.com/marketrelay/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOrder() channel.ExternalOrder {
	return channel.ExternalOrder{
		ExternalOrderID: "TB-1001",
		OrderDate:       time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC),
		Items: []channel.ExternalItem{
			{
				ExternalProductID: "P-1",
				Quantity:          2,
				UnitPrice:         decimal.NewFromInt(30),
				TotalPrice:        decimal.NewFromInt(60),
				Options:           map[string]string{channel.MetadataProductID: "6f1c1b8e-3f77-4a7c-9d1e-2d8f6f9b0a11"},
			},
			{
				ExternalProductID: "P-2",
				Quantity:          1,
				UnitPrice:         decimal.NewFromInt(40),
				TotalPrice:        decimal.NewFromInt(40),
			},
		},
		Currency: "USD",
		Metadata: map[string]string{
			channel.MetadataReferralCode: "ALICE10",
			channel.MetadataPartnerID:    "0b0e9b34-9d2f-4c55-8f3c-1c1f0c7d9e21",
		},
	}
}

func newTestRelay(t *testing.T) *OrderRelay {
	t.Helper()
	r, err := NewOrderRelay(uuid.New(), uuid.New(), uuid.New(), uuid.Nil, channel.CodeTaobao, testOrder())
	require.NoError(t, err)
	r.ClearDomainEvents()
	return r
}

func requireStateConflict(t *testing.T, err error, current Status) {
	t.Helper()
	sc, ok := shared.IsStateConflict(err)
	require.True(t, ok, "expected state conflict, got %v", err)
	assert.Equal(t, current.String(), sc.CurrentState)
	assert.True(t, errors.Is(err, shared.ErrInvalidState))
}

func TestNewOrderRelay(t *testing.T) {
	tenantID := uuid.New()
	r, err := NewOrderRelay(tenantID, uuid.New(), uuid.New(), uuid.Nil, channel.CodeTaobao, testOrder())
	require.NoError(t, err)

	assert.Equal(t, StatusCreated, r.Status)
	assert.Equal(t, tenantID, r.TenantID)
	assert.NotEqual(t, uuid.Nil, r.OrderID)
	assert.Equal(t, "ALICE10", r.ReferralCode)
	require.NotNil(t, r.PartnerID)
	assert.Equal(t, "0b0e9b34-9d2f-4c55-8f3c-1c1f0c7d9e21", r.PartnerID.String())
	assert.True(t, decimal.NewFromInt(100).Equal(r.TotalAmount), "total falls back to item sum")
	require.Len(t, r.Items, 2)
	assert.Equal(t, r.ID, r.Items[0].RelayID)
	require.NotNil(t, r.PrimaryProductID())
	assert.Nil(t, r.Items[1].ProductID)

	events := r.GetDomainEvents()
	require.Len(t, events, 1)
	created, ok := events[0].(*RelayCreatedEvent)
	require.True(t, ok)
	assert.Equal(t, "relay:TAOBAO:TB-1001", created.ConversionID())
	assert.Equal(t, r.OrderID, created.OrderID)
}

func TestNewOrderRelay_Validation(t *testing.T) {
	order := testOrder()
	_, err := NewOrderRelay(uuid.Nil, uuid.New(), uuid.New(), uuid.Nil, channel.CodeTaobao, order)
	assert.Error(t, err)
	_, err = NewOrderRelay(uuid.New(), uuid.Nil, uuid.New(), uuid.Nil, channel.CodeTaobao, order)
	assert.Error(t, err)
	_, err = NewOrderRelay(uuid.New(), uuid.New(), uuid.Nil, uuid.Nil, channel.CodeTaobao, order)
	assert.Error(t, err)
	_, err = NewOrderRelay(uuid.New(), uuid.New(), uuid.New(), uuid.Nil, channel.Code("bad code"), order)
	assert.Error(t, err)

	order.Items = nil
	_, err = NewOrderRelay(uuid.New(), uuid.New(), uuid.New(), uuid.Nil, channel.CodeInternal, order)
	assert.Error(t, err)
}

func TestOrderRelay_HappyPath(t *testing.T) {
	r := newTestRelay(t)
	now := time.Now()

	require.NoError(t, r.RecordDispatchSuccess("SUP-9", now))
	assert.Equal(t, StatusDispatched, r.Status)
	assert.Equal(t, "SUP-9", r.SupplierReference)

	require.NoError(t, r.Acknowledge(now))
	assert.Equal(t, StatusAcknowledged, r.Status)

	require.NoError(t, r.MarkFulfilled(TrackingInfo{Carrier: "SF", TrackingNumber: "SF123"}, now))
	assert.Equal(t, StatusFulfilled, r.Status)
	assert.Equal(t, "SF123", r.Tracking.TrackingNumber)
	assert.True(t, r.Status.IsTerminal())

	types := make([]string, 0)
	for _, e := range r.GetDomainEvents() {
		types = append(types, e.EventType())
	}
	assert.Equal(t, []string{EventTypeRelayDispatched, EventTypeRelayAcknowledged, EventTypeRelayFulfilled}, types)
}

func TestOrderRelay_IllegalTransitions(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		prepare func(r *OrderRelay)
		act     func(r *OrderRelay) error
		current Status
	}{
		{
			name:    "acknowledge from CREATED",
			act:     func(r *OrderRelay) error { return r.Acknowledge(now) },
			current: StatusCreated,
		},
		{
			name:    "fulfill from DISPATCHED",
			prepare: func(r *OrderRelay) { _ = r.RecordDispatchSuccess("x", now) },
			act: func(r *OrderRelay) error {
				return r.MarkFulfilled(TrackingInfo{Carrier: "SF", TrackingNumber: "1"}, now)
			},
			current: StatusDispatched,
		},
		{
			name:    "fail from CREATED",
			act:     func(r *OrderRelay) error { return r.MarkFailed("boom", now) },
			current: StatusCreated,
		},
		{
			name: "cancel from ACKNOWLEDGED",
			prepare: func(r *OrderRelay) {
				_ = r.RecordDispatchSuccess("x", now)
				_ = r.Acknowledge(now)
			},
			act:     func(r *OrderRelay) error { return r.Cancel("buyer", now) },
			current: StatusAcknowledged,
		},
		{
			name: "cancel from FULFILLED",
			prepare: func(r *OrderRelay) {
				_ = r.RecordDispatchSuccess("x", now)
				_ = r.Acknowledge(now)
				_ = r.MarkFulfilled(TrackingInfo{Carrier: "SF", TrackingNumber: "1"}, now)
			},
			act:     func(r *OrderRelay) error { return r.Cancel("late", now) },
			current: StatusFulfilled,
		},
		{
			name:    "dispatch twice",
			prepare: func(r *OrderRelay) { _ = r.RecordDispatchSuccess("x", now) },
			act:     func(r *OrderRelay) error { return r.RecordDispatchSuccess("y", now) },
			current: StatusDispatched,
		},
		{
			name:    "reset from CREATED",
			act:     func(r *OrderRelay) error { return r.ResetForRedispatch(now) },
			current: StatusCreated,
		},
		{
			name:    "dispatch failure from CANCELLED",
			prepare: func(r *OrderRelay) { _ = r.Cancel("x", now) },
			act: func(r *OrderRelay) error {
				_, err := r.RecordDispatchFailure("timeout", 3, now, now)
				return err
			},
			current: StatusCancelled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRelay(t)
			if tt.prepare != nil {
				tt.prepare(r)
			}
			before := r.Status
			err := tt.act(r)
			requireStateConflict(t, err, tt.current)
			assert.Equal(t, before, r.Status, "status unchanged after rejected transition")
		})
	}
}

func TestOrderRelay_DispatchRetryBudget(t *testing.T) {
	r := newTestRelay(t)
	now := time.Now()
	next := now.Add(time.Minute)

	exhausted, err := r.RecordDispatchFailure("connection refused", 3, next, now)
	require.NoError(t, err)
	assert.False(t, exhausted)
	assert.Equal(t, StatusCreated, r.Status)
	assert.Equal(t, 1, r.RetryCount)
	assert.Equal(t, "connection refused", r.LastError)
	assert.False(t, r.IsDispatchDue(now))
	assert.True(t, r.IsDispatchDue(next))

	_, err = r.RecordDispatchFailure("timeout", 3, next, now)
	require.NoError(t, err)
	exhausted, err = r.RecordDispatchFailure("timeout", 3, next, now)
	require.NoError(t, err)
	assert.True(t, exhausted)
	assert.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, 3, r.RetryCount)
	assert.False(t, r.IsDispatchDue(next))

	events := r.GetDomainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeRelayDispatchExhausted, events[0].EventType())

	require.NoError(t, r.ResetForRedispatch(now))
	assert.Equal(t, StatusCreated, r.Status)
	assert.Zero(t, r.RetryCount)
	assert.True(t, r.IsDispatchDue(now))
}

func TestOrderRelay_ClaimDispatch(t *testing.T) {
	r := newTestRelay(t)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	require.NoError(t, r.ClaimDispatch(now, time.Minute))
	require.NotNil(t, r.DispatchLeaseUntil)
	assert.Equal(t, now.Add(time.Minute), *r.DispatchLeaseUntil)
	assert.False(t, r.IsDispatchDue(now.Add(30*time.Second)))

	err := r.ClaimDispatch(now.Add(30*time.Second), time.Minute)
	requireStateConflict(t, err, Status(StateDispatching))

	t.Run("expired lease can be taken over", func(t *testing.T) {
		later := now.Add(2 * time.Minute)
		assert.True(t, r.IsDispatchDue(later))
		require.NoError(t, r.ClaimDispatch(later, time.Minute))
		assert.Equal(t, later.Add(time.Minute), *r.DispatchLeaseUntil)
	})

	t.Run("outcome releases the lease", func(t *testing.T) {
		_, err := r.RecordDispatchFailure("timeout", 3, now.Add(5*time.Minute), now.Add(2*time.Minute))
		require.NoError(t, err)
		assert.Nil(t, r.DispatchLeaseUntil)

		require.NoError(t, r.ClaimDispatch(now.Add(5*time.Minute), time.Minute))
		require.NoError(t, r.RecordDispatchSuccess("S-1", now.Add(5*time.Minute)))
		assert.Nil(t, r.DispatchLeaseUntil)
	})

	t.Run("only created relays are claimed", func(t *testing.T) {
		err := r.ClaimDispatch(now.Add(time.Hour), time.Minute)
		requireStateConflict(t, err, StatusDispatched)
	})
}

func TestOrderRelay_Cancel(t *testing.T) {
	for _, dispatched := range []bool{false, true} {
		r := newTestRelay(t)
		now := time.Now()
		if dispatched {
			require.NoError(t, r.RecordDispatchSuccess("x", now))
		}
		require.NoError(t, r.Cancel("buyer request", now))
		assert.Equal(t, StatusCancelled, r.Status)
		assert.Equal(t, "buyer request", r.CancelReason)

		events := r.GetDomainEvents()
		last := events[len(events)-1].(*RelayStatusEvent)
		assert.Equal(t, EventTypeRelayCancelled, last.EventType())
		assert.Equal(t, r.OrderID, last.OrderID)
	}
}

func TestOrderRelay_MarkFailedRequiresReason(t *testing.T) {
	r := newTestRelay(t)
	require.NoError(t, r.RecordDispatchSuccess("x", time.Now()))
	err := r.MarkFailed("", time.Now())
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "INVALID_REASON", domainErr.Code)
}

func TestNewDispatchRequest(t *testing.T) {
	r := newTestRelay(t)
	req := NewDispatchRequest(r)
	assert.Equal(t, r.ID, req.RelayID)
	assert.Equal(t, "TAOBAO", req.ChannelCode)
	require.Len(t, req.Items, 2)
	assert.Equal(t, 2, req.Items[0].Quantity)
}
