package relay

import (
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Event type constants for OrderRelay
const (
	EventTypeRelayCreated           = "RelayCreated"
	EventTypeRelayDispatched        = "RelayDispatched"
	EventTypeRelayDispatchExhausted = "RelayDispatchExhausted"
	EventTypeRelayAcknowledged      = "RelayAcknowledged"
	EventTypeRelayFulfilled         = "RelayFulfilled"
	EventTypeRelayFailed            = "RelayFailed"
	EventTypeRelayCancelled         = "RelayCancelled"
	EventTypeRelayReset             = "RelayReset"
)

// RelayCreatedEvent is raised when a new relay is ingested. Commission
// attribution listens to it.
type RelayCreatedEvent struct {
	shared.BaseDomainEvent
	RelayID         uuid.UUID       `json:"relay_id"`
	SellerID        uuid.UUID       `json:"seller_id"`
	SupplierID      uuid.UUID       `json:"supplier_id"`
	ChannelCode     string          `json:"channel_code"`
	ExternalOrderID string          `json:"external_order_id"`
	OrderID         uuid.UUID       `json:"order_id"`
	OrderDate       time.Time       `json:"order_date"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Currency        string          `json:"currency"`
	ReferralCode    string          `json:"referral_code,omitempty"`
	PartnerID       *uuid.UUID      `json:"partner_id,omitempty"`
	ProductID       *uuid.UUID      `json:"product_id,omitempty"`
}

// NewRelayCreatedEvent creates a new RelayCreatedEvent
func NewRelayCreatedEvent(r *OrderRelay) *RelayCreatedEvent {
	return &RelayCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRelayCreated, AggregateTypeOrderRelay, r.ID, r.TenantID),
		RelayID:         r.ID,
		SellerID:        r.SellerID,
		SupplierID:      r.SupplierID,
		ChannelCode:     r.ChannelCode.String(),
		ExternalOrderID: r.ExternalOrderID,
		OrderID:         r.OrderID,
		OrderDate:       r.OrderDate,
		TotalAmount:     r.TotalAmount,
		Currency:        r.Currency,
		ReferralCode:    r.ReferralCode,
		PartnerID:       r.PartnerID,
		ProductID:       r.PrimaryProductID(),
	}
}

// ConversionID is the commission idempotency key derived from the relay's natural key
func (e *RelayCreatedEvent) ConversionID() string {
	return "relay:" + e.ChannelCode + ":" + e.ExternalOrderID
}

// RelayStatusEvent carries the relay identity and its new status. It backs every
// lifecycle event other than creation.
type RelayStatusEvent struct {
	shared.BaseDomainEvent
	RelayID         uuid.UUID `json:"relay_id"`
	OrderID         uuid.UUID `json:"order_id"`
	SellerID        uuid.UUID `json:"seller_id"`
	SupplierID      uuid.UUID `json:"supplier_id"`
	ChannelCode     string    `json:"channel_code"`
	ExternalOrderID string    `json:"external_order_id"`
	Status          string    `json:"status"`
	RetryCount      int       `json:"retry_count"`
	Reason          string    `json:"reason,omitempty"`
}

func newStatusEvent(eventType string, r *OrderRelay, reason string) *RelayStatusEvent {
	return &RelayStatusEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, AggregateTypeOrderRelay, r.ID, r.TenantID),
		RelayID:         r.ID,
		OrderID:         r.OrderID,
		SellerID:        r.SellerID,
		SupplierID:      r.SupplierID,
		ChannelCode:     r.ChannelCode.String(),
		ExternalOrderID: r.ExternalOrderID,
		Status:          r.Status.String(),
		RetryCount:      r.RetryCount,
		Reason:          reason,
	}
}

// NewRelayDispatchedEvent creates a RelayDispatched event
func NewRelayDispatchedEvent(r *OrderRelay) *RelayStatusEvent {
	return newStatusEvent(EventTypeRelayDispatched, r, "")
}

// NewRelayDispatchExhaustedEvent creates a RelayDispatchExhausted event. Operators
// are alerted on it.
func NewRelayDispatchExhaustedEvent(r *OrderRelay) *RelayStatusEvent {
	return newStatusEvent(EventTypeRelayDispatchExhausted, r, r.LastError)
}

// NewRelayAcknowledgedEvent creates a RelayAcknowledged event
func NewRelayAcknowledgedEvent(r *OrderRelay) *RelayStatusEvent {
	return newStatusEvent(EventTypeRelayAcknowledged, r, "")
}

// NewRelayFulfilledEvent creates a RelayFulfilled event
func NewRelayFulfilledEvent(r *OrderRelay) *RelayStatusEvent {
	return newStatusEvent(EventTypeRelayFulfilled, r, "")
}

// NewRelayFailedEvent creates a RelayFailed event
func NewRelayFailedEvent(r *OrderRelay) *RelayStatusEvent {
	return newStatusEvent(EventTypeRelayFailed, r, r.FailureReason)
}

// NewRelayCancelledEvent creates a RelayCancelled event. Commissions for the
// order are cancelled on it.
func NewRelayCancelledEvent(r *OrderRelay) *RelayStatusEvent {
	return newStatusEvent(EventTypeRelayCancelled, r, r.CancelReason)
}

// NewRelayResetEvent creates a RelayReset event
func NewRelayResetEvent(r *OrderRelay) *RelayStatusEvent {
	return newStatusEvent(EventTypeRelayReset, r, "")
}
