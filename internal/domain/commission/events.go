package commission

import (
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Event type constants for Commission
const (
	EventTypeCommissionCreated   = "CommissionCreated"
	EventTypeCommissionConfirmed = "CommissionConfirmed"
	EventTypeCommissionCancelled = "CommissionCancelled"
)

// CommissionEvent carries a commission snapshot
type CommissionEvent struct {
	shared.BaseDomainEvent
	CommissionID     uuid.UUID       `json:"commission_id"`
	ConversionID     string          `json:"conversion_id"`
	PartnerID        uuid.UUID       `json:"partner_id"`
	OrderID          uuid.UUID       `json:"order_id"`
	Status           string          `json:"status"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	Currency         string          `json:"currency"`
	HoldUntil        time.Time       `json:"hold_until"`
	Reason           string          `json:"reason,omitempty"`
}

func newCommissionEvent(eventType string, c *Commission) *CommissionEvent {
	return &CommissionEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(eventType, AggregateTypeCommission, c.ID, c.TenantID),
		CommissionID:     c.ID,
		ConversionID:     c.ConversionID,
		PartnerID:        c.PartnerID,
		OrderID:          c.OrderID,
		Status:           c.Status.String(),
		CommissionAmount: c.CommissionAmount,
		Currency:         c.Currency,
		HoldUntil:        c.HoldUntil,
		Reason:           c.CancelReason,
	}
}

// NewCommissionCreatedEvent creates a CommissionCreated event
func NewCommissionCreatedEvent(c *Commission) *CommissionEvent {
	return newCommissionEvent(EventTypeCommissionCreated, c)
}

// NewCommissionConfirmedEvent creates a CommissionConfirmed event
func NewCommissionConfirmedEvent(c *Commission) *CommissionEvent {
	return newCommissionEvent(EventTypeCommissionConfirmed, c)
}

// NewCommissionCancelledEvent creates a CommissionCancelled event
func NewCommissionCancelledEvent(c *Commission) *CommissionEvent {
	return newCommissionEvent(EventTypeCommissionCancelled, c)
}
