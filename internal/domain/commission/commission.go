package commission

import (
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// AggregateTypeCommission is the aggregate type name used in events
const AggregateTypeCommission = "Commission"

// ErrHoldNotExpired is returned when confirming before HoldUntil
var ErrHoldNotExpired = shared.NewDomainError("HOLD_NOT_EXPIRED", "Commission hold window has not elapsed")

// ErrInSettlement is returned when a commission locked into a settlement batch
// would be changed outside that batch's transitions
var ErrInSettlement = shared.NewDomainError("COMMISSION_IN_SETTLEMENT", "Commission belongs to a closed settlement batch")

// Status represents the status of a commission
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
)

// IsValid returns true if the status is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPaid, StatusCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true for PAID and CANCELLED
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

// Commission is the amount owed to a partner for one conversion
type Commission struct {
	shared.TenantAggregateRoot
	ConversionID      string
	PartnerID         uuid.UUID
	ProductID         *uuid.UUID
	SellerID          *uuid.UUID
	SupplierID        *uuid.UUID
	OrderID           uuid.UUID
	OrderDate         time.Time
	ReferralCode      string
	Status            Status
	OrderAmount       decimal.Decimal
	CommissionAmount  decimal.Decimal
	CommissionRate    decimal.Decimal
	Currency          string
	PolicyID          string
	HoldUntil         time.Time
	ConfirmedAt       *time.Time
	PaidAt            *time.Time
	CancelledAt       *time.Time
	CancelReason      string
	SettlementBatchID *uuid.UUID
}

// NewCommission computes a PENDING commission for a conversion under a policy.
// HoldUntil is createdAt plus the policy hold window.
func NewCommission(event ConversionEvent, policy *Policy, createdAt time.Time) (*Commission, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, ErrPolicyNotFound
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if !policy.IsEffectiveAt(event.OrderDate) {
		return nil, shared.NewDomainError("INVALID_POLICY", "Commission policy is not effective for the order date")
	}

	amount, rate := policy.Calculate(event.OrderAmount)
	currency := event.Currency
	if currency == "" {
		currency = "CNY"
	}

	c := &Commission{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(event.TenantID),
		ConversionID:        event.ConversionID,
		PartnerID:           event.PartnerID,
		ProductID:           event.ProductID,
		SellerID:            event.SellerID,
		SupplierID:          event.SupplierID,
		OrderID:             event.OrderID,
		OrderDate:           event.OrderDate,
		ReferralCode:        event.ReferralCode,
		Status:              StatusPending,
		OrderAmount:         event.OrderAmount.Round(2),
		CommissionAmount:    amount,
		CommissionRate:      rate,
		Currency:            currency,
		PolicyID:            policy.ID,
		HoldUntil:           createdAt.Add(policy.HoldWindow),
	}
	c.CreatedAt = createdAt
	c.UpdatedAt = createdAt

	c.AddDomainEvent(NewCommissionCreatedEvent(c))
	return c, nil
}

// IsHoldExpired reports whether the hold window has elapsed at now
func (c *Commission) IsHoldExpired(now time.Time) bool {
	return !c.HoldUntil.After(now)
}

// IsInSettlement reports whether a settlement batch has claimed the commission
func (c *Commission) IsInSettlement() bool {
	return c.SettlementBatchID != nil
}

// Confirm moves PENDING -> CONFIRMED once the hold has expired. The caller is
// responsible for checking that the underlying order was not voided.
func (c *Commission) Confirm(now time.Time) error {
	if c.Status != StatusPending {
		return shared.NewStateConflictError(AggregateTypeCommission, "confirm", c.Status.String())
	}
	if !c.IsHoldExpired(now) {
		return ErrHoldNotExpired
	}
	c.Status = StatusConfirmed
	c.ConfirmedAt = &now
	c.UpdatedAt = now
	c.AddDomainEvent(NewCommissionConfirmedEvent(c))
	return nil
}

// Cancel moves PENDING | CONFIRMED -> CANCELLED. A commission already claimed
// by a closed settlement batch cannot be cancelled here.
func (c *Commission) Cancel(reason string, now time.Time) error {
	if c.Status != StatusPending && c.Status != StatusConfirmed {
		return shared.NewStateConflictError(AggregateTypeCommission, "cancel", c.Status.String())
	}
	if c.IsInSettlement() {
		return ErrInSettlement
	}
	c.Status = StatusCancelled
	c.CancelledAt = &now
	c.CancelReason = reason
	c.UpdatedAt = now
	c.AddDomainEvent(NewCommissionCancelledEvent(c))
	return nil
}

// AssignToBatch stamps the commission with a settlement batch
func (c *Commission) AssignToBatch(batchID uuid.UUID, now time.Time) error {
	if c.Status != StatusConfirmed {
		return shared.NewStateConflictError(AggregateTypeCommission, "settle", c.Status.String())
	}
	if c.IsInSettlement() {
		return ErrInSettlement
	}
	c.SettlementBatchID = &batchID
	c.UpdatedAt = now
	return nil
}

// ReleaseFromBatch clears the batch stamp of an unpaid commission
func (c *Commission) ReleaseFromBatch(now time.Time) error {
	if c.Status == StatusPaid {
		return shared.NewStateConflictError(AggregateTypeCommission, "release", c.Status.String())
	}
	c.SettlementBatchID = nil
	c.UpdatedAt = now
	return nil
}

// MarkPaid moves CONFIRMED -> PAID. Only a stamped commission can be paid.
func (c *Commission) MarkPaid(now time.Time) error {
	if c.Status != StatusConfirmed {
		return shared.NewStateConflictError(AggregateTypeCommission, "pay", c.Status.String())
	}
	if !c.IsInSettlement() {
		return shared.NewDomainError("NOT_IN_SETTLEMENT", "Commission is not part of a settlement batch")
	}
	c.Status = StatusPaid
	c.PaidAt = &now
	c.UpdatedAt = now
	return nil
}
