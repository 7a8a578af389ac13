package commission

import (
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ConversionEvent is an attributed sale: a partner referred the buyer of an order
type ConversionEvent struct {
	ConversionID string
	TenantID     uuid.UUID
	PartnerID    uuid.UUID
	ProductID    *uuid.UUID
	SellerID     *uuid.UUID
	SupplierID   *uuid.UUID
	OrderID      uuid.UUID
	OrderDate    time.Time
	OrderAmount  decimal.Decimal
	Currency     string
	ReferralCode string
}

// Validate rejects malformed conversion events
func (e *ConversionEvent) Validate() error {
	if e.ConversionID == "" {
		return shared.NewDomainError("INVALID_CONVERSION", "Conversion ID is required")
	}
	if len(e.ConversionID) > 200 {
		return shared.NewDomainError("INVALID_CONVERSION", "Conversion ID cannot exceed 200 characters")
	}
	if e.TenantID == uuid.Nil {
		return shared.NewDomainError("INVALID_CONVERSION", "Tenant ID is required")
	}
	if e.PartnerID == uuid.Nil {
		return shared.NewDomainError("INVALID_CONVERSION", "Partner ID is required")
	}
	if e.OrderID == uuid.Nil {
		return shared.NewDomainError("INVALID_CONVERSION", "Order ID is required")
	}
	if e.OrderDate.IsZero() {
		return shared.NewDomainError("INVALID_CONVERSION", "Order date is required")
	}
	if e.OrderAmount.IsNegative() {
		return shared.NewDomainError("INVALID_CONVERSION", "Order amount cannot be negative")
	}
	return nil
}
