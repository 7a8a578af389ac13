package commission

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filter narrows commission listings
type Filter struct {
	Status            *Status
	PartnerID         *uuid.UUID
	SellerID          *uuid.UUID
	SupplierID        *uuid.UUID
	OrderID           *uuid.UUID
	SettlementBatchID *uuid.UUID
	OrderDateFrom     *time.Time
	OrderDateTo       *time.Time
	Page              int
	PageSize          int
	OrderBy           string
	OrderDir          string
}

// HoldCursor is the position of the last commission a hold sweep visited
type HoldCursor struct {
	HoldUntil time.Time
	ID        uuid.UUID
}

// CursorOf returns the sweep position just after c
func CursorOf(c *Commission) *HoldCursor {
	return &HoldCursor{HoldUntil: c.HoldUntil, ID: c.ID}
}

// Repository persists commissions
type Repository interface {
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Commission, error)
	// FindByConversionID returns shared.ErrNotFound when nothing was computed yet
	FindByConversionID(ctx context.Context, tenantID uuid.UUID, conversionID string) (*Commission, error)
	FindByOrderID(ctx context.Context, tenantID, orderID uuid.UUID) ([]Commission, error)
	FindAll(ctx context.Context, tenantID uuid.UUID, filter Filter) ([]Commission, int64, error)
	// FindHoldExpired returns PENDING commissions with HoldUntil <= now, across
	// tenants, ordered by (HoldUntil, ID) and starting after the cursor when one is given
	FindHoldExpired(ctx context.Context, now time.Time, after *HoldCursor, limit int) ([]Commission, error)
	// Create inserts a commission; a conversion id collision returns shared.ErrAlreadyExists
	Create(ctx context.Context, c *Commission) error
	// Save updates commission state guarded by the aggregate version
	Save(ctx context.Context, c *Commission) error
}

// OrderStateProvider tells the sweep whether an order was cancelled or refunded
type OrderStateProvider interface {
	IsOrderVoided(ctx context.Context, tenantID, orderID uuid.UUID) (bool, error)
}
