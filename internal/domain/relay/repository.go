package relay

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/channel"
)

// Filter narrows relay listings
type Filter struct {
	Status      *Status
	SellerID    *uuid.UUID
	SupplierID  *uuid.UUID
	ChannelCode *channel.Code
	Page        int
	PageSize    int
	OrderBy     string
	OrderDir    string
}

// Repository persists order relays
type Repository interface {
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*OrderRelay, error)
	FindByExternalOrder(ctx context.Context, tenantID uuid.UUID, code channel.Code, externalOrderID string) (*OrderRelay, error)
	FindByOrderID(ctx context.Context, tenantID, orderID uuid.UUID) (*OrderRelay, error)
	FindAll(ctx context.Context, tenantID uuid.UUID, filter Filter) ([]OrderRelay, int64, error)
	// FindDispatchDue returns CREATED relays whose next attempt is due and that
	// no dispatcher holds, across tenants
	FindDispatchDue(ctx context.Context, now time.Time, limit int) ([]OrderRelay, error)
	// Create inserts a new relay with its items. A (tenant, channel code,
	// external order id) collision returns shared.ErrAlreadyExists.
	Create(ctx context.Context, r *OrderRelay) error
	// Save updates relay state guarded by the aggregate version
	Save(ctx context.Context, r *OrderRelay) error
}
