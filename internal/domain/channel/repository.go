package channel

import (
	"context"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/shared"
)

// AccountRepository persists channel accounts
type AccountRepository interface {
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Account, error)
	FindAll(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]Account, int64, error)
	// FindEnabled returns enabled accounts across tenants, for the polling worker
	FindEnabled(ctx context.Context) ([]Account, error)
	Save(ctx context.Context, account *Account) error
}

// ListingLinkRepository persists listing links
type ListingLinkRepository interface {
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*ListingLink, error)
	FindByAccount(ctx context.Context, tenantID, accountID uuid.UUID) ([]ListingLink, error)
	FindByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]ListingLink, error)
	FindByExternalProductID(ctx context.Context, tenantID, accountID uuid.UUID, externalProductID string) (*ListingLink, error)
	Save(ctx context.Context, link *ListingLink) error
}

// OrderStore backs the in-memory sandbox connector. Orders are appended by
// tests or demo tooling and returned by ImportOrders.
type OrderStore interface {
	Append(ctx context.Context, accountKey string, orders ...ExternalOrder) error
	List(ctx context.Context, accountKey string) ([]ExternalOrder, error)
	Clear(ctx context.Context, accountKey string) error
}
