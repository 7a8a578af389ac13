package channel

import (
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ListingStatus is the export status of a listing link
type ListingStatus string

const (
	ListingStatusPending   ListingStatus = "PENDING"
	ListingStatusPublished ListingStatus = "PUBLISHED"
	ListingStatusFailed    ListingStatus = "FAILED"
)

// IsValid returns true if the status is valid
func (s ListingStatus) IsValid() bool {
	switch s {
	case ListingStatusPending, ListingStatusPublished, ListingStatusFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of ListingStatus
func (s ListingStatus) String() string {
	return string(s)
}

// ListingLink links a catalog product to a channel account. The product data
// it carries is the snapshot that gets exported; the catalog itself is owned
// by another service.
type ListingLink struct {
	shared.TenantAggregateRoot
	AccountID         uuid.UUID
	ChannelCode       Code
	ProductID         uuid.UUID
	SKU               string
	Title             string
	Description       string
	Price             decimal.Decimal
	Currency          string
	Quantity          int
	ImageURLs         []string
	Tags              []string
	ExternalProductID string
	ExternalURL       string
	Status            ListingStatus
	LastError         string
	LastExportedAt    *time.Time
}

// NewListingLink creates a pending listing link for an account
func NewListingLink(account *Account, productID uuid.UUID, title string, price decimal.Decimal, currency string) (*ListingLink, error) {
	if account == nil {
		return nil, shared.NewDomainError("INVALID_ACCOUNT", "Channel account is required")
	}
	if productID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PRODUCT", "Product ID is required")
	}
	if title == "" {
		return nil, shared.NewDomainError("INVALID_TITLE", "Listing title is required")
	}
	if price.IsNegative() {
		return nil, shared.NewDomainError("INVALID_PRICE", "Listing price cannot be negative")
	}
	if currency == "" {
		currency = "CNY"
	}

	return &ListingLink{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(account.TenantID),
		AccountID:           account.ID,
		ChannelCode:         account.ChannelCode,
		ProductID:           productID,
		Title:               title,
		Price:               price.Round(2),
		Currency:            currency,
		Status:              ListingStatusPending,
	}, nil
}

// IsPublished returns true once the channel has assigned an external product id
func (l *ListingLink) IsPublished() bool {
	return l.ExternalProductID != ""
}

// RecordExportSuccess stores the channel's product id and URL
func (l *ListingLink) RecordExportSuccess(externalProductID, externalURL string, at time.Time) {
	l.ExternalProductID = externalProductID
	if externalURL != "" {
		l.ExternalURL = externalURL
	}
	l.Status = ListingStatusPublished
	l.LastError = ""
	l.LastExportedAt = &at
	l.touch()
}

// RecordExportFailure keeps any previous external id so a later retry updates
// the existing channel product instead of creating a second one
func (l *ListingLink) RecordExportFailure(message string, at time.Time) {
	l.Status = ListingStatusFailed
	l.LastError = message
	l.LastExportedAt = &at
	l.touch()
}

func (l *ListingLink) touch() {
	l.UpdatedAt = time.Now()
}
