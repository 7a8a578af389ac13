package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/channel"
	"github.com/shopspring/decimal"
)

// ChannelAccountModel is the persistence model for channel.Account
type ChannelAccountModel struct {
	TenantAggregateModel
	SellerID        uuid.UUID    `gorm:"type:uuid;not null;index"`
	SupplierID      uuid.UUID    `gorm:"type:uuid;not null"`
	ChannelCode     channel.Code `gorm:"type:varchar(50);not null;index"`
	Name            string       `gorm:"type:varchar(100);not null"`
	CredentialsJSON string       `gorm:"column:credentials;type:jsonb;not null"`
	Enabled         bool         `gorm:"not null;default:true;index"`
	LastImportedAt  *time.Time
	LastPolledAt    *time.Time
	LastPollError   string `gorm:"type:text"`
	ImportCursor    string `gorm:"type:varchar(255)"`
	ImportHighWater *time.Time
}

// TableName returns the table name for GORM
func (ChannelAccountModel) TableName() string {
	return "channel_accounts"
}

// ToDomain converts the persistence model to a domain Account
func (m *ChannelAccountModel) ToDomain() *channel.Account {
	a := &channel.Account{
		SellerID:        m.SellerID,
		SupplierID:      m.SupplierID,
		ChannelCode:     m.ChannelCode,
		Name:            m.Name,
		Credentials:     map[string]string{},
		Enabled:         m.Enabled,
		LastImportedAt:  m.LastImportedAt,
		LastPolledAt:    m.LastPolledAt,
		LastPollError:   m.LastPollError,
		ImportCursor:    m.ImportCursor,
		ImportHighWater: m.ImportHighWater,
	}
	m.PopulateTenantAggregateRoot(&a.TenantAggregateRoot)
	fromJSON(m.CredentialsJSON, &a.Credentials)
	return a
}

// ChannelAccountModelFromDomain creates a persistence model from a domain Account
func ChannelAccountModelFromDomain(a *channel.Account) *ChannelAccountModel {
	m := &ChannelAccountModel{
		SellerID:        a.SellerID,
		SupplierID:      a.SupplierID,
		ChannelCode:     a.ChannelCode,
		Name:            a.Name,
		CredentialsJSON: toJSON(a.Credentials, "{}"),
		Enabled:         a.Enabled,
		LastImportedAt:  a.LastImportedAt,
		LastPolledAt:    a.LastPolledAt,
		LastPollError:   a.LastPollError,
		ImportCursor:    a.ImportCursor,
		ImportHighWater: a.ImportHighWater,
	}
	m.FromDomainTenantAggregateRoot(a.TenantAggregateRoot)
	return m
}

// ListingLinkModel is the persistence model for channel.ListingLink
type ListingLinkModel struct {
	TenantAggregateModel
	AccountID         uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_listing_links_account_product,priority:1"`
	ProductID         uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_listing_links_account_product,priority:2"`
	ChannelCode       channel.Code    `gorm:"type:varchar(50);not null"`
	SKU               string          `gorm:"column:sku;type:varchar(100)"`
	Title             string          `gorm:"type:varchar(255);not null"`
	Description       string          `gorm:"type:text"`
	Price             decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Currency          string          `gorm:"type:varchar(3);not null"`
	Quantity          int             `gorm:"not null;default:0"`
	ImageURLsJSON     string          `gorm:"column:image_urls;type:jsonb"`
	TagsJSON          string          `gorm:"column:tags;type:jsonb"`
	ExternalProductID string          `gorm:"type:varchar(100);index"`
	ExternalURL       string          `gorm:"type:varchar(500)"`
	Status            string          `gorm:"type:varchar(20);not null;default:'PENDING'"`
	LastError         string          `gorm:"type:text"`
	LastExportedAt    *time.Time
}

// TableName returns the table name for GORM
func (ListingLinkModel) TableName() string {
	return "listing_links"
}

// ToDomain converts the persistence model to a domain ListingLink
func (m *ListingLinkModel) ToDomain() *channel.ListingLink {
	l := &channel.ListingLink{
		AccountID:         m.AccountID,
		ChannelCode:       m.ChannelCode,
		ProductID:         m.ProductID,
		SKU:               m.SKU,
		Title:             m.Title,
		Description:       m.Description,
		Price:             m.Price,
		Currency:          m.Currency,
		Quantity:          m.Quantity,
		ExternalProductID: m.ExternalProductID,
		ExternalURL:       m.ExternalURL,
		Status:            channel.ListingStatus(m.Status),
		LastError:         m.LastError,
		LastExportedAt:    m.LastExportedAt,
	}
	m.PopulateTenantAggregateRoot(&l.TenantAggregateRoot)
	fromJSON(m.ImageURLsJSON, &l.ImageURLs)
	fromJSON(m.TagsJSON, &l.Tags)
	return l
}

// ListingLinkModelFromDomain creates a persistence model from a domain ListingLink
func ListingLinkModelFromDomain(l *channel.ListingLink) *ListingLinkModel {
	m := &ListingLinkModel{
		AccountID:         l.AccountID,
		ProductID:         l.ProductID,
		ChannelCode:       l.ChannelCode,
		SKU:               l.SKU,
		Title:             l.Title,
		Description:       l.Description,
		Price:             l.Price,
		Currency:          l.Currency,
		Quantity:          l.Quantity,
		ImageURLsJSON:     toJSON(l.ImageURLs, "[]"),
		TagsJSON:          toJSON(l.Tags, "[]"),
		ExternalProductID: l.ExternalProductID,
		ExternalURL:       l.ExternalURL,
		Status:            l.Status.String(),
		LastError:         l.LastError,
		LastExportedAt:    l.LastExportedAt,
	}
	m.FromDomainTenantAggregateRoot(l.TenantAggregateRoot)
	return m
}
