package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/channel"
	"github.com/marketrelay/backend/internal/domain/relay"
	"github.com/shopspring/decimal"
)

// OrderRelayModel is the persistence model for relay.OrderRelay
type OrderRelayModel struct {
	ID                  uuid.UUID              `gorm:"type:uuid;primary_key"`
	TenantID            uuid.UUID              `gorm:"type:uuid;not null;uniqueIndex:idx_order_relays_external,priority:1"`
	CreatedBy           *uuid.UUID             `gorm:"type:uuid"`
	Version             int                    `gorm:"not null;default:1"`
	CreatedAt           time.Time              `gorm:"not null;index"`
	UpdatedAt           time.Time              `gorm:"not null"`
	SellerID            uuid.UUID              `gorm:"type:uuid;not null;index"`
	SupplierID          uuid.UUID              `gorm:"type:uuid;not null;index"`
	ChannelCode         string                 `gorm:"type:varchar(50);not null;uniqueIndex:idx_order_relays_external,priority:2"`
	ExternalOrderID     string                 `gorm:"type:varchar(100);not null;uniqueIndex:idx_order_relays_external,priority:3"`
	OrderID             uuid.UUID              `gorm:"type:uuid;not null;index"`
	OrderDate           time.Time              `gorm:"not null"`
	Status              string                 `gorm:"type:varchar(20);not null;index:idx_order_relays_dispatch,priority:1"`
	BuyerJSON           string                 `gorm:"column:buyer;type:jsonb"`
	ShippingAddressJSON string                 `gorm:"column:shipping_address;type:jsonb"`
	TotalAmount         decimal.Decimal        `gorm:"type:decimal(18,2);not null"`
	Currency            string                 `gorm:"type:varchar(3);not null"`
	ReferralCode        string                 `gorm:"type:varchar(100)"`
	PartnerID           *uuid.UUID             `gorm:"type:uuid"`
	MetadataJSON        string                 `gorm:"column:metadata;type:jsonb"`
	RetryCount          int                    `gorm:"not null;default:0"`
	LastError           string                 `gorm:"type:text"`
	NextAttemptAt       *time.Time             `gorm:"index:idx_order_relays_dispatch,priority:2"`
	SupplierReference   string                 `gorm:"type:varchar(100)"`
	TrackingJSON        string                 `gorm:"column:tracking;type:jsonb"`
	DispatchedAt        *time.Time
	AcknowledgedAt      *time.Time
	FulfilledAt         *time.Time
	FailedAt            *time.Time
	FailureReason       string                 `gorm:"type:text"`
	CancelledAt         *time.Time
	CancelReason        string                 `gorm:"type:text"`
	DispatchLeaseUntil  *time.Time
	Items               []OrderRelayItemModel `gorm:"foreignKey:RelayID;references:ID"`
}

// TableName returns the table name for GORM
func (OrderRelayModel) TableName() string {
	return "order_relays"
}

// OrderRelayItemModel is the persistence model for relay.Item
type OrderRelayItemModel struct {
	ID                uuid.UUID       `gorm:"type:uuid;primary_key"`
	RelayID           uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductID         *uuid.UUID      `gorm:"type:uuid"`
	ExternalProductID string          `gorm:"type:varchar(100);not null"`
	ExternalSkuID     string          `gorm:"type:varchar(100)"`
	Title             string          `gorm:"type:varchar(255)"`
	Quantity          int             `gorm:"not null"`
	UnitPrice         decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	TotalPrice        decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	OptionsJSON       string          `gorm:"column:options;type:jsonb"`
}

// TableName returns the table name for GORM
func (OrderRelayItemModel) TableName() string {
	return "order_relay_items"
}

// ToDomain converts the persistence model to a domain OrderRelay
func (m *OrderRelayModel) ToDomain() *relay.OrderRelay {
	r := &relay.OrderRelay{
		SellerID:          m.SellerID,
		SupplierID:        m.SupplierID,
		ChannelCode:       channel.Code(m.ChannelCode),
		ExternalOrderID:   m.ExternalOrderID,
		OrderID:           m.OrderID,
		OrderDate:         m.OrderDate,
		Status:            relay.Status(m.Status),
		TotalAmount:       m.TotalAmount,
		Currency:          m.Currency,
		ReferralCode:      m.ReferralCode,
		PartnerID:         m.PartnerID,
		RetryCount:        m.RetryCount,
		LastError:         m.LastError,
		NextAttemptAt:     m.NextAttemptAt,
		SupplierReference: m.SupplierReference,
		DispatchedAt:      m.DispatchedAt,
		AcknowledgedAt:    m.AcknowledgedAt,
		FulfilledAt:       m.FulfilledAt,
		FailedAt:          m.FailedAt,
		FailureReason:     m.FailureReason,
		CancelledAt:       m.CancelledAt,
		CancelReason:      m.CancelReason,
	}
	r.DispatchLeaseUntil = m.DispatchLeaseUntil
	r.TenantAggregateRoot = RestoreTenantAggregateRoot(m.ID, m.TenantID, m.CreatedBy, m.Version, m.CreatedAt, m.UpdatedAt)
	fromJSON(m.BuyerJSON, &r.Buyer)
	fromJSON(m.ShippingAddressJSON, &r.ShippingAddress)
	fromJSON(m.MetadataJSON, &r.Metadata)
	if m.TrackingJSON != "" && m.TrackingJSON != "null" {
		var tracking relay.TrackingInfo
		fromJSON(m.TrackingJSON, &tracking)
		r.Tracking = &tracking
	}

	r.Items = make([]relay.Item, len(m.Items))
	for i, item := range m.Items {
		r.Items[i] = relay.Item{
			ID:                item.ID,
			RelayID:           item.RelayID,
			ProductID:         item.ProductID,
			ExternalProductID: item.ExternalProductID,
			ExternalSkuID:     item.ExternalSkuID,
			Title:             item.Title,
			Quantity:          item.Quantity,
			UnitPrice:         item.UnitPrice,
			TotalPrice:        item.TotalPrice,
		}
		fromJSON(item.OptionsJSON, &r.Items[i].Options)
	}
	return r
}

// OrderRelayModelFromDomain creates a persistence model from a domain OrderRelay.
// Items are included; repositories decide whether to write them.
func OrderRelayModelFromDomain(r *relay.OrderRelay) *OrderRelayModel {
	m := &OrderRelayModel{
		SellerID:            r.SellerID,
		SupplierID:          r.SupplierID,
		ChannelCode:         r.ChannelCode.String(),
		ExternalOrderID:     r.ExternalOrderID,
		OrderID:             r.OrderID,
		OrderDate:           r.OrderDate,
		Status:              r.Status.String(),
		BuyerJSON:           toJSON(r.Buyer, "{}"),
		ShippingAddressJSON: toJSON(r.ShippingAddress, "{}"),
		TotalAmount:         r.TotalAmount,
		Currency:            r.Currency,
		ReferralCode:        r.ReferralCode,
		PartnerID:           r.PartnerID,
		MetadataJSON:        toJSON(r.Metadata, "{}"),
		RetryCount:          r.RetryCount,
		LastError:           r.LastError,
		NextAttemptAt:       r.NextAttemptAt,
		SupplierReference:   r.SupplierReference,
		DispatchedAt:        r.DispatchedAt,
		AcknowledgedAt:      r.AcknowledgedAt,
		FulfilledAt:         r.FulfilledAt,
		FailedAt:            r.FailedAt,
		FailureReason:       r.FailureReason,
		CancelledAt:         r.CancelledAt,
		CancelReason:        r.CancelReason,
		DispatchLeaseUntil:  r.DispatchLeaseUntil,
	}
	m.TrackingJSON = toJSON(r.Tracking, "null")
	m.ID = r.ID
	m.TenantID = r.TenantID
	m.CreatedBy = r.CreatedBy
	m.Version = r.Version
	m.CreatedAt = r.CreatedAt
	m.UpdatedAt = r.UpdatedAt

	m.Items = make([]OrderRelayItemModel, len(r.Items))
	for i, item := range r.Items {
		m.Items[i] = OrderRelayItemModel{
			ID:                item.ID,
			RelayID:           r.ID,
			ProductID:         item.ProductID,
			ExternalProductID: item.ExternalProductID,
			ExternalSkuID:     item.ExternalSkuID,
			Title:             item.Title,
			Quantity:          item.Quantity,
			UnitPrice:         item.UnitPrice,
			TotalPrice:        item.TotalPrice,
			OptionsJSON:       toJSON(item.Options, "{}"),
		}
	}
	return m
}
