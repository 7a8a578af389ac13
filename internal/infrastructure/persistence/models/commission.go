package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/commission"
	"github.com/shopspring/decimal"
)

// CommissionModel is the persistence model for commission.Commission
type CommissionModel struct {
	ID                uuid.UUID       `gorm:"type:uuid;primary_key"`
	TenantID          uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_commissions_conversion,priority:1"`
	CreatedBy         *uuid.UUID      `gorm:"type:uuid"`
	Version           int             `gorm:"not null;default:1"`
	CreatedAt         time.Time       `gorm:"not null"`
	UpdatedAt         time.Time       `gorm:"not null"`
	ConversionID      string          `gorm:"type:varchar(200);not null;uniqueIndex:idx_commissions_conversion,priority:2"`
	PartnerID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductID         *uuid.UUID      `gorm:"type:uuid"`
	SellerID          *uuid.UUID      `gorm:"type:uuid;index"`
	SupplierID        *uuid.UUID      `gorm:"type:uuid;index"`
	OrderID           uuid.UUID       `gorm:"type:uuid;not null;index"`
	OrderDate         time.Time       `gorm:"not null;index"`
	ReferralCode      string          `gorm:"type:varchar(100)"`
	Status            string          `gorm:"type:varchar(20);not null;index:idx_commissions_hold,priority:1"`
	OrderAmount       decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	CommissionAmount  decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	CommissionRate    decimal.Decimal `gorm:"type:decimal(9,4);not null"`
	Currency          string          `gorm:"type:varchar(3);not null"`
	PolicyID          string          `gorm:"type:varchar(100);not null"`
	HoldUntil         time.Time       `gorm:"not null;index:idx_commissions_hold,priority:2"`
	ConfirmedAt       *time.Time
	PaidAt            *time.Time
	CancelledAt       *time.Time
	CancelReason      string     `gorm:"type:text"`
	SettlementBatchID *uuid.UUID `gorm:"type:uuid;index"`
}

// TableName returns the table name for GORM
func (CommissionModel) TableName() string {
	return "commissions"
}

// ToDomain converts the persistence model to a domain Commission
func (m *CommissionModel) ToDomain() *commission.Commission {
	return &commission.Commission{
		TenantAggregateRoot: RestoreTenantAggregateRoot(m.ID, m.TenantID, m.CreatedBy, m.Version, m.CreatedAt, m.UpdatedAt),
		ConversionID:        m.ConversionID,
		PartnerID:           m.PartnerID,
		ProductID:           m.ProductID,
		SellerID:            m.SellerID,
		SupplierID:          m.SupplierID,
		OrderID:             m.OrderID,
		OrderDate:           m.OrderDate,
		ReferralCode:        m.ReferralCode,
		Status:              commission.Status(m.Status),
		OrderAmount:         m.OrderAmount,
		CommissionAmount:    m.CommissionAmount,
		CommissionRate:      m.CommissionRate,
		Currency:            m.Currency,
		PolicyID:            m.PolicyID,
		HoldUntil:           m.HoldUntil,
		ConfirmedAt:         m.ConfirmedAt,
		PaidAt:              m.PaidAt,
		CancelledAt:         m.CancelledAt,
		CancelReason:        m.CancelReason,
		SettlementBatchID:   m.SettlementBatchID,
	}
}

// CommissionModelFromDomain creates a persistence model from a domain Commission
func CommissionModelFromDomain(c *commission.Commission) *CommissionModel {
	return &CommissionModel{
		ID:                c.ID,
		TenantID:          c.TenantID,
		CreatedBy:         c.CreatedBy,
		Version:           c.Version,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
		ConversionID:      c.ConversionID,
		PartnerID:         c.PartnerID,
		ProductID:         c.ProductID,
		SellerID:          c.SellerID,
		SupplierID:        c.SupplierID,
		OrderID:           c.OrderID,
		OrderDate:         c.OrderDate,
		ReferralCode:      c.ReferralCode,
		Status:            c.Status.String(),
		OrderAmount:       c.OrderAmount,
		CommissionAmount:  c.CommissionAmount,
		CommissionRate:    c.CommissionRate,
		Currency:          c.Currency,
		PolicyID:          c.PolicyID,
		HoldUntil:         c.HoldUntil,
		ConfirmedAt:       c.ConfirmedAt,
		PaidAt:            c.PaidAt,
		CancelledAt:       c.CancelledAt,
		CancelReason:      c.CancelReason,
		SettlementBatchID: c.SettlementBatchID,
	}
}
