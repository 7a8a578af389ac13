package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/settlement"
	"github.com/shopspring/decimal"
)

// SettlementBatchModel is the persistence model for settlement.SettlementBatch.
// idx_settlement_batches_active allows one live batch per payee, period and
// currency; cancelled batches drop out of it.
type SettlementBatchModel struct {
	ID               uuid.UUID       `gorm:"type:uuid;primary_key"`
	TenantID         uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_settlement_batches_active,priority:1,where:status <> 'CANCELLED'"`
	CreatedBy        *uuid.UUID      `gorm:"type:uuid"`
	Version          int             `gorm:"not null;default:1"`
	CreatedAt        time.Time       `gorm:"not null"`
	UpdatedAt        time.Time       `gorm:"not null"`
	BatchNumber      string          `gorm:"type:varchar(60);not null;uniqueIndex"`
	SettlementType   string          `gorm:"type:varchar(20);not null;uniqueIndex:idx_settlement_batches_active,priority:2"`
	PayeeID          uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_settlement_batches_active,priority:3"`
	PeriodStart      time.Time       `gorm:"not null;uniqueIndex:idx_settlement_batches_active,priority:4"`
	PeriodEnd        time.Time       `gorm:"not null;uniqueIndex:idx_settlement_batches_active,priority:5"`
	Status           string          `gorm:"type:varchar(20);not null;index"`
	Currency         string          `gorm:"type:varchar(3);not null;uniqueIndex:idx_settlement_batches_active,priority:6"`
	TotalAmount      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	CommissionAmount decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	DeductionAmount  decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	NetAmount        decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	CommissionCount  int             `gorm:"not null;default:0"`
	ClosedAt         *time.Time
	ProcessingAt     *time.Time
	PaidAt           *time.Time
	FailedAt         *time.Time
	CancelledAt      *time.Time
	FailureReason    string `gorm:"type:text"`
	CancelReason     string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (SettlementBatchModel) TableName() string {
	return "settlement_batches"
}

// ToDomain converts the persistence model to a domain SettlementBatch
func (m *SettlementBatchModel) ToDomain() *settlement.SettlementBatch {
	return &settlement.SettlementBatch{
		TenantAggregateRoot: RestoreTenantAggregateRoot(m.ID, m.TenantID, m.CreatedBy, m.Version, m.CreatedAt, m.UpdatedAt),
		BatchNumber:         m.BatchNumber,
		Payee:               settlement.Payee{Type: settlement.SettlementType(m.SettlementType), ID: m.PayeeID},
		Period:              settlement.Period{Start: m.PeriodStart.UTC(), End: m.PeriodEnd.UTC()},
		Status:              settlement.Status(m.Status),
		Currency:            m.Currency,
		TotalAmount:         m.TotalAmount,
		CommissionAmount:    m.CommissionAmount,
		DeductionAmount:     m.DeductionAmount,
		NetAmount:           m.NetAmount,
		CommissionCount:     m.CommissionCount,
		ClosedAt:            m.ClosedAt,
		ProcessingAt:        m.ProcessingAt,
		PaidAt:              m.PaidAt,
		FailedAt:            m.FailedAt,
		CancelledAt:         m.CancelledAt,
		FailureReason:       m.FailureReason,
		CancelReason:        m.CancelReason,
	}
}

// SettlementBatchModelFromDomain creates a persistence model from a domain SettlementBatch
func SettlementBatchModelFromDomain(b *settlement.SettlementBatch) *SettlementBatchModel {
	return &SettlementBatchModel{
		ID:               b.ID,
		TenantID:         b.TenantID,
		CreatedBy:        b.CreatedBy,
		Version:          b.Version,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
		BatchNumber:      b.BatchNumber,
		SettlementType:   b.Payee.Type.String(),
		PayeeID:          b.Payee.ID,
		PeriodStart:      b.Period.Start,
		PeriodEnd:        b.Period.End,
		Status:           b.Status.String(),
		Currency:         b.Currency,
		TotalAmount:      b.TotalAmount,
		CommissionAmount: b.CommissionAmount,
		DeductionAmount:  b.DeductionAmount,
		NetAmount:        b.NetAmount,
		CommissionCount:  b.CommissionCount,
		ClosedAt:         b.ClosedAt,
		ProcessingAt:     b.ProcessingAt,
		PaidAt:           b.PaidAt,
		FailedAt:         b.FailedAt,
		CancelledAt:      b.CancelledAt,
		FailureReason:    b.FailureReason,
		CancelReason:     b.CancelReason,
	}
}

// StatusTimestampColumns returns the columns written by a transition into status
func StatusTimestampColumns(b *settlement.SettlementBatch) map[string]any {
	return map[string]any{
		"status":            b.Status.String(),
		"total_amount":      b.TotalAmount,
		"commission_amount": b.CommissionAmount,
		"deduction_amount":  b.DeductionAmount,
		"net_amount":        b.NetAmount,
		"commission_count":  b.CommissionCount,
		"closed_at":         b.ClosedAt,
		"processing_at":     b.ProcessingAt,
		"paid_at":           b.PaidAt,
		"failed_at":         b.FailedAt,
		"cancelled_at":      b.CancelledAt,
		"failure_reason":    b.FailureReason,
		"cancel_reason":     b.CancelReason,
		"updated_at":        b.UpdatedAt,
	}
}
