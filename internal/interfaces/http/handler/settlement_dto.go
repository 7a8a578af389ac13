package handler

import (
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/settlement"
	"github.com/marketrelay/backend/internal/interfaces/http/dto"
	"github.com/shopspring/decimal"
)

// OpenBatchRequest opens a settlement batch for one payee and period
// @Description Request body for opening a settlement batch
type OpenBatchRequest struct {
	SettlementType string    `json:"settlement_type" binding:"required,oneof=SELLER SUPPLIER PARTNER" example:"PARTNER"`
	PayeeID        string    `json:"payee_id" binding:"required,uuid"`
	PeriodStart    time.Time `json:"period_start" binding:"required" example:"2026-01-01T00:00:00Z"`
	PeriodEnd      time.Time `json:"period_end" binding:"required" example:"2026-02-01T00:00:00Z"`
	Currency       string    `json:"currency" binding:"omitempty,currency" example:"CNY"`
}

// ListBatchesRequest filters the settlement batch list
type ListBatchesRequest struct {
	Status         string `form:"status" binding:"omitempty,oneof=OPEN CLOSED PROCESSING PAID FAILED CANCELLED"`
	SettlementType string `form:"settlement_type" binding:"omitempty,oneof=SELLER SUPPLIER PARTNER"`
	PayeeID        string `form:"payee_id" binding:"omitempty,uuid"`
	dto.ListRequest
}

// BatchResponse is the API view of a settlement batch
// @Description Settlement batch
type BatchResponse struct {
	ID               uuid.UUID       `json:"id"`
	TenantID         uuid.UUID       `json:"tenant_id"`
	BatchNumber      string          `json:"batch_number" example:"STL-PARTNER-20260101-3F2A"`
	SettlementType   string          `json:"settlement_type" example:"PARTNER"`
	PayeeID          uuid.UUID       `json:"payee_id"`
	PeriodStart      time.Time       `json:"period_start"`
	PeriodEnd        time.Time       `json:"period_end"`
	Status           string          `json:"status" example:"OPEN"`
	Currency         string          `json:"currency"`
	TotalAmount      decimal.Decimal `json:"total_amount" swaggertype:"string"`
	CommissionAmount decimal.Decimal `json:"commission_amount" swaggertype:"string"`
	DeductionAmount  decimal.Decimal `json:"deduction_amount" swaggertype:"string"`
	NetAmount        decimal.Decimal `json:"net_amount" swaggertype:"string"`
	CommissionCount  int             `json:"commission_count"`
	ClosedAt         *time.Time      `json:"closed_at,omitempty"`
	ProcessingAt     *time.Time      `json:"processing_at,omitempty"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	FailedAt         *time.Time      `json:"failed_at,omitempty"`
	CancelledAt      *time.Time      `json:"cancelled_at,omitempty"`
	FailureReason    string          `json:"failure_reason,omitempty"`
	CancelReason     string          `json:"cancel_reason,omitempty"`
	Version          int             `json:"version"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// StatementLinkResponse is a presigned link to a batch statement workbook
type StatementLinkResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func toBatchResponse(b *settlement.SettlementBatch) BatchResponse {
	return BatchResponse{
		ID:               b.ID,
		TenantID:         b.TenantID,
		BatchNumber:      b.BatchNumber,
		SettlementType:   b.Payee.Type.String(),
		PayeeID:          b.Payee.ID,
		PeriodStart:      b.Period.Start,
		PeriodEnd:        b.Period.End,
		Status:           string(b.Status),
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
		Version:          b.Version,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
}

func toBatchResponses(list []settlement.SettlementBatch) []BatchResponse {
	out := make([]BatchResponse, 0, len(list))
	for i := range list {
		out = append(out, toBatchResponse(&list[i]))
	}
	return out
}

func (r ListBatchesRequest) toFilter() settlement.Filter {
	filter := settlement.Filter{
		PayeeID:  optionalUUID(r.PayeeID),
		Page:     r.Page,
		PageSize: r.PageSize,
		OrderBy:  r.OrderBy,
		OrderDir: r.OrderDir,
	}
	if r.Status != "" {
		status := settlement.Status(r.Status)
		filter.Status = &status
	}
	if r.SettlementType != "" {
		t := settlement.SettlementType(r.SettlementType)
		filter.SettlementType = &t
	}
	return filter
}
