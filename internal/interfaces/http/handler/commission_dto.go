package handler

import (
	"time"

	"github.com/google/uuid"
	commissionapp "github.com/marketrelay/backend/internal/application/commission"
	"github.com/marketrelay/backend/internal/domain/commission"
	"github.com/marketrelay/backend/internal/interfaces/http/dto"
	"github.com/shopspring/decimal"
)

// ComputeCommissionRequest reports a partner-attributed conversion
// @Description Request body for computing a commission
type ComputeCommissionRequest struct {
	ConversionID string          `json:"conversion_id" binding:"required,max=100" example:"conv-20260101-0001"`
	PartnerID    string          `json:"partner_id" binding:"required,uuid"`
	ProductID    string          `json:"product_id" binding:"omitempty,uuid"`
	SellerID     string          `json:"seller_id" binding:"omitempty,uuid"`
	SupplierID   string          `json:"supplier_id" binding:"omitempty,uuid"`
	OrderID      string          `json:"order_id" binding:"required,uuid"`
	OrderDate    time.Time       `json:"order_date" binding:"required"`
	OrderAmount  decimal.Decimal `json:"order_amount" binding:"decimal_positive" swaggertype:"string" example:"199.00"`
	Currency     string          `json:"currency" binding:"required,currency" example:"CNY"`
	ReferralCode string          `json:"referral_code" binding:"omitempty,max=64"`
	PolicyID     string          `json:"policy_id" binding:"omitempty,max=64"`
}

// ListCommissionsRequest filters the commission list
type ListCommissionsRequest struct {
	Status            string     `form:"status" binding:"omitempty,oneof=PENDING CONFIRMED PAID CANCELLED"`
	PartnerID         string     `form:"partner_id" binding:"omitempty,uuid"`
	SellerID          string     `form:"seller_id" binding:"omitempty,uuid"`
	SupplierID        string     `form:"supplier_id" binding:"omitempty,uuid"`
	OrderID           string     `form:"order_id" binding:"omitempty,uuid"`
	SettlementBatchID string     `form:"settlement_batch_id" binding:"omitempty,uuid"`
	OrderDateFrom     *time.Time `form:"order_date_from" time_format:"2006-01-02" time_utc:"1"`
	OrderDateTo       *time.Time `form:"order_date_to" time_format:"2006-01-02" time_utc:"1"`
	dto.ListRequest
}

// CommissionResponse is the API view of a commission
// @Description Commission
type CommissionResponse struct {
	ID                uuid.UUID       `json:"id"`
	TenantID          uuid.UUID       `json:"tenant_id"`
	ConversionID      string          `json:"conversion_id"`
	PartnerID         uuid.UUID       `json:"partner_id"`
	ProductID         *uuid.UUID      `json:"product_id,omitempty"`
	SellerID          *uuid.UUID      `json:"seller_id,omitempty"`
	SupplierID        *uuid.UUID      `json:"supplier_id,omitempty"`
	OrderID           uuid.UUID       `json:"order_id"`
	OrderDate         time.Time       `json:"order_date"`
	ReferralCode      string          `json:"referral_code,omitempty"`
	Status            string          `json:"status" example:"PENDING"`
	OrderAmount       decimal.Decimal `json:"order_amount" swaggertype:"string"`
	CommissionAmount  decimal.Decimal `json:"commission_amount" swaggertype:"string"`
	CommissionRate    decimal.Decimal `json:"commission_rate" swaggertype:"string"`
	Currency          string          `json:"currency"`
	PolicyID          string          `json:"policy_id"`
	HoldUntil         time.Time       `json:"hold_until"`
	ConfirmedAt       *time.Time      `json:"confirmed_at,omitempty"`
	PaidAt            *time.Time      `json:"paid_at,omitempty"`
	CancelledAt       *time.Time      `json:"cancelled_at,omitempty"`
	CancelReason      string          `json:"cancel_reason,omitempty"`
	SettlementBatchID *uuid.UUID      `json:"settlement_batch_id,omitempty"`
	Version           int             `json:"version"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// ComputeCommissionResponse reports whether the conversion created a new commission
type ComputeCommissionResponse struct {
	Created    bool               `json:"created"`
	Commission CommissionResponse `json:"commission"`
}

// SkippedCommissionResponse names a commission that could not be cancelled
type SkippedCommissionResponse struct {
	CommissionID uuid.UUID `json:"commission_id"`
	Status       string    `json:"status"`
	Reason       string    `json:"reason"`
}

// CancelOrderCommissionsResponse is the outcome of an order-level cancellation
type CancelOrderCommissionsResponse struct {
	Cancelled []CommissionResponse        `json:"cancelled"`
	Skipped   []SkippedCommissionResponse `json:"skipped"`
}

// SweepResponse summarizes one hold-period sweep
type SweepResponse struct {
	Scanned   int `json:"scanned"`
	Confirmed int `json:"confirmed"`
	Cancelled int `json:"cancelled"`
	Skipped   int `json:"skipped"`
}

func toCommissionResponse(c *commission.Commission) CommissionResponse {
	return CommissionResponse{
		ID:                c.ID,
		TenantID:          c.TenantID,
		ConversionID:      c.ConversionID,
		PartnerID:         c.PartnerID,
		ProductID:         c.ProductID,
		SellerID:          c.SellerID,
		SupplierID:        c.SupplierID,
		OrderID:           c.OrderID,
		OrderDate:         c.OrderDate,
		ReferralCode:      c.ReferralCode,
		Status:            string(c.Status),
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
		Version:           c.Version,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

func toCommissionResponses(list []commission.Commission) []CommissionResponse {
	out := make([]CommissionResponse, 0, len(list))
	for i := range list {
		out = append(out, toCommissionResponse(&list[i]))
	}
	return out
}

func toCancelOrderResponse(res *commissionapp.CancelResult) CancelOrderCommissionsResponse {
	resp := CancelOrderCommissionsResponse{
		Cancelled: toCommissionResponses(res.Cancelled),
		Skipped:   make([]SkippedCommissionResponse, 0, len(res.Skipped)),
	}
	for _, s := range res.Skipped {
		resp.Skipped = append(resp.Skipped, SkippedCommissionResponse{
			CommissionID: s.CommissionID,
			Status:       string(s.Status),
			Reason:       s.Reason,
		})
	}
	return resp
}

func (r ComputeCommissionRequest) toEvent(tenantID uuid.UUID) commission.ConversionEvent {
	return commission.ConversionEvent{
		ConversionID: r.ConversionID,
		TenantID:     tenantID,
		PartnerID:    uuid.MustParse(r.PartnerID),
		ProductID:    optionalUUID(r.ProductID),
		SellerID:     optionalUUID(r.SellerID),
		SupplierID:   optionalUUID(r.SupplierID),
		OrderID:      uuid.MustParse(r.OrderID),
		OrderDate:    r.OrderDate,
		OrderAmount:  r.OrderAmount,
		Currency:     r.Currency,
		ReferralCode: r.ReferralCode,
	}
}

func (r ListCommissionsRequest) toFilter() commission.Filter {
	filter := commission.Filter{
		PartnerID:         optionalUUID(r.PartnerID),
		SellerID:          optionalUUID(r.SellerID),
		SupplierID:        optionalUUID(r.SupplierID),
		OrderID:           optionalUUID(r.OrderID),
		SettlementBatchID: optionalUUID(r.SettlementBatchID),
		OrderDateFrom:     r.OrderDateFrom,
		OrderDateTo:       r.OrderDateTo,
		Page:              r.Page,
		PageSize:          r.PageSize,
		OrderBy:           r.OrderBy,
		OrderDir:          r.OrderDir,
	}
	if r.Status != "" {
		status := commission.Status(r.Status)
		filter.Status = &status
	}
	return filter
}
