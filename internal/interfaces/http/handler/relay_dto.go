package handler

import (
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/channel"
	"github.com/marketrelay/backend/internal/domain/relay"
	"github.com/marketrelay/backend/internal/interfaces/http/dto"
	"github.com/shopspring/decimal"
)

// IngestRelayRequest accepts a marketplace order for relay to its supplier
// @Description Request body for ingesting an external order
type IngestRelayRequest struct {
	SellerID    string                `json:"seller_id" binding:"required,uuid" example:"5f0c8b9e-6a51-4c1e-9a2b-1f3f5c7d9e01"`
	SupplierID  string                `json:"supplier_id" binding:"required,uuid" example:"7a2d4e6f-8b1c-4d3e-a5f7-9b0c1d2e3f40"`
	ChannelCode string                `json:"channel_code" binding:"omitempty,max=32" example:"SHOPIFY"`
	OrderID     string                `json:"order_id" binding:"omitempty,uuid"`
	Order       channel.ExternalOrder `json:"order"`
}

// ListRelaysRequest filters the relay list
type ListRelaysRequest struct {
	Status      string `form:"status" binding:"omitempty,oneof=CREATED DISPATCHED ACKNOWLEDGED FULFILLED FAILED CANCELLED"`
	SellerID    string `form:"seller_id" binding:"omitempty,uuid"`
	SupplierID  string `form:"supplier_id" binding:"omitempty,uuid"`
	ChannelCode string `form:"channel_code" binding:"omitempty,max=32"`
	dto.ListRequest
}

// FulfillRelayRequest carries the supplier's shipment details
type FulfillRelayRequest struct {
	Carrier        string     `json:"carrier" binding:"required,max=100" example:"SF Express"`
	TrackingNumber string     `json:"tracking_number" binding:"required,max=100" example:"SF1234567890"`
	TrackingURL    string     `json:"tracking_url" binding:"omitempty,url,max=500"`
	ShippedAt      *time.Time `json:"shipped_at"`
}

// ReasonRequest carries a mandatory reason for fail and cancel transitions
type ReasonRequest struct {
	Reason string `json:"reason" binding:"required,min=1,max=500" example:"Supplier out of stock"`
}

// RelayItemResponse is one relayed order line
type RelayItemResponse struct {
	ID                uuid.UUID         `json:"id"`
	ProductID         *uuid.UUID        `json:"product_id,omitempty"`
	ExternalProductID string            `json:"external_product_id"`
	ExternalSkuID     string            `json:"external_sku_id,omitempty"`
	Title             string            `json:"title,omitempty"`
	Quantity          int               `json:"quantity"`
	UnitPrice         decimal.Decimal   `json:"unit_price" swaggertype:"string"`
	TotalPrice        decimal.Decimal   `json:"total_price" swaggertype:"string"`
	Options           map[string]string `json:"options,omitempty"`
}

// RelayResponse is the API view of an order relay
// @Description Order relay
type RelayResponse struct {
	ID                uuid.UUID            `json:"id"`
	TenantID          uuid.UUID            `json:"tenant_id"`
	SellerID          uuid.UUID            `json:"seller_id"`
	SupplierID        uuid.UUID            `json:"supplier_id"`
	ChannelCode       string               `json:"channel_code" example:"SHOPIFY"`
	ExternalOrderID   string               `json:"external_order_id"`
	OrderID           uuid.UUID            `json:"order_id"`
	OrderDate         time.Time            `json:"order_date"`
	Status            string               `json:"status" example:"CREATED"`
	Buyer             channel.BuyerContact `json:"buyer"`
	ShippingAddress   channel.Address      `json:"shipping_address"`
	TotalAmount       decimal.Decimal      `json:"total_amount" swaggertype:"string"`
	Currency          string               `json:"currency" example:"CNY"`
	ReferralCode      string               `json:"referral_code,omitempty"`
	PartnerID         *uuid.UUID           `json:"partner_id,omitempty"`
	Metadata          map[string]string    `json:"metadata,omitempty"`
	Items             []RelayItemResponse  `json:"items"`
	RetryCount        int                  `json:"retry_count"`
	LastError         string               `json:"last_error,omitempty"`
	NextAttemptAt     *time.Time           `json:"next_attempt_at,omitempty"`
	SupplierReference string               `json:"supplier_reference,omitempty"`
	Tracking          *relay.TrackingInfo  `json:"tracking,omitempty"`
	DispatchedAt      *time.Time           `json:"dispatched_at,omitempty"`
	AcknowledgedAt    *time.Time           `json:"acknowledged_at,omitempty"`
	FulfilledAt       *time.Time           `json:"fulfilled_at,omitempty"`
	FailedAt          *time.Time           `json:"failed_at,omitempty"`
	FailureReason     string               `json:"failure_reason,omitempty"`
	CancelledAt       *time.Time           `json:"cancelled_at,omitempty"`
	CancelReason      string               `json:"cancel_reason,omitempty"`
	Version           int                  `json:"version"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

// IngestRelayResponse reports whether the order created a new relay
type IngestRelayResponse struct {
	Created bool          `json:"created"`
	Relay   RelayResponse `json:"relay"`
}

func toRelayResponse(r *relay.OrderRelay) RelayResponse {
	items := make([]RelayItemResponse, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, RelayItemResponse{
			ID:                it.ID,
			ProductID:         it.ProductID,
			ExternalProductID: it.ExternalProductID,
			ExternalSkuID:     it.ExternalSkuID,
			Title:             it.Title,
			Quantity:          it.Quantity,
			UnitPrice:         it.UnitPrice,
			TotalPrice:        it.TotalPrice,
			Options:           it.Options,
		})
	}
	return RelayResponse{
		ID:                r.ID,
		TenantID:          r.TenantID,
		SellerID:          r.SellerID,
		SupplierID:        r.SupplierID,
		ChannelCode:       r.ChannelCode.String(),
		ExternalOrderID:   r.ExternalOrderID,
		OrderID:           r.OrderID,
		OrderDate:         r.OrderDate,
		Status:            string(r.Status),
		Buyer:             r.Buyer,
		ShippingAddress:   r.ShippingAddress,
		TotalAmount:       r.TotalAmount,
		Currency:          r.Currency,
		ReferralCode:      r.ReferralCode,
		PartnerID:         r.PartnerID,
		Metadata:          r.Metadata,
		Items:             items,
		RetryCount:        r.RetryCount,
		LastError:         r.LastError,
		NextAttemptAt:     r.NextAttemptAt,
		SupplierReference: r.SupplierReference,
		Tracking:          r.Tracking,
		DispatchedAt:      r.DispatchedAt,
		AcknowledgedAt:    r.AcknowledgedAt,
		FulfilledAt:       r.FulfilledAt,
		FailedAt:          r.FailedAt,
		FailureReason:     r.FailureReason,
		CancelledAt:       r.CancelledAt,
		CancelReason:      r.CancelReason,
		Version:           r.Version,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func toRelayResponses(relays []relay.OrderRelay) []RelayResponse {
	out := make([]RelayResponse, 0, len(relays))
	for i := range relays {
		out = append(out, toRelayResponse(&relays[i]))
	}
	return out
}

// toFilter converts query parameters into a repository filter
func (r ListRelaysRequest) toFilter() relay.Filter {
	filter := relay.Filter{Page: r.Page, PageSize: r.PageSize, OrderBy: r.OrderBy, OrderDir: r.OrderDir}
	if r.Status != "" {
		status := relay.Status(r.Status)
		filter.Status = &status
	}
	filter.SellerID = optionalUUID(r.SellerID)
	filter.SupplierID = optionalUUID(r.SupplierID)
	if r.ChannelCode != "" {
		code := channel.NormalizeCode(r.ChannelCode)
		filter.ChannelCode = &code
	}
	return filter
}

// optionalUUID parses a pre-validated query value; empty yields nil
func optionalUUID(s string) *uuid.UUID {
	if s == "" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}
