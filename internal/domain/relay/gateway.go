package relay

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/channel"
	"github.com/shopspring/decimal"
)

var (
	// ErrSupplierUnavailable is a transport failure or timeout reaching the supplier
	ErrSupplierUnavailable = errors.New("relay: supplier temporarily unavailable")
	// ErrSupplierRejected means the supplier answered but refused the order
	ErrSupplierRejected = errors.New("relay: supplier rejected the order")
)

// DispatchRequest is what the supplier receives for one relay
type DispatchRequest struct {
	RelayID         uuid.UUID            `json:"relay_id"`
	TenantID        uuid.UUID            `json:"tenant_id"`
	SellerID        uuid.UUID            `json:"seller_id"`
	SupplierID      uuid.UUID            `json:"supplier_id"`
	OrderID         uuid.UUID            `json:"order_id"`
	ChannelCode     string               `json:"channel_code"`
	ExternalOrderID string               `json:"external_order_id"`
	OrderDate       time.Time            `json:"order_date"`
	Buyer           channel.BuyerContact `json:"buyer"`
	ShippingAddress channel.Address      `json:"shipping_address"`
	Items           []DispatchItem       `json:"items"`
	TotalAmount     decimal.Decimal      `json:"total_amount"`
	Currency        string               `json:"currency"`
}

// DispatchItem is a line of a dispatch request
type DispatchItem struct {
	ProductID         *uuid.UUID      `json:"product_id,omitempty"`
	ExternalProductID string          `json:"external_product_id"`
	ExternalSkuID     string          `json:"external_sku_id,omitempty"`
	Title             string          `json:"title,omitempty"`
	Quantity          int             `json:"quantity"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
}

// DispatchReceipt is the supplier's acceptance of a dispatch
type DispatchReceipt struct {
	SupplierReference string    `json:"supplier_reference"`
	AcceptedAt        time.Time `json:"accepted_at"`
}

// NewDispatchRequest builds the request for a relay
func NewDispatchRequest(r *OrderRelay) DispatchRequest {
	items := make([]DispatchItem, len(r.Items))
	for i, it := range r.Items {
		items[i] = DispatchItem{
			ProductID:         it.ProductID,
			ExternalProductID: it.ExternalProductID,
			ExternalSkuID:     it.ExternalSkuID,
			Title:             it.Title,
			Quantity:          it.Quantity,
			UnitPrice:         it.UnitPrice,
		}
	}
	return DispatchRequest{
		RelayID:         r.ID,
		TenantID:        r.TenantID,
		SellerID:        r.SellerID,
		SupplierID:      r.SupplierID,
		OrderID:         r.OrderID,
		ChannelCode:     r.ChannelCode.String(),
		ExternalOrderID: r.ExternalOrderID,
		OrderDate:       r.OrderDate,
		Buyer:           r.Buyer,
		ShippingAddress: r.ShippingAddress,
		Items:           items,
		TotalAmount:     r.TotalAmount,
		Currency:        r.Currency,
	}
}

// SupplierGateway forwards relays to suppliers. Implementations must honor ctx
// deadlines; a timeout is reported as ErrSupplierUnavailable.
type SupplierGateway interface {
	Dispatch(ctx context.Context, req DispatchRequest) (*DispatchReceipt, error)
}
