package channel

import (
	"time"

	"github.com/marketrelay/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ExternalOrder is an order as the channel reported it. It is a value object:
// connectors build it once and nothing downstream mutates it.
type ExternalOrder struct {
	ExternalOrderID string            `json:"external_order_id"`
	ChannelCode     Code              `json:"channel_code"`
	OrderDate       time.Time         `json:"order_date"`
	Buyer           BuyerContact      `json:"buyer"`
	Items           []ExternalItem    `json:"items"`
	Subtotal        decimal.Decimal   `json:"subtotal"`
	ShippingAmount  decimal.Decimal   `json:"shipping_amount"`
	TaxAmount       decimal.Decimal   `json:"tax_amount"`
	DiscountAmount  decimal.Decimal   `json:"discount_amount"`
	TotalAmount     decimal.Decimal   `json:"total_amount"`
	Currency        string            `json:"currency"`
	ShippingAddress Address           `json:"shipping_address"`
	PaymentMethod   string            `json:"payment_method,omitempty"`
	PaymentStatus   string            `json:"payment_status,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// BuyerContact holds the buyer's contact details
type BuyerContact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Address is a postal delivery address
type Address struct {
	Name       string `json:"name,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	Province   string `json:"province,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// ExternalItem is a line of an external order
type ExternalItem struct {
	ExternalProductID string            `json:"external_product_id"`
	ExternalSkuID     string            `json:"external_sku_id,omitempty"`
	Title             string            `json:"title,omitempty"`
	Quantity          int               `json:"quantity"`
	UnitPrice         decimal.Decimal   `json:"unit_price"`
	TotalPrice        decimal.Decimal   `json:"total_price"`
	Options           map[string]string `json:"options,omitempty"`
}

// Metadata keys used for partner attribution
const (
	MetadataReferralCode = "referral_code"
	MetadataPartnerID    = "partner_id"
	MetadataProductID    = "product_id"
)

// Validate checks the fields every downstream consumer relies on
func (o *ExternalOrder) Validate() error {
	if o.ExternalOrderID == "" {
		return shared.NewDomainError("INVALID_EXTERNAL_ORDER", "External order ID is required")
	}
	if o.OrderDate.IsZero() {
		return shared.NewDomainError("INVALID_EXTERNAL_ORDER", "External order date is required")
	}
	if len(o.Items) == 0 {
		return shared.NewDomainError("INVALID_EXTERNAL_ORDER", "External order must have at least one item")
	}
	for _, item := range o.Items {
		if item.Quantity <= 0 {
			return shared.NewDomainError("INVALID_EXTERNAL_ORDER", "Item quantity must be positive")
		}
		if item.UnitPrice.IsNegative() || item.TotalPrice.IsNegative() {
			return shared.NewDomainError("INVALID_EXTERNAL_ORDER", "Item prices cannot be negative")
		}
	}
	if o.TotalAmount.IsNegative() {
		return shared.NewDomainError("INVALID_EXTERNAL_ORDER", "Order total cannot be negative")
	}
	return nil
}

// MetadataValue returns a metadata value or empty string
func (o *ExternalOrder) MetadataValue(key string) string {
	if o.Metadata == nil {
		return ""
	}
	return o.Metadata[key]
}

// ---------------------------------------------------------------------------
// Import / Export DTOs
// ---------------------------------------------------------------------------

// ImportQuery bounds an ImportOrders call. Orders created at or after Since
// are returned; a nil Since imports from the beginning. Cursor is the opaque
// continuation returned by the previous page. Connectors return each page
// oldest first.
type ImportQuery struct {
	Since  *time.Time
	Limit  int
	Cursor string
}

// ImportResult is one page of imported orders
type ImportResult struct {
	Orders     []ExternalOrder
	Total      int
	HasMore    bool
	NextCursor string
}

// ExportResult reports per-link outcomes of ExportProducts
type ExportResult struct {
	Successful []ExportSuccess
	Failed     []ExportFailure
}

// ExportSuccess is a link that is now live on the channel
type ExportSuccess struct {
	LinkID            string `json:"link_id"`
	ExternalProductID string `json:"external_product_id"`
	ExternalURL       string `json:"external_url,omitempty"`
}

// ExportFailure is a link the channel rejected
type ExportFailure struct {
	LinkID  string `json:"link_id"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// AddSuccess records a successfully exported link
func (r *ExportResult) AddSuccess(linkID, externalProductID, externalURL string) {
	r.Successful = append(r.Successful, ExportSuccess{
		LinkID:            linkID,
		ExternalProductID: externalProductID,
		ExternalURL:       externalURL,
	})
}

// AddFailure records a rejected link
func (r *ExportResult) AddFailure(linkID, code, message string) {
	r.Failed = append(r.Failed, ExportFailure{LinkID: linkID, Code: code, Message: message})
}

// FailedIDs returns the ids of the failed links, for retrying only that subset
func (r *ExportResult) FailedIDs() []string {
	ids := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		ids = append(ids, f.LinkID)
	}
	return ids
}
