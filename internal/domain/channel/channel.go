package channel

import (
	"context"
	"errors"
	"strings"
)

// ---------------------------------------------------------------------------
// Connector Errors
// ---------------------------------------------------------------------------

var (
	// Transport and authentication failures on the whole call
	ErrChannelUnavailable = errors.New("channel: channel temporarily unavailable")
	ErrRequestFailed      = errors.New("channel: channel request failed")
	ErrInvalidResponse    = errors.New("channel: invalid channel response")
	ErrAuthFailed         = errors.New("channel: channel authentication failed")
	ErrRateLimited        = errors.New("channel: channel rate limited")

	// Registry and capability errors
	ErrConnectorNotFound    = errors.New("channel: no connector registered for channel code")
	ErrConnectorRegistered  = errors.New("channel: connector already registered for channel code")
	ErrUnsupportedOperation = errors.New("channel: operation not supported by channel")
)

// IsTransportError reports whether err is a retryable transport-level failure
func IsTransportError(err error) bool {
	return errors.Is(err, ErrChannelUnavailable) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, context.DeadlineExceeded)
}

// ---------------------------------------------------------------------------
// Code
// ---------------------------------------------------------------------------

// Code identifies a channel. Codes are upper-case; the set of valid codes is the
// set registered in the Registry, not a hard-coded list.
type Code string

const (
	// CodeTaobao is the Taobao/Tmall open platform
	CodeTaobao Code = "TAOBAO"
	// CodeShopify is a Shopify storefront
	CodeShopify Code = "SHOPIFY"
	// CodeMemory is the in-memory sandbox channel used for tests and demos
	CodeMemory Code = "MEMORY"
	// CodeInternal marks orders placed directly on the marketplace
	CodeInternal Code = "INTERNAL"
)

// NormalizeCode upper-cases and trims a raw channel code
func NormalizeCode(raw string) Code {
	return Code(strings.ToUpper(strings.TrimSpace(raw)))
}

// IsValid returns true if the code is well-formed
func (c Code) IsValid() bool {
	if c == "" || len(c) > 50 {
		return false
	}
	for _, r := range string(c) {
		if !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') && r != '_' {
			return false
		}
	}
	return true
}

// String returns the string representation of Code
func (c Code) String() string {
	return string(c)
}

// ---------------------------------------------------------------------------
// Metadata
// ---------------------------------------------------------------------------

// Metadata describes what a connector can do and the limits it honors
type Metadata struct {
	Code               Code   `json:"code"`
	DisplayName        string `json:"display_name"`
	CanExportProducts  bool   `json:"can_export_products"`
	CanImportOrders    bool   `json:"can_import_orders"`
	MaxPageSize        int    `json:"max_page_size"`
	MaxExportBatch     int    `json:"max_export_batch"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute"`
}

// ClampPageSize bounds a requested page size to what the channel accepts
func (m Metadata) ClampPageSize(requested int) int {
	if requested <= 0 || (m.MaxPageSize > 0 && requested > m.MaxPageSize) {
		if m.MaxPageSize > 0 {
			return m.MaxPageSize
		}
		return 50
	}
	return requested
}

// ---------------------------------------------------------------------------
// Connector Port
// ---------------------------------------------------------------------------

// Connector is implemented once per channel. Implementations must be safe for
// concurrent use; per-account state travels in the Account argument.
type Connector interface {
	// Metadata returns the connector's capabilities
	Metadata() Metadata

	// ExportProducts publishes each link to the channel. A link that already
	// carries an external product id is updated rather than re-created, so
	// retrying only the failed subset is safe. Item-level rejections are
	// reported in ExportResult.Failed; only whole-call failures return an error.
	ExportProducts(ctx context.Context, account *Account, links []*ListingLink) (*ExportResult, error)

	// ImportOrders returns orders created after query.Since, bounded by query.Limit
	ImportOrders(ctx context.Context, account *Account, query ImportQuery) (*ImportResult, error)

	// ValidateCredentials checks the account credentials without side effects
	ValidateCredentials(ctx context.Context, account *Account) (bool, error)
}

// Registry resolves channel codes to connectors
type Registry interface {
	// Get returns the connector for a channel code
	Get(code Code) (Connector, error)
	// List returns every registered connector ordered by code
	List() []Connector
}
