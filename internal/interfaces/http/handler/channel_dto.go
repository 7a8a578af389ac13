package handler

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/channel"
	"github.com/marketrelay/backend/internal/interfaces/http/dto"
	"github.com/shopspring/decimal"
)

// CreateAccountRequest connects a seller's marketplace store
// @Description Request body for connecting a channel account
type CreateAccountRequest struct {
	SellerID    string            `json:"seller_id" binding:"required,uuid"`
	SupplierID  string            `json:"supplier_id" binding:"required,uuid"`
	ChannelCode string            `json:"channel_code" binding:"required,max=32" example:"SHOPIFY"`
	Name        string            `json:"name" binding:"required,min=1,max=200" example:"Flagship store"`
	Credentials map[string]string `json:"credentials" binding:"required"`
}

// SetAccountEnabledRequest toggles scheduled order polling for an account
type SetAccountEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// ListAccountsRequest pages the account list
type ListAccountsRequest struct {
	Search string `form:"search" binding:"omitempty,max=100"`
	dto.ListRequest
}

// CreateListingRequest links a catalog product to a channel account
// @Description Request body for creating a listing
type CreateListingRequest struct {
	ProductID   string          `json:"product_id" binding:"required,uuid"`
	SKU         string          `json:"sku" binding:"required,max=100" example:"SKU-1001"`
	Title       string          `json:"title" binding:"required,max=255" example:"Ceramic mug"`
	Description string          `json:"description" binding:"max=5000"`
	Price       decimal.Decimal `json:"price" binding:"decimal_positive" swaggertype:"string" example:"39.90"`
	Currency    string          `json:"currency" binding:"required,currency" example:"CNY"`
	Quantity    int             `json:"quantity" binding:"gte=0"`
	ImageURLs   []string        `json:"image_urls" binding:"omitempty,max=20,dive,url"`
	Tags        []string        `json:"tags" binding:"omitempty,max=50,dive,max=64"`
}

// ExportListingsRequest selects listings to publish; empty exports every
// listing of the account that is not yet published
type ExportListingsRequest struct {
	ListingIDs []string `json:"listing_ids" binding:"omitempty,dive,uuid"`
}

// AccountResponse is the API view of a channel account. Credential values
// are never returned.
// @Description Channel account
type AccountResponse struct {
	ID             uuid.UUID  `json:"id"`
	TenantID       uuid.UUID  `json:"tenant_id"`
	SellerID       uuid.UUID  `json:"seller_id"`
	SupplierID     uuid.UUID  `json:"supplier_id"`
	ChannelCode    string     `json:"channel_code"`
	Name           string     `json:"name"`
	CredentialKeys []string   `json:"credential_keys"`
	Enabled        bool       `json:"enabled"`
	LastImportedAt *time.Time `json:"last_imported_at,omitempty"`
	LastPolledAt   *time.Time `json:"last_polled_at,omitempty"`
	LastPollError  string     `json:"last_poll_error,omitempty"`
	ImportPending  bool       `json:"import_pending"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ListingResponse is the API view of a listing link
type ListingResponse struct {
	ID                uuid.UUID       `json:"id"`
	AccountID         uuid.UUID       `json:"account_id"`
	ChannelCode       string          `json:"channel_code"`
	ProductID         uuid.UUID       `json:"product_id"`
	SKU               string          `json:"sku"`
	Title             string          `json:"title"`
	Price             decimal.Decimal `json:"price" swaggertype:"string"`
	Currency          string          `json:"currency"`
	Quantity          int             `json:"quantity"`
	ExternalProductID string          `json:"external_product_id,omitempty"`
	ExternalURL       string          `json:"external_url,omitempty"`
	Status            string          `json:"status" example:"PENDING"`
	LastError         string          `json:"last_error,omitempty"`
	LastExportedAt    *time.Time      `json:"last_exported_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// ExportResponse splits an export into published and rejected listings
type ExportResponse struct {
	Successful []channel.ExportSuccess `json:"successful"`
	Failed     []channel.ExportFailure `json:"failed"`
}

// ValidateCredentialsResponse reports whether the channel accepted the account
type ValidateCredentialsResponse struct {
	Valid bool `json:"valid"`
}

func toAccountResponse(a *channel.Account) AccountResponse {
	keys := make([]string, 0, len(a.Credentials))
	for k := range a.Credentials {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return AccountResponse{
		ID:             a.ID,
		TenantID:       a.TenantID,
		SellerID:       a.SellerID,
		SupplierID:     a.SupplierID,
		ChannelCode:    a.ChannelCode.String(),
		Name:           a.Name,
		CredentialKeys: keys,
		Enabled:        a.Enabled,
		LastImportedAt: a.LastImportedAt,
		LastPolledAt:   a.LastPolledAt,
		LastPollError:  a.LastPollError,
		ImportPending:  a.Importing(),
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func toAccountResponses(list []channel.Account) []AccountResponse {
	out := make([]AccountResponse, 0, len(list))
	for i := range list {
		out = append(out, toAccountResponse(&list[i]))
	}
	return out
}

func toListingResponse(l *channel.ListingLink) ListingResponse {
	return ListingResponse{
		ID:                l.ID,
		AccountID:         l.AccountID,
		ChannelCode:       l.ChannelCode.String(),
		ProductID:         l.ProductID,
		SKU:               l.SKU,
		Title:             l.Title,
		Price:             l.Price,
		Currency:          l.Currency,
		Quantity:          l.Quantity,
		ExternalProductID: l.ExternalProductID,
		ExternalURL:       l.ExternalURL,
		Status:            string(l.Status),
		LastError:         l.LastError,
		LastExportedAt:    l.LastExportedAt,
		CreatedAt:         l.CreatedAt,
	}
}

func toExportResponse(res *channel.ExportResult) ExportResponse {
	resp := ExportResponse{
		Successful: res.Successful,
		Failed:     res.Failed,
	}
	if resp.Successful == nil {
		resp.Successful = []channel.ExportSuccess{}
	}
	if resp.Failed == nil {
		resp.Failed = []channel.ExportFailure{}
	}
	return resp
}
