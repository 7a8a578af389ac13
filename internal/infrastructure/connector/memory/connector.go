// Package memory is the sandbox channel. Orders come from an injected
// OrderStore and exports are accepted locally, so the full relay pipeline can
// run without a real marketplace.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/marketrelay/backend/internal/domain/channel"
	"github.com/spf13/cast"
)

// Credential keys understood by the sandbox
const (
	CredentialToken = "token"
	// CredentialFailImports makes every import fail as unavailable
	CredentialFailImports = "fail_imports"
)

// Connector is the MEMORY channel connector
type Connector struct {
	store channel.OrderStore

	mu       sync.Mutex
	products map[string]string // link id -> external product id
	seq      int
}

// NewConnector creates a sandbox connector over store
func NewConnector(store channel.OrderStore) *Connector {
	return &Connector{
		store:    store,
		products: make(map[string]string),
	}
}

// Metadata returns the sandbox capabilities
func (c *Connector) Metadata() channel.Metadata {
	return channel.Metadata{
		Code:               channel.CodeMemory,
		DisplayName:        "Sandbox",
		CanExportProducts:  true,
		CanImportOrders:    true,
		MaxPageSize:        100,
		MaxExportBatch:     50,
		RateLimitPerMinute: 0,
	}
}

// AccountKey is the OrderStore key for an account
func AccountKey(account *channel.Account) string {
	return account.ID.String()
}

// ExportProducts assigns sandbox product ids. Links without a positive price
// are rejected so callers can exercise partial failures.
func (c *Connector) ExportProducts(ctx context.Context, account *channel.Account, links []*channel.ListingLink) (*channel.ExportResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if account.Credential(CredentialToken) == "" {
		return nil, channel.ErrAuthFailed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	result := &channel.ExportResult{}
	for _, link := range links {
		linkID := link.ID.String()
		if !link.Price.IsPositive() {
			result.AddFailure(linkID, "PRICE_REQUIRED", "listing price must be positive")
			continue
		}

		externalID := link.ExternalProductID
		if externalID == "" {
			externalID = c.products[linkID]
		}
		if externalID == "" {
			c.seq++
			externalID = "mem-" + strconv.Itoa(c.seq)
		}
		c.products[linkID] = externalID
		result.AddSuccess(linkID, externalID, "memory://products/"+externalID)
	}
	return result, nil
}

// ImportOrders returns stored orders created at or after query.Since, oldest first.
// The cursor is the offset into that ordering.
func (c *Connector) ImportOrders(ctx context.Context, account *channel.Account, query channel.ImportQuery) (*channel.ImportResult, error) {
	if cast.ToBool(account.Credential(CredentialFailImports)) {
		return nil, fmt.Errorf("sandbox import disabled: %w", channel.ErrChannelUnavailable)
	}

	all, err := c.store.List(ctx, AccountKey(account))
	if err != nil {
		return nil, fmt.Errorf("sandbox order store: %w", channel.ErrChannelUnavailable)
	}

	orders := make([]channel.ExternalOrder, 0, len(all))
	for _, o := range all {
		if query.Since != nil && o.OrderDate.Before(*query.Since) {
			continue
		}
		o.ChannelCode = channel.CodeMemory
		orders = append(orders, o)
	}
	sort.SliceStable(orders, func(i, j int) bool {
		if !orders[i].OrderDate.Equal(orders[j].OrderDate) {
			return orders[i].OrderDate.Before(orders[j].OrderDate)
		}
		return orders[i].ExternalOrderID < orders[j].ExternalOrderID
	})

	offset := cast.ToInt(query.Cursor)
	if offset < 0 || offset > len(orders) {
		offset = len(orders)
	}
	limit := c.Metadata().ClampPageSize(query.Limit)
	end := offset + limit
	if end > len(orders) {
		end = len(orders)
	}

	res := &channel.ImportResult{
		Orders:  orders[offset:end],
		Total:   len(orders),
		HasMore: end < len(orders),
	}
	if res.HasMore {
		res.NextCursor = strconv.Itoa(end)
	}
	return res, nil
}

// ValidateCredentials accepts any account with a token
func (c *Connector) ValidateCredentials(_ context.Context, account *channel.Account) (bool, error) {
	return account.Credential(CredentialToken) != "", nil
}

var _ channel.Connector = (*Connector)(nil)
