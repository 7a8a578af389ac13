// Package shopify connects seller storefronts through the Shopify Admin REST API.
package shopify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	"github.com/marketrelay/backend/internal/domain/channel"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// Credential keys read from a channel account
const (
	CredentialShopDomain  = "shop_domain"
	CredentialAccessToken = "access_token"
)

// Cart attribute and line property names the storefront theme writes
const (
	attrReferralCode = "referral_code"
	attrPartnerID    = "partner_id"
	propProductID    = "_product_id"
)

// Config is the process-wide Shopify app setting
type Config struct {
	APIVersion string
	Timeout    time.Duration
}

// Connector implements channel.Connector for Shopify
type Connector struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewConnector creates a Shopify connector
func NewConnector(cfg Config, logger *zap.Logger) *Connector {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.Named("shopify"),
	}
}

// WithHTTPClient replaces the HTTP client, mainly for tests
func (c *Connector) WithHTTPClient(client *http.Client) *Connector {
	c.httpClient = client
	return c
}

// Metadata returns the Shopify capabilities
func (c *Connector) Metadata() channel.Metadata {
	return channel.Metadata{
		Code:               channel.CodeShopify,
		DisplayName:        "Shopify",
		CanExportProducts:  true,
		CanImportOrders:    true,
		MaxPageSize:        250,
		MaxExportBatch:     25,
		RateLimitPerMinute: 120,
	}
}

func (c *Connector) client(account *channel.Account) (*goshopify.Client, string, error) {
	shop := account.Credential(CredentialShopDomain)
	token := account.Credential(CredentialAccessToken)
	if shop == "" || token == "" {
		return nil, "", fmt.Errorf("%w: shop domain and access token are required", channel.ErrAuthFailed)
	}

	opts := []goshopify.Option{goshopify.WithHTTPClient(c.httpClient)}
	if c.config.APIVersion != "" {
		opts = append(opts, goshopify.WithVersion(c.config.APIVersion))
	}
	client, err := goshopify.NewClient(goshopify.App{}, shop, token, opts...)
	if err != nil {
		return nil, "", fmt.Errorf("shopify: create client: %w", err)
	}
	return client, goshopify.ShopBaseUrl(shop), nil
}

// ---------------------------------------------------------------------------
// Product Operations
// ---------------------------------------------------------------------------

// ExportProducts creates a product per link, or updates it when the link
// already carries a Shopify product id.
func (c *Connector) ExportProducts(ctx context.Context, account *channel.Account, links []*channel.ListingLink) (*channel.ExportResult, error) {
	client, baseURL, err := c.client(account)
	if err != nil {
		return nil, err
	}

	result := &channel.ExportResult{}
	for _, link := range links {
		product := toShopifyProduct(link)

		var saved *goshopify.Product
		if link.ExternalProductID != "" {
			product.Id = cast.ToUint64(link.ExternalProductID)
			saved, err = client.Product.Update(ctx, product)
		} else {
			saved, err = client.Product.Create(ctx, product)
		}
		if err != nil {
			mapped := mapError(err)
			if !errors.Is(mapped, channel.ErrRequestFailed) {
				return nil, mapped
			}
			result.AddFailure(link.ID.String(), "UNPROCESSABLE", err.Error())
			continue
		}

		id := strconv.FormatUint(saved.Id, 10)
		url := ""
		if saved.Handle != "" {
			url = strings.TrimRight(baseURL, "/") + "/products/" + saved.Handle
		}
		result.AddSuccess(link.ID.String(), id, url)
	}
	return result, nil
}

func toShopifyProduct(link *channel.ListingLink) goshopify.Product {
	price := link.Price
	variant := goshopify.Variant{
		Sku:               link.SKU,
		Price:             &price,
		InventoryQuantity: link.Quantity,
	}

	images := make([]goshopify.Image, 0, len(link.ImageURLs))
	for _, src := range link.ImageURLs {
		if src == "" {
			continue
		}
		images = append(images, goshopify.Image{Src: src})
	}

	return goshopify.Product{
		Title:    link.Title,
		BodyHTML: link.Description,
		Status:   goshopify.ProductStatusActive,
		Tags:     strings.Join(link.Tags, ", "),
		Variants: []goshopify.Variant{variant},
		Images:   images,
		Metafields: []goshopify.Metafield{{
			Namespace: "marketrelay",
			Key:       "product_id",
			Type:      goshopify.MetafieldTypeSingleLineTextField,
			Value:     link.ProductID.String(),
		}},
	}
}

// ---------------------------------------------------------------------------
// Order Operations
// ---------------------------------------------------------------------------

// ImportOrders lists orders created at or after query.Since, oldest first. The
// cursor is Shopify's page_info token; follow-up pages carry only the token
// and the limit, as the API requires.
func (c *Connector) ImportOrders(ctx context.Context, account *channel.Account, query channel.ImportQuery) (*channel.ImportResult, error) {
	client, _, err := c.client(account)
	if err != nil {
		return nil, err
	}
	limit := c.Metadata().ClampPageSize(query.Limit)

	var options interface{}
	if query.Cursor != "" {
		options = goshopify.ListOptions{PageInfo: query.Cursor, Limit: limit}
	} else {
		opts := goshopify.OrderListOptions{
			ListOptions: goshopify.ListOptions{Limit: limit, Order: "created_at asc"},
			Status:      goshopify.OrderStatusAny,
		}
		if query.Since != nil {
			opts.CreatedAtMin = query.Since.Truncate(time.Second)
		}
		options = opts
	}

	orders, pagination, err := client.Order.ListWithPagination(ctx, options)
	if err != nil {
		return nil, mapError(err)
	}

	result := &channel.ImportResult{Orders: make([]channel.ExternalOrder, 0, len(orders))}
	for i := range orders {
		o := convertOrder(&orders[i])
		if query.Since != nil && o.OrderDate.Before(*query.Since) {
			continue
		}
		result.Orders = append(result.Orders, o)
	}
	if pagination != nil && pagination.NextPageOptions != nil && pagination.NextPageOptions.PageInfo != "" {
		result.HasMore = true
		result.NextCursor = pagination.NextPageOptions.PageInfo
	}
	result.Total = len(result.Orders)

	c.logger.Debug("imported orders page",
		zap.String("account_id", account.ID.String()),
		zap.Int("orders", len(result.Orders)),
		zap.Bool("has_more", result.HasMore))
	return result, nil
}

// ValidateCredentials fetches the shop record. A 401 or 403 is a false result.
func (c *Connector) ValidateCredentials(ctx context.Context, account *channel.Account) (bool, error) {
	client, _, err := c.client(account)
	if errors.Is(err, channel.ErrAuthFailed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	shop, err := client.Shop.Get(ctx, nil)
	if err != nil {
		mapped := mapError(err)
		if errors.Is(mapped, channel.ErrAuthFailed) {
			return false, nil
		}
		return false, mapped
	}
	return shop != nil, nil
}

// ---------------------------------------------------------------------------
// Mapping
// ---------------------------------------------------------------------------

func convertOrder(order *goshopify.Order) channel.ExternalOrder {
	out := channel.ExternalOrder{
		ExternalOrderID: strconv.FormatUint(order.Id, 10),
		ChannelCode:     channel.CodeShopify,
		Subtotal:        deref(order.SubtotalPrice),
		TaxAmount:       deref(order.TotalTax),
		DiscountAmount:  deref(order.TotalDiscounts),
		TotalAmount:     deref(order.TotalPrice),
		Currency:        order.Currency,
		PaymentStatus:   cast.ToString(order.FinancialStatus),
		Buyer: channel.BuyerContact{
			Email: order.Email,
			Phone: order.Phone,
		},
		Metadata: map[string]string{},
	}
	if order.CreatedAt != nil {
		out.OrderDate = order.CreatedAt.UTC()
	}
	if order.Customer != nil {
		out.Buyer.Name = strings.TrimSpace(order.Customer.FirstName + " " + order.Customer.LastName)
		if out.Buyer.Email == "" {
			out.Buyer.Email = order.Customer.Email
		}
	}
	if a := order.ShippingAddress; a != nil {
		out.ShippingAddress = channel.Address{
			Name:       strings.TrimSpace(a.FirstName + " " + a.LastName),
			Phone:      a.Phone,
			Line1:      a.Address1,
			Line2:      a.Address2,
			City:       a.City,
			Province:   a.Province,
			PostalCode: a.Zip,
			Country:    a.CountryCode,
		}
	}

	shipping := decimal.Zero
	for _, line := range order.ShippingLines {
		if line.Price != nil {
			shipping = shipping.Add(*line.Price)
		}
	}
	out.ShippingAmount = shipping

	for _, attr := range order.NoteAttributes {
		switch attr.Name {
		case attrReferralCode:
			out.Metadata[channel.MetadataReferralCode] = cast.ToString(attr.Value)
		case attrPartnerID:
			out.Metadata[channel.MetadataPartnerID] = cast.ToString(attr.Value)
		}
	}

	for _, li := range order.LineItems {
		unit := deref(li.Price)
		item := channel.ExternalItem{
			ExternalProductID: strconv.FormatUint(li.ProductId, 10),
			ExternalSkuID:     strconv.FormatUint(li.VariantId, 10),
			Title:             li.Title,
			Quantity:          li.Quantity,
			UnitPrice:         unit,
			TotalPrice:        unit.Mul(decimal.NewFromInt(int64(li.Quantity))).Sub(deref(li.TotalDiscount)),
		}
		if len(li.Properties) > 0 {
			item.Options = make(map[string]string, len(li.Properties))
			for _, p := range li.Properties {
				name := p.Name
				if name == propProductID {
					name = channel.MetadataProductID
				}
				item.Options[name] = cast.ToString(p.Value)
			}
		}
		out.Items = append(out.Items, item)
	}
	return out
}

func deref(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

// mapError folds go-shopify errors onto the channel error kinds
func mapError(err error) error {
	var rateErr goshopify.RateLimitError
	if errors.As(err, &rateErr) {
		return fmt.Errorf("%w: retry after %ds", channel.ErrRateLimited, rateErr.RetryAfter)
	}

	var respErr goshopify.ResponseError
	if errors.As(err, &respErr) {
		switch status := respErr.GetStatus(); {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return fmt.Errorf("%w: %v", channel.ErrAuthFailed, respErr)
		case status == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", channel.ErrRateLimited, respErr)
		case status >= 500:
			return fmt.Errorf("%w: %v", channel.ErrChannelUnavailable, respErr)
		default:
			return fmt.Errorf("%w: %v", channel.ErrRequestFailed, respErr)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", channel.ErrChannelUnavailable, err)
}

var _ channel.Connector = (*Connector)(nil)
