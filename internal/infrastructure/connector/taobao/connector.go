// Package taobao connects seller accounts on the Taobao/Tmall open platform.
package taobao

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/marketrelay/backend/internal/domain/channel"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// maxResponseSize is the maximum allowed response size from the gateway (10MB)
const maxResponseSize = 10 * 1024 * 1024

const timeLayout = "2006-01-02 15:04:05"

// chinaTime is the zone the gateway reports timestamps in
var chinaTime = time.FixedZone("CST", 8*60*60)

// Connector implements channel.Connector for Taobao
type Connector struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewConnector creates a Taobao connector
func NewConnector(cfg Config, logger *zap.Logger) *Connector {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.Named("taobao"),
		now:        time.Now,
	}
}

// WithHTTPClient replaces the HTTP client, mainly for tests
func (c *Connector) WithHTTPClient(client *http.Client) *Connector {
	c.httpClient = client
	return c
}

// Metadata returns the Taobao capabilities
func (c *Connector) Metadata() channel.Metadata {
	return channel.Metadata{
		Code:               channel.CodeTaobao,
		DisplayName:        "Taobao / Tmall",
		CanExportProducts:  true,
		CanImportOrders:    true,
		MaxPageSize:        100,
		MaxExportBatch:     20,
		RateLimitPerMinute: 400,
	}
}

// ---------------------------------------------------------------------------
// Product Operations
// ---------------------------------------------------------------------------

// ExportProducts publishes links with taobao.item.add, or taobao.item.update
// when the link already has a num_iid. The marketplace product id travels as
// the item outer_id so imported trade lines can be attributed.
func (c *Connector) ExportProducts(ctx context.Context, account *channel.Account, links []*channel.ListingLink) (*channel.ExportResult, error) {
	creds, err := CredentialsFromAccount(account)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", channel.ErrAuthFailed, err)
	}

	result := &channel.ExportResult{}
	for _, link := range links {
		numIid, err := c.exportOne(ctx, creds, link)
		if err != nil {
			if !errors.Is(err, channel.ErrRequestFailed) {
				// auth, transport and rate limits fail the whole call
				return nil, err
			}
			result.AddFailure(link.ID.String(), apiSubCode(err), err.Error())
			continue
		}
		result.AddSuccess(link.ID.String(), numIid, "https://item.taobao.com/item.htm?id="+numIid)
	}
	return result, nil
}

func (c *Connector) exportOne(ctx context.Context, creds *Credentials, link *channel.ListingLink) (string, error) {
	params := map[string]string{
		"title":    link.Title,
		"price":    link.Price.StringFixed(2),
		"num":      strconv.Itoa(link.Quantity),
		"outer_id": link.ProductID.String(),
	}
	if link.Description != "" {
		params["desc"] = link.Description
	}

	if link.ExternalProductID != "" {
		params["method"] = "taobao.item.update"
		params["num_iid"] = link.ExternalProductID

		var resp ItemUpdateResponse
		if err := c.call(ctx, creds, params, &resp); err != nil {
			return "", err
		}
		return link.ExternalProductID, nil
	}

	params["method"] = "taobao.item.add"
	params["type"] = "fixed"
	params["stuff_status"] = "new"
	if creds.CategoryID > 0 {
		params["cid"] = strconv.FormatInt(creds.CategoryID, 10)
	}
	if len(link.ImageURLs) > 0 {
		params["pic_path"] = link.ImageURLs[0]
	}

	var resp ItemAddResponse
	if err := c.call(ctx, creds, params, &resp); err != nil {
		return "", err
	}
	if resp.ItemAdd == nil || resp.ItemAdd.Item == nil || resp.ItemAdd.Item.NumIid == 0 {
		return "", fmt.Errorf("%w: item.add returned no num_iid", channel.ErrInvalidResponse)
	}
	return strconv.FormatInt(resp.ItemAdd.Item.NumIid, 10), nil
}

// ---------------------------------------------------------------------------
// Order Operations
// ---------------------------------------------------------------------------

// ImportOrders pages taobao.trades.sold.get. The cursor is the next page_no.
// The API pages newest first; orders within a page are returned oldest first
// and the caller only moves its watermark once the last page is read.
func (c *Connector) ImportOrders(ctx context.Context, account *channel.Account, query channel.ImportQuery) (*channel.ImportResult, error) {
	creds, err := CredentialsFromAccount(account)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", channel.ErrAuthFailed, err)
	}

	pageNo := cast.ToInt(query.Cursor)
	if pageNo < 1 {
		pageNo = 1
	}
	pageSize := c.Metadata().ClampPageSize(query.Limit)

	params := map[string]string{
		"method":       "taobao.trades.sold.get",
		"fields":       tradeFields,
		"page_no":      strconv.Itoa(pageNo),
		"page_size":    strconv.Itoa(pageSize),
		"use_has_next": "true",
	}
	if query.Since != nil {
		// start_created is inclusive and second-granular
		params["start_created"] = query.Since.In(chinaTime).Truncate(time.Second).Format(timeLayout)
	}

	var resp TradesSoldGetResponse
	if err := c.call(ctx, creds, params, &resp); err != nil {
		return nil, err
	}
	if resp.TradesSoldGet == nil {
		return nil, fmt.Errorf("%w: missing trades_sold_get_response", channel.ErrInvalidResponse)
	}

	result := &channel.ImportResult{
		Orders:  make([]channel.ExternalOrder, 0),
		Total:   int(resp.TradesSoldGet.TotalResults),
		HasMore: resp.TradesSoldGet.HasNext,
	}
	if resp.TradesSoldGet.Trades != nil {
		for i := range resp.TradesSoldGet.Trades.Trade {
			order := convertTrade(&resp.TradesSoldGet.Trades.Trade[i])
			if query.Since != nil && order.OrderDate.Before(*query.Since) {
				continue
			}
			result.Orders = append(result.Orders, order)
		}
		// trades come newest first
		sortOldestFirst(result.Orders)
	}
	if result.HasMore {
		result.NextCursor = strconv.Itoa(pageNo + 1)
	}

	c.logger.Debug("imported trades page",
		zap.String("account_id", account.ID.String()),
		zap.Int("page_no", pageNo),
		zap.Int("orders", len(result.Orders)),
		zap.Bool("has_more", result.HasMore))
	return result, nil
}

// ValidateCredentials calls taobao.user.seller.get. Rejected keys are a
// false result, not an error.
func (c *Connector) ValidateCredentials(ctx context.Context, account *channel.Account) (bool, error) {
	creds, err := CredentialsFromAccount(account)
	if err != nil {
		return false, nil
	}

	var resp SellerGetResponse
	err = c.call(ctx, creds, map[string]string{
		"method": "taobao.user.seller.get",
		"fields": "nick",
	}, &resp)
	if errors.Is(err, channel.ErrAuthFailed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return resp.SellerGet != nil && resp.SellerGet.User != nil, nil
}

// ---------------------------------------------------------------------------
// Internal Helpers
// ---------------------------------------------------------------------------

// apiError keeps the gateway sub code for per-item failure reporting
type apiError struct {
	kind    error
	code    int
	subCode string
	msg     string
}

func (e *apiError) Error() string {
	if e.subCode != "" {
		return fmt.Sprintf("taobao: %d %s: %s", e.code, e.subCode, e.msg)
	}
	return fmt.Sprintf("taobao: %d: %s", e.code, e.msg)
}

func (e *apiError) Unwrap() error { return e.kind }

func apiSubCode(err error) string {
	var ae *apiError
	if errors.As(err, &ae) && ae.subCode != "" {
		return ae.subCode
	}
	return "REQUEST_FAILED"
}

// call performs a request and decodes the body into out, which must embed Response
func (c *Connector) call(ctx context.Context, creds *Credentials, params map[string]string, out interface{ envelope() *Response }) error {
	body, err := c.doRequest(ctx, creds, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: failed to parse response: %v", channel.ErrInvalidResponse, err)
	}
	if env := out.envelope(); !env.IsSuccess() {
		return classifyAPIError(env.ErrorResponse)
	}
	return nil
}

func classifyAPIError(e *ErrorResponse) error {
	kind := channel.ErrRequestFailed
	switch e.Code {
	case errCodeCallLimited:
		kind = channel.ErrRateLimited
	case errCodeInvalidSession, errCodeInvalidAppKey, errCodeInvalidSign:
		kind = channel.ErrAuthFailed
	}
	msg := e.Msg
	if e.SubMsg != "" {
		msg = e.SubMsg
	}
	return &apiError{kind: kind, code: e.Code, subCode: e.SubCode, msg: msg}
}

// doRequest performs a signed form POST against the gateway
func (c *Connector) doRequest(ctx context.Context, creds *Credentials, params map[string]string) ([]byte, error) {
	params["app_key"] = creds.AppKey
	params["session"] = creds.SessionKey
	params["timestamp"] = c.now().In(chinaTime).Format(timeLayout)
	params["format"] = "json"
	params["v"] = "2.0"
	params["sign_method"] = "md5"
	params["sign"] = creds.Sign(params)

	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.GatewayURL, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("taobao: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", channel.ErrChannelUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", channel.ErrChannelUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: HTTP %d", channel.ErrRateLimited, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: HTTP %d", channel.ErrChannelUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: HTTP %d", channel.ErrRequestFailed, resp.StatusCode)
	}
	return body, nil
}

func (r *Response) envelope() *Response { return r }

// convertTrade maps a trade onto the channel-neutral order shape
func convertTrade(trade *Trade) channel.ExternalOrder {
	order := channel.ExternalOrder{
		ExternalOrderID: strconv.FormatInt(trade.Tid, 10),
		ChannelCode:     channel.CodeTaobao,
		Buyer: channel.BuyerContact{
			Name:  trade.BuyerNick,
			Phone: trade.ReceiverMobile,
		},
		Subtotal:       parseDecimal(trade.TotalFee),
		ShippingAmount: parseDecimal(trade.PostFee),
		DiscountAmount: parseDecimal(trade.DiscountFee),
		TotalAmount:    parseDecimal(trade.Payment),
		Currency:       "CNY",
		ShippingAddress: channel.Address{
			Name:       trade.ReceiverName,
			Phone:      trade.ReceiverMobile,
			Line1:      trade.ReceiverAddress,
			Line2:      trade.ReceiverDistrict,
			City:       trade.ReceiverCity,
			Province:   trade.ReceiverState,
			PostalCode: trade.ReceiverZip,
			Country:    "CN",
		},
		PaymentMethod: "alipay",
		PaymentStatus: trade.Status,
		Metadata:      map[string]string{},
	}
	if t, err := time.ParseInLocation(timeLayout, trade.Created, chinaTime); err == nil {
		order.OrderDate = t.UTC()
	}
	if trade.TradeSource != "" {
		order.Metadata[channel.MetadataReferralCode] = trade.TradeSource
	}
	if trade.TradeFrom != "" {
		order.Metadata["trade_from"] = trade.TradeFrom
	}
	if trade.BuyerMessage != "" {
		order.Metadata["buyer_message"] = trade.BuyerMessage
	}

	if trade.Orders != nil {
		for _, line := range trade.Orders.Order {
			item := channel.ExternalItem{
				ExternalProductID: strconv.FormatInt(line.NumIid, 10),
				ExternalSkuID:     line.SkuID,
				Title:             line.Title,
				Quantity:          int(line.Num),
				UnitPrice:         parseDecimal(line.Price),
				TotalPrice:        parseDecimal(line.TotalFee),
			}
			if line.SkuPropertiesName != "" || line.OuterIid != "" {
				item.Options = map[string]string{}
				if line.SkuPropertiesName != "" {
					item.Options["sku_properties"] = line.SkuPropertiesName
				}
				if line.OuterIid != "" {
					item.Options[channel.MetadataProductID] = line.OuterIid
				}
			}
			order.Items = append(order.Items, item)
		}
	} else if trade.NumIid > 0 {
		price := parseDecimal(trade.Price)
		order.Items = append(order.Items, channel.ExternalItem{
			ExternalProductID: strconv.FormatInt(trade.NumIid, 10),
			Title:             trade.Title,
			Quantity:          int(trade.Num),
			UnitPrice:         price,
			TotalPrice:        price.Mul(decimal.NewFromInt(trade.Num)),
		})
	}
	return order
}

var _ channel.Connector = (*Connector)(nil)

func sortOldestFirst(orders []channel.ExternalOrder) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].OrderDate.Before(orders[j].OrderDate)
	})
}
