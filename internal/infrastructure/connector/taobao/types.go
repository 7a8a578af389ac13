package taobao

import (
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Common Response Types
// ---------------------------------------------------------------------------

// Response is embedded in every API response
type Response struct {
	ErrorResponse *ErrorResponse `json:"error_response,omitempty"`
}

// ErrorResponse is the gateway error envelope
type ErrorResponse struct {
	Code      int    `json:"code"`
	Msg       string `json:"msg"`
	SubCode   string `json:"sub_code,omitempty"`
	SubMsg    string `json:"sub_msg,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// IsSuccess returns true when no error envelope is present
func (r *Response) IsSuccess() bool {
	return r.ErrorResponse == nil
}

// Gateway error codes that change how a failure is classified
const (
	errCodeCallLimited    = 7
	errCodeInvalidSession = 27
	errCodeInvalidAppKey  = 29
	errCodeInvalidSign    = 25
)

// ---------------------------------------------------------------------------
// Trade Types
// ---------------------------------------------------------------------------

// TradesSoldGetResponse is the taobao.trades.sold.get response
type TradesSoldGetResponse struct {
	Response
	TradesSoldGet *TradesSoldGet `json:"trades_sold_get_response,omitempty"`
}

type TradesSoldGet struct {
	TotalResults int64   `json:"total_results"`
	HasNext      bool    `json:"has_next"`
	Trades       *Trades `json:"trades,omitempty"`
}

type Trades struct {
	Trade []Trade `json:"trade"`
}

// Trade is a Taobao order (tid)
type Trade struct {
	Tid       int64  `json:"tid"`
	Status    string `json:"status"`
	BuyerNick string `json:"buyer_nick"`
	Created   string `json:"created,omitempty"`
	PayTime   string `json:"pay_time,omitempty"`

	Payment     string `json:"payment,omitempty"`
	TotalFee    string `json:"total_fee,omitempty"`
	PostFee     string `json:"post_fee,omitempty"`
	DiscountFee string `json:"discount_fee,omitempty"`

	ReceiverName     string `json:"receiver_name,omitempty"`
	ReceiverState    string `json:"receiver_state,omitempty"`
	ReceiverCity     string `json:"receiver_city,omitempty"`
	ReceiverDistrict string `json:"receiver_district,omitempty"`
	ReceiverAddress  string `json:"receiver_address,omitempty"`
	ReceiverZip      string `json:"receiver_zip,omitempty"`
	ReceiverMobile   string `json:"receiver_mobile,omitempty"`

	BuyerMessage string `json:"buyer_message,omitempty"`
	TradeFrom    string `json:"trade_from,omitempty"`
	// TradeSource carries the promoter code for affiliate (淘宝客) traffic
	TradeSource string `json:"trade_source,omitempty"`

	Orders *Orders `json:"orders,omitempty"`

	// Single-item trades may omit the nested orders
	NumIid int64  `json:"num_iid,omitempty"`
	Title  string `json:"title,omitempty"`
	Price  string `json:"price,omitempty"`
	Num    int64  `json:"num,omitempty"`
}

type Orders struct {
	Order []Order `json:"order"`
}

// Order is a trade line (oid)
type Order struct {
	Oid               int64  `json:"oid"`
	NumIid            int64  `json:"num_iid"`
	SkuID             string `json:"sku_id,omitempty"`
	Title             string `json:"title"`
	SkuPropertiesName string `json:"sku_properties_name,omitempty"`
	Price             string `json:"price"`
	Num               int64  `json:"num"`
	TotalFee          string `json:"total_fee"`
	OuterIid          string `json:"outer_iid,omitempty"`
}

// ---------------------------------------------------------------------------
// Item Types
// ---------------------------------------------------------------------------

// ItemAddResponse is the taobao.item.add response
type ItemAddResponse struct {
	Response
	ItemAdd *ItemResult `json:"item_add_response,omitempty"`
}

// ItemUpdateResponse is the taobao.item.update response
type ItemUpdateResponse struct {
	Response
	ItemUpdate *ItemResult `json:"item_update_response,omitempty"`
}

type ItemResult struct {
	Item *Item `json:"item,omitempty"`
}

type Item struct {
	NumIid int64 `json:"num_iid"`
}

// ---------------------------------------------------------------------------
// Seller Types
// ---------------------------------------------------------------------------

// SellerGetResponse is the taobao.user.seller.get response
type SellerGetResponse struct {
	Response
	SellerGet *SellerGet `json:"user_seller_get_response,omitempty"`
}

type SellerGet struct {
	User *Seller `json:"user,omitempty"`
}

type Seller struct {
	Nick string `json:"nick"`
}

// tradeFields is the field list requested from taobao.trades.sold.get
const tradeFields = "tid,status,buyer_nick,created,pay_time," +
	"payment,total_fee,post_fee,discount_fee," +
	"receiver_name,receiver_state,receiver_city,receiver_district,receiver_address,receiver_zip,receiver_mobile," +
	"buyer_message,trade_from,trade_source," +
	"orders.oid,orders.num_iid,orders.sku_id,orders.title,orders.sku_properties_name,orders.price,orders.num,orders.total_fee," +
	"orders.outer_iid"

// parseDecimal parses a gateway money string; malformed values read as zero
func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
