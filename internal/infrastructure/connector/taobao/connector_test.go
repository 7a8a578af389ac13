package taobao

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/channel"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAccount(t *testing.T, creds map[string]string) *channel.Account {
	t.Helper()
	account, err := channel.NewAccount(uuid.New(), uuid.New(), uuid.New(), channel.CodeTaobao, "tb", creds)
	require.NoError(t, err)
	return account
}

func validCreds() map[string]string {
	return map[string]string{
		CredentialAppKey:     "app",
		CredentialAppSecret:  "secret",
		CredentialSessionKey: "session",
		CredentialCategoryID: "50010850",
	}
}

// gateway routes requests by the method form field
func gateway(t *testing.T, handlers map[string]func(form map[string]string) any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form := map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		h, ok := handlers[form["method"]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(h(form))
	}))
}

func newTestConnector(server *httptest.Server) *Connector {
	c := NewConnector(Config{GatewayURL: server.URL, Timeout: 5 * time.Second}, nil)
	c.now = func() time.Time { return time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC) }
	return c
}

// ---------------------------------------------------------------------------
// Credentials
// ---------------------------------------------------------------------------

func TestCredentialsFromAccount(t *testing.T) {
	tests := []struct {
		name    string
		creds   map[string]string
		wantErr error
	}{
		{name: "valid", creds: validCreds()},
		{name: "missing app key", creds: map[string]string{CredentialAppSecret: "s", CredentialSessionKey: "k"}, wantErr: ErrMissingAppKey},
		{name: "missing secret", creds: map[string]string{CredentialAppKey: "a", CredentialSessionKey: "k"}, wantErr: ErrMissingAppSecret},
		{name: "missing session", creds: map[string]string{CredentialAppKey: "a", CredentialAppSecret: "s"}, wantErr: ErrMissingSessionKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds, err := CredentialsFromAccount(testAccount(t, tt.creds))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(50010850), creds.CategoryID)
		})
	}
}

func TestCredentials_Sign(t *testing.T) {
	creds := &Credentials{AppSecret: "test_secret"}
	params := map[string]string{
		"method":    "taobao.trades.sold.get",
		"app_key":   "test_key",
		"timestamp": "2024-01-01 00:00:00",
	}

	sign := creds.Sign(params)
	assert.Equal(t, sign, creds.Sign(params))
	assert.Len(t, sign, 32)
	assert.Equal(t, strings.ToUpper(sign), sign)

	params["page_no"] = "2"
	assert.NotEqual(t, sign, creds.Sign(params))
}

// ---------------------------------------------------------------------------
// ImportOrders
// ---------------------------------------------------------------------------

func TestConnector_ImportOrders(t *testing.T) {
	productID := uuid.New()
	var gotForm map[string]string

	server := gateway(t, map[string]func(map[string]string) any{
		"taobao.trades.sold.get": func(form map[string]string) any {
			gotForm = form
			return map[string]any{
				"trades_sold_get_response": map[string]any{
					"total_results": 3,
					"has_next":      true,
					"trades": map[string]any{"trade": []map[string]any{
						{
							"tid": 1001, "status": "WAIT_SELLER_SEND_GOODS", "buyer_nick": "buyer1",
							"created": "2026-03-02 09:30:00", "payment": "198.00", "total_fee": "188.00", "post_fee": "10.00",
							"receiver_name": "Li", "receiver_state": "浙江省", "receiver_city": "杭州市", "receiver_mobile": "13800000000",
							"trade_source": "PARTNER42",
							"orders": map[string]any{"order": []map[string]any{
								{"oid": 1, "num_iid": 555, "title": "Tea", "price": "94.00", "num": 2, "total_fee": "188.00", "outer_iid": productID.String()},
							}},
						},
						{
							"tid": 1000, "status": "TRADE_FINISHED", "buyer_nick": "buyer0",
							"created": "2026-03-01 08:00:00", "payment": "10.00",
							"num_iid": 777, "title": "Cup", "price": "5.00", "num": 2,
						},
					}},
				},
			}
		},
	})
	defer server.Close()

	c := newTestConnector(server)
	since := time.Date(2026, 3, 1, 0, 30, 0, 0, time.UTC) // 08:30 CST
	res, err := c.ImportOrders(context.Background(), testAccount(t, validCreds()), channel.ImportQuery{Since: &since, Limit: 500, Cursor: "2"})
	require.NoError(t, err)

	assert.Equal(t, "2", gotForm["page_no"])
	assert.Equal(t, "100", gotForm["page_size"])
	assert.Equal(t, "2026-03-01 08:30:00", gotForm["start_created"])
	assert.Equal(t, "session", gotForm["session"])
	assert.NotEmpty(t, gotForm["sign"])

	// the 08:00 CST trade is before since and is dropped
	require.Len(t, res.Orders, 1)
	assert.True(t, res.HasMore)
	assert.Equal(t, "3", res.NextCursor)
	assert.Equal(t, 3, res.Total)

	o := res.Orders[0]
	assert.Equal(t, "1001", o.ExternalOrderID)
	assert.Equal(t, channel.CodeTaobao, o.ChannelCode)
	assert.Equal(t, time.Date(2026, 3, 2, 1, 30, 0, 0, time.UTC), o.OrderDate)
	assert.True(t, decimal.RequireFromString("198").Equal(o.TotalAmount))
	assert.Equal(t, "PARTNER42", o.MetadataValue(channel.MetadataReferralCode))
	assert.Equal(t, "CNY", o.Currency)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "555", o.Items[0].ExternalProductID)
	assert.Equal(t, productID.String(), o.Items[0].Options[channel.MetadataProductID])
	assert.NoError(t, o.Validate())
}

func TestConnector_ImportOrders_PageOldestFirst(t *testing.T) {
	trade := func(tid int, created string) map[string]any {
		return map[string]any{
			"tid": tid, "status": "WAIT_SELLER_SEND_GOODS", "created": created, "payment": "10.00",
			"num_iid": 7, "title": "Cup", "price": "10.00", "num": 1,
		}
	}
	server := gateway(t, map[string]func(map[string]string) any{
		"taobao.trades.sold.get": func(map[string]string) any {
			return map[string]any{
				"trades_sold_get_response": map[string]any{
					"total_results": 3,
					"has_next":      false,
					"trades": map[string]any{"trade": []map[string]any{
						trade(3, "2026-03-02 12:00:00"),
						trade(2, "2026-03-02 11:00:00"),
						trade(1, "2026-03-02 11:00:00"),
					}},
				},
			}
		},
	})
	defer server.Close()

	// 11:00 CST, equal to the two older trades
	since := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)
	res, err := newTestConnector(server).ImportOrders(context.Background(), testAccount(t, validCreds()), channel.ImportQuery{Since: &since, Limit: 50})
	require.NoError(t, err)

	ids := make([]string, len(res.Orders))
	for i, o := range res.Orders {
		ids[i] = o.ExternalOrderID
	}
	assert.Equal(t, []string{"2", "1", "3"}, ids)
	assert.False(t, res.HasMore)
}

func TestConnector_ImportOrders_SingleItemTrade(t *testing.T) {
	order := convertTrade(&Trade{Tid: 9, Created: "2026-03-02 10:00:00", NumIid: 7, Title: "Cup", Price: "5.50", Num: 3})
	require.Len(t, order.Items, 1)
	assert.True(t, decimal.RequireFromString("16.5").Equal(order.Items[0].TotalPrice))
}

func TestConnector_ImportOrders_Errors(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		wantErr error
	}{
		{name: "rate limited", code: 7, wantErr: channel.ErrRateLimited},
		{name: "invalid session", code: 27, wantErr: channel.ErrAuthFailed},
		{name: "business error", code: 15, wantErr: channel.ErrRequestFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := gateway(t, map[string]func(map[string]string) any{
				"taobao.trades.sold.get": func(map[string]string) any {
					return map[string]any{"error_response": map[string]any{"code": tt.code, "msg": "boom"}}
				},
			})
			defer server.Close()

			_, err := newTestConnector(server).ImportOrders(context.Background(), testAccount(t, validCreds()), channel.ImportQuery{})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("server error is unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		_, err := newTestConnector(server).ImportOrders(context.Background(), testAccount(t, validCreds()), channel.ImportQuery{})
		assert.ErrorIs(t, err, channel.ErrChannelUnavailable)
		assert.True(t, channel.IsTransportError(err))
	})

	t.Run("missing credentials", func(t *testing.T) {
		c := NewConnector(Config{}, nil)
		_, err := c.ImportOrders(context.Background(), testAccount(t, map[string]string{}), channel.ImportQuery{})
		assert.ErrorIs(t, err, channel.ErrAuthFailed)
	})
}

// ---------------------------------------------------------------------------
// ExportProducts
// ---------------------------------------------------------------------------

func testLink(t *testing.T, account *channel.Account, title string, price string) *channel.ListingLink {
	t.Helper()
	link, err := channel.NewListingLink(account, uuid.New(), title, decimal.RequireFromString(price), "CNY")
	require.NoError(t, err)
	link.Quantity = 5
	return link
}

func TestConnector_ExportProducts(t *testing.T) {
	var methods []string
	server := gateway(t, map[string]func(map[string]string) any{
		"taobao.item.add": func(form map[string]string) any {
			methods = append(methods, "add")
			if form["title"] == "Rejected" {
				return map[string]any{"error_response": map[string]any{"code": 15, "msg": "Remote service error", "sub_code": "isv.item-add-service-error", "sub_msg": "bad title"}}
			}
			assert.Equal(t, "50010850", form["cid"])
			return map[string]any{"item_add_response": map[string]any{"item": map[string]any{"num_iid": 8888}}}
		},
		"taobao.item.update": func(form map[string]string) any {
			methods = append(methods, "update")
			assert.Equal(t, "4242", form["num_iid"])
			return map[string]any{"item_update_response": map[string]any{"item": map[string]any{"num_iid": 4242}}}
		},
	})
	defer server.Close()

	account := testAccount(t, validCreds())
	fresh := testLink(t, account, "Tea", "19.90")
	existing := testLink(t, account, "Cup", "5.00")
	existing.ExternalProductID = "4242"
	rejected := testLink(t, account, "Rejected", "1.00")

	res, err := newTestConnector(server).ExportProducts(context.Background(), account, []*channel.ListingLink{fresh, existing, rejected})
	require.NoError(t, err)

	assert.Equal(t, []string{"add", "update", "add"}, methods)
	require.Len(t, res.Successful, 2)
	assert.Equal(t, "8888", res.Successful[0].ExternalProductID)
	assert.Equal(t, "4242", res.Successful[1].ExternalProductID)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, rejected.ID.String(), res.Failed[0].LinkID)
	assert.Equal(t, "isv.item-add-service-error", res.Failed[0].Code)
}

func TestConnector_ExportProducts_AuthFailureAbortsCall(t *testing.T) {
	server := gateway(t, map[string]func(map[string]string) any{
		"taobao.item.add": func(map[string]string) any {
			return map[string]any{"error_response": map[string]any{"code": 27, "msg": "Invalid session"}}
		},
	})
	defer server.Close()

	account := testAccount(t, validCreds())
	_, err := newTestConnector(server).ExportProducts(context.Background(), account, []*channel.ListingLink{testLink(t, account, "Tea", "1")})
	assert.ErrorIs(t, err, channel.ErrAuthFailed)
}

// ---------------------------------------------------------------------------
// ValidateCredentials
// ---------------------------------------------------------------------------

func TestConnector_ValidateCredentials(t *testing.T) {
	valid := true
	server := gateway(t, map[string]func(map[string]string) any{
		"taobao.user.seller.get": func(map[string]string) any {
			if !valid {
				return map[string]any{"error_response": map[string]any{"code": 27, "msg": "Invalid session"}}
			}
			return map[string]any{"user_seller_get_response": map[string]any{"user": map[string]any{"nick": "shop"}}}
		},
	})
	defer server.Close()

	c := newTestConnector(server)
	account := testAccount(t, validCreds())

	ok, err := c.ValidateCredentials(context.Background(), account)
	require.NoError(t, err)
	assert.True(t, ok)

	valid = false
	ok, err = c.ValidateCredentials(context.Background(), account)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.ValidateCredentials(context.Background(), testAccount(t, map[string]string{}))
	require.NoError(t, err)
	assert.False(t, ok)
}
