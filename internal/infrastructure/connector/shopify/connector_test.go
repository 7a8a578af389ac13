package shopify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/channel"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rewriteTransport sends every request to the test server regardless of shop host
type rewriteTransport struct {
	target *url.URL
}

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.URL.Scheme = t.target.Scheme
	clone.URL.Host = t.target.Host
	clone.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(clone)
}

func newTestConnector(t *testing.T, handler http.HandlerFunc) *Connector {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	target, err := url.Parse(server.URL)
	require.NoError(t, err)

	return NewConnector(Config{APIVersion: "2024-10"}, nil).
		WithHTTPClient(&http.Client{Transport: rewriteTransport{target: target}, Timeout: 5 * time.Second})
}

func shopAccount(t *testing.T, creds map[string]string) *channel.Account {
	t.Helper()
	if creds == nil {
		creds = map[string]string{CredentialShopDomain: "relay-test", CredentialAccessToken: "shpat_x"}
	}
	account, err := channel.NewAccount(uuid.New(), uuid.New(), uuid.New(), channel.CodeShopify, "shop", creds)
	require.NoError(t, err)
	return account
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestConnector_ImportOrders(t *testing.T) {
	partnerID := uuid.New()
	productID := uuid.New()
	var gotQuery url.Values

	c := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/api/2024-10/orders.json", r.URL.Path)
		assert.Equal(t, "shpat_x", r.Header.Get("X-Shopify-Access-Token"))
		gotQuery = r.URL.Query()

		w.Header().Set("Link", `<https://relay-test.myshopify.com/admin/api/2024-10/orders.json?limit=2&page_info=next123>; rel="next"`)
		writeJSON(w, http.StatusOK, map[string]any{"orders": []map[string]any{
			{
				"id": 450789469, "created_at": "2026-03-02T10:15:00+08:00", "email": "buyer@example.com",
				"currency": "USD", "total_price": "54.00", "subtotal_price": "50.00", "total_tax": "4.00",
				"financial_status": "paid",
				"customer":         map[string]any{"first_name": "Ada", "last_name": "Lee"},
				"shipping_address": map[string]any{"first_name": "Ada", "last_name": "Lee", "address1": "1 Main St", "city": "Ottawa", "country_code": "CA", "zip": "K1A"},
				"shipping_lines":   []map[string]any{{"price": "5.00"}},
				"note_attributes": []map[string]any{
					{"name": "referral_code", "value": "SPRING"},
					{"name": "partner_id", "value": partnerID.String()},
				},
				"line_items": []map[string]any{{
					"id": 1, "product_id": 632910392, "variant_id": 808950810, "title": "IPod Nano",
					"quantity": 2, "price": "25.00",
					"properties": []map[string]any{{"name": "_product_id", "value": productID.String()}},
				}},
			},
		}})
	})

	since := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	res, err := c.ImportOrders(context.Background(), shopAccount(t, nil), channel.ImportQuery{Since: &since, Limit: 2})
	require.NoError(t, err)

	assert.Equal(t, "2", gotQuery.Get("limit"))
	assert.Equal(t, "any", gotQuery.Get("status"))
	assert.NotEmpty(t, gotQuery.Get("created_at_min"))

	assert.True(t, res.HasMore)
	assert.Equal(t, "next123", res.NextCursor)
	require.Len(t, res.Orders, 1)

	o := res.Orders[0]
	assert.Equal(t, "450789469", o.ExternalOrderID)
	assert.Equal(t, channel.CodeShopify, o.ChannelCode)
	assert.Equal(t, time.Date(2026, 3, 2, 2, 15, 0, 0, time.UTC), o.OrderDate)
	assert.Equal(t, "Ada Lee", o.Buyer.Name)
	assert.Equal(t, "CA", o.ShippingAddress.Country)
	assert.True(t, decimal.NewFromInt(5).Equal(o.ShippingAmount))
	assert.True(t, decimal.NewFromInt(54).Equal(o.TotalAmount))
	assert.Equal(t, "paid", o.PaymentStatus)
	assert.Equal(t, "SPRING", o.MetadataValue(channel.MetadataReferralCode))
	assert.Equal(t, partnerID.String(), o.MetadataValue(channel.MetadataPartnerID))
	require.Len(t, o.Items, 1)
	assert.Equal(t, "632910392", o.Items[0].ExternalProductID)
	assert.Equal(t, productID.String(), o.Items[0].Options[channel.MetadataProductID])
	assert.True(t, decimal.NewFromInt(50).Equal(o.Items[0].TotalPrice))
	assert.NoError(t, o.Validate())
}

func TestConnector_ImportOrders_CursorSendsOnlyPageInfo(t *testing.T) {
	var gotQuery url.Values
	c := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		writeJSON(w, http.StatusOK, map[string]any{"orders": []any{}})
	})

	since := time.Now()
	res, err := c.ImportOrders(context.Background(), shopAccount(t, nil), channel.ImportQuery{Since: &since, Limit: 10, Cursor: "abc"})
	require.NoError(t, err)

	assert.Equal(t, "abc", gotQuery.Get("page_info"))
	assert.Empty(t, gotQuery.Get("status"))
	assert.Empty(t, gotQuery.Get("created_at_min"))
	assert.False(t, res.HasMore)
	assert.Empty(t, res.Orders)
}

func TestConnector_ImportOrders_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, wantErr: channel.ErrAuthFailed},
		{name: "rate limited", status: http.StatusTooManyRequests, wantErr: channel.ErrRateLimited},
		{name: "server error", status: http.StatusServiceUnavailable, wantErr: channel.ErrChannelUnavailable},
		{name: "bad request", status: http.StatusBadRequest, wantErr: channel.ErrRequestFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestConnector(t, func(w http.ResponseWriter, _ *http.Request) {
				if tt.status == http.StatusTooManyRequests {
					w.Header().Set("Retry-After", "2.0")
				}
				writeJSON(w, tt.status, map[string]any{"errors": "failed"})
			})

			_, err := c.ImportOrders(context.Background(), shopAccount(t, nil), channel.ImportQuery{})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConnector_ExportProducts(t *testing.T) {
	var created, updated int
	c := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/products.json"):
			created++
			if strings.Contains(string(body), `"title":"Bad"`) {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": map[string]any{"title": []string{"is invalid"}}})
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"product": map[string]any{"id": 1001, "handle": "tea"}})
		case r.Method == http.MethodPut && strings.HasSuffix(r.URL.Path, "/products/2002.json"):
			updated++
			writeJSON(w, http.StatusOK, map[string]any{"product": map[string]any{"id": 2002, "handle": "cup"}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	account := shopAccount(t, nil)
	link := func(title string, external string) *channel.ListingLink {
		l, err := channel.NewListingLink(account, uuid.New(), title, decimal.NewFromInt(12), "USD")
		require.NoError(t, err)
		l.ExternalProductID = external
		return l
	}
	fresh, existing, bad := link("Tea", ""), link("Cup", "2002"), link("Bad", "")

	res, err := c.ExportProducts(context.Background(), account, []*channel.ListingLink{fresh, existing, bad})
	require.NoError(t, err)

	assert.Equal(t, 2, created)
	assert.Equal(t, 1, updated)
	require.Len(t, res.Successful, 2)
	assert.Equal(t, "1001", res.Successful[0].ExternalProductID)
	assert.Equal(t, "https://relay-test.myshopify.com/products/tea", res.Successful[0].ExternalURL)
	assert.Equal(t, "2002", res.Successful[1].ExternalProductID)
	assert.Equal(t, []string{bad.ID.String()}, res.FailedIDs())
}

func TestConnector_ValidateCredentials(t *testing.T) {
	status := http.StatusOK
	c := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/shop.json"))
		writeJSON(w, status, map[string]any{"shop": map[string]any{"id": 1, "name": "Relay Test"}})
	})

	ok, err := c.ValidateCredentials(context.Background(), shopAccount(t, nil))
	require.NoError(t, err)
	assert.True(t, ok)

	status = http.StatusUnauthorized
	ok, err = c.ValidateCredentials(context.Background(), shopAccount(t, nil))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.ValidateCredentials(context.Background(), shopAccount(t, map[string]string{}))
	require.NoError(t, err)
	assert.False(t, ok)
}
