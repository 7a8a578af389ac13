package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/channel"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sandboxAccount(t *testing.T, creds map[string]string) *channel.Account {
	t.Helper()
	account, err := channel.NewAccount(uuid.New(), uuid.New(), uuid.New(), channel.CodeMemory, "sandbox", creds)
	require.NoError(t, err)
	return account
}

func order(id string, at time.Time) channel.ExternalOrder {
	return channel.ExternalOrder{
		ExternalOrderID: id,
		OrderDate:       at,
		Items: []channel.ExternalItem{{
			ExternalProductID: "p1",
			Quantity:          1,
			UnitPrice:         decimal.NewFromInt(10),
			TotalPrice:        decimal.NewFromInt(10),
		}},
		TotalAmount: decimal.NewFromInt(10),
	}
}

func TestConnector_ImportOrders_PagesFromSince(t *testing.T) {
	ctx := context.Background()
	store := NewOrderStore()
	c := NewConnector(store)
	account := sandboxAccount(t, map[string]string{CredentialToken: "t"})

	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Append(ctx, AccountKey(account),
		order("c", base.Add(3*time.Minute)),
		order("a", base.Add(time.Minute)),
		order("at-since", base),
		order("old", base.Add(-time.Minute)),
		order("b", base.Add(2*time.Minute)),
	))

	first, err := c.ImportOrders(ctx, account, channel.ImportQuery{Since: &base, Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Orders, 2)
	assert.Equal(t, "at-since", first.Orders[0].ExternalOrderID)
	assert.Equal(t, "a", first.Orders[1].ExternalOrderID)
	assert.Equal(t, channel.CodeMemory, first.Orders[0].ChannelCode)
	assert.True(t, first.HasMore)
	assert.Equal(t, "2", first.NextCursor)
	assert.Equal(t, 4, first.Total)

	second, err := c.ImportOrders(ctx, account, channel.ImportQuery{Since: &base, Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Orders, 2)
	assert.Equal(t, "b", second.Orders[0].ExternalOrderID)
	assert.Equal(t, "c", second.Orders[1].ExternalOrderID)
	assert.False(t, second.HasMore)
	assert.Empty(t, second.NextCursor)
}

func TestConnector_ImportOrders_SameInstantOrderedByID(t *testing.T) {
	ctx := context.Background()
	store := NewOrderStore()
	c := NewConnector(store)
	account := sandboxAccount(t, nil)

	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Append(ctx, AccountKey(account), order("o3", at), order("o1", at), order("o2", at)))

	res, err := c.ImportOrders(ctx, account, channel.ImportQuery{Since: &at, Limit: 10})
	require.NoError(t, err)
	require.Len(t, res.Orders, 3)
	assert.Equal(t, "o1", res.Orders[0].ExternalOrderID)
	assert.Equal(t, "o2", res.Orders[1].ExternalOrderID)
	assert.Equal(t, "o3", res.Orders[2].ExternalOrderID)
}

func TestConnector_ImportOrders_IsolatedPerAccount(t *testing.T) {
	ctx := context.Background()
	store := NewOrderStore()
	c := NewConnector(store)
	a := sandboxAccount(t, nil)
	b := sandboxAccount(t, nil)

	require.NoError(t, store.Append(ctx, AccountKey(a), order("x", time.Now())))

	res, err := c.ImportOrders(ctx, b, channel.ImportQuery{})
	require.NoError(t, err)
	assert.Empty(t, res.Orders)

	require.NoError(t, store.Clear(ctx, AccountKey(a)))
	res, err = c.ImportOrders(ctx, a, channel.ImportQuery{})
	require.NoError(t, err)
	assert.Empty(t, res.Orders)
}

func TestConnector_ImportOrders_FailSwitch(t *testing.T) {
	c := NewConnector(NewOrderStore())
	account := sandboxAccount(t, map[string]string{CredentialFailImports: "true"})

	_, err := c.ImportOrders(context.Background(), account, channel.ImportQuery{})
	assert.ErrorIs(t, err, channel.ErrChannelUnavailable)
}

func TestConnector_ExportProducts(t *testing.T) {
	c := NewConnector(NewOrderStore())
	account := sandboxAccount(t, map[string]string{CredentialToken: "t"})

	priced, err := channel.NewListingLink(account, uuid.New(), "Tea", decimal.NewFromInt(20), "CNY")
	require.NoError(t, err)
	free, err := channel.NewListingLink(account, uuid.New(), "Free", decimal.Zero, "CNY")
	require.NoError(t, err)

	res, err := c.ExportProducts(context.Background(), account, []*channel.ListingLink{priced, free})
	require.NoError(t, err)
	require.Len(t, res.Successful, 1)
	assert.Equal(t, "mem-1", res.Successful[0].ExternalProductID)
	assert.Equal(t, []string{free.ID.String()}, res.FailedIDs())

	// re-export keeps the assigned id
	res, err = c.ExportProducts(context.Background(), account, []*channel.ListingLink{priced})
	require.NoError(t, err)
	assert.Equal(t, "mem-1", res.Successful[0].ExternalProductID)
}

func TestConnector_ExportProducts_RequiresToken(t *testing.T) {
	c := NewConnector(NewOrderStore())
	_, err := c.ExportProducts(context.Background(), sandboxAccount(t, nil), nil)
	assert.ErrorIs(t, err, channel.ErrAuthFailed)

	ok, err := c.ValidateCredentials(context.Background(), sandboxAccount(t, nil))
	require.NoError(t, err)
	assert.False(t, ok)
}
