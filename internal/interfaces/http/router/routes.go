package router

import (
	"github.com/marketrelay/backend/internal/infrastructure/auth"
	"github.com/marketrelay/backend/internal/interfaces/http/handler"
	"github.com/marketrelay/backend/internal/interfaces/http/middleware"
)

// Permission resources, checked as "<resource>:read" / "<resource>:write"
const (
	ResourceRelays      = "relays"
	ResourceCommissions = "commissions"
	ResourceSettlements = "settlements"
	ResourceChannels    = "channels"
)

// Handlers bundles the API handlers mounted under the versioned group
type Handlers struct {
	Relay      *handler.RelayHandler
	Commission *handler.CommissionHandler
	Settlement *handler.SettlementHandler
	Channel    *handler.ChannelHandler
}

// DomainGroups builds one group per bounded context
func DomainGroups(h Handlers) []*DomainGroup {
	return []*DomainGroup{
		relayGroup(h.Relay),
		commissionGroup(h.Commission),
		settlementGroup(h.Settlement),
		channelGroup(h.Channel),
	}
}

// RegisterDomains queues every domain group on r
func RegisterDomains(r *Router, h Handlers) *Router {
	for _, g := range DomainGroups(h) {
		r.Register(g)
	}
	return r
}

func relayGroup(h *handler.RelayHandler) *DomainGroup {
	g := NewDomainGroup("relay", "/relays").Use(middleware.RequireResource(ResourceRelays))
	g.POST("", h.Ingest).
		GET("", h.List).
		GET("/:id", h.Get).
		POST("/:id/dispatch", h.Dispatch).
		POST("/:id/acknowledge", h.Acknowledge).
		POST("/:id/fulfill", h.Fulfill).
		POST("/:id/fail", h.Fail).
		POST("/:id/cancel", h.Cancel).
		POST("/:id/reset", h.Reset)
	return g
}

func commissionGroup(h *handler.CommissionHandler) *DomainGroup {
	g := NewDomainGroup("commission", "/commissions").Use(middleware.RequireResource(ResourceCommissions))
	g.POST("", h.Compute).
		GET("", h.List).
		GET("/conversion/:conversionId", h.GetByConversion).
		POST("/orders/:orderId/cancel", h.CancelForOrder).
		GET("/:id", h.Get)
	// Sweeps span every tenant.
	g.POST("/sweep", middleware.RequireScope(auth.ScopeAll), h.Sweep)
	return g
}

func settlementGroup(h *handler.SettlementHandler) *DomainGroup {
	g := NewDomainGroup("settlement", "/settlements").Use(middleware.RequireResource(ResourceSettlements))
	g.POST("", h.Open).
		GET("", h.List).
		GET("/:id", h.Get).
		GET("/:id/commissions", h.ListCommissions).
		GET("/:id/statement", h.Statement).
		POST("/:id/close", h.Close).
		POST("/:id/process", h.Process).
		POST("/:id/paid", h.Paid).
		POST("/:id/failed", h.Failed).
		POST("/:id/cancel", h.Cancel)
	return g
}

func channelGroup(h *handler.ChannelHandler) *DomainGroup {
	g := NewDomainGroup("channel", "/channels").Use(middleware.RequireResource(ResourceChannels))
	g.GET("", h.ListChannels)

	accounts := g.Group("channel-accounts", "/accounts")
	accounts.POST("", h.CreateAccount).
		GET("", h.ListAccounts).
		GET("/:id", h.GetAccount).
		PUT("/:id/enabled", h.SetAccountEnabled).
		GET("/:id/validate", h.ValidateCredentials).
		POST("/:id/listings", h.CreateListing).
		GET("/:id/listings", h.ListListings).
		POST("/:id/export", h.Export).
		POST("/:id/import", h.Import)
	return g
}
