package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	relayapp "github.com/marketrelay/backend/internal/application/relay"
	"github.com/marketrelay/backend/internal/domain/channel"
	"github.com/marketrelay/backend/internal/domain/relay"
)

// RelayService is the relay lifecycle used by RelayHandler
type RelayService interface {
	Ingest(ctx context.Context, cmd relayapp.IngestCommand) (*relay.OrderRelay, bool, error)
	Get(ctx context.Context, tenantID, id uuid.UUID) (*relay.OrderRelay, error)
	List(ctx context.Context, tenantID uuid.UUID, filter relay.Filter) ([]relay.OrderRelay, int64, error)
	Dispatch(ctx context.Context, tenantID, id uuid.UUID) (*relay.OrderRelay, error)
	Acknowledge(ctx context.Context, tenantID, id uuid.UUID) (*relay.OrderRelay, error)
	MarkFulfilled(ctx context.Context, tenantID, id uuid.UUID, tracking relay.TrackingInfo) (*relay.OrderRelay, error)
	MarkFailed(ctx context.Context, tenantID, id uuid.UUID, reason string) (*relay.OrderRelay, error)
	Cancel(ctx context.Context, tenantID, id uuid.UUID, reason string) (*relay.OrderRelay, error)
	ResetForRedispatch(ctx context.Context, tenantID, id uuid.UUID) (*relay.OrderRelay, error)
}

// RelayHandler handles order relay API endpoints
type RelayHandler struct {
	BaseHandler
	relayService RelayService
}

// NewRelayHandler creates a new RelayHandler
func NewRelayHandler(relayService RelayService) *RelayHandler {
	return &RelayHandler{relayService: relayService}
}

// Ingest godoc
// @ID           ingestRelay
// @Summary      Ingest an external order
// @Description  Creates an order relay for a marketplace order. Re-submitting the same channel order returns the existing relay with 200.
// @Tags         relays
// @Accept       json
// @Produce      json
// @Param        request body IngestRelayRequest true "Order to relay"
// @Success      201 {object} APIResponse[IngestRelayResponse]
// @Success      200 {object} APIResponse[IngestRelayResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /relays [post]
func (h *RelayHandler) Ingest(c *gin.Context) {
	tenantID, ok := h.requireTenant(c)
	if !ok {
		return
	}
	var req IngestRelayRequest
	if !h.BindJSON(c, &req) {
		return
	}

	cmd := relayapp.IngestCommand{
		TenantID:    tenantID,
		SellerID:    uuid.MustParse(req.SellerID),
		SupplierID:  uuid.MustParse(req.SupplierID),
		ChannelCode: channel.Code(req.ChannelCode),
		Order:       req.Order,
		CreatedBy:   createdBy(c),
	}
	if req.OrderID != "" {
		cmd.OrderID = uuid.MustParse(req.OrderID)
	}

	r, created, err := h.relayService.Ingest(c.Request.Context(), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := IngestRelayResponse{Created: created, Relay: toRelayResponse(r)}
	if created {
		h.Created(c, resp)
		return
	}
	h.Success(c, resp)
}

// List godoc
// @ID           listRelays
// @Summary      List order relays
// @Tags         relays
// @Produce      json
// @Param        status       query string false "Relay status"
// @Param        seller_id    query string false "Seller ID"
// @Param        supplier_id  query string false "Supplier ID"
// @Param        channel_code query string false "Channel code"
// @Param        page         query int    false "Page number" default(1)
// @Param        page_size    query int    false "Page size" default(20)
// @Success      200 {object} APIResponse[[]RelayResponse]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /relays [get]
func (h *RelayHandler) List(c *gin.Context) {
	tenantID, ok := h.requireTenant(c)
	if !ok {
		return
	}
	var req ListRelaysRequest
	if !h.BindQuery(c, &req) {
		return
	}
	req.Normalize()

	relays, total, err := h.relayService.List(c.Request.Context(), tenantID, req.toFilter())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, toRelayResponses(relays), total, req.Page, req.PageSize)
}

// Get godoc
// @ID           getRelay
// @Summary      Get an order relay
// @Tags         relays
// @Produce      json
// @Param        id path string true "Relay ID" format(uuid)
// @Success      200 {object} APIResponse[RelayResponse]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /relays/{id} [get]
func (h *RelayHandler) Get(c *gin.Context) {
	h.respond(c, h.relayService.Get)
}

// Dispatch godoc
// @ID           dispatchRelay
// @Summary      Dispatch a relay to its supplier
// @Description  Sends a CREATED relay to the supplier's fulfillment endpoint. Transient failures leave it CREATED with a scheduled retry.
// @Tags         relays
// @Produce      json
// @Param        id path string true "Relay ID" format(uuid)
// @Success      200 {object} APIResponse[RelayResponse]
// @Failure      422 {object} ErrorResponse
// @Failure      502 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /relays/{id}/dispatch [post]
func (h *RelayHandler) Dispatch(c *gin.Context) {
	h.respond(c, h.relayService.Dispatch)
}

// Acknowledge godoc
// @ID           acknowledgeRelay
// @Summary      Record supplier acknowledgement
// @Tags         relays
// @Produce      json
// @Param        id path string true "Relay ID" format(uuid)
// @Success      200 {object} APIResponse[RelayResponse]
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /relays/{id}/acknowledge [post]
func (h *RelayHandler) Acknowledge(c *gin.Context) {
	h.respond(c, h.relayService.Acknowledge)
}

// Fulfill godoc
// @ID           fulfillRelay
// @Summary      Mark a relay fulfilled
// @Tags         relays
// @Accept       json
// @Produce      json
// @Param        id      path string              true "Relay ID" format(uuid)
// @Param        request body FulfillRelayRequest true "Shipment details"
// @Success      200 {object} APIResponse[RelayResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /relays/{id}/fulfill [post]
func (h *RelayHandler) Fulfill(c *gin.Context) {
	var req FulfillRelayRequest
	if !h.BindJSON(c, &req) {
		return
	}
	tracking := relay.TrackingInfo{
		Carrier:        req.Carrier,
		TrackingNumber: req.TrackingNumber,
		TrackingURL:    req.TrackingURL,
		ShippedAt:      req.ShippedAt,
	}
	h.respond(c, func(ctx context.Context, tenantID, id uuid.UUID) (*relay.OrderRelay, error) {
		return h.relayService.MarkFulfilled(ctx, tenantID, id, tracking)
	})
}

// Fail godoc
// @ID           failRelay
// @Summary      Mark a relay failed
// @Tags         relays
// @Accept       json
// @Produce      json
// @Param        id      path string        true "Relay ID" format(uuid)
// @Param        request body ReasonRequest true "Failure reason"
// @Success      200 {object} APIResponse[RelayResponse]
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /relays/{id}/fail [post]
func (h *RelayHandler) Fail(c *gin.Context) {
	var req ReasonRequest
	if !h.BindJSON(c, &req) {
		return
	}
	h.respond(c, func(ctx context.Context, tenantID, id uuid.UUID) (*relay.OrderRelay, error) {
		return h.relayService.MarkFailed(ctx, tenantID, id, req.Reason)
	})
}

// Cancel godoc
// @ID           cancelRelay
// @Summary      Cancel a relay
// @Description  Cancels a relay that has not been fulfilled. Commissions on the order are cancelled asynchronously.
// @Tags         relays
// @Accept       json
// @Produce      json
// @Param        id      path string        true "Relay ID" format(uuid)
// @Param        request body ReasonRequest true "Cancel reason"
// @Success      200 {object} APIResponse[RelayResponse]
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /relays/{id}/cancel [post]
func (h *RelayHandler) Cancel(c *gin.Context) {
	var req ReasonRequest
	if !h.BindJSON(c, &req) {
		return
	}
	h.respond(c, func(ctx context.Context, tenantID, id uuid.UUID) (*relay.OrderRelay, error) {
		return h.relayService.Cancel(ctx, tenantID, id, req.Reason)
	})
}

// Reset godoc
// @ID           resetRelay
// @Summary      Reset a failed relay for redispatch
// @Tags         relays
// @Produce      json
// @Param        id path string true "Relay ID" format(uuid)
// @Success      200 {object} APIResponse[RelayResponse]
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /relays/{id}/reset [post]
func (h *RelayHandler) Reset(c *gin.Context) {
	h.respond(c, h.relayService.ResetForRedispatch)
}

// respond resolves tenant and id, runs op and writes the resulting relay
func (h *RelayHandler) respond(c *gin.Context, op func(ctx context.Context, tenantID, id uuid.UUID) (*relay.OrderRelay, error)) {
	tenantID, ok := h.requireTenant(c)
	if !ok {
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	r, err := op(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toRelayResponse(r))
}
