package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	commissionapp "github.com/marketrelay/backend/internal/application/commission"
	"github.com/marketrelay/backend/internal/domain/commission"
)

// CommissionService is the commission ledger used by CommissionHandler
type CommissionService interface {
	ComputeForConversion(ctx context.Context, event commission.ConversionEvent, policyID string) (*commission.Commission, bool, error)
	Get(ctx context.Context, tenantID, id uuid.UUID) (*commission.Commission, error)
	GetByConversionID(ctx context.Context, tenantID uuid.UUID, conversionID string) (*commission.Commission, error)
	List(ctx context.Context, tenantID uuid.UUID, filter commission.Filter) ([]commission.Commission, int64, error)
	CancelForOrder(ctx context.Context, tenantID, orderID uuid.UUID, reason string) (*commissionapp.CancelResult, error)
	SweepHoldExpired(ctx context.Context) (commissionapp.SweepSummary, error)
}

// CommissionHandler handles commission API endpoints
type CommissionHandler struct {
	BaseHandler
	commissionService CommissionService
}

// NewCommissionHandler creates a new CommissionHandler
func NewCommissionHandler(commissionService CommissionService) *CommissionHandler {
	return &CommissionHandler{commissionService: commissionService}
}

// Compute godoc
// @ID           computeCommission
// @Summary      Compute the commission for a conversion
// @Description  Idempotent per conversion id: a repeated conversion returns the existing commission with 200.
// @Tags         commissions
// @Accept       json
// @Produce      json
// @Param        request body ComputeCommissionRequest true "Conversion"
// @Success      201 {object} APIResponse[ComputeCommissionResponse]
// @Success      200 {object} APIResponse[ComputeCommissionResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /commissions [post]
func (h *CommissionHandler) Compute(c *gin.Context) {
	tenantID, ok := h.requireTenant(c)
	if !ok {
		return
	}
	var req ComputeCommissionRequest
	if !h.BindJSON(c, &req) {
		return
	}

	cm, created, err := h.commissionService.ComputeForConversion(c.Request.Context(), req.toEvent(tenantID), req.PolicyID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := ComputeCommissionResponse{Created: created, Commission: toCommissionResponse(cm)}
	if created {
		h.Created(c, resp)
		return
	}
	h.Success(c, resp)
}

// List godoc
// @ID           listCommissions
// @Summary      List commissions
// @Tags         commissions
// @Produce      json
// @Param        status              query string false "Commission status"
// @Param        partner_id          query string false "Partner ID"
// @Param        order_id            query string false "Order ID"
// @Param        settlement_batch_id query string false "Settlement batch ID"
// @Param        order_date_from     query string false "Order date lower bound (YYYY-MM-DD)"
// @Param        order_date_to       query string false "Order date upper bound (YYYY-MM-DD)"
// @Param        page                query int    false "Page number" default(1)
// @Param        page_size           query int    false "Page size" default(20)
// @Success      200 {object} APIResponse[[]CommissionResponse]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /commissions [get]
func (h *CommissionHandler) List(c *gin.Context) {
	tenantID, ok := h.requireTenant(c)
	if !ok {
		return
	}
	var req ListCommissionsRequest
	if !h.BindQuery(c, &req) {
		return
	}
	req.Normalize()

	list, total, err := h.commissionService.List(c.Request.Context(), tenantID, req.toFilter())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, toCommissionResponses(list), total, req.Page, req.PageSize)
}

// Get godoc
// @ID           getCommission
// @Summary      Get a commission
// @Tags         commissions
// @Produce      json
// @Param        id path string true "Commission ID" format(uuid)
// @Success      200 {object} APIResponse[CommissionResponse]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /commissions/{id} [get]
func (h *CommissionHandler) Get(c *gin.Context) {
	tenantID, ok := h.requireTenant(c)
	if !ok {
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	cm, err := h.commissionService.Get(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toCommissionResponse(cm))
}

// GetByConversion godoc
// @ID           getCommissionByConversion
// @Summary      Get the commission for a conversion
// @Tags         commissions
// @Produce      json
// @Param        conversionId path string true "Conversion ID"
// @Success      200 {object} APIResponse[CommissionResponse]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /commissions/conversion/{conversionId} [get]
func (h *CommissionHandler) GetByConversion(c *gin.Context) {
	tenantID, ok := h.requireTenant(c)
	if !ok {
		return
	}
	cm, err := h.commissionService.GetByConversionID(c.Request.Context(), tenantID, c.Param("conversionId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if cm == nil {
		h.Error(c, http.StatusNotFound, "COMMISSION_NOT_FOUND", "No commission for this conversion")
		return
	}
	h.Success(c, toCommissionResponse(cm))
}

// CancelForOrder godoc
// @ID           cancelOrderCommissions
// @Summary      Cancel the commissions of an order
// @Description  Cancels every PENDING or CONFIRMED commission on the order. Paid or batched commissions are reported as skipped.
// @Tags         commissions
// @Accept       json
// @Produce      json
// @Param        orderId path string        true "Order ID" format(uuid)
// @Param        request body ReasonRequest true "Cancel reason"
// @Success      200 {object} APIResponse[CancelOrderCommissionsResponse]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /commissions/orders/{orderId}/cancel [post]
func (h *CommissionHandler) CancelForOrder(c *gin.Context) {
	tenantID, ok := h.requireTenant(c)
	if !ok {
		return
	}
	orderID, ok := h.parseUUIDParam(c, "orderId")
	if !ok {
		return
	}
	var req ReasonRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res, err := h.commissionService.CancelForOrder(c.Request.Context(), tenantID, orderID, req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toCancelOrderResponse(res))
}

// Sweep godoc
// @ID           sweepCommissions
// @Summary      Confirm commissions whose hold period ended
// @Description  Runs the hold-expiry sweep across tenants now instead of waiting for the scheduler. Requires the wildcard permission.
// @Tags         commissions
// @Produce      json
// @Success      200 {object} APIResponse[SweepResponse]
// @Failure      403 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /commissions/sweep [post]
func (h *CommissionHandler) Sweep(c *gin.Context) {
	summary, err := h.commissionService.SweepHoldExpired(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, SweepResponse{
		Scanned:   summary.Scanned,
		Confirmed: summary.Confirmed,
		Cancelled: summary.Cancelled,
		Skipped:   summary.Skipped,
	})
}
