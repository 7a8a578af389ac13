package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	settlementapp "github.com/marketrelay/backend/internal/application/settlement"
	"github.com/marketrelay/backend/internal/domain/commission"
	"github.com/marketrelay/backend/internal/domain/settlement"
)

// SettlementService is the batch lifecycle used by SettlementHandler
type SettlementService interface {
	OpenBatch(ctx context.Context, cmd settlementapp.OpenBatchCommand) (*settlement.SettlementBatch, error)
	Get(ctx context.Context, tenantID, id uuid.UUID) (*settlement.SettlementBatch, error)
	List(ctx context.Context, tenantID uuid.UUID, filter settlement.Filter) ([]settlement.SettlementBatch, int64, error)
	ListCommissions(ctx context.Context, tenantID, id uuid.UUID) ([]commission.Commission, error)
	CloseBatch(ctx context.Context, tenantID, id uuid.UUID) (*settlement.SettlementBatch, error)
	StartProcessing(ctx context.Context, tenantID, id uuid.UUID) (*settlement.SettlementBatch, error)
	MarkPaid(ctx context.Context, tenantID, id uuid.UUID) (*settlement.SettlementBatch, error)
	MarkFailed(ctx context.Context, tenantID, id uuid.UUID, reason string) (*settlement.SettlementBatch, error)
	CancelBatch(ctx context.Context, tenantID, id uuid.UUID, reason string) (*settlement.SettlementBatch, error)
}

// StatementLinker issues download links for exported batch statements
type StatementLinker interface {
	DownloadURL(ctx context.Context, tenantID, batchID uuid.UUID, expiresIn time.Duration) (string, time.Time, error)
}

// SettlementHandler handles settlement batch API endpoints
type SettlementHandler struct {
	BaseHandler
	settlementService SettlementService
	statements        StatementLinker
	linkExpiry        time.Duration
}

// NewSettlementHandler creates a new SettlementHandler. statements may be nil
// when statement export is disabled.
func NewSettlementHandler(settlementService SettlementService, statements StatementLinker, linkExpiry time.Duration) *SettlementHandler {
	return &SettlementHandler{
		settlementService: settlementService,
		statements:        statements,
		linkExpiry:        linkExpiry,
	}
}

// Open godoc
// @ID           openSettlementBatch
// @Summary      Open a settlement batch
// @Description  Opens an empty batch for a payee and period. At most one live batch exists per payee and period.
// @Tags         settlements
// @Accept       json
// @Produce      json
// @Param        request body OpenBatchRequest true "Batch to open"
// @Success      201 {object} APIResponse[BatchResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /settlements [post]
func (h *SettlementHandler) Open(c *gin.Context) {
	tenantID, ok := h.requireTenant(c)
	if !ok {
		return
	}
	var req OpenBatchRequest
	if !h.BindJSON(c, &req) {
		return
	}

	b, err := h.settlementService.OpenBatch(c.Request.Context(), settlementapp.OpenBatchCommand{
		TenantID: tenantID,
		Payee: settlement.Payee{
			Type: settlement.SettlementType(req.SettlementType),
			ID:   uuid.MustParse(req.PayeeID),
		},
		Period:    settlement.Period{Start: req.PeriodStart, End: req.PeriodEnd},
		Currency:  req.Currency,
		CreatedBy: createdBy(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toBatchResponse(b))
}

// List godoc
// @ID           listSettlementBatches
// @Summary      List settlement batches
// @Tags         settlements
// @Produce      json
// @Param        status          query string false "Batch status"
// @Param        settlement_type query string false "Payee type"
// @Param        payee_id        query string false "Payee ID"
// @Param        page            query int    false "Page number" default(1)
// @Param        page_size       query int    false "Page size" default(20)
// @Success      200 {object} APIResponse[[]BatchResponse]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /settlements [get]
func (h *SettlementHandler) List(c *gin.Context) {
	tenantID, ok := h.requireTenant(c)
	if !ok {
		return
	}
	var req ListBatchesRequest
	if !h.BindQuery(c, &req) {
		return
	}
	req.Normalize()

	list, total, err := h.settlementService.List(c.Request.Context(), tenantID, req.toFilter())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, toBatchResponses(list), total, req.Page, req.PageSize)
}

// Get godoc
// @ID           getSettlementBatch
// @Summary      Get a settlement batch
// @Tags         settlements
// @Produce      json
// @Param        id path string true "Batch ID" format(uuid)
// @Success      200 {object} APIResponse[BatchResponse]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /settlements/{id} [get]
func (h *SettlementHandler) Get(c *gin.Context) {
	h.respond(c, h.settlementService.Get)
}

// ListCommissions godoc
// @ID           listSettlementBatchCommissions
// @Summary      List the commissions in a batch
// @Tags         settlements
// @Produce      json
// @Param        id path string true "Batch ID" format(uuid)
// @Success      200 {object} APIResponse[[]CommissionResponse]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /settlements/{id}/commissions [get]
func (h *SettlementHandler) ListCommissions(c *gin.Context) {
	tenantID, ok := h.requireTenant(c)
	if !ok {
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	list, err := h.settlementService.ListCommissions(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toCommissionResponses(list))
}

// Close godoc
// @ID           closeSettlementBatch
// @Summary      Close a batch
// @Description  Attaches every CONFIRMED, unbatched commission of the payee whose order date falls in the period and freezes the totals.
// @Tags         settlements
// @Produce      json
// @Param        id path string true "Batch ID" format(uuid)
// @Success      200 {object} APIResponse[BatchResponse]
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /settlements/{id}/close [post]
func (h *SettlementHandler) Close(c *gin.Context) {
	h.respond(c, h.settlementService.CloseBatch)
}

// Process godoc
// @ID           processSettlementBatch
// @Summary      Start paying a closed batch
// @Tags         settlements
// @Produce      json
// @Param        id path string true "Batch ID" format(uuid)
// @Success      200 {object} APIResponse[BatchResponse]
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /settlements/{id}/process [post]
func (h *SettlementHandler) Process(c *gin.Context) {
	h.respond(c, h.settlementService.StartProcessing)
}

// Paid godoc
// @ID           markSettlementBatchPaid
// @Summary      Mark a batch paid
// @Description  Marks the batch PAID and every commission in it PAID.
// @Tags         settlements
// @Produce      json
// @Param        id path string true "Batch ID" format(uuid)
// @Success      200 {object} APIResponse[BatchResponse]
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /settlements/{id}/paid [post]
func (h *SettlementHandler) Paid(c *gin.Context) {
	h.respond(c, h.settlementService.MarkPaid)
}

// Failed godoc
// @ID           markSettlementBatchFailed
// @Summary      Mark a batch payment failed
// @Tags         settlements
// @Accept       json
// @Produce      json
// @Param        id      path string        true "Batch ID" format(uuid)
// @Param        request body ReasonRequest true "Failure reason"
// @Success      200 {object} APIResponse[BatchResponse]
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /settlements/{id}/failed [post]
func (h *SettlementHandler) Failed(c *gin.Context) {
	var req ReasonRequest
	if !h.BindJSON(c, &req) {
		return
	}
	h.respond(c, func(ctx context.Context, tenantID, id uuid.UUID) (*settlement.SettlementBatch, error) {
		return h.settlementService.MarkFailed(ctx, tenantID, id, req.Reason)
	})
}

// Cancel godoc
// @ID           cancelSettlementBatch
// @Summary      Cancel a batch
// @Description  Cancels an OPEN, CLOSED or FAILED batch and releases its commissions for a later batch.
// @Tags         settlements
// @Accept       json
// @Produce      json
// @Param        id      path string        true "Batch ID" format(uuid)
// @Param        request body ReasonRequest true "Cancel reason"
// @Success      200 {object} APIResponse[BatchResponse]
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /settlements/{id}/cancel [post]
func (h *SettlementHandler) Cancel(c *gin.Context) {
	var req ReasonRequest
	if !h.BindJSON(c, &req) {
		return
	}
	h.respond(c, func(ctx context.Context, tenantID, id uuid.UUID) (*settlement.SettlementBatch, error) {
		return h.settlementService.CancelBatch(ctx, tenantID, id, req.Reason)
	})
}

// Statement godoc
// @ID           getSettlementStatement
// @Summary      Get a download link for the batch statement
// @Description  Statements are generated when a batch closes. Returns 404 until the workbook exists.
// @Tags         settlements
// @Produce      json
// @Param        id path string true "Batch ID" format(uuid)
// @Success      200 {object} APIResponse[StatementLinkResponse]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /settlements/{id}/statement [get]
func (h *SettlementHandler) Statement(c *gin.Context) {
	tenantID, ok := h.requireTenant(c)
	if !ok {
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if h.statements == nil {
		h.NotFound(c, "Statement export is not enabled")
		return
	}

	url, expiresAt, err := h.statements.DownloadURL(c.Request.Context(), tenantID, id, h.linkExpiry)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, StatementLinkResponse{URL: url, ExpiresAt: expiresAt})
}

func (h *SettlementHandler) respond(c *gin.Context, op func(ctx context.Context, tenantID, id uuid.UUID) (*settlement.SettlementBatch, error)) {
	tenantID, ok := h.requireTenant(c)
	if !ok {
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	b, err := op(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toBatchResponse(b))
}
