package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	channelapp "github.com/marketrelay/backend/internal/application/channel"
	"github.com/marketrelay/backend/internal/domain/channel"
	"github.com/marketrelay/backend/internal/domain/shared"
)

// ChannelService manages channel accounts, listings and order import
type ChannelService interface {
	ListChannels() []channel.Metadata
	CreateAccount(ctx context.Context, cmd channelapp.CreateAccountCommand) (*channel.Account, error)
	GetAccount(ctx context.Context, tenantID, id uuid.UUID) (*channel.Account, error)
	ListAccounts(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]channel.Account, int64, error)
	SetAccountEnabled(ctx context.Context, tenantID, id uuid.UUID, enabled bool) (*channel.Account, error)
	ValidateCredentials(ctx context.Context, tenantID, id uuid.UUID) (bool, error)
	CreateListing(ctx context.Context, cmd channelapp.CreateListingCommand) (*channel.ListingLink, error)
	ListListings(ctx context.Context, tenantID, accountID uuid.UUID) ([]channel.ListingLink, error)
	ExportListings(ctx context.Context, tenantID, accountID uuid.UUID, linkIDs []uuid.UUID) (*channel.ExportResult, error)
	PollOrders(ctx context.Context, tenantID, accountID uuid.UUID) (*channelapp.PollSummary, error)
}

// ChannelHandler handles marketplace channel API endpoints
type ChannelHandler struct {
	BaseHandler
	channelService ChannelService
}

// NewChannelHandler creates a new ChannelHandler
func NewChannelHandler(channelService ChannelService) *ChannelHandler {
	return &ChannelHandler{channelService: channelService}
}

// ListChannels godoc
// @ID           listChannels
// @Summary      List supported channels
// @Description  Returns every registered connector with its capabilities and limits.
// @Tags         channels
// @Produce      json
// @Success      200 {object} APIResponse[[]channel.Metadata]
// @Security     BearerAuth
// @Router       /channels [get]
func (h *ChannelHandler) ListChannels(c *gin.Context) {
	h.Success(c, h.channelService.ListChannels())
}

// CreateAccount godoc
// @ID           createChannelAccount
// @Summary      Connect a channel account
// @Tags         channels
// @Accept       json
// @Produce      json
// @Param        request body CreateAccountRequest true "Account to connect"
// @Success      201 {object} APIResponse[AccountResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /channels/accounts [post]
func (h *ChannelHandler) CreateAccount(c *gin.Context) {
	tenantID, ok := h.requireTenant(c)
	if !ok {
		return
	}
	var req CreateAccountRequest
	if !h.BindJSON(c, &req) {
		return
	}

	account, err := h.channelService.CreateAccount(c.Request.Context(), channelapp.CreateAccountCommand{
		TenantID:    tenantID,
		SellerID:    uuid.MustParse(req.SellerID),
		SupplierID:  uuid.MustParse(req.SupplierID),
		ChannelCode: req.ChannelCode,
		Name:        req.Name,
		Credentials: req.Credentials,
		CreatedBy:   createdBy(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toAccountResponse(account))
}

// ListAccounts godoc
// @ID           listChannelAccounts
// @Summary      List channel accounts
// @Tags         channels
// @Produce      json
// @Param        search    query string false "Name search"
// @Param        page      query int    false "Page number" default(1)
// @Param        page_size query int    false "Page size" default(20)
// @Success      200 {object} APIResponse[[]AccountResponse]
// @Security     BearerAuth
// @Router       /channels/accounts [get]
func (h *ChannelHandler) ListAccounts(c *gin.Context) {
	tenantID, ok := h.requireTenant(c)
	if !ok {
		return
	}
	var req ListAccountsRequest
	if !h.BindQuery(c, &req) {
		return
	}
	req.Normalize()

	list, total, err := h.channelService.ListAccounts(c.Request.Context(), tenantID, shared.Filter{
		Page:     req.Page,
		PageSize: req.PageSize,
		Search:   req.Search,
		OrderBy:  req.OrderBy,
		OrderDir: req.OrderDir,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, toAccountResponses(list), total, req.Page, req.PageSize)
}

// GetAccount godoc
// @ID           getChannelAccount
// @Summary      Get a channel account
// @Tags         channels
// @Produce      json
// @Param        id path string true "Account ID" format(uuid)
// @Success      200 {object} APIResponse[AccountResponse]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /channels/accounts/{id} [get]
func (h *ChannelHandler) GetAccount(c *gin.Context) {
	tenantID, id, ok := h.accountScope(c)
	if !ok {
		return
	}
	account, err := h.channelService.GetAccount(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toAccountResponse(account))
}

// SetAccountEnabled godoc
// @ID           setChannelAccountEnabled
// @Summary      Enable or disable scheduled polling
// @Tags         channels
// @Accept       json
// @Produce      json
// @Param        id      path string                   true "Account ID" format(uuid)
// @Param        request body SetAccountEnabledRequest true "Enabled flag"
// @Success      200 {object} APIResponse[AccountResponse]
// @Security     BearerAuth
// @Router       /channels/accounts/{id}/enabled [put]
func (h *ChannelHandler) SetAccountEnabled(c *gin.Context) {
	tenantID, id, ok := h.accountScope(c)
	if !ok {
		return
	}
	var req SetAccountEnabledRequest
	if !h.BindJSON(c, &req) {
		return
	}
	account, err := h.channelService.SetAccountEnabled(c.Request.Context(), tenantID, id, *req.Enabled)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toAccountResponse(account))
}

// ValidateCredentials godoc
// @ID           validateChannelAccount
// @Summary      Check account credentials with the channel
// @Description  A rejected credential set yields valid=false; transport failures are reported as errors.
// @Tags         channels
// @Produce      json
// @Param        id path string true "Account ID" format(uuid)
// @Success      200 {object} APIResponse[ValidateCredentialsResponse]
// @Failure      502 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /channels/accounts/{id}/validate [get]
func (h *ChannelHandler) ValidateCredentials(c *gin.Context) {
	tenantID, id, ok := h.accountScope(c)
	if !ok {
		return
	}
	valid, err := h.channelService.ValidateCredentials(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ValidateCredentialsResponse{Valid: valid})
}

// CreateListing godoc
// @ID           createChannelListing
// @Summary      Link a product to a channel account
// @Tags         channels
// @Accept       json
// @Produce      json
// @Param        id      path string               true "Account ID" format(uuid)
// @Param        request body CreateListingRequest true "Listing"
// @Success      201 {object} APIResponse[ListingResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /channels/accounts/{id}/listings [post]
func (h *ChannelHandler) CreateListing(c *gin.Context) {
	tenantID, accountID, ok := h.accountScope(c)
	if !ok {
		return
	}
	var req CreateListingRequest
	if !h.BindJSON(c, &req) {
		return
	}

	link, err := h.channelService.CreateListing(c.Request.Context(), channelapp.CreateListingCommand{
		TenantID:    tenantID,
		AccountID:   accountID,
		ProductID:   uuid.MustParse(req.ProductID),
		SKU:         req.SKU,
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		Currency:    req.Currency,
		Quantity:    req.Quantity,
		ImageURLs:   req.ImageURLs,
		Tags:        req.Tags,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toListingResponse(link))
}

// ListListings godoc
// @ID           listChannelListings
// @Summary      List the listings of an account
// @Tags         channels
// @Produce      json
// @Param        id path string true "Account ID" format(uuid)
// @Success      200 {object} APIResponse[[]ListingResponse]
// @Security     BearerAuth
// @Router       /channels/accounts/{id}/listings [get]
func (h *ChannelHandler) ListListings(c *gin.Context) {
	tenantID, accountID, ok := h.accountScope(c)
	if !ok {
		return
	}
	links, err := h.channelService.ListListings(c.Request.Context(), tenantID, accountID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]ListingResponse, 0, len(links))
	for i := range links {
		out = append(out, toListingResponse(&links[i]))
	}
	h.Success(c, out)
}

// Export godoc
// @ID           exportChannelListings
// @Summary      Publish listings to the channel
// @Description  Exports in batches no larger than the channel allows. Items rejected by the channel are reported in failed; the call itself succeeds.
// @Tags         channels
// @Accept       json
// @Produce      json
// @Param        id      path string                true  "Account ID" format(uuid)
// @Param        request body ExportListingsRequest false "Listings to export"
// @Success      200 {object} APIResponse[ExportResponse]
// @Failure      422 {object} ErrorResponse
// @Failure      502 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /channels/accounts/{id}/export [post]
func (h *ChannelHandler) Export(c *gin.Context) {
	tenantID, accountID, ok := h.accountScope(c)
	if !ok {
		return
	}
	var req ExportListingsRequest
	if c.Request.ContentLength != 0 && !h.BindJSON(c, &req) {
		return
	}

	ids := make([]uuid.UUID, 0, len(req.ListingIDs))
	for _, raw := range req.ListingIDs {
		ids = append(ids, uuid.MustParse(raw))
	}

	res, err := h.channelService.ExportListings(c.Request.Context(), tenantID, accountID, ids)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toExportResponse(res))
}

// Import godoc
// @ID           importChannelOrders
// @Summary      Poll the channel for new orders now
// @Description  Pages through orders updated since the account watermark and ingests each as a relay. Duplicates are counted, not re-created.
// @Tags         channels
// @Produce      json
// @Param        id path string true "Account ID" format(uuid)
// @Success      200 {object} APIResponse[channelapp.PollSummary]
// @Failure      422 {object} ErrorResponse
// @Failure      502 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /channels/accounts/{id}/import [post]
func (h *ChannelHandler) Import(c *gin.Context) {
	tenantID, accountID, ok := h.accountScope(c)
	if !ok {
		return
	}
	summary, err := h.channelService.PollOrders(c.Request.Context(), tenantID, accountID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}

func (h *ChannelHandler) accountScope(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	tenantID, ok := h.requireTenant(c)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	return tenantID, id, true
}
