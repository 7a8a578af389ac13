package commission

import (
	"context"
	"fmt"

	"github.com/marketrelay/backend/internal/domain/commission"
	"github.com/marketrelay/backend/internal/domain/relay"
	"github.com/marketrelay/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// RelayCreatedHandler computes the partner commission for an attributed relay
type RelayCreatedHandler struct {
	service *Service
	logger  *zap.Logger
}

// NewRelayCreatedHandler creates a new handler for relay created events
func NewRelayCreatedHandler(service *Service, logger *zap.Logger) *RelayCreatedHandler {
	return &RelayCreatedHandler{
		service: service,
		logger:  logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *RelayCreatedHandler) EventTypes() []string {
	return []string{relay.EventTypeRelayCreated}
}

// Handle computes the commission when the relay carries a partner attribution
func (h *RelayCreatedHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	created, ok := event.(*relay.RelayCreatedEvent)
	if !ok {
		h.logger.Error("unexpected event type",
			zap.String("expected", relay.EventTypeRelayCreated),
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			relay.EventTypeRelayCreated, event.EventType())
	}

	if created.PartnerID == nil {
		h.logger.Debug("relay has no partner attribution, no commission",
			zap.String("relay_id", created.RelayID.String()),
		)
		return nil
	}

	sellerID := created.SellerID
	supplierID := created.SupplierID
	conversion := commission.ConversionEvent{
		ConversionID: created.ConversionID(),
		TenantID:     created.TenantID(),
		PartnerID:    *created.PartnerID,
		ProductID:    created.ProductID,
		SellerID:     &sellerID,
		SupplierID:   &supplierID,
		OrderID:      created.OrderID,
		OrderDate:    created.OrderDate,
		OrderAmount:  created.TotalAmount,
		Currency:     created.Currency,
		ReferralCode: created.ReferralCode,
	}

	c, isNew, err := h.service.ComputeForConversion(ctx, conversion, "")
	if err != nil {
		h.logger.Error("failed to compute commission for relay",
			zap.String("relay_id", created.RelayID.String()),
			zap.String("conversion_id", conversion.ConversionID),
			zap.Error(err),
		)
		return fmt.Errorf("compute commission for relay %s: %w", created.RelayID, err)
	}

	h.logger.Info("commission attributed to relay",
		zap.String("relay_id", created.RelayID.String()),
		zap.String("commission_id", c.ID.String()),
		zap.Bool("created", isNew),
	)
	return nil
}

// RelayCancelledHandler voids the commissions of a cancelled order
type RelayCancelledHandler struct {
	service *Service
	logger  *zap.Logger
}

// NewRelayCancelledHandler creates a new handler for relay cancelled events
func NewRelayCancelledHandler(service *Service, logger *zap.Logger) *RelayCancelledHandler {
	return &RelayCancelledHandler{
		service: service,
		logger:  logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *RelayCancelledHandler) EventTypes() []string {
	return []string{relay.EventTypeRelayCancelled}
}

// Handle cancels the order's commissions. Skipped commissions are logged, not failed.
func (h *RelayCancelledHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	cancelled, ok := event.(*relay.RelayStatusEvent)
	if !ok || cancelled.EventType() != relay.EventTypeRelayCancelled {
		h.logger.Error("unexpected event type",
			zap.String("expected", relay.EventTypeRelayCancelled),
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			relay.EventTypeRelayCancelled, event.EventType())
	}

	reason := "relay cancelled"
	if cancelled.Reason != "" {
		reason = "relay cancelled: " + cancelled.Reason
	}
	result, err := h.service.CancelForOrder(ctx, cancelled.TenantID(), cancelled.OrderID, reason)
	if err != nil {
		return fmt.Errorf("cancel commissions for order %s: %w", cancelled.OrderID, err)
	}

	for _, skipped := range result.Skipped {
		h.logger.Warn("commission not cancelled with its order",
			zap.String("order_id", cancelled.OrderID.String()),
			zap.String("commission_id", skipped.CommissionID.String()),
			zap.String("status", skipped.Status.String()),
			zap.String("reason", skipped.Reason),
		)
	}
	return nil
}
