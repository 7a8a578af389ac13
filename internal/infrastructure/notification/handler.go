package notification

import (
	"context"
	"fmt"

	"github.com/marketrelay/backend/internal/domain/relay"
	"github.com/marketrelay/backend/internal/domain/settlement"
	"github.com/marketrelay/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Encoder turns a domain event into its wire envelope; *event.Codec is one
type Encoder interface {
	Encode(e shared.DomainEvent) ([]byte, error)
}

// EventHandler forwards operator-relevant domain events to a Notifier
type EventHandler struct {
	notifier Notifier
	encoder  Encoder
	logger   *zap.Logger
}

// NewEventHandler creates the notification event handler
func NewEventHandler(notifier Notifier, encoder Encoder, logger *zap.Logger) *EventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventHandler{
		notifier: notifier,
		encoder:  encoder,
		logger:   logger,
	}
}

// HandlerName identifies the handler for idempotency keys
func (h *EventHandler) HandlerName() string {
	return "notification"
}

// EventTypes returns the event types this handler is interested in
func (h *EventHandler) EventTypes() []string {
	return []string{
		relay.EventTypeRelayDispatchExhausted,
		settlement.EventTypeSettlementBatchClosed,
		settlement.EventTypeSettlementBatchFailed,
	}
}

// Handle builds the message for the event and sends it
func (h *EventHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	msg, err := h.message(event)
	if err != nil {
		return err
	}

	if err := h.notifier.Notify(ctx, msg); err != nil {
		h.logger.Warn("notification not delivered",
			zap.String("kind", msg.Kind),
			zap.String("event_id", msg.ID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (h *EventHandler) message(event shared.DomainEvent) (Message, error) {
	body, err := h.encoder.Encode(event)
	if err != nil {
		return Message{}, fmt.Errorf("serialize %s: %w", event.EventType(), err)
	}

	msg := Message{
		ID:         event.EventID().String(),
		Kind:       event.EventType(),
		Severity:   SeverityInfo,
		TenantID:   event.TenantID().String(),
		OccurredAt: event.OccurredAt(),
		Body:       body,
	}

	switch e := event.(type) {
	case *relay.RelayStatusEvent:
		msg.Severity = SeverityCritical
		msg.Subject = fmt.Sprintf("Relay %s for order %s exhausted %d dispatch attempts: %s",
			e.RelayID, e.ExternalOrderID, e.RetryCount, e.Reason)
	case *settlement.BatchEvent:
		if e.EventType() == settlement.EventTypeSettlementBatchFailed {
			msg.Severity = SeverityWarning
			msg.Subject = fmt.Sprintf("Settlement batch %s payment failed: %s", e.BatchNumber, e.Reason)
		} else {
			msg.Subject = fmt.Sprintf("Settlement batch %s closed: %d commissions, net %s %s",
				e.BatchNumber, e.CommissionCount, e.NetAmount.StringFixed(2), e.Currency)
		}
	default:
		return Message{}, fmt.Errorf("unexpected event type %s", event.EventType())
	}
	return msg, nil
}

var _ shared.EventHandler = (*EventHandler)(nil)
