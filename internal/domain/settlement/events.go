package settlement

import (
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Event type constants for SettlementBatch
const (
	EventTypeSettlementBatchOpened     = "SettlementBatchOpened"
	EventTypeSettlementBatchClosed     = "SettlementBatchClosed"
	EventTypeSettlementBatchProcessing = "SettlementBatchProcessing"
	EventTypeSettlementBatchPaid       = "SettlementBatchPaid"
	EventTypeSettlementBatchFailed     = "SettlementBatchFailed"
	EventTypeSettlementBatchCancelled  = "SettlementBatchCancelled"
)

// BatchEvent carries a settlement batch snapshot
type BatchEvent struct {
	shared.BaseDomainEvent
	BatchID          uuid.UUID       `json:"batch_id"`
	BatchNumber      string          `json:"batch_number"`
	SettlementType   string          `json:"settlement_type"`
	PayeeID          uuid.UUID       `json:"payee_id"`
	PeriodStart      time.Time       `json:"period_start"`
	PeriodEnd        time.Time       `json:"period_end"`
	Status           string          `json:"status"`
	Currency         string          `json:"currency"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	DeductionAmount  decimal.Decimal `json:"deduction_amount"`
	NetAmount        decimal.Decimal `json:"net_amount"`
	CommissionCount  int             `json:"commission_count"`
	Reason           string          `json:"reason,omitempty"`
}

func newStatusEvent(eventType string, b *SettlementBatch, reason string) *BatchEvent {
	return &BatchEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(eventType, AggregateTypeSettlementBatch, b.ID, b.TenantID),
		BatchID:          b.ID,
		BatchNumber:      b.BatchNumber,
		SettlementType:   b.Payee.Type.String(),
		PayeeID:          b.Payee.ID,
		PeriodStart:      b.Period.Start,
		PeriodEnd:        b.Period.End,
		Status:           b.Status.String(),
		Currency:         b.Currency,
		TotalAmount:      b.TotalAmount,
		CommissionAmount: b.CommissionAmount,
		DeductionAmount:  b.DeductionAmount,
		NetAmount:        b.NetAmount,
		CommissionCount:  b.CommissionCount,
		Reason:           reason,
	}
}

// NewSettlementBatchOpenedEvent creates a SettlementBatchOpened event
func NewSettlementBatchOpenedEvent(b *SettlementBatch) *BatchEvent {
	return newStatusEvent(EventTypeSettlementBatchOpened, b, "")
}

// NewSettlementBatchClosedEvent creates a SettlementBatchClosed event. The
// statement export and payee notification run on it.
func NewSettlementBatchClosedEvent(b *SettlementBatch) *BatchEvent {
	return newStatusEvent(EventTypeSettlementBatchClosed, b, "")
}
