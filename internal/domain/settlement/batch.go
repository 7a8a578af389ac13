package settlement

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/commission"
	"github.com/marketrelay/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// AggregateTypeSettlementBatch is the aggregate type name used in events
const AggregateTypeSettlementBatch = "SettlementBatch"

// ErrCurrencyMismatch is returned when a batch would mix ledger currencies
var ErrCurrencyMismatch = shared.NewDomainError("CURRENCY_MISMATCH", "Commission currency does not match the batch currency")

// SettlementBatch aggregates one payee's confirmed commissions for one period
type SettlementBatch struct {
	shared.TenantAggregateRoot
	BatchNumber      string
	Payee            Payee
	Period           Period
	Status           Status
	Currency         string
	TotalAmount      decimal.Decimal
	CommissionAmount decimal.Decimal
	DeductionAmount  decimal.Decimal
	NetAmount        decimal.Decimal
	CommissionCount  int
	ClosedAt         *time.Time
	ProcessingAt     *time.Time
	PaidAt           *time.Time
	FailedAt         *time.Time
	CancelledAt      *time.Time
	FailureReason    string
	CancelReason     string
}

// NewSettlementBatch opens an empty batch
func NewSettlementBatch(tenantID uuid.UUID, payee Payee, period Period, currency string, at time.Time) (*SettlementBatch, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID is required")
	}
	if _, err := NewPayee(payee.Type, payee.ID); err != nil {
		return nil, err
	}
	if _, err := NewPeriod(period.Start, period.End); err != nil {
		return nil, err
	}
	if currency == "" {
		currency = "CNY"
	}

	b := &SettlementBatch{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		Payee:               payee,
		Period:              Period{Start: period.Start.UTC(), End: period.End.UTC()},
		Status:              StatusOpen,
		Currency:            strings.ToUpper(currency),
		TotalAmount:         decimal.Zero,
		CommissionAmount:    decimal.Zero,
		DeductionAmount:     decimal.Zero,
		NetAmount:           decimal.Zero,
	}
	b.CreatedAt = at
	b.UpdatedAt = at
	b.BatchNumber = GenerateBatchNumber(payee.Type, b.Period.Start, b.ID)

	b.AddDomainEvent(NewSettlementBatchOpenedEvent(b))
	return b, nil
}

// GenerateBatchNumber builds the human-readable batch number
func GenerateBatchNumber(settlementType SettlementType, periodStart time.Time, id uuid.UUID) string {
	short := strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
	return fmt.Sprintf("STL-%s-%s-%s", settlementType, periodStart.Format("20060102"), short)
}

// Summary is the aggregate of the commissions a batch closes over
type Summary struct {
	CommissionIDs    []uuid.UUID
	TotalAmount      decimal.Decimal
	CommissionAmount decimal.Decimal
	Count            int
}

// Summarize aggregates the commissions this batch may claim. Commissions from
// another payee context, ordered after the period, not CONFIRMED, already
// stamped or in another currency are rejected, never silently dropped.
func (b *SettlementBatch) Summarize(commissions []commission.Commission) (Summary, error) {
	s := Summary{TotalAmount: decimal.Zero, CommissionAmount: decimal.Zero}
	for i := range commissions {
		c := &commissions[i]
		if !b.BelongsTo(c.TenantID) || !b.Payee.Owns(c) {
			return Summary{}, shared.NewDomainError("INVALID_COMMISSION", "Commission does not belong to the batch payee")
		}
		if c.Status != commission.StatusConfirmed || c.IsInSettlement() {
			return Summary{}, shared.NewDomainError("INVALID_COMMISSION", "Only unsettled confirmed commissions can be batched")
		}
		if !b.Period.Covers(c.OrderDate) {
			return Summary{}, shared.NewDomainError("INVALID_COMMISSION", "Commission order date is after the batch period")
		}
		if !strings.EqualFold(c.Currency, b.Currency) {
			return Summary{}, ErrCurrencyMismatch
		}
		s.CommissionIDs = append(s.CommissionIDs, c.ID)
		s.TotalAmount = s.TotalAmount.Add(c.OrderAmount)
		s.CommissionAmount = s.CommissionAmount.Add(c.CommissionAmount)
		s.Count++
	}
	return s, nil
}

// Close moves OPEN -> CLOSED and fixes the batch totals. deductionRate is the
// platform deduction applied to the total; it is capped so the net never goes
// negative, and netAmount = totalAmount - commissionAmount - deductionAmount.
func (b *SettlementBatch) Close(summary Summary, deductionRate decimal.Decimal, at time.Time) error {
	if !b.Status.CanTransitionTo(StatusClosed) {
		return shared.NewStateConflictError(AggregateTypeSettlementBatch, "close", b.Status.String())
	}
	if deductionRate.IsNegative() || deductionRate.GreaterThan(decimal.NewFromInt(1)) {
		return shared.NewDomainError("INVALID_DEDUCTION_RATE", "Deduction rate must be between 0 and 1")
	}
	if summary.TotalAmount.IsNegative() || summary.CommissionAmount.IsNegative() {
		return shared.NewDomainError("INVALID_AMOUNT", "Settlement amounts cannot be negative")
	}

	remaining := summary.TotalAmount.Sub(summary.CommissionAmount)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	deduction := decimal.Min(summary.TotalAmount.Mul(deductionRate).Round(2), remaining)

	b.TotalAmount = summary.TotalAmount
	b.CommissionAmount = summary.CommissionAmount
	b.DeductionAmount = deduction
	b.NetAmount = b.TotalAmount.Sub(b.CommissionAmount).Sub(b.DeductionAmount)
	b.CommissionCount = summary.Count
	b.Status = StatusClosed
	b.ClosedAt = &at
	b.UpdatedAt = at

	b.AddDomainEvent(NewSettlementBatchClosedEvent(b))
	return nil
}

// StartProcessing moves CLOSED | FAILED -> PROCESSING
func (b *SettlementBatch) StartProcessing(at time.Time) error {
	if err := b.transition("process", StatusProcessing); err != nil {
		return err
	}
	b.ProcessingAt = &at
	b.FailureReason = ""
	b.UpdatedAt = at
	b.AddDomainEvent(newStatusEvent(EventTypeSettlementBatchProcessing, b, ""))
	return nil
}

// MarkPaid moves PROCESSING -> PAID
func (b *SettlementBatch) MarkPaid(at time.Time) error {
	if err := b.transition("mark paid", StatusPaid); err != nil {
		return err
	}
	b.PaidAt = &at
	b.UpdatedAt = at
	b.AddDomainEvent(newStatusEvent(EventTypeSettlementBatchPaid, b, ""))
	return nil
}

// MarkFailed moves PROCESSING -> FAILED and keeps the commission set for retry
func (b *SettlementBatch) MarkFailed(reason string, at time.Time) error {
	if reason == "" {
		return shared.NewDomainError("INVALID_REASON", "Failure reason is required")
	}
	if err := b.transition("mark failed", StatusFailed); err != nil {
		return err
	}
	b.FailedAt = &at
	b.FailureReason = reason
	b.UpdatedAt = at
	b.AddDomainEvent(newStatusEvent(EventTypeSettlementBatchFailed, b, reason))
	return nil
}

// Cancel moves OPEN | CLOSED -> CANCELLED. Stamped commissions are released
// and the (payee, period) slot becomes free again.
func (b *SettlementBatch) Cancel(reason string, at time.Time) error {
	if err := b.transition("cancel", StatusCancelled); err != nil {
		return err
	}
	b.CancelledAt = &at
	b.CancelReason = reason
	b.UpdatedAt = at
	b.AddDomainEvent(newStatusEvent(EventTypeSettlementBatchCancelled, b, reason))
	return nil
}

// PayoutAmount is what Finance transfers to the payee. Partners receive their
// commission; sellers and suppliers receive the net.
func (b *SettlementBatch) PayoutAmount() decimal.Decimal {
	if b.Payee.Type == SettlementTypePartner {
		return b.CommissionAmount
	}
	return b.NetAmount
}

// IsBalanced checks netAmount = totalAmount - commissionAmount - deductionAmount
func (b *SettlementBatch) IsBalanced() bool {
	return b.NetAmount.Equal(b.TotalAmount.Sub(b.CommissionAmount).Sub(b.DeductionAmount))
}

func (b *SettlementBatch) transition(operation string, next Status) error {
	if !b.Status.CanTransitionTo(next) {
		return shared.NewStateConflictError(AggregateTypeSettlementBatch, operation, b.Status.String())
	}
	b.Status = next
	return nil
}
