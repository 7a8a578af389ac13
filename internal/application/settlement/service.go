package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/commission"
	"github.com/marketrelay/backend/internal/domain/settlement"
	"github.com/marketrelay/backend/internal/domain/shared"
	"github.com/marketrelay/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxCloseAttempts = 3

// Config holds the settlement service settings
type Config struct {
	DefaultCurrency string
	// DeductionRates is the platform deduction per settlement type; missing types deduct nothing
	DeductionRates map[settlement.SettlementType]decimal.Decimal
	PeriodLength   settlement.PeriodLength
	Location       *time.Location
}

// OpenBatchCommand opens a batch for one payee and period
type OpenBatchCommand struct {
	TenantID  uuid.UUID
	Payee     settlement.Payee
	Period    settlement.Period
	Currency  string
	CreatedBy *uuid.UUID
}

// Service manages settlement batches
type Service struct {
	batchRepo      settlement.Repository
	eventPublisher shared.EventPublisher
	cfg            Config
	logger         *zap.Logger
	now            func() time.Time
}

// NewService creates a new settlement Service
func NewService(batchRepo settlement.Repository, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "CNY"
	}
	if !cfg.PeriodLength.IsValid() {
		cfg.PeriodLength = settlement.PeriodWeekly
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{
		batchRepo: batchRepo,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetEventPublisher sets the event publisher for cross-context integration
func (s *Service) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetClock overrides the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// OpenBatch opens an empty batch. A live batch for the same payee, period and
// currency fails with shared.ErrAlreadyExists.
func (s *Service) OpenBatch(ctx context.Context, cmd OpenBatchCommand) (*settlement.SettlementBatch, error) {
	currency := cmd.Currency
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	b, err := settlement.NewSettlementBatch(cmd.TenantID, cmd.Payee, cmd.Period, currency, s.now())
	if err != nil {
		return nil, err
	}
	if cmd.CreatedBy != nil {
		b.SetCreatedBy(*cmd.CreatedBy)
	}
	if err := s.batchRepo.Create(ctx, b); err != nil {
		return nil, err
	}

	s.logger.Info("settlement batch opened",
		zap.String("batch_id", b.ID.String()),
		zap.String("batch_number", b.BatchNumber),
		zap.String("settlement_type", b.Payee.Type.String()),
		zap.String("payee_id", b.Payee.ID.String()),
		zap.Time("period_start", b.Period.Start),
		zap.Time("period_end", b.Period.End),
	)
	s.publishEvents(ctx, b)
	return b, nil
}

// Get returns a batch by id
func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (*settlement.SettlementBatch, error) {
	return s.batchRepo.FindByID(ctx, tenantID, id)
}

// List returns a page of batches and the total match count
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, filter settlement.Filter) ([]settlement.SettlementBatch, int64, error) {
	return s.batchRepo.FindAll(ctx, tenantID, filter)
}

// ListCommissions returns the commissions stamped with a batch
func (s *Service) ListCommissions(ctx context.Context, tenantID, id uuid.UUID) ([]commission.Commission, error) {
	if _, err := s.batchRepo.FindByID(ctx, tenantID, id); err != nil {
		return nil, err
	}
	return s.batchRepo.FindCommissions(ctx, tenantID, id)
}

// CloseBatch aggregates the payee's CONFIRMED, unbatched commissions ordered
// before the period end in the batch currency, fixes the totals and stamps the
// commissions in one step. Commissions confirmed after an earlier batch closed
// land here. Only one
// concurrent closer wins; the others get a state conflict naming the state the
// winner left the batch in.
func (s *Service) CloseBatch(ctx context.Context, tenantID, id uuid.UUID) (*settlement.SettlementBatch, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "SettlementService", "CloseBatch",
		telemetry.WithAttribute("batch_id", id.String()))
	defer span.End()

	b, err := s.closeBatch(ctx, tenantID, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrBatchNumber, b.BatchNumber,
		"commission_count", b.CommissionCount,
	)
	telemetry.SetOK(span)
	return b, nil
}

func (s *Service) closeBatch(ctx context.Context, tenantID, id uuid.UUID) (*settlement.SettlementBatch, error) {
	for attempt := 1; ; attempt++ {
		b, err := s.batchRepo.FindByID(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}
		if b.Status != settlement.StatusOpen {
			return nil, shared.NewStateConflictError(settlement.AggregateTypeSettlementBatch, "close", b.Status.String())
		}

		commissions, err := s.batchRepo.FindSettleable(ctx, tenantID, b.Payee, b.Period, b.Currency)
		if err != nil {
			return nil, err
		}
		summary, err := b.Summarize(commissions)
		if err != nil {
			return nil, err
		}
		if err := b.Close(summary, s.deductionRate(b.Payee.Type), s.now()); err != nil {
			return nil, err
		}

		err = s.batchRepo.CloseWithCommissions(ctx, b, summary.CommissionIDs)
		switch {
		case err == nil:
			s.logger.Info("settlement batch closed",
				zap.String("batch_id", b.ID.String()),
				zap.String("batch_number", b.BatchNumber),
				zap.Int("commission_count", b.CommissionCount),
				zap.String("total_amount", b.TotalAmount.String()),
				zap.String("commission_amount", b.CommissionAmount.String()),
				zap.String("deduction_amount", b.DeductionAmount.String()),
				zap.String("net_amount", b.NetAmount.String()),
			)
			s.publishEvents(ctx, b)
			return b, nil
		case errors.Is(err, settlement.ErrTransitionLost):
			return nil, s.reloadConflict(ctx, tenantID, id, "close")
		case errors.Is(err, settlement.ErrCommissionSetChanged) && attempt < maxCloseAttempts:
			s.logger.Warn("commission set changed while closing batch, retrying",
				zap.String("batch_id", id.String()),
				zap.Int("attempt", attempt),
			)
			continue
		default:
			return nil, err
		}
	}
}

// StartProcessing hands a CLOSED or FAILED batch to the payout executor
func (s *Service) StartProcessing(ctx context.Context, tenantID, id uuid.UUID) (*settlement.SettlementBatch, error) {
	return s.transition(ctx, tenantID, id, "process", settlement.EffectNone, func(b *settlement.SettlementBatch, now time.Time) error {
		return b.StartProcessing(now)
	})
}

// MarkPaid records a successful payout; every stamped commission becomes PAID
// in the same transaction
func (s *Service) MarkPaid(ctx context.Context, tenantID, id uuid.UUID) (*settlement.SettlementBatch, error) {
	return s.transition(ctx, tenantID, id, "mark paid", settlement.EffectPay, func(b *settlement.SettlementBatch, now time.Time) error {
		return b.MarkPaid(now)
	})
}

// MarkFailed records a failed payout. The commission set stays with the batch
// so processing can be retried.
func (s *Service) MarkFailed(ctx context.Context, tenantID, id uuid.UUID, reason string) (*settlement.SettlementBatch, error) {
	return s.transition(ctx, tenantID, id, "mark failed", settlement.EffectNone, func(b *settlement.SettlementBatch, now time.Time) error {
		return b.MarkFailed(reason, now)
	})
}

// CancelBatch cancels an OPEN or CLOSED batch and releases its commissions
func (s *Service) CancelBatch(ctx context.Context, tenantID, id uuid.UUID, reason string) (*settlement.SettlementBatch, error) {
	return s.transition(ctx, tenantID, id, "cancel", settlement.EffectRelease, func(b *settlement.SettlementBatch, now time.Time) error {
		return b.Cancel(reason, now)
	})
}

func (s *Service) transition(
	ctx context.Context,
	tenantID, id uuid.UUID,
	operation string,
	effect settlement.CommissionEffect,
	fn func(b *settlement.SettlementBatch, now time.Time) error,
) (*settlement.SettlementBatch, error) {
	b, err := s.batchRepo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	from := b.Status
	now := s.now()
	if err := fn(b, now); err != nil {
		return nil, err
	}

	if err := s.batchRepo.SaveTransition(ctx, b, from, effect, now); err != nil {
		if errors.Is(err, settlement.ErrTransitionLost) {
			return nil, s.reloadConflict(ctx, tenantID, id, operation)
		}
		return nil, err
	}

	s.logger.Info("settlement batch transitioned",
		zap.String("batch_id", b.ID.String()),
		zap.String("from", from.String()),
		zap.String("to", b.Status.String()),
	)
	s.publishEvents(ctx, b)
	return b, nil
}

// reloadConflict reports the state a concurrent writer left the batch in
func (s *Service) reloadConflict(ctx context.Context, tenantID, id uuid.UUID, operation string) error {
	current, err := s.batchRepo.FindByID(ctx, tenantID, id)
	if err != nil {
		return fmt.Errorf("reload batch after lost transition: %w", err)
	}
	return shared.NewStateConflictError(settlement.AggregateTypeSettlementBatch, operation, current.Status.String())
}

func (s *Service) deductionRate(t settlement.SettlementType) decimal.Decimal {
	if rate, ok := s.cfg.DeductionRates[t]; ok {
		return rate
	}
	return decimal.Zero
}

func (s *Service) publishEvents(ctx context.Context, b *settlement.SettlementBatch) {
	events := b.PullDomainEvents()
	if len(events) == 0 || s.eventPublisher == nil {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		s.logger.Error("failed to publish settlement events",
			zap.String("batch_id", b.ID.String()),
			zap.Error(err),
		)
	}
}
