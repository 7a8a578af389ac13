package settlement

import (
	"context"
	"errors"

	"github.com/marketrelay/backend/internal/domain/settlement"
	"github.com/marketrelay/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// PeriodCloseSummary reports one run of the period-close job
type PeriodCloseSummary struct {
	Period  settlement.Period
	Payees  int
	Opened  int
	Closed  int
	Skipped int
	Failed  int
}

// ClosePreviousPeriod opens (when missing) and closes the previous period's
// batch for every payee ledger with confirmed, unbatched commissions ordered
// before the period end. Each currency a payee is owed in gets its own batch.
// A failure for one payee is logged and does not stop the others.
func (s *Service) ClosePreviousPeriod(ctx context.Context) (PeriodCloseSummary, error) {
	period := settlement.PreviousPeriod(s.now(), s.cfg.PeriodLength, s.cfg.Location)
	summary := PeriodCloseSummary{Period: period}

	for _, settlementType := range settlement.AllSettlementTypes {
		keys, err := s.batchRepo.ListPayeesWithSettleable(ctx, settlementType, period)
		if err != nil {
			return summary, err
		}

		for _, key := range keys {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			summary.Payees++

			opened, closed, err := s.closeForPayee(ctx, key, period)
			if opened {
				summary.Opened++
			}
			switch {
			case err != nil:
				summary.Failed++
				s.logger.Error("period close failed for payee",
					zap.String("tenant_id", key.TenantID.String()),
					zap.String("settlement_type", key.Payee.Type.String()),
					zap.String("payee_id", key.Payee.ID.String()),
					zap.String("currency", key.Currency),
					zap.Time("period_start", period.Start),
					zap.Error(err),
				)
			case closed:
				summary.Closed++
			default:
				summary.Skipped++
			}
		}
	}

	s.logger.Info("settlement period close finished",
		zap.Time("period_start", period.Start),
		zap.Time("period_end", period.End),
		zap.Int("payees", summary.Payees),
		zap.Int("opened", summary.Opened),
		zap.Int("closed", summary.Closed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

func (s *Service) closeForPayee(ctx context.Context, key settlement.PayeeKey, period settlement.Period) (opened, closed bool, err error) {
	b, err := s.batchRepo.FindActive(ctx, key.TenantID, key.Payee, period, key.Currency)
	if errors.Is(err, shared.ErrNotFound) {
		b, err = s.OpenBatch(ctx, OpenBatchCommand{
			TenantID: key.TenantID,
			Payee:    key.Payee,
			Period:   period,
			Currency: key.Currency,
		})
		if errors.Is(err, shared.ErrAlreadyExists) {
			b, err = s.batchRepo.FindActive(ctx, key.TenantID, key.Payee, period, key.Currency)
		} else if err == nil {
			opened = true
		}
	}
	if err != nil {
		return opened, false, err
	}
	if b.Status != settlement.StatusOpen {
		// closed earlier by an operator or another job instance
		return opened, false, nil
	}

	if _, err := s.CloseBatch(ctx, key.TenantID, b.ID); err != nil {
		if _, ok := shared.IsStateConflict(err); ok {
			return opened, false, nil
		}
		return opened, false, err
	}
	return opened, true, nil
}
