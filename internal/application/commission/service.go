package commission

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/commission"
	"github.com/marketrelay/backend/internal/domain/shared"
	"go.uber.org/zap"
)

const maxMutationAttempts = 3

// SweepSummary reports one hold-expiry sweep
type SweepSummary struct {
	Scanned   int
	Confirmed int
	Cancelled int
	Skipped   int
}

// SkippedCommission is a commission CancelForOrder left untouched
type SkippedCommission struct {
	CommissionID uuid.UUID
	Status       commission.Status
	Reason       string
}

// CancelResult reports the outcome of cancelling an order's commissions
type CancelResult struct {
	Cancelled []commission.Commission
	Skipped   []SkippedCommission
}

// Service computes and maintains partner commissions
type Service struct {
	commissionRepo commission.Repository
	policies       commission.PolicyProvider
	orderState     commission.OrderStateProvider
	eventPublisher shared.EventPublisher
	sweepBatchSize int
	logger         *zap.Logger
	now            func() time.Time
}

// NewService creates a new commission Service. orderState may be nil, in
// which case the sweep treats every order as valid.
func NewService(
	commissionRepo commission.Repository,
	policies commission.PolicyProvider,
	orderState commission.OrderStateProvider,
	sweepBatchSize int,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sweepBatchSize <= 0 {
		sweepBatchSize = 200
	}
	return &Service{
		commissionRepo: commissionRepo,
		policies:       policies,
		orderState:     orderState,
		sweepBatchSize: sweepBatchSize,
		logger:         logger,
		now:            func() time.Time { return time.Now().UTC() },
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

// ComputeForConversion records the commission for a conversion. It is
// idempotent on the conversion id: a repeated or concurrent call returns the
// commission that already exists, and the boolean reports whether this call
// created it. An empty policyID selects the default policy effective at the
// order date.
func (s *Service) ComputeForConversion(ctx context.Context, event commission.ConversionEvent, policyID string) (*commission.Commission, bool, error) {
	if err := event.Validate(); err != nil {
		return nil, false, err
	}

	existing, err := s.GetByConversionID(ctx, event.TenantID, event.ConversionID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	var policy *commission.Policy
	if policyID != "" {
		policy, err = s.policies.Get(ctx, policyID)
	} else {
		policy, err = s.policies.Applicable(ctx, event.OrderDate)
	}
	if err != nil {
		return nil, false, err
	}

	c, err := commission.NewCommission(event, policy, s.now())
	if err != nil {
		return nil, false, err
	}

	if err := s.commissionRepo.Create(ctx, c); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			existing, findErr := s.commissionRepo.FindByConversionID(ctx, event.TenantID, event.ConversionID)
			if findErr != nil {
				return nil, false, findErr
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	s.logger.Info("commission computed",
		zap.String("commission_id", c.ID.String()),
		zap.String("conversion_id", c.ConversionID),
		zap.String("partner_id", c.PartnerID.String()),
		zap.String("policy_id", c.PolicyID),
		zap.String("order_amount", c.OrderAmount.String()),
		zap.String("commission_amount", c.CommissionAmount.String()),
		zap.Time("hold_until", c.HoldUntil),
	)
	s.publishEvents(ctx, c)
	return c, true, nil
}

// GetByConversionID returns the commission for a conversion, or nil without
// error when none has been computed yet
func (s *Service) GetByConversionID(ctx context.Context, tenantID uuid.UUID, conversionID string) (*commission.Commission, error) {
	c, err := s.commissionRepo.FindByConversionID(ctx, tenantID, conversionID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns a commission by id
func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (*commission.Commission, error) {
	return s.commissionRepo.FindByID(ctx, tenantID, id)
}

// List returns a page of commissions and the total match count
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, filter commission.Filter) ([]commission.Commission, int64, error) {
	return s.commissionRepo.FindAll(ctx, tenantID, filter)
}

// SweepHoldExpired confirms PENDING commissions whose hold window elapsed.
// Commissions of voided orders are cancelled instead. This is the only path
// to CONFIRMED. The sweep pages through every due commission, so the ones it
// has to leave pending never starve those behind them.
func (s *Service) SweepHoldExpired(ctx context.Context) (SweepSummary, error) {
	var (
		summary SweepSummary
		after   *commission.HoldCursor
	)
	now := s.now()
	for {
		due, err := s.commissionRepo.FindHoldExpired(ctx, now, after, s.sweepBatchSize)
		if err != nil {
			return summary, err
		}
		if err := s.sweepPage(ctx, now, due, &summary); err != nil {
			return summary, err
		}
		if len(due) < s.sweepBatchSize {
			break
		}
		after = commission.CursorOf(&due[len(due)-1])
	}

	if summary.Scanned > 0 {
		s.logger.Info("commission hold sweep finished",
			zap.Int("scanned", summary.Scanned),
			zap.Int("confirmed", summary.Confirmed),
			zap.Int("cancelled", summary.Cancelled),
			zap.Int("skipped", summary.Skipped),
		)
	}
	return summary, nil
}

func (s *Service) sweepPage(ctx context.Context, now time.Time, due []commission.Commission, summary *SweepSummary) error {
	for i := range due {
		if err := ctx.Err(); err != nil {
			return err
		}
		c := &due[i]
		summary.Scanned++

		var (
			voided bool
			err    error
		)
		if s.orderState != nil {
			voided, err = s.orderState.IsOrderVoided(ctx, c.TenantID, c.OrderID)
			if err != nil {
				summary.Skipped++
				s.logger.Warn("order state lookup failed, commission left pending",
					zap.String("commission_id", c.ID.String()),
					zap.String("order_id", c.OrderID.String()),
					zap.Error(err),
				)
				continue
			}
		}

		if voided {
			err = c.Cancel("order voided before hold expiry", now)
		} else {
			err = c.Confirm(now)
		}
		if err == nil {
			err = s.commissionRepo.Save(ctx, c)
		}
		if err != nil {
			// A concurrent cancel or sweep got there first; the next sweep sees the new state
			summary.Skipped++
			s.logger.Debug("commission skipped by sweep",
				zap.String("commission_id", c.ID.String()),
				zap.Error(err),
			)
			continue
		}

		if voided {
			summary.Cancelled++
		} else {
			summary.Confirmed++
		}
		s.publishEvents(ctx, c)
	}
	return nil
}

// CancelForOrder cancels every PENDING or CONFIRMED commission of an order.
// PAID commissions and commissions already claimed by a settlement batch are
// reported back as skipped; already cancelled ones are ignored.
func (s *Service) CancelForOrder(ctx context.Context, tenantID, orderID uuid.UUID, reason string) (*CancelResult, error) {
	if reason == "" {
		reason = "order cancelled"
	}
	commissions, err := s.commissionRepo.FindByOrderID(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}

	result := &CancelResult{
		Cancelled: make([]commission.Commission, 0, len(commissions)),
	}
	for i := range commissions {
		if commissions[i].Status == commission.StatusCancelled {
			continue
		}
		c, err := s.cancelOne(ctx, &commissions[i], reason)
		if err != nil {
			if _, ok := shared.IsStateConflict(err); ok || errors.Is(err, commission.ErrInSettlement) {
				status := commissions[i].Status
				if c != nil {
					status = c.Status
				}
				result.Skipped = append(result.Skipped, SkippedCommission{
					CommissionID: commissions[i].ID,
					Status:       status,
					Reason:       err.Error(),
				})
				continue
			}
			return nil, err
		}
		if c != nil {
			result.Cancelled = append(result.Cancelled, *c)
		}
	}

	s.logger.Info("order commissions cancelled",
		zap.String("tenant_id", tenantID.String()),
		zap.String("order_id", orderID.String()),
		zap.Int("cancelled", len(result.Cancelled)),
		zap.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

// cancelOne cancels c, reloading on a lost optimistic lock. It returns nil
// without error when the reloaded commission turns out to be cancelled already.
func (s *Service) cancelOne(ctx context.Context, c *commission.Commission, reason string) (*commission.Commission, error) {
	for attempt := 1; ; attempt++ {
		if err := c.Cancel(reason, s.now()); err != nil {
			return c, err
		}
		err := s.commissionRepo.Save(ctx, c)
		if err == nil {
			s.publishEvents(ctx, c)
			return c, nil
		}
		if !errors.Is(err, shared.ErrConcurrencyConflict) || attempt >= maxMutationAttempts {
			return nil, err
		}
		c, err = s.commissionRepo.FindByID(ctx, c.TenantID, c.ID)
		if err != nil {
			return nil, err
		}
		if c.Status == commission.StatusCancelled {
			return nil, nil
		}
	}
}

func (s *Service) publishEvents(ctx context.Context, c *commission.Commission) {
	events := c.PullDomainEvents()
	if len(events) == 0 || s.eventPublisher == nil {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		s.logger.Error("failed to publish commission events",
			zap.String("commission_id", c.ID.String()),
			zap.Error(err),
		)
	}
}
