package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/channel"
	"github.com/marketrelay/backend/internal/domain/relay"
	"github.com/marketrelay/backend/internal/domain/shared"
	"github.com/marketrelay/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// maxMutationAttempts bounds reload-and-retry after a lost optimistic lock
const maxMutationAttempts = 3

// maxBackoffShift caps the exponential dispatch backoff at RetryBackoff * 2^6
const maxBackoffShift = 6

// Config holds the relay service settings
type Config struct {
	MaxRetries        int
	RetryBackoff      time.Duration
	DispatchBatchSize int
	// DispatchLease bounds one supplier call. Another dispatcher may retry
	// the relay once it passes.
	DispatchLease time.Duration
}

// IngestCommand carries an external order into the relay pipeline
type IngestCommand struct {
	TenantID    uuid.UUID
	SellerID    uuid.UUID
	SupplierID  uuid.UUID
	ChannelCode channel.Code
	// OrderID is the internal order id; uuid.Nil assigns one
	OrderID   uuid.UUID
	Order     channel.ExternalOrder
	CreatedBy *uuid.UUID
}

// DispatchSummary reports one pass of the dispatch worker
type DispatchSummary struct {
	Attempted  int
	Dispatched int
	Retrying   int
	Exhausted  int
	// Skipped counts relays another dispatcher claimed first
	Skipped int
	Errors  int
}

// Service drives order relays through their lifecycle
type Service struct {
	relayRepo      relay.Repository
	gateway        relay.SupplierGateway
	eventPublisher shared.EventPublisher
	cfg            Config
	logger         *zap.Logger
	now            func() time.Time
}

// NewService creates a new relay Service
func NewService(
	relayRepo relay.Repository,
	gateway relay.SupplierGateway,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 30 * time.Second
	}
	if cfg.DispatchBatchSize <= 0 {
		cfg.DispatchBatchSize = 50
	}
	if cfg.DispatchLease <= 0 {
		cfg.DispatchLease = 2 * time.Minute
	}
	return &Service{
		relayRepo: relayRepo,
		gateway:   gateway,
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

// Ingest creates a relay for an external order. Ingesting the same
// (channel code, external order id) again returns the existing relay; the
// boolean reports whether this call created it.
func (s *Service) Ingest(ctx context.Context, cmd IngestCommand) (*relay.OrderRelay, bool, error) {
	code := cmd.ChannelCode
	if code == "" {
		code = cmd.Order.ChannelCode
	}
	if code == "" {
		code = channel.CodeInternal
	}
	code = channel.NormalizeCode(code.String())

	if cmd.Order.ExternalOrderID != "" {
		existing, err := s.relayRepo.FindByExternalOrder(ctx, cmd.TenantID, code, cmd.Order.ExternalOrderID)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, false, err
		}
	}

	r, err := relay.NewOrderRelay(cmd.TenantID, cmd.SellerID, cmd.SupplierID, cmd.OrderID, code, cmd.Order)
	if err != nil {
		return nil, false, err
	}
	if cmd.CreatedBy != nil {
		r.SetCreatedBy(*cmd.CreatedBy)
	}

	if err := s.relayRepo.Create(ctx, r); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			// Lost the race to a concurrent ingest of the same order
			existing, findErr := s.relayRepo.FindByExternalOrder(ctx, cmd.TenantID, code, cmd.Order.ExternalOrderID)
			if findErr != nil {
				return nil, false, findErr
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	s.logger.Info("order relay ingested",
		zap.String("relay_id", r.ID.String()),
		zap.String("tenant_id", r.TenantID.String()),
		zap.String("channel_code", r.ChannelCode.String()),
		zap.String("external_order_id", r.ExternalOrderID),
		zap.String("total_amount", r.TotalAmount.String()),
	)
	s.publishEvents(ctx, r)
	return r, true, nil
}

// Get returns a relay by id
func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (*relay.OrderRelay, error) {
	return s.relayRepo.FindByID(ctx, tenantID, id)
}

// List returns a page of relays and the total match count
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, filter relay.Filter) ([]relay.OrderRelay, int64, error) {
	return s.relayRepo.FindAll(ctx, tenantID, filter)
}

// Dispatch sends a CREATED relay to its supplier. On a transport failure or
// rejection the relay stays CREATED with the attempt counted, or moves to
// FAILED once the retry budget is spent; the relay is returned together with
// the wrapped gateway error. A relay another dispatcher is sending yields a
// state conflict reporting DISPATCHING.
func (s *Service) Dispatch(ctx context.Context, tenantID, id uuid.UUID) (*relay.OrderRelay, error) {
	r, err := s.relayRepo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return s.dispatch(ctx, r)
}

// DispatchDue dispatches the relays whose next attempt is due, across tenants
func (s *Service) DispatchDue(ctx context.Context) (DispatchSummary, error) {
	var summary DispatchSummary
	due, err := s.relayRepo.FindDispatchDue(ctx, s.now(), s.cfg.DispatchBatchSize)
	if err != nil {
		return summary, err
	}

	for i := range due {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Attempted++
		r, err := s.dispatch(ctx, &due[i])
		switch {
		case err == nil:
			summary.Dispatched++
		case r != nil && r.Status == relay.StatusFailed:
			summary.Exhausted++
		case r != nil && r.Status == relay.StatusCreated && isGatewayError(err):
			summary.Retrying++
		case isClaimedElsewhere(err):
			summary.Skipped++
		default:
			summary.Errors++
			s.logger.Warn("relay dispatch skipped",
				zap.String("relay_id", due[i].ID.String()),
				zap.Error(err),
			)
		}
	}
	return summary, nil
}

// dispatch claims the relay with a version-guarded save before calling the
// supplier, so a manual dispatch racing the worker calls it only once
func (s *Service) dispatch(ctx context.Context, r *relay.OrderRelay) (*relay.OrderRelay, error) {
	if err := r.ClaimDispatch(s.now(), s.cfg.DispatchLease); err != nil {
		return r, err
	}
	if err := s.relayRepo.Save(ctx, r); err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			return r, shared.NewStateConflictError(relay.AggregateTypeOrderRelay, "dispatch", relay.StateDispatching)
		}
		return r, err
	}

	spanCtx, span := telemetry.StartServiceSpan(ctx, "RelayService", "Dispatch",
		telemetry.WithAttribute(telemetry.SpanAttrRelayID, r.ID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrExternalOrderID, r.ExternalOrderID),
		telemetry.WithAttribute(telemetry.SpanAttrSupplierID, r.SupplierID.String()),
	)
	receipt, gatewayErr := s.gateway.Dispatch(spanCtx, relay.NewDispatchRequest(r))
	if gatewayErr != nil {
		telemetry.RecordError(span, gatewayErr)
	} else {
		if receipt != nil {
			telemetry.AddEvent(span, "supplier_accepted", "supplier_reference", receipt.SupplierReference)
		}
		telemetry.SetOK(span)
	}
	span.End()
	now := s.now()

	if gatewayErr != nil {
		next := now.Add(s.backoff(r.RetryCount))
		exhausted, err := r.RecordDispatchFailure(gatewayErr.Error(), s.cfg.MaxRetries, next, now)
		if err != nil {
			return r, err
		}
		if err := s.relayRepo.Save(ctx, r); err != nil {
			return r, err
		}
		fields := []zap.Field{
			zap.String("relay_id", r.ID.String()),
			zap.String("supplier_id", r.SupplierID.String()),
			zap.Int("retry_count", r.RetryCount),
			zap.Int("max_retries", s.cfg.MaxRetries),
			zap.Error(gatewayErr),
		}
		if exhausted {
			s.logger.Error("relay dispatch retries exhausted", fields...)
		} else {
			s.logger.Warn("relay dispatch failed, will retry", append(fields, zap.Time("next_attempt_at", next))...)
		}
		s.publishEvents(ctx, r)
		return r, fmt.Errorf("dispatch relay %s: %w", r.ID, gatewayErr)
	}

	ref := ""
	if receipt != nil {
		ref = receipt.SupplierReference
	}
	if err := r.RecordDispatchSuccess(ref, now); err != nil {
		return r, err
	}
	if err := s.relayRepo.Save(ctx, r); err != nil {
		return r, err
	}
	s.logger.Info("relay dispatched",
		zap.String("relay_id", r.ID.String()),
		zap.String("supplier_reference", ref),
	)
	s.publishEvents(ctx, r)
	return r, nil
}

// Acknowledge records the supplier's acceptance (DISPATCHED -> ACKNOWLEDGED)
func (s *Service) Acknowledge(ctx context.Context, tenantID, id uuid.UUID) (*relay.OrderRelay, error) {
	return s.mutate(ctx, tenantID, id, func(r *relay.OrderRelay, now time.Time) error {
		return r.Acknowledge(now)
	})
}

// MarkFulfilled stores the tracking info (ACKNOWLEDGED -> FULFILLED)
func (s *Service) MarkFulfilled(ctx context.Context, tenantID, id uuid.UUID, tracking relay.TrackingInfo) (*relay.OrderRelay, error) {
	return s.mutate(ctx, tenantID, id, func(r *relay.OrderRelay, now time.Time) error {
		return r.MarkFulfilled(tracking, now)
	})
}

// MarkFailed records a supplier-side failure (DISPATCHED | ACKNOWLEDGED -> FAILED)
func (s *Service) MarkFailed(ctx context.Context, tenantID, id uuid.UUID, reason string) (*relay.OrderRelay, error) {
	return s.mutate(ctx, tenantID, id, func(r *relay.OrderRelay, now time.Time) error {
		return r.MarkFailed(reason, now)
	})
}

// Cancel cancels the relay (CREATED | DISPATCHED -> CANCELLED). The emitted
// RelayCancelled event voids the order's commissions.
func (s *Service) Cancel(ctx context.Context, tenantID, id uuid.UUID, reason string) (*relay.OrderRelay, error) {
	return s.mutate(ctx, tenantID, id, func(r *relay.OrderRelay, now time.Time) error {
		return r.Cancel(reason, now)
	})
}

// ResetForRedispatch returns a FAILED relay to CREATED with a fresh retry budget
func (s *Service) ResetForRedispatch(ctx context.Context, tenantID, id uuid.UUID) (*relay.OrderRelay, error) {
	return s.mutate(ctx, tenantID, id, func(r *relay.OrderRelay, now time.Time) error {
		return r.ResetForRedispatch(now)
	})
}

// mutate loads the relay, applies fn and saves it. A lost optimistic lock
// reloads and re-applies so the caller sees the state conflict against the
// relay's real state rather than a version error.
func (s *Service) mutate(
	ctx context.Context,
	tenantID, id uuid.UUID,
	fn func(r *relay.OrderRelay, now time.Time) error,
) (*relay.OrderRelay, error) {
	for attempt := 1; ; attempt++ {
		r, err := s.relayRepo.FindByID(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}
		if err := fn(r, s.now()); err != nil {
			return nil, err
		}
		err = s.relayRepo.Save(ctx, r)
		if errors.Is(err, shared.ErrConcurrencyConflict) && attempt < maxMutationAttempts {
			s.logger.Debug("relay modified concurrently, reloading",
				zap.String("relay_id", id.String()),
				zap.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return nil, err
		}
		s.publishEvents(ctx, r)
		return r, nil
	}
}

func (s *Service) backoff(retryCount int) time.Duration {
	shift := retryCount
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	if shift < 0 {
		shift = 0
	}
	return s.cfg.RetryBackoff * time.Duration(1<<shift)
}

func (s *Service) publishEvents(ctx context.Context, r *relay.OrderRelay) {
	events := r.PullDomainEvents()
	if len(events) == 0 || s.eventPublisher == nil {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		s.logger.Error("failed to publish relay events",
			zap.String("relay_id", r.ID.String()),
			zap.Int("event_count", len(events)),
			zap.Error(err),
		)
	}
}

func isClaimedElsewhere(err error) bool {
	sc, ok := shared.IsStateConflict(err)
	return ok && sc.CurrentState == relay.StateDispatching
}

func isGatewayError(err error) bool {
	return errors.Is(err, relay.ErrSupplierUnavailable) || errors.Is(err, relay.ErrSupplierRejected)
}
