package telemetry

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/marketrelay/backend/internal/domain/commission"
	"github.com/marketrelay/backend/internal/domain/relay"
	"github.com/marketrelay/backend/internal/domain/settlement"
	"github.com/marketrelay/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// BusinessMetrics records marketplace activity. It subscribes to domain events
// on the bus and observes every event handler invocation.
type BusinessMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	relayEventsTotal      *Counter
	relayAmountTotal      *Counter
	commissionEventsTotal *Counter
	commissionAmountTotal *Counter
	settlementEventsTotal *Counter
	settlementNetTotal    *Counter

	handlerDuration *Histogram

	// Gauge metrics (point-in-time values)
	relayBacklog      *Gauge
	commissionBacklog *Gauge

	// Periodic collector
	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	backlogProvider BacklogProvider
}

// BacklogProvider reports how much work is waiting in each state
type BacklogProvider interface {
	// CountRelaysByStatus returns the number of relays per status across tenants
	CountRelaysByStatus(ctx context.Context) (map[string]int64, error)

	// CountCommissionsByStatus returns the number of commissions per status across tenants
	CountCommissionsByStatus(ctx context.Context) (map[string]int64, error)
}

// BusinessMetricsConfig holds configuration for business metrics.
type BusinessMetricsConfig struct {
	Meter           metric.Meter
	Logger          *zap.Logger
	BacklogProvider BacklogProvider
}

// NewBusinessMetrics creates a new BusinessMetrics instance.
func NewBusinessMetrics(cfg BusinessMetricsConfig) (*BusinessMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	bm := &BusinessMetrics{
		meter:           cfg.Meter,
		logger:          logger,
		stopChan:        make(chan struct{}),
		backlogProvider: cfg.BacklogProvider,
	}

	counters := []struct {
		target           **Counter
		name, desc, unit string
	}{
		{&bm.relayEventsTotal, "marketrelay_relay_events_total", "Order relay lifecycle events", "{events}"},
		{&bm.relayAmountTotal, "marketrelay_relay_amount_total", "Total ingested order amount in minor units", "{cents}"},
		{&bm.commissionEventsTotal, "marketrelay_commission_events_total", "Commission lifecycle events", "{events}"},
		{&bm.commissionAmountTotal, "marketrelay_commission_amount_total", "Commission amount by lifecycle event in minor units", "{cents}"},
		{&bm.settlementEventsTotal, "marketrelay_settlement_batch_events_total", "Settlement batch lifecycle events", "{events}"},
		{&bm.settlementNetTotal, "marketrelay_settlement_net_amount_total", "Net amount of closed settlement batches in minor units", "{cents}"},
	}
	for _, c := range counters {
		counter, err := NewCounter(cfg.Meter, c.name, c.desc, c.unit)
		if err != nil {
			return nil, err
		}
		*c.target = counter
	}

	var err error
	bm.handlerDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "marketrelay_event_handler_duration_seconds",
		Description: "Duration of domain event handler invocations",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	bm.relayBacklog, err = NewGauge(cfg.Meter, "marketrelay_relay_backlog", "Order relays per status", "{relays}")
	if err != nil {
		return nil, err
	}
	bm.commissionBacklog, err = NewGauge(cfg.Meter, "marketrelay_commission_backlog", "Commissions per status", "{commissions}")
	if err != nil {
		return nil, err
	}

	return bm, nil
}

// =============================================================================
// Event subscription
// =============================================================================

// HandlerName identifies the handler for idempotency keys
func (bm *BusinessMetrics) HandlerName() string {
	return "business_metrics"
}

// EventTypes returns every lifecycle event the metrics count
func (bm *BusinessMetrics) EventTypes() []string {
	return []string{
		relay.EventTypeRelayCreated,
		relay.EventTypeRelayDispatched,
		relay.EventTypeRelayDispatchExhausted,
		relay.EventTypeRelayAcknowledged,
		relay.EventTypeRelayFulfilled,
		relay.EventTypeRelayFailed,
		relay.EventTypeRelayCancelled,
		relay.EventTypeRelayReset,
		commission.EventTypeCommissionCreated,
		commission.EventTypeCommissionConfirmed,
		commission.EventTypeCommissionCancelled,
		settlement.EventTypeSettlementBatchOpened,
		settlement.EventTypeSettlementBatchClosed,
		settlement.EventTypeSettlementBatchProcessing,
		settlement.EventTypeSettlementBatchPaid,
		settlement.EventTypeSettlementBatchFailed,
		settlement.EventTypeSettlementBatchCancelled,
	}
}

// Handle counts the event. It never fails.
func (bm *BusinessMetrics) Handle(ctx context.Context, event shared.DomainEvent) error {
	tenant := AttrTenantID.String(event.TenantID().String())
	kind := AttrEventType.String(event.EventType())

	switch e := event.(type) {
	case *relay.RelayCreatedEvent:
		channelAttr := AttrChannelCode.String(e.ChannelCode)
		bm.relayEventsTotal.Inc(ctx, tenant, kind, channelAttr)
		bm.relayAmountTotal.Add(ctx, minorUnits(e.TotalAmount), tenant, channelAttr, AttrCurrency.String(e.Currency))
	case *relay.RelayStatusEvent:
		bm.relayEventsTotal.Inc(ctx, tenant, kind, AttrChannelCode.String(e.ChannelCode))
	case *commission.CommissionEvent:
		currency := AttrCurrency.String(e.Currency)
		bm.commissionEventsTotal.Inc(ctx, tenant, kind)
		bm.commissionAmountTotal.Add(ctx, minorUnits(e.CommissionAmount), tenant, kind, currency)
	case *settlement.BatchEvent:
		settlementType := AttrSettlementType.String(e.SettlementType)
		bm.settlementEventsTotal.Inc(ctx, tenant, kind, settlementType)
		if e.EventType() == settlement.EventTypeSettlementBatchClosed {
			bm.settlementNetTotal.Add(ctx, minorUnits(e.NetAmount), tenant, settlementType, AttrCurrency.String(e.Currency))
		}
	default:
		bm.logger.Debug("business metrics ignored event", zap.String("event_type", event.EventType()))
	}
	return nil
}

// ObserveHandler records one event handler invocation
func (bm *BusinessMetrics) ObserveHandler(ctx context.Context, eventType, handler string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	bm.handlerDuration.RecordDuration(ctx, duration,
		AttrEventType.String(eventType),
		AttrHandler.String(handler),
		AttrOutcome.String(outcome),
	)
}

// minorUnits converts an amount to cents, rounding half away from zero
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// =============================================================================
// Periodic Collection
// =============================================================================

// StartPeriodicCollection starts periodic collection of backlog gauges.
// This is non-blocking - use Stop() to stop collection.
func (bm *BusinessMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	bm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = time.Minute
		}
		go bm.runPeriodicCollection(ctx, interval)
	})
}

func (bm *BusinessMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect immediately on start
	bm.CollectBacklog(ctx)

	for {
		select {
		case <-bm.stopChan:
			bm.logger.Info("Stopping periodic business metrics collection")
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			bm.CollectBacklog(ctx)
		}
	}
}

// CollectBacklog records the relay and commission backlog gauges
func (bm *BusinessMetrics) CollectBacklog(ctx context.Context) {
	if bm.backlogProvider == nil {
		return
	}

	relays, err := bm.backlogProvider.CountRelaysByStatus(ctx)
	if err != nil {
		bm.logger.Warn("Failed to count relays by status", zap.Error(err))
	} else {
		for status, n := range relays {
			bm.relayBacklog.Record(ctx, n, AttrStatus.String(strings.ToUpper(status)))
		}
	}

	commissions, err := bm.backlogProvider.CountCommissionsByStatus(ctx)
	if err != nil {
		bm.logger.Warn("Failed to count commissions by status", zap.Error(err))
	} else {
		for status, n := range commissions {
			bm.commissionBacklog.Record(ctx, n, AttrStatus.String(strings.ToUpper(status)))
		}
	}
}

// Stop stops the periodic collection.
func (bm *BusinessMetrics) Stop() {
	bm.stopOnce.Do(func() {
		close(bm.stopChan)
	})
}

// ErrMeterNil is returned by NewBusinessMetrics without a meter
var ErrMeterNil = errors.New("telemetry: business metrics require a meter")
