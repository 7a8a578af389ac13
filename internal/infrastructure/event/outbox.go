package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// OutboxConfig tunes outbox delivery
type OutboxConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// RetryBackoff is the delay before the first redelivery; it doubles per attempt
	RetryBackoff time.Duration
	// ClaimLease is how long a PROCESSING entry is left to its deliverer
	// before another one may take it over
	ClaimLease time.Duration
	// Retention keeps SENT entries around for inspection; zero keeps them forever
	Retention time.Duration
}

// DefaultOutboxConfig returns the default outbox settings
func DefaultOutboxConfig() OutboxConfig {
	return OutboxConfig{
		BatchSize:    100,
		PollInterval: 5 * time.Second,
		RetryBackoff: 10 * time.Second,
		ClaimLease:   5 * time.Minute,
		Retention:    7 * 24 * time.Hour,
	}
}

// OutboxProcessor delivers outbox entries to the event bus until every
// handler accepts them. Publish delivers freshly committed events at once;
// the background loop picks up whatever was left behind by a crash or a
// failing handler. Handlers should be wrapped by a Deduper so a redelivery
// only reruns the ones that failed.
type OutboxProcessor struct {
	repo   shared.OutboxRepository
	bus    shared.EventPublisher
	codec  *Codec
	cfg    OutboxConfig
	logger *zap.Logger
	now    func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOutboxProcessor creates a new OutboxProcessor
func NewOutboxProcessor(repo shared.OutboxRepository, bus shared.EventPublisher, codec *Codec, cfg OutboxConfig, logger *zap.Logger) *OutboxProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultOutboxConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = def.RetryBackoff
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = def.ClaimLease
	}
	return &OutboxProcessor{
		repo:   repo,
		bus:    bus,
		codec:  codec,
		cfg:    cfg,
		logger: logger.Named("outbox"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source
func (p *OutboxProcessor) SetClock(now func() time.Time) {
	p.now = now
}

// Publish delivers events that were committed to the outbox. Events without
// an outbox entry go straight to the bus. An event another deliverer already
// holds is skipped.
func (p *OutboxProcessor) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(events))
	for i, e := range events {
		ids[i] = e.EventID()
	}
	entries, err := p.repo.FindByEventIDs(ctx, ids)
	if err != nil {
		// still committed; the loop delivers them later
		return fmt.Errorf("load outbox entries: %w", err)
	}
	byEvent := make(map[uuid.UUID]*shared.OutboxEntry, len(entries))
	for _, entry := range entries {
		byEvent[entry.EventID] = entry
	}

	var errs []error
	for _, e := range events {
		entry, ok := byEvent[e.EventID()]
		if !ok {
			errs = append(errs, p.bus.Publish(ctx, e))
			continue
		}
		errs = append(errs, p.deliver(ctx, entry, e))
	}
	return errors.Join(errs...)
}

// ProcessDue delivers a batch of due entries and reports how many were sent
func (p *OutboxProcessor) ProcessDue(ctx context.Context) (int, error) {
	now := p.now()
	entries, err := p.repo.FindDue(ctx, now, now.Add(-p.cfg.ClaimLease), p.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("find due outbox entries: %w", err)
	}
	sent := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		e, err := p.codec.Decode(entry.Payload)
		if err != nil {
			p.fail(ctx, entry, err)
			continue
		}
		if p.deliver(ctx, entry, e) == nil && entry.Status == shared.OutboxStatusSent {
			sent++
		}
	}
	return sent, nil
}

// Cleanup removes SENT entries older than the retention
func (p *OutboxProcessor) Cleanup(ctx context.Context) (int64, error) {
	if p.cfg.Retention <= 0 {
		return 0, nil
	}
	return p.repo.DeleteSentBefore(ctx, p.now().Add(-p.cfg.Retention))
}

// deliver claims entry and publishes e. A lost claim is not an error.
func (p *OutboxProcessor) deliver(ctx context.Context, entry *shared.OutboxEntry, e shared.DomainEvent) error {
	now := p.now()
	claimed, err := p.repo.Claim(ctx, entry.ID, now, now.Add(-p.cfg.ClaimLease))
	if err != nil {
		return fmt.Errorf("claim outbox entry %s: %w", entry.ID, err)
	}
	if !claimed {
		return nil
	}

	if err := p.bus.Publish(ctx, e); err != nil {
		p.fail(ctx, entry, err)
		return err
	}
	entry.MarkSent(p.now())
	if err := p.repo.Update(ctx, entry); err != nil {
		// the claim lapses and the entry is delivered again
		p.logger.Error("Outbox entry not marked sent",
			zap.String("event_id", entry.EventID.String()),
			zap.Error(err),
		)
	}
	return nil
}

func (p *OutboxProcessor) fail(ctx context.Context, entry *shared.OutboxEntry, cause error) {
	entry.MarkFailed(cause.Error(), p.now(), p.cfg.RetryBackoff)
	fields := []zap.Field{
		zap.String("event_id", entry.EventID.String()),
		zap.String("event_type", entry.EventType),
		zap.String("aggregate_id", entry.AggregateID.String()),
		zap.Int("attempts", entry.Attempts),
		zap.Error(cause),
	}
	if entry.IsDead() {
		p.logger.Error("Outbox entry dead-lettered", fields...)
	} else {
		p.logger.Warn("Outbox delivery failed, will retry", append(fields, zap.Timep("next_attempt_at", entry.NextAttemptAt))...)
	}
	if err := p.repo.Update(ctx, entry); err != nil {
		p.logger.Error("Outbox entry not updated", zap.String("event_id", entry.EventID.String()), zap.Error(err))
	}
}

// Start runs the redelivery and cleanup loop
func (p *OutboxProcessor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.cfg.PollInterval)
		defer ticker.Stop()
		lastCleanup := p.now()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := p.ProcessDue(ctx); err != nil && ctx.Err() == nil {
					p.logger.Error("Outbox pass failed", zap.Error(err))
				}
				if p.now().Sub(lastCleanup) >= time.Hour {
					lastCleanup = p.now()
					if n, err := p.Cleanup(ctx); err != nil {
						p.logger.Error("Outbox cleanup failed", zap.Error(err))
					} else if n > 0 {
						p.logger.Info("Outbox cleaned up", zap.Int64("deleted", n))
					}
				}
			}
		}
	}()

	p.logger.Info("Outbox processor started",
		zap.Int("batch_size", p.cfg.BatchSize),
		zap.Duration("poll_interval", p.cfg.PollInterval),
	)
	return nil
}

// Stop waits for the loop to exit
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.logger.Info("Outbox processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ shared.EventPublisher = (*OutboxProcessor)(nil)
