package event

import (
	"context"
	"sync/atomic"

	"github.com/marketrelay/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// DedupStats counts the outcomes of deduplicated deliveries
type DedupStats struct {
	Handled    int64 `json:"handled"`
	Duplicates int64 `json:"duplicates"`
	Failed     int64 `json:"failed"`
}

// Deduper makes handlers process each event at most once. Keys are
// "<handler>:<event id>", so handlers sharing a store never suppress
// each other.
type Deduper struct {
	store  shared.IdempotencyStore
	cfg    shared.IdempotencyConfig
	logger *zap.Logger

	handled, duplicates, failed atomic.Int64
}

func NewDeduper(store shared.IdempotencyStore, cfg shared.IdempotencyConfig, logger *zap.Logger) *Deduper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduper{store: store, cfg: cfg, logger: logger.Named("dedup")}
}

// Wrap returns h guarded by the deduper. The wrapper keeps h's name.
func (d *Deduper) Wrap(h shared.EventHandler) shared.EventHandler {
	return &dedupHandler{next: h, name: HandlerName(h), d: d}
}

// Stats returns the counts across every wrapped handler
func (d *Deduper) Stats() DedupStats {
	return DedupStats{
		Handled:    d.handled.Load(),
		Duplicates: d.duplicates.Load(),
		Failed:     d.failed.Load(),
	}
}

type dedupHandler struct {
	next shared.EventHandler
	name string
	d    *Deduper
}

func (h *dedupHandler) HandlerName() string  { return h.name }
func (h *dedupHandler) EventTypes() []string { return h.next.EventTypes() }

// Handle claims the key before running the handler. When the store is down
// the event is processed anyway and the domain's uniqueness rules decide.
func (h *dedupHandler) Handle(ctx context.Context, e shared.DomainEvent) error {
	d := h.d
	if !d.cfg.Enabled {
		return h.next.Handle(ctx, e)
	}

	key := h.name + ":" + e.EventID().String()
	log := d.logger.With(zap.String("key", key), zap.String("event_type", e.EventType()))

	claimed, err := d.store.MarkProcessed(ctx, key, d.cfg.TTL)
	switch {
	case err != nil:
		log.Warn("Idempotency store unavailable, handling without a claim", zap.Error(err))
	case !claimed:
		d.duplicates.Add(1)
		log.Debug("Duplicate delivery skipped")
		return nil
	}

	if err := h.next.Handle(ctx, e); err != nil {
		d.failed.Add(1)
		// release so a redelivery can retry
		if claimed && d.cfg.ReleaseOnFailure {
			if rerr := d.store.Release(ctx, key); rerr != nil {
				log.Warn("Idempotency key not released", zap.Error(rerr))
			}
		}
		return err
	}
	d.handled.Add(1)
	return nil
}
