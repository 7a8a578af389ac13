package main

import (
	"context"
	"fmt"
	"time"

	channelapp "github.com/marketrelay/backend/internal/application/channel"
	commissionapp "github.com/marketrelay/backend/internal/application/commission"
	relayapp "github.com/marketrelay/backend/internal/application/relay"
	settlementapp "github.com/marketrelay/backend/internal/application/settlement"
	"github.com/marketrelay/backend/internal/infrastructure/config"
	"github.com/marketrelay/backend/internal/infrastructure/event"
	"github.com/marketrelay/backend/internal/infrastructure/scheduler"
	"go.uber.org/zap"
)

type worker interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// workerGroup starts background workers and stops them in reverse order,
// so a trigger stops before the scheduler it feeds.
type workerGroup struct {
	log     *zap.Logger
	started []worker
}

func (g *workerGroup) start(ctx context.Context, name string, w worker) error {
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}
	g.started = append(g.started, w)
	g.log.Info("Worker started", zap.String("worker", name))
	return nil
}

func (g *workerGroup) stop(ctx context.Context) {
	for i := len(g.started) - 1; i >= 0; i-- {
		if err := g.started[i].Stop(ctx); err != nil {
			g.log.Error("Error stopping worker", zap.Error(err))
		}
	}
}

type services struct {
	outbox     *event.OutboxProcessor
	relay      *relayapp.Service
	commission *commissionapp.Service
	settlement *settlementapp.Service
	channel    *channelapp.Service
	location   *time.Location
}

// startWorkers launches the outbox redelivery loop and the jobs enabled in
// cfg: relay dispatch retries, the commission hold sweep, the settlement
// period close and channel polling.
func startWorkers(ctx context.Context, cfg *config.Config, svc services, log *zap.Logger) (*workerGroup, error) {
	g := &workerGroup{log: log}

	if err := g.start(ctx, "event-outbox", svc.outbox); err != nil {
		return g, err
	}

	if cfg.Relay.DispatchEnabled {
		// one supplier call per due relay, bounded by the batch size
		timeout := cfg.Relay.SupplierTimeout * time.Duration(max(cfg.Relay.DispatchBatchSize, 1))
		w := scheduler.NewIntervalWorker("relay-dispatch", cfg.Relay.DispatchInterval, timeout, func(ctx context.Context) error {
			_, err := svc.relay.DispatchDue(ctx)
			return err
		}, log)
		if err := g.start(ctx, "relay-dispatch", w); err != nil {
			return g, err
		}
	}

	if cfg.Commission.SweepEnabled {
		w := scheduler.NewIntervalWorker("commission-sweep", cfg.Commission.SweepInterval, cfg.Commission.SweepInterval, func(ctx context.Context) error {
			_, err := svc.commission.SweepHoldExpired(ctx)
			return err
		}, log)
		if err := g.start(ctx, "commission-sweep", w); err != nil {
			return g, err
		}
	}

	if cfg.Settlement.CloseEnabled {
		trigger, err := scheduler.NewPeriodCloseTrigger(cfg.Settlement.CloseCron, svc.location, svc.settlement, 0, log)
		if err != nil {
			return g, fmt.Errorf("settlement close schedule %q: %w", cfg.Settlement.CloseCron, err)
		}
		if err := g.start(ctx, "settlement-close", trigger); err != nil {
			return g, err
		}
	}

	if cfg.Channel.PollEnabled {
		polls, err := scheduler.NewPollScheduler(scheduler.PollSchedulerConfig{
			Workers:       cfg.Channel.PollWorkers,
			JobTimeout:    cfg.Channel.PollTimeout,
			RetryAttempts: cfg.Channel.PollRetries,
			RetryDelay:    cfg.Channel.PollRetryDelay,
			QueueSize:     scheduler.DefaultPollSchedulerConfig().QueueSize,
		}, svc.channel, log)
		if err != nil {
			return g, err
		}
		if err := g.start(ctx, "channel-poll-scheduler", polls); err != nil {
			return g, err
		}
		trigger := scheduler.NewPollTrigger(cfg.Channel.PollInterval, polls, svc.channel, log)
		if err := g.start(ctx, "channel-poll-trigger", trigger); err != nil {
			return g, err
		}
	}
	return g, nil
}
