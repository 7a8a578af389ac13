package scheduler

import (
	"context"
	"sync"
	"time"

	settlementapp "github.com/marketrelay/backend/internal/application/settlement"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// PeriodCloser closes the settlement period that just ended
type PeriodCloser interface {
	ClosePreviousPeriod(ctx context.Context) (settlementapp.PeriodCloseSummary, error)
}

// PeriodCloseTrigger runs the settlement period close on a cron schedule
type PeriodCloseTrigger struct {
	spec    string
	loc     *time.Location
	closer  PeriodCloser
	timeout time.Duration
	logger  *zap.Logger

	cron      *cron.Cron
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
	running   sync.Mutex
	isRunning bool
}

// NewPeriodCloseTrigger validates the standard five-field cron spec and builds
// the trigger. Schedules are evaluated in loc.
func NewPeriodCloseTrigger(spec string, loc *time.Location, closer PeriodCloser, timeout time.Duration, logger *zap.Logger) (*PeriodCloseTrigger, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &PeriodCloseTrigger{
		spec:    spec,
		loc:     loc,
		closer:  closer,
		timeout: timeout,
		logger:  logger,
		cron:    cron.New(cron.WithLocation(loc)),
	}, nil
}

// Start registers the job and starts the cron runner
func (c *PeriodCloseTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isRunning {
		return nil
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	if _, err := c.cron.AddFunc(c.spec, func() { c.RunNow(c.ctx) }); err != nil {
		c.cancel()
		return err
	}
	c.cron.Start()
	c.isRunning = true

	c.logger.Info("Settlement period close scheduled", zap.String("cron", c.spec))
	return nil
}

// Stop stops the cron runner and waits for a running close
func (c *PeriodCloseTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.mu.Unlock()

	c.cancel()
	stopped := c.cron.Stop()

	select {
	case <-stopped.Done():
		c.logger.Info("Settlement period close trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow closes the previous period immediately. Runs never overlap.
func (c *PeriodCloseTrigger) RunNow(ctx context.Context) (settlementapp.PeriodCloseSummary, error) {
	c.running.Lock()
	defer c.running.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	summary, err := c.closer.ClosePreviousPeriod(runCtx)
	if err != nil {
		c.logger.Error("Settlement period close failed", zap.Error(err))
		return summary, err
	}
	c.logger.Info("Settlement period closed",
		zap.Time("period_start", summary.Period.Start),
		zap.Time("period_end", summary.Period.End),
		zap.Int("payees", summary.Payees),
		zap.Int("opened", summary.Opened),
		zap.Int("closed", summary.Closed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

// Next returns the next scheduled run after t
func (c *PeriodCloseTrigger) Next(t time.Time) time.Time {
	schedule, err := cron.ParseStandard(c.spec)
	if err != nil {
		return time.Time{}
	}
	return schedule.Next(t.In(c.loc))
}
