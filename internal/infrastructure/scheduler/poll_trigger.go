package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/marketrelay/backend/internal/domain/channel"
	"go.uber.org/zap"
)

// AccountLister lists the accounts due for polling
type AccountLister interface {
	EnabledAccounts(ctx context.Context) ([]channel.Account, error)
}

// PollTrigger submits one poll job per enabled account every interval
type PollTrigger struct {
	interval  time.Duration
	scheduler *PollScheduler
	accounts  AccountLister
	logger    *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewPollTrigger creates a new poll trigger
func NewPollTrigger(interval time.Duration, scheduler *PollScheduler, accounts AccountLister, logger *zap.Logger) *PollTrigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PollTrigger{
		interval:  interval,
		scheduler: scheduler,
		accounts:  accounts,
		logger:    logger,
	}
}

// Start starts the trigger loop
func (c *PollTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = true
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.runLoop(ctx)

	c.logger.Info("Channel poll trigger started", zap.Duration("interval", c.interval))
	return nil
}

// Stop stops the trigger loop
func (c *PollTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Channel poll trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *PollTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Run immediately on start
	c.ScheduleAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.ScheduleAll(ctx)
		}
	}
}

// ScheduleAll submits a poll for every enabled account and returns how many
// were queued. Accounts still being polled are skipped.
func (c *PollTrigger) ScheduleAll(ctx context.Context) int {
	accounts, err := c.accounts.EnabledAccounts(ctx)
	if err != nil {
		c.logger.Error("Failed to list enabled channel accounts", zap.Error(err))
		return 0
	}

	queued := 0
	for i := range accounts {
		account := accounts[i]
		err := c.scheduler.ScheduleAccount(&account)
		switch {
		case err == nil:
			queued++
		case errors.Is(err, ErrPollInFlight):
			c.logger.Debug("Skipping account with poll in flight",
				zap.String("account_id", account.ID.String()),
			)
		default:
			c.logger.Warn("Failed to schedule channel poll",
				zap.String("account_id", account.ID.String()),
				zap.Error(err),
			)
		}
	}
	return queued
}
