// Package scheduler runs the background work of the relay: channel order
// polling on a bounded worker pool, fixed-interval loops for supplier dispatch
// and the commission hold sweep, and the cron-scheduled settlement period close.
package scheduler

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	channelapp "github.com/marketrelay/backend/internal/application/channel"
	"github.com/marketrelay/backend/internal/domain/channel"
	"github.com/marketrelay/backend/internal/domain/shared"
	"github.com/marketrelay/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// JobState tracks a poll job through the pool
type JobState string

const (
	JobQueued    JobState = "QUEUED"
	JobRunning   JobState = "RUNNING"
	JobSucceeded JobState = "SUCCEEDED"
	JobFailed    JobState = "FAILED"
)

const maxRetryDelay = 30 * time.Minute

// PollJob is one poll of an account including its retries
type PollJob struct {
	ID         uuid.UUID
	Account    *channel.Account
	State      JobState
	Retries    int
	MaxRetries int
	LastError  string
	StartedAt  time.Time
	FinishedAt time.Time
	RetryAt    time.Time
	Summary    *channelapp.PollSummary
}

func newPollJob(account *channel.Account, maxRetries int) *PollJob {
	return &PollJob{ID: uuid.New(), Account: account, State: JobQueued, MaxRetries: maxRetries}
}

func (j *PollJob) begin(now time.Time) {
	j.State = JobRunning
	j.StartedAt = now
	j.FinishedAt = time.Time{}
}

func (j *PollJob) end(summary *channelapp.PollSummary, err error, now time.Time) {
	j.FinishedAt = now
	if err != nil {
		j.State = JobFailed
		j.LastError = err.Error()
		return
	}
	j.State = JobSucceeded
	j.LastError = ""
	j.Summary = summary
}

func (j *PollJob) canRetry() bool {
	return j.State == JobFailed && j.Retries < j.MaxRetries
}

// requeue doubles base for every retry already made, capped at maxRetryDelay
func (j *PollJob) requeue(base time.Duration, now time.Time) time.Duration {
	delay := maxRetryDelay
	if j.Retries < 32 {
		if d := base << j.Retries; d > 0 && d < maxRetryDelay {
			delay = d
		}
	}
	j.Retries++
	j.State = JobQueued
	j.RetryAt = now.Add(delay)
	return delay
}

// AccountPoller pulls new orders for one account
type AccountPoller interface {
	PollAccount(ctx context.Context, account *channel.Account) (*channelapp.PollSummary, error)
}

// PollSchedulerConfig holds configuration for the poll worker pool
type PollSchedulerConfig struct {
	// Workers is the maximum number of accounts polled concurrently
	Workers int
	// JobTimeout bounds one account poll
	JobTimeout time.Duration
	// RetryAttempts is the number of retries for transport failures
	RetryAttempts int
	// RetryDelay is the base delay between retries (with exponential backoff)
	RetryDelay time.Duration
	QueueSize  int
}

// DefaultPollSchedulerConfig returns default configuration
func DefaultPollSchedulerConfig() PollSchedulerConfig {
	return PollSchedulerConfig{
		Workers:       4,
		JobTimeout:    2 * time.Minute,
		RetryAttempts: 3,
		RetryDelay:    30 * time.Second,
		QueueSize:     100,
	}
}

// Validate validates the configuration
func (c *PollSchedulerConfig) Validate() error {
	if c.Workers <= 0 || c.JobTimeout <= 0 || c.RetryAttempts < 0 || c.RetryDelay < 0 {
		return ErrInvalidConfig
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 100
	}
	return nil
}

// PollScheduler polls channel accounts on a bounded worker pool. At most one
// job per account is queued, running or waiting for retry at a time.
type PollScheduler struct {
	config PollSchedulerConfig
	poller AccountPoller
	logger *zap.Logger

	jobs chan *PollJob
	wg   sync.WaitGroup

	mu       sync.Mutex
	stop     context.CancelFunc // nil while stopped
	inFlight map[uuid.UUID]struct{}
	timers   map[uuid.UUID]*time.Timer

	historyMu sync.RWMutex
	history   []*PollJob
}

const historySize = 100

// NewPollScheduler validates config and returns a stopped scheduler
func NewPollScheduler(config PollSchedulerConfig, poller AccountPoller, logger *zap.Logger) (*PollScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PollScheduler{
		config:   config,
		poller:   poller,
		logger:   logger.Named("poll_scheduler"),
		inFlight: make(map[uuid.UUID]struct{}),
		timers:   make(map[uuid.UUID]*time.Timer),
	}, nil
}

// Start launches the workers. Calling it on a running scheduler is a no-op.
func (s *PollScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.stop = cancel
	s.jobs = make(chan *PollJob, s.config.QueueSize)

	s.wg.Add(s.config.Workers)
	for i := range s.config.Workers {
		go s.worker(runCtx, s.jobs, i)
	}
	s.logger.Info("Channel poll scheduler started",
		zap.Int("workers", s.config.Workers),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels running polls, drops pending retries and waits for the
// workers until ctx expires
func (s *PollScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stop == nil {
		s.mu.Unlock()
		return nil
	}
	s.stop()
	s.stop = nil
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	close(s.jobs)
	s.mu.Unlock()

	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		s.wg.Wait()
	}()
	select {
	case <-workersDone:
		s.logger.Info("Channel poll scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Channel poll scheduler did not stop in time")
		return ctx.Err()
	}
}

// ScheduleAccount queues a poll of account
func (s *PollScheduler) ScheduleAccount(account *channel.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop == nil {
		return ErrSchedulerNotRunning
	}
	if _, busy := s.inFlight[account.ID]; busy {
		return ErrPollInFlight
	}
	if err := s.enqueueLocked(newPollJob(account, s.config.RetryAttempts)); err != nil {
		return err
	}
	s.inFlight[account.ID] = struct{}{}
	return nil
}

// enqueueLocked never blocks; s.mu must be held
func (s *PollScheduler) enqueueLocked(job *PollJob) error {
	select {
	case s.jobs <- job:
		return nil
	default:
		return ErrJobQueueFull
	}
}

// InFlight reports whether the account has an unfinished job
func (s *PollScheduler) InFlight(accountID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[accountID]
	return ok
}

func (s *PollScheduler) worker(ctx context.Context, jobs <-chan *PollJob, id int) {
	defer s.wg.Done()
	for job := range jobs {
		if ctx.Err() != nil {
			s.release(job)
			continue
		}
		s.run(ctx, job, id)
	}
}

func (s *PollScheduler) run(ctx context.Context, job *PollJob, workerID int) {
	account := job.Account
	job.begin(time.Now())

	pollCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	pollCtx, span := telemetry.StartServiceSpan(pollCtx, "scheduler", "PollAccount",
		telemetry.WithAttribute(telemetry.SpanAttrAccountID, account.ID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrChannelCode, account.ChannelCode.String()),
		telemetry.WithAttribute(telemetry.SpanAttrWorker, workerID),
	)
	var (
		summary *channelapp.PollSummary
		err     error
	)
	telemetry.WithProfilingLabels(pollCtx, telemetry.WorkerLabels("channel_poll", account.ChannelCode.String()), func(c context.Context) {
		summary, err = s.poller.PollAccount(c, account)
	})
	telemetry.RecordError(span, err)
	if err == nil {
		telemetry.SetOK(span)
	}
	span.End()
	cancel()
	job.end(summary, err, time.Now())

	log := s.logger.With(
		zap.Int("worker_id", workerID),
		zap.String("tenant_id", account.TenantID.String()),
		zap.String("account_id", account.ID.String()),
		zap.String("channel_code", account.ChannelCode.String()),
		zap.Int("retries", job.Retries),
	)
	switch {
	case err == nil:
		log.Debug("Poll job completed", zap.Int("imported", summary.Imported))
		s.release(job)
	case retryable(err) && job.canRetry() && ctx.Err() == nil:
		delay := job.requeue(s.config.RetryDelay, time.Now())
		log.Warn("Poll job failed, retrying", zap.Duration("retry_in", delay), zap.Error(err))
		s.retryLater(job, delay)
	default:
		log.Error("Poll job failed", zap.Error(err))
		s.release(job)
	}
}

func (s *PollScheduler) retryLater(job *PollJob, delay time.Duration) {
	accountID := job.Account.ID
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop == nil {
		delete(s.inFlight, accountID)
		return
	}
	s.timers[accountID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.timers, accountID)
		if s.stop != nil {
			err := s.enqueueLocked(job)
			if err == nil {
				return
			}
			s.logger.Warn("Dropping poll retry", zap.String("account_id", accountID.String()), zap.Error(err))
		}
		delete(s.inFlight, accountID)
	})
}

// release frees the account for new polls and records the job
func (s *PollScheduler) release(job *PollJob) {
	s.mu.Lock()
	delete(s.inFlight, job.Account.ID)
	s.mu.Unlock()

	s.historyMu.Lock()
	s.history = append(s.history, job)
	if over := len(s.history) - historySize; over > 0 {
		s.history = slices.Delete(s.history, 0, over)
	}
	s.historyMu.Unlock()
}

// retryable reports whether another attempt can succeed without operator action
func retryable(err error) bool {
	if _, ok := shared.IsStateConflict(err); ok {
		return false
	}
	return channel.IsTransportError(err)
}

// GetJobHistory returns up to limit finished jobs, newest first. limit <= 0
// returns all retained jobs.
func (s *PollScheduler) GetJobHistory(limit int) []*PollJob {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	n := len(s.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*PollJob, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.history[i])
	}
	return out
}
