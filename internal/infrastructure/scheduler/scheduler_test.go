package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	channelapp "github.com/marketrelay/backend/internal/application/channel"
	settlementapp "github.com/marketrelay/backend/internal/application/settlement"
	"github.com/marketrelay/backend/internal/domain/channel"
	"github.com/marketrelay/backend/internal/domain/settlement"
	"github.com/marketrelay/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

func newTestAccount(t *testing.T) *channel.Account {
	t.Helper()
	a, err := channel.NewAccount(uuid.New(), uuid.New(), uuid.New(), channel.CodeMemory, "sandbox", map[string]string{"token": "x"})
	require.NoError(t, err)
	return a
}

type fakePoller struct {
	mu      sync.Mutex
	calls   map[uuid.UUID]int
	results []error
	block   chan struct{}
}

func (p *fakePoller) PollAccount(ctx context.Context, account *channel.Account) (*channelapp.PollSummary, error) {
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls == nil {
		p.calls = make(map[uuid.UUID]int)
	}
	n := p.calls[account.ID]
	p.calls[account.ID] = n + 1
	if n < len(p.results) && p.results[n] != nil {
		return nil, p.results[n]
	}
	return &channelapp.PollSummary{AccountID: account.ID, Imported: 1}, nil
}

func (p *fakePoller) count(id uuid.UUID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[id]
}

func testPollConfig() PollSchedulerConfig {
	return PollSchedulerConfig{
		Workers:       2,
		JobTimeout:    time.Second,
		RetryAttempts: 2,
		RetryDelay:    10 * time.Millisecond,
	}
}

func startScheduler(t *testing.T, poller AccountPoller) *PollScheduler {
	t.Helper()
	s, err := NewPollScheduler(testPollConfig(), poller, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s
}

// ---------------------------------------------------------------------------
// PollJob
// ---------------------------------------------------------------------------

func TestPollJob_RequeueBackoff(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	job := newPollJob(&channel.Account{}, 5)

	assert.Equal(t, time.Second, job.requeue(time.Second, now))
	assert.Equal(t, 2*time.Second, job.requeue(time.Second, now))
	assert.Equal(t, 4*time.Second, job.requeue(time.Second, now))
	assert.Equal(t, 3, job.Retries)
	assert.Equal(t, JobQueued, job.State)
	assert.Equal(t, now.Add(4*time.Second), job.RetryAt)

	assert.Equal(t, maxRetryDelay, newPollJob(&channel.Account{}, 1).requeue(time.Hour, now))

	long := newPollJob(&channel.Account{}, 100)
	long.Retries = 40
	assert.Equal(t, maxRetryDelay, long.requeue(time.Second, now))
}

func TestPollJob_Lifecycle(t *testing.T) {
	now := time.Now()
	job := newPollJob(&channel.Account{}, 3)

	job.begin(now)
	assert.Equal(t, JobRunning, job.State)
	assert.False(t, job.canRetry())

	job.end(nil, errors.New("timeout"), now)
	assert.Equal(t, JobFailed, job.State)
	assert.Equal(t, "timeout", job.LastError)
	assert.True(t, job.canRetry())

	job.Retries = 3
	assert.False(t, job.canRetry())

	job.end(&channelapp.PollSummary{Imported: 2}, nil, now)
	assert.Equal(t, JobSucceeded, job.State)
	assert.Empty(t, job.LastError)
	assert.False(t, job.canRetry())
}

func TestPollSchedulerConfig_Validate(t *testing.T) {
	cfg := DefaultPollSchedulerConfig()
	require.NoError(t, cfg.Validate())

	cfg.Workers = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	_, err := NewPollScheduler(cfg, &fakePoller{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// ---------------------------------------------------------------------------
// PollScheduler
// ---------------------------------------------------------------------------

func TestPollScheduler_PollsAccount(t *testing.T) {
	poller := &fakePoller{}
	s := startScheduler(t, poller)
	account := newTestAccount(t)

	require.NoError(t, s.ScheduleAccount(account))
	require.Eventually(t, func() bool { return !s.InFlight(account.ID) }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, poller.count(account.ID))
	history := s.GetJobHistory(10)
	require.Len(t, history, 1)
	assert.Equal(t, JobSucceeded, history[0].State)
	assert.Equal(t, 1, history[0].Summary.Imported)
}

func TestPollScheduler_RetriesTransportErrors(t *testing.T) {
	poller := &fakePoller{results: []error{
		fmt.Errorf("import: %w", channel.ErrChannelUnavailable),
		fmt.Errorf("import: %w", channel.ErrRateLimited),
	}}
	s := startScheduler(t, poller)
	account := newTestAccount(t)

	require.NoError(t, s.ScheduleAccount(account))
	require.Eventually(t, func() bool { return poller.count(account.ID) == 3 && !s.InFlight(account.ID) }, 2*time.Second, 5*time.Millisecond)

	history := s.GetJobHistory(1)
	require.Len(t, history, 1)
	assert.Equal(t, JobSucceeded, history[0].State)
	assert.Equal(t, 2, history[0].Retries)
}

func TestPollScheduler_DoesNotRetryPermanentErrors(t *testing.T) {
	poller := &fakePoller{results: []error{
		shared.NewStateConflictError("ChannelAccount", "poll", "DISABLED"),
	}}
	s := startScheduler(t, poller)
	account := newTestAccount(t)

	require.NoError(t, s.ScheduleAccount(account))
	require.Eventually(t, func() bool { return !s.InFlight(account.ID) }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, poller.count(account.ID))
	assert.Equal(t, JobFailed, s.GetJobHistory(1)[0].State)
}

func TestPollScheduler_GivesUpAfterRetryAttempts(t *testing.T) {
	unavailable := fmt.Errorf("import: %w", channel.ErrChannelUnavailable)
	poller := &fakePoller{results: []error{unavailable, unavailable, unavailable, unavailable}}
	s := startScheduler(t, poller)
	account := newTestAccount(t)

	require.NoError(t, s.ScheduleAccount(account))
	require.Eventually(t, func() bool { return poller.count(account.ID) == 3 && !s.InFlight(account.ID) }, 2*time.Second, 5*time.Millisecond)

	job := s.GetJobHistory(1)[0]
	assert.Equal(t, JobFailed, job.State)
	assert.Contains(t, job.LastError, "unavailable")
}

func TestPollScheduler_OneJobPerAccount(t *testing.T) {
	poller := &fakePoller{block: make(chan struct{})}
	s := startScheduler(t, poller)
	account := newTestAccount(t)

	require.NoError(t, s.ScheduleAccount(account))
	assert.ErrorIs(t, s.ScheduleAccount(account), ErrPollInFlight)
	close(poller.block)

	require.Eventually(t, func() bool { return !s.InFlight(account.ID) }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.ScheduleAccount(account))
}

func TestPollScheduler_NotRunning(t *testing.T) {
	s, err := NewPollScheduler(testPollConfig(), &fakePoller{}, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, s.ScheduleAccount(newTestAccount(t)), ErrSchedulerNotRunning)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
	assert.ErrorIs(t, s.ScheduleAccount(newTestAccount(t)), ErrSchedulerNotRunning)
}

// ---------------------------------------------------------------------------
// PollTrigger
// ---------------------------------------------------------------------------

type staticAccounts struct {
	accounts []channel.Account
	err      error
}

func (a staticAccounts) EnabledAccounts(context.Context) ([]channel.Account, error) {
	return a.accounts, a.err
}

func TestPollTrigger_ScheduleAll(t *testing.T) {
	poller := &fakePoller{block: make(chan struct{})}
	s := startScheduler(t, poller)
	a1, a2 := newTestAccount(t), newTestAccount(t)
	trigger := NewPollTrigger(time.Hour, s, staticAccounts{accounts: []channel.Account{*a1, *a2}}, nil)

	assert.Equal(t, 2, trigger.ScheduleAll(context.Background()))
	// both still blocked in flight
	assert.Equal(t, 0, trigger.ScheduleAll(context.Background()))

	close(poller.block)
	require.Eventually(t, func() bool { return poller.count(a1.ID) == 1 && poller.count(a2.ID) == 1 }, time.Second, 5*time.Millisecond)
}

func TestPollTrigger_ListFailure(t *testing.T) {
	s := startScheduler(t, &fakePoller{})
	trigger := NewPollTrigger(time.Hour, s, staticAccounts{err: errors.New("db down")}, nil)
	assert.Equal(t, 0, trigger.ScheduleAll(context.Background()))
}

// ---------------------------------------------------------------------------
// IntervalWorker
// ---------------------------------------------------------------------------

func TestIntervalWorker_RunsUntilStopped(t *testing.T) {
	var runs atomic.Int32
	w := NewIntervalWorker("dispatch", 5*time.Millisecond, 0, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, nil)

	require.NoError(t, w.Start(context.Background()))
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	require.NoError(t, w.Stop(context.Background()))

	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
	assert.Equal(t, "dispatch", w.Name())
}

func TestIntervalWorker_RunOnceAppliesTimeout(t *testing.T) {
	var deadline bool
	w := NewIntervalWorker("sweep", time.Hour, 10*time.Millisecond, func(ctx context.Context) error {
		_, deadline = ctx.Deadline()
		<-ctx.Done()
		return ctx.Err()
	}, nil)

	w.RunOnce(context.Background())
	assert.True(t, deadline)
}

func TestIntervalWorker_RejectsZeroInterval(t *testing.T) {
	w := NewIntervalWorker("x", 0, 0, func(context.Context) error { return nil }, nil)
	assert.ErrorIs(t, w.Start(context.Background()), ErrInvalidConfig)
}

// ---------------------------------------------------------------------------
// PeriodCloseTrigger
// ---------------------------------------------------------------------------

type fakeCloser struct {
	calls atomic.Int32
	err   error
}

func (c *fakeCloser) ClosePreviousPeriod(context.Context) (settlementapp.PeriodCloseSummary, error) {
	c.calls.Add(1)
	return settlementapp.PeriodCloseSummary{
		Period: settlement.Period{Start: time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC), End: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)},
		Payees: 2,
		Closed: 2,
	}, c.err
}

func TestPeriodCloseTrigger_InvalidSpec(t *testing.T) {
	_, err := NewPeriodCloseTrigger("not a cron", time.UTC, &fakeCloser{}, 0, nil)
	assert.Error(t, err)
}

func TestPeriodCloseTrigger_NextRunInLocation(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)
	trigger, err := NewPeriodCloseTrigger("0 3 * * 1", loc, &fakeCloser{}, 0, nil)
	require.NoError(t, err)

	// Sunday 2026-03-01 12:00 UTC is 20:00 CST; next Monday 03:00 CST
	next := trigger.Next(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 3, 2, 3, 0, 0, 0, loc).Unix(), next.Unix())
}

func TestPeriodCloseTrigger_RunNow(t *testing.T) {
	closer := &fakeCloser{}
	trigger, err := NewPeriodCloseTrigger("@every 1h", time.UTC, closer, time.Second, nil)
	require.NoError(t, err)

	summary, err := trigger.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Closed)

	closer.err = errors.New("partial")
	_, err = trigger.RunNow(context.Background())
	assert.EqualError(t, err, "partial")
	assert.Equal(t, int32(2), closer.calls.Load())
}

func TestPeriodCloseTrigger_StartStop(t *testing.T) {
	trigger, err := NewPeriodCloseTrigger("0 3 * * 1", time.UTC, &fakeCloser{}, 0, nil)
	require.NoError(t, err)

	require.NoError(t, trigger.Start(context.Background()))
	require.NoError(t, trigger.Start(context.Background()))
	require.NoError(t, trigger.Stop(context.Background()))
	require.NoError(t, trigger.Stop(context.Background()))
}
