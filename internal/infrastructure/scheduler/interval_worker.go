package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/marketrelay/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// IntervalWorker runs a task on a fixed interval. A run that overlaps the next
// tick delays it instead of running concurrently.
type IntervalWorker struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	task     func(ctx context.Context) error
	logger   *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewIntervalWorker creates a worker. timeout bounds one run; zero means the
// interval.
func NewIntervalWorker(name string, interval, timeout time.Duration, task func(ctx context.Context) error, logger *zap.Logger) *IntervalWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = interval
	}
	return &IntervalWorker{
		name:     name,
		interval: interval,
		timeout:  timeout,
		task:     task,
		logger:   logger.With(zap.String("worker", name)),
	}
}

// Name returns the worker name
func (w *IntervalWorker) Name() string {
	return w.name
}

// Start starts the loop
func (w *IntervalWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return nil
	}
	if w.interval <= 0 {
		w.mu.Unlock()
		return ErrInvalidConfig
	}
	w.isRunning = true
	w.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go w.runLoop(ctx)

	w.logger.Info("Interval worker started", zap.Duration("interval", w.interval))
	return nil
}

// Stop stops the loop and waits for the current run
func (w *IntervalWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Interval worker stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *IntervalWorker) runLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce runs the task once and logs a failure
func (w *IntervalWorker) RunOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	runCtx, span := telemetry.StartServiceSpan(runCtx, "scheduler", w.name,
		telemetry.WithAttribute(telemetry.SpanAttrWorker, w.name))
	defer span.End()

	telemetry.WithProfilingLabels(runCtx, telemetry.WorkerLabels(w.name, ""), func(c context.Context) {
		start := time.Now()
		if err := w.task(c); err != nil {
			telemetry.RecordError(span, err)
			w.logger.Error("Interval worker run failed",
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
			return
		}
		telemetry.SetOK(span)
	})
}
