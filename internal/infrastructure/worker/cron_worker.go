package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one scheduled unit of work
type Job func(ctx context.Context) error

// CronWorker runs a job on a cron schedule. Overlapping runs are skipped.
type CronWorker struct {
	name     string
	schedule string
	timeout  time.Duration
	job      Job
	logger   *zap.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	ctx     context.Context
	running bool
	lastRun time.Time
	lastErr error
}

// NewCronWorker creates a worker; schedule accepts standard cron specs and descriptors like "@every 15m"
func NewCronWorker(name, schedule string, timeout time.Duration, job Job, logger *zap.Logger) *CronWorker {
	return &CronWorker{
		name:     name,
		schedule: schedule,
		timeout:  timeout,
		job:      job,
		logger:   logger,
	}
}

// Name returns the worker name
func (w *CronWorker) Name() string {
	return w.name
}

// Start registers the job and starts the scheduler
func (w *CronWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cron != nil {
		return fmt.Errorf("worker %s already started", w.name)
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(w.schedule, func() { w.RunOnce() }); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", w.schedule, err)
	}

	w.ctx = ctx
	w.cron = c
	c.Start()

	w.logger.Info("Scheduled worker started",
		zap.String("worker_name", w.name),
		zap.String("schedule", w.schedule))
	return nil
}

// Stop halts the scheduler and waits for a running job
func (w *CronWorker) Stop() error {
	w.mu.Lock()
	c := w.cron
	w.cron = nil
	w.mu.Unlock()

	if c == nil {
		return nil
	}
	<-c.Stop().Done()
	return nil
}

// RunOnce executes the job immediately
func (w *CronWorker) RunOnce() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	parent := w.ctx
	w.mu.Unlock()

	if parent == nil {
		parent = context.Background()
	}
	ctx := parent
	var cancel context.CancelFunc = func() {}
	if w.timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, w.timeout)
	}
	defer cancel()

	started := time.Now()
	err := w.job(ctx)
	if err != nil {
		w.logger.Error("Scheduled job failed",
			zap.String("worker_name", w.name),
			zap.Duration("duration", time.Since(started)),
			zap.Error(err))
	}

	w.mu.Lock()
	w.running = false
	w.lastRun = started
	w.lastErr = err
	w.mu.Unlock()
}

// LastRun returns the start time and result of the most recent run
func (w *CronWorker) LastRun() (time.Time, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastRun, w.lastErr
}
