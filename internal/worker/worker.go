// Package worker runs the scheduled reconciliation sweep with instrumentation
// hooks and graceful shutdown handling.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/PortNumber53/edenthought/backend/internal/subscriptions"
)

// ErrAlreadyRunning is returned by RunOnce while another sweep is in flight.
var ErrAlreadyRunning = errors.New("sweep already running")

// Sweeper reconciles local subscriptions with the billing gateway.
type Sweeper interface {
	Sweep(ctx context.Context) (subscriptions.SweepResult, error)
}

// Instrumentation provides hooks for monitoring sweep runs
type Instrumentation struct {
	OnStart    func()
	OnComplete func(result subscriptions.SweepResult)
	OnFail     func(err error, duration time.Duration)
	OnSkip     func()
}

// Stats holds worker statistics
type Stats struct {
	RunsStarted          int64
	RunsSucceeded        int64
	RunsFailed           int64
	RunsSkipped          int64
	SubscriptionsChecked int64
	PlanChanges          int64
	Deactivated          int64
	SubscriptionFailures int64
	Running              bool
	LastRunAt            time.Time
	LastDuration         time.Duration
}

// Config holds worker configuration
type Config struct {
	// Schedule is a standard five-field cron spec or a descriptor such as "@every 15m".
	Schedule string
	// RunTimeout bounds a single sweep
	RunTimeout time.Duration
	// ShutdownTimeout is the maximum time to wait for a running sweep during shutdown
	ShutdownTimeout time.Duration
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Schedule:        "@every 1h",
		RunTimeout:      10 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Worker triggers Sweeper on a cron schedule. At most one sweep runs at a time.
type Worker struct {
	config          Config
	sweeper         Sweeper
	instrumentation *Instrumentation
	cron            *cron.Cron

	workerID string
	mu       sync.RWMutex
	started  bool
	stopped  bool
	running  atomic.Bool

	runCtx    context.Context
	cancelRun context.CancelFunc

	// stats tracking
	statsMu sync.RWMutex
	stats   Stats
}

// New creates a new Worker. The schedule is validated here so a bad spec
// fails at startup rather than silently never running.
func New(config Config, sweeper Sweeper) (*Worker, error) {
	if config.Schedule == "" {
		config.Schedule = DefaultConfig().Schedule
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = DefaultConfig().RunTimeout
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}
	if _, err := cron.ParseStandard(config.Schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", config.Schedule, err)
	}

	cronLogger := cron.PrintfLogger(log.Default())
	return &Worker{
		config:          config,
		sweeper:         sweeper,
		instrumentation: &Instrumentation{},
		cron:            cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		workerID:        generateWorkerID(),
	}, nil
}

// SetInstrumentation sets the instrumentation hooks
func (w *Worker) SetInstrumentation(inst *Instrumentation) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.instrumentation = inst
}

func (w *Worker) hooks() *Instrumentation {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.instrumentation
}

// Start schedules the sweep. Calling it more than once has no effect.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started || w.stopped {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.runCtx, w.cancelRun = context.WithCancel(ctx)
	runCtx := w.runCtx
	w.mu.Unlock()

	if _, err := w.cron.AddFunc(w.config.Schedule, func() { w.scheduled(runCtx) }); err != nil {
		log.Printf("[worker] Failed to schedule sweep: %v", err)
		return
	}
	w.cron.Start()
	log.Printf("[worker] Started with ID: %s, schedule: %s", w.workerID, w.config.Schedule)
}

func (w *Worker) scheduled(ctx context.Context) {
	if _, err := w.RunOnce(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
		log.Printf("[worker] Sweep failed: %v", err)
	}
}

// Stop gracefully shuts down the worker, waiting for a running sweep up to
// ShutdownTimeout before cancelling it.
func (w *Worker) Stop(ctx context.Context) error {
	log.Printf("[worker] Initiating graceful shutdown...")

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	started, cancelRun := w.started, w.cancelRun
	w.mu.Unlock()

	if !started {
		return nil
	}
	defer cancelRun()

	shutdownCtx, cancel := context.WithTimeout(ctx, w.config.ShutdownTimeout)
	defer cancel()

	done := w.cron.Stop()
	select {
	case <-done.Done():
		log.Printf("[worker] Graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		log.Printf("[worker] Shutdown timeout exceeded, cancelling running sweep")
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

// RunOnce runs a sweep immediately. It returns ErrAlreadyRunning instead of
// overlapping a sweep that is still in flight.
func (w *Worker) RunOnce(ctx context.Context) (subscriptions.SweepResult, error) {
	inst := w.hooks()

	if !w.running.CompareAndSwap(false, true) {
		w.statsMu.Lock()
		w.stats.RunsSkipped++
		w.statsMu.Unlock()
		if inst.OnSkip != nil {
			inst.OnSkip()
		}
		return subscriptions.SweepResult{}, ErrAlreadyRunning
	}
	defer w.running.Store(false)

	runCtx, cancel := context.WithTimeout(ctx, w.config.RunTimeout)
	defer cancel()

	w.statsMu.Lock()
	w.stats.RunsStarted++
	w.statsMu.Unlock()
	if inst.OnStart != nil {
		inst.OnStart()
	}

	start := time.Now()
	result, err := w.sweeper.Sweep(runCtx)
	duration := time.Since(start)

	w.statsMu.Lock()
	w.stats.LastRunAt = start
	w.stats.LastDuration = duration
	w.stats.SubscriptionsChecked += int64(result.Checked)
	w.stats.PlanChanges += int64(result.PlanChanged)
	w.stats.Deactivated += int64(result.Deactivated)
	w.stats.SubscriptionFailures += int64(result.Failed)
	if err != nil {
		w.stats.RunsFailed++
	} else {
		w.stats.RunsSucceeded++
	}
	w.statsMu.Unlock()

	if err != nil {
		log.Printf("[worker] Sweep failed after %v: %v", duration, err)
		if inst.OnFail != nil {
			inst.OnFail(err, duration)
		}
		return result, err
	}

	if inst.OnComplete != nil {
		inst.OnComplete(result)
	}
	return result, nil
}

// GetStats returns current worker statistics
func (w *Worker) GetStats() Stats {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()

	stats := w.stats
	stats.Running = w.running.Load()
	return stats
}

func generateWorkerID() string {
	return fmt.Sprintf("sweeper-%d-%d", time.Now().UnixNano(), rand.Intn(10000))
}
