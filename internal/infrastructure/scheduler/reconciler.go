package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/erp/stockledger/internal/application/ledger"
	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// reconcilerActor is recorded as the actor of every nightly run
const reconcilerActor = "reconciler"

// InvariantRunner checks every owned stock row against its batches
type InvariantRunner interface {
	CheckAll(ctx context.Context) (int, []ledger.InvariantReport, error)
}

// RunSummary describes one reconciliation run
type RunSummary struct {
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Checked    int           `json:"checked"`
	Violations int           `json:"violations"`
	Error      string        `json:"error,omitempty"`
}

// Reconciler runs the stock invariant check once a day at the configured hour
type Reconciler struct {
	runner InvariantRunner
	config config.ReconcileConfig
	logger *zap.Logger
	now    func() time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	lastRun   *RunSummary
	nextRunAt *time.Time
}

// NewReconciler creates a new Reconciler
func NewReconciler(runner InvariantRunner, cfg config.ReconcileConfig, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 15 * time.Minute
	}
	return &Reconciler{
		runner: runner,
		config: cfg,
		logger: log.Named("reconciler"),
		now:    time.Now,
	}
}

// SetClock replaces the clock used to decide when a run is due
func (r *Reconciler) SetClock(now func() time.Time) {
	r.now = now
}

// Start starts the check loop. It is a no-op when reconciliation is disabled
// or the loop is already running.
func (r *Reconciler) Start(ctx context.Context) error {
	if !r.config.Enabled {
		r.logger.Info("Stock reconciliation disabled")
		return nil
	}

	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = true
	r.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.calculateNextRunTime(r.now())

	r.wg.Add(1)
	go r.loop(ctx)

	r.logger.Info("Stock reconciliation started",
		zap.Int("hour", r.config.Hour),
		zap.Duration("check_interval", r.config.CheckInterval),
		zap.Timep("next_run_at", r.NextRunAt()),
	)
	return nil
}

// Stop cancels the loop and waits for an in-flight run to finish, or for ctx
// to expire
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("Stock reconciliation stopped")
		return nil
	case <-ctx.Done():
		r.logger.Warn("Stock reconciliation stop timed out")
		return ctx.Err()
	}
}

func (r *Reconciler) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := r.now()
			if r.due(now) {
				r.RunOnce(ctx)
				r.calculateNextRunTime(now)
			}
		}
	}
}

// due reports whether now falls in the run hour of a day that has not been
// reconciled yet
func (r *Reconciler) due(now time.Time) bool {
	if now.Hour() != r.config.Hour {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastRun == nil {
		return true
	}
	return !sameDay(r.lastRun.StartedAt, now)
}

func (r *Reconciler) calculateNextRunTime(now time.Time) {
	next := time.Date(now.Year(), now.Month(), now.Day(), r.config.Hour, 0, 0, 0, now.Location())
	if !now.Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	r.mu.Lock()
	r.nextRunAt = &next
	r.mu.Unlock()
}

// RunOnce runs a single reconciliation bounded by the configured timeout and
// records its outcome
func (r *Reconciler) RunOnce(ctx context.Context) RunSummary {
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}
	ctx = logger.WithContext(ctx, r.logger)
	ctx = logger.WithActor(ctx, reconcilerActor)
	log := logger.Traced(ctx, r.logger)

	summary := RunSummary{StartedAt: r.now()}
	// mark the day before running so a slow run is not started twice
	r.mu.Lock()
	r.lastRun = &summary
	r.mu.Unlock()

	log.Info("Starting stock reconciliation")
	checked, violations, err := r.runner.CheckAll(ctx)
	summary.Duration = r.now().Sub(summary.StartedAt)
	summary.Checked = checked
	summary.Violations = len(violations)

	if err != nil {
		summary.Error = err.Error()
		log.Error("Stock reconciliation failed", zap.Error(err), zap.Duration("duration", summary.Duration))
	} else if len(violations) > 0 {
		log.Warn("Stock reconciliation found violations",
			zap.Int("checked", checked),
			zap.Int("violations", len(violations)),
			zap.Duration("duration", summary.Duration),
		)
	} else {
		log.Info("Stock reconciliation finished",
			zap.Int("checked", checked),
			zap.Duration("duration", summary.Duration),
		)
	}

	r.mu.Lock()
	r.lastRun = &summary
	r.mu.Unlock()
	return summary
}

// TriggerManualRun starts a run outside the schedule. The run is detached
// from ctx so it outlives the request that asked for it.
func (r *Reconciler) TriggerManualRun(ctx context.Context) error {
	r.mu.Lock()
	running := r.isRunning
	r.mu.Unlock()
	if !running {
		return ErrSchedulerNotRunning
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.RunOnce(context.WithoutCancel(ctx))
	}()
	return nil
}

// LastRun returns the outcome of the most recent run, if any
func (r *Reconciler) LastRun() *RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastRun == nil {
		return nil
	}
	out := *r.lastRun
	return &out
}

// NextRunAt returns when the next scheduled run will occur
func (r *Reconciler) NextRunAt() *time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextRunAt
}

// IsRunning reports whether the check loop is active
func (r *Reconciler) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isRunning
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}
