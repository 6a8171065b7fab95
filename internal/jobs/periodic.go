package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/kalambet/slotwise/internal/metrics"
)

// Task is one unit of periodic work.
type Task func(ctx context.Context) error

// Periodic runs a Task on a fixed interval. Every run is isolated: an error or
// panic is logged and counted, and the loop keeps ticking.
type Periodic struct {
	name       string
	interval   time.Duration
	runOnStart bool
	timeout    time.Duration
	task       Task
	logger     *slog.Logger
}

// PeriodicConfig configures a Periodic service.
type PeriodicConfig struct {
	Interval time.Duration
	// RunOnStart runs the task once before the first tick.
	RunOnStart bool
	// Timeout bounds a single run. Zero means no bound beyond the service context.
	Timeout time.Duration
}

func NewPeriodic(name string, cfg PeriodicConfig, task Task, logger *slog.Logger) *Periodic {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &Periodic{
		name:       name,
		interval:   cfg.Interval,
		runOnStart: cfg.RunOnStart,
		timeout:    cfg.Timeout,
		task:       task,
		logger:     logger.With("job", name),
	}
}

// Serve implements suture.Service.
func (p *Periodic) Serve(ctx context.Context) error {
	p.logger.Info("job starting", "interval", p.interval)

	if p.runOnStart {
		p.RunOnce(ctx)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("job stopping")
			return ctx.Err()
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce executes the task inside the failure boundary and reports its error.
func (p *Periodic) RunOnce(ctx context.Context) (err error) {
	runCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", p.name, r)
			metrics.JobRuns.WithLabelValues(p.name, "panic").Inc()
			p.logger.Error("job panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	start := time.Now()
	if err = p.task(runCtx); err != nil {
		metrics.JobRuns.WithLabelValues(p.name, "error").Inc()
		p.logger.Error("job run failed", "error", err, "duration", time.Since(start))
		return err
	}
	metrics.JobRuns.WithLabelValues(p.name, "ok").Inc()
	p.logger.Debug("job run finished", "duration", time.Since(start))
	return nil
}

func (p *Periodic) String() string {
	return p.name
}
