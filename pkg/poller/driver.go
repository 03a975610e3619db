// Package poller runs the sync directions one after the other on a fixed
// interval.
package poller

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/harrisonrobin/tasklink/pkg/model"
	"github.com/harrisonrobin/tasklink/pkg/reconcile"
	"github.com/harrisonrobin/tasklink/pkg/syncerr"
)

// Runner is one sync direction.
type Runner interface {
	Origin() model.Side
	Sync(ctx context.Context) (reconcile.Report, error)
}

// Hooks run around every cycle. Either may be nil.
type Hooks struct {
	BeforeCycle func(ctx context.Context)
	AfterCycle  func(ctx context.Context, reports []reconcile.Report)
}

type Driver struct {
	runners  []Runner
	interval time.Duration
	hooks    Hooks
	logger   *zap.Logger
}

// New returns a driver running runners in the given order.
func New(runners []Runner, interval time.Duration, hooks Hooks, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		runners:  runners,
		interval: interval,
		hooks:    hooks,
		logger:   logger.Named("poller"),
	}
}

// RunOnce runs every direction to completion. A store failure stops the
// cycle; any other failed pass is logged and the next direction still runs.
// The returned error joins every pass error.
func (d *Driver) RunOnce(ctx context.Context) ([]reconcile.Report, error) {
	if d.hooks.BeforeCycle != nil {
		d.hooks.BeforeCycle(ctx)
	}

	var reports []reconcile.Report
	var errs []error
	for _, r := range d.runners {
		report, err := r.Sync(ctx)
		reports = append(reports, report)
		if err == nil {
			continue
		}
		errs = append(errs, err)
		if errors.Is(err, syncerr.ErrStoreUnavailable) {
			d.logger.Error("Mapping store unavailable, abandoning cycle",
				zap.String("side", r.Origin().String()),
				zap.Error(err))
			break
		}
		d.logger.Error("Sync pass failed",
			zap.String("side", r.Origin().String()),
			zap.Error(err))
	}

	if d.hooks.AfterCycle != nil {
		d.hooks.AfterCycle(ctx, reports)
	}
	return reports, errors.Join(errs...)
}

// Run repeats RunOnce every interval until ctx is cancelled. A cycle that
// has started always finishes.
func (d *Driver) Run(ctx context.Context) error {
	d.logger.Info("Starting poll loop",
		zap.Duration("interval", d.interval),
		zap.Int("directions", len(d.runners)))

	cycle := 0
	for {
		if ctx.Err() != nil {
			d.logger.Info("Poll loop stopped", zap.Int("cycles", cycle))
			return nil
		}
		cycle++
		started := time.Now()
		// Keep the cycle's remote calls alive through a shutdown signal.
		if _, err := d.RunOnce(context.WithoutCancel(ctx)); err != nil {
			d.logger.Warn("Cycle finished with errors", zap.Int("cycle", cycle), zap.Error(err))
		} else {
			d.logger.Debug("Cycle finished", zap.Int("cycle", cycle), zap.Duration("took", time.Since(started)))
		}

		timer := time.NewTimer(d.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}
