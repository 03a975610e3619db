// Package retry re-runs remote calls that failed with a transient error.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/harrisonrobin/tasklink/pkg/syncerr"
)

// Policy bounds the retries of a single call.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
	MaxRetries      uint64
}

// DefaultPolicy keeps the whole retry well inside one poll interval.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxElapsed:      20 * time.Second,
		MaxRetries:      4,
	}
}

// None disables retries.
func None() Policy { return Policy{} }

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	if p.MaxRetries == 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = p.MaxElapsed
	return backoff.WithContext(backoff.WithMaxRetries(b, p.MaxRetries), ctx)
}

// Do runs op until it succeeds, fails with a non-transient error, or the
// policy gives up. The last error is returned unchanged.
func Do[T any](ctx context.Context, p Policy, logger *zap.Logger, op func() (T, error)) (T, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	attempt := 0
	wrapped := func() (T, error) {
		attempt++
		v, err := op()
		if err != nil && !errors.Is(err, syncerr.ErrTransient) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	notify := func(err error, wait time.Duration) {
		logger.Debug("Retrying transient failure",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}
	return backoff.RetryNotifyWithData(wrapped, p.backOff(ctx), notify)
}

// Run is Do for operations without a result.
func Run(ctx context.Context, p Policy, logger *zap.Logger, op func() error) error {
	_, err := Do(ctx, p, logger, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}
