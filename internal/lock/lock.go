// Package lock provides the booking lock: a named mutual-exclusion
// primitive whose acquisition gives up after a timeout.
package lock

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/trainer-booking/internal/apperr"
	"github.com/iliyamo/trainer-booking/internal/logger"
	"github.com/iliyamo/trainer-booking/internal/metrics"
)

// Locker hands out leases on one named lock.
type Locker interface {
	Name() string
	// Acquire blocks for at most timeout.  On timeout it returns an apperr
	// LockTimeout error.
	Acquire(ctx context.Context, timeout time.Duration) (Lease, error)
}

// Lease is a held lock.  Release is safe to call more than once.
type Lease interface {
	Release(ctx context.Context) error
}

// Local is a process-wide lock backed by a one-slot channel.
type Local struct {
	name    string
	sem     chan struct{}
	metrics *metrics.Metrics
}

var registry sync.Map // name -> *Local

// Named returns the process-wide lock called name, creating it on first
// use.  Every caller asking for the same name shares one lock.
func Named(name string) *Local {
	if l, ok := registry.Load(name); ok {
		return l.(*Local)
	}
	l, _ := registry.LoadOrStore(name, &Local{name: name, sem: make(chan struct{}, 1)})
	return l.(*Local)
}

// WithMetrics returns a view of l that records acquisitions on m.  The
// underlying lock is shared.
func (l *Local) WithMetrics(m *metrics.Metrics) *Local {
	return &Local{name: l.name, sem: l.sem, metrics: m}
}

func (l *Local) Name() string { return l.name }

func (l *Local) Acquire(ctx context.Context, timeout time.Duration) (Lease, error) {
	// fast path; also lets a zero timeout mean "try once"
	select {
	case l.sem <- struct{}{}:
		l.metrics.ObserveLock("acquired")
		return &localLease{sem: l.sem}, nil
	default:
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case l.sem <- struct{}{}:
		l.metrics.ObserveLock("acquired")
		return &localLease{sem: l.sem}, nil
	case <-t.C:
		l.metrics.ObserveLock("timeout")
		return nil, apperr.LockTimeout(l.name)
	case <-ctx.Done():
		l.metrics.ObserveLock("cancelled")
		return nil, ctx.Err()
	}
}

type localLease struct {
	once sync.Once
	sem  chan struct{}
}

func (le *localLease) Release(context.Context) error {
	le.once.Do(func() { <-le.sem })
	return nil
}

// WithLock runs fn while holding l.  fn never runs if the lock cannot be
// acquired, and the lease is released on every return path, including a
// panic in fn.  A failed release is logged, not returned; ErrNotHeld there
// means another holder may have overlapped with fn.
func WithLock(ctx context.Context, l Locker, timeout time.Duration, fn func(ctx context.Context) error) error {
	lease, err := l.Acquire(ctx, timeout)
	if err != nil {
		return err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Named(nil, "lock").Error("release lock", zap.String("lock", l.Name()), zap.Error(err))
		}
	}()
	return fn(ctx)
}
