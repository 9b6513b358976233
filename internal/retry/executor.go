// Package retry wraps a single fallible external call in a bounded retry
// session whose policy is chosen by operation class.
package retry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/trainer-booking/internal/logger"
	"github.com/iliyamo/trainer-booking/internal/metrics"
)

// Func is the wrapped call.  attempt starts at 1.
type Func func(ctx context.Context, attempt int) (any, error)

// LogStore persists closed retry sessions.
type LogStore interface {
	SaveRetryLog(ctx context.Context, l *Log) error
}

// Alerter is told about critical failures.
type Alerter interface {
	AlertCriticalFailure(ctx context.Context, l *Log) error
}

// Options overrides the resolved policy for one call.  Zero fields keep
// the policy value.
type Options struct {
	Operation   Operation
	MaxAttempts int
	Delay       time.Duration
	Context     map[string]any
}

// Result describes a finished session.
type Result struct {
	Success  bool
	Value    any
	Err      error
	Attempts int
	RetryID  string
	Log      *Log
}

type Executor struct {
	policies PolicyTable
	log      *zap.Logger
	store    LogStore
	alerter  Alerter
	metrics  *metrics.Metrics
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

type Option func(*Executor)

func WithLogger(l *zap.Logger) Option { return func(e *Executor) { e.log = l } }
func WithLogStore(s LogStore) Option { return func(e *Executor) { e.store = s } }
func WithAlerter(a Alerter) Option { return func(e *Executor) { e.alerter = a } }
func WithMetrics(m *metrics.Metrics) Option { return func(e *Executor) { e.metrics = m } }

// WithSleep replaces the inter-attempt wait.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = fn }
}

func NewExecutor(policies PolicyTable, opts ...Option) *Executor {
	if policies == nil {
		policies = DefaultPolicies()
	}
	e := &Executor{policies: policies, sleep: sleepCtx, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	e.log = logger.Named(e.log, "retry")
	return e
}

// Policies exposes the table the executor resolves against.
func (e *Executor) Policies() PolicyTable { return e.policies }

// Execute runs fn until it succeeds or the attempts are exhausted.  The
// returned error is the last error fn produced, unchanged, or nil on
// success.  Cancelling ctx while waiting between attempts ends the session
// with ctx.Err().
func (e *Executor) Execute(ctx context.Context, opts Options, fn Func) (*Result, error) {
	policy := e.policies.Resolve(opts.Operation)
	if opts.MaxAttempts > 0 {
		policy.MaxAttempts = opts.MaxAttempts
	}
	if opts.Delay > 0 {
		policy.Delay = opts.Delay
	}

	rl := &Log{
		ID:          uuid.NewString(),
		Operation:   opts.Operation,
		Context:     opts.Context,
		MaxAttempts: policy.MaxAttempts,
		Status:      StatusStarted,
		StartedAt:   e.now(),
	}
	l := e.log.With(zap.String("retry_id", rl.ID), zap.Stringer("operation", opts.Operation))
	bo := policy.newBackOff()

	var lastErr error
	for n := 1; n <= policy.MaxAttempts; n++ {
		start := e.now()
		v, err := fn(ctx, n)
		att := Attempt{Number: n, StartedAt: start, Duration: e.now().Sub(start)}
		if err == nil {
			att.Status = StatusSuccess
			rl.Attempts = append(rl.Attempts, att)
			e.metrics.ObserveAttempt(opts.Operation.String(), string(StatusSuccess))
			if n > 1 {
				l.Info("succeeded after retry", zap.Int("attempt", n))
			}
			e.close(ctx, rl, StatusSuccess, "")
			return &Result{Success: true, Value: v, Attempts: n, RetryID: rl.ID, Log: rl}, nil
		}

		lastErr = err
		att.Status = StatusFailed
		att.Error = err.Error()
		rl.Attempts = append(rl.Attempts, att)
		e.metrics.ObserveAttempt(opts.Operation.String(), string(StatusFailed))
		l.Warn("attempt failed", zap.Int("attempt", n), zap.Int("max_attempts", policy.MaxAttempts), zap.Error(err))

		if n == policy.MaxAttempts {
			break
		}
		if werr := e.sleep(ctx, bo.NextBackOff()); werr != nil {
			lastErr = werr
			break
		}
	}

	e.close(ctx, rl, StatusFailed, lastErr.Error())
	l.Error("retries exhausted", zap.Int("attempts", len(rl.Attempts)), zap.Error(lastErr))
	if IsCriticalFailure(rl) && e.alerter != nil {
		if err := e.alerter.AlertCriticalFailure(ctx, rl); err != nil {
			l.Error("critical failure alert not sent", zap.Error(err))
		}
	}
	return &Result{Err: lastErr, Attempts: len(rl.Attempts), RetryID: rl.ID, Log: rl}, lastErr
}

func (e *Executor) close(ctx context.Context, rl *Log, status LogStatus, final string) {
	rl.Status = status
	rl.EndedAt = e.now()
	rl.FinalError = final
	e.metrics.ObserveRetrySession(rl.Operation.String(), string(status))
	if e.store == nil {
		return
	}
	// the session outcome stands even if the audit row is lost
	if err := e.store.SaveRetryLog(context.WithoutCancel(ctx), rl); err != nil {
		e.log.Error("save retry log", zap.String("retry_id", rl.ID), zap.Error(err))
	}
}

// Do is Execute with a typed value.
func Do[T any](ctx context.Context, e *Executor, opts Options, fn func(ctx context.Context, attempt int) (T, error)) (T, *Result, error) {
	res, err := e.Execute(ctx, opts, func(ctx context.Context, attempt int) (any, error) {
		return fn(ctx, attempt)
	})
	var zero T
	if err != nil {
		return zero, res, err
	}
	v, _ := res.Value.(T)
	return v, res, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
