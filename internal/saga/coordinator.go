// Package saga runs a multi-step operation against independent services as
// one unit: forward steps register compensations, and a failed step unwinds
// the compensations in reverse order.
package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/trainer-booking/internal/apperr"
	"github.com/iliyamo/trainer-booking/internal/logger"
	"github.com/iliyamo/trainer-booking/internal/metrics"
)

// Func performs the forward steps.  A non-nil error starts rollback.
type Func func(ctx context.Context, tx *Transaction) (any, error)

// LogStore persists a transaction once it reaches a terminal state.
type LogStore interface {
	SaveTransaction(ctx context.Context, tx *Transaction) error
}

// Outcome is what Execute hands back to the caller.
type Outcome struct {
	Success        bool
	Result         any
	Err            error
	TransactionID  string
	RollbackStatus Status
	Rollback       *RollbackOutcome
}

// AsError converts a failed outcome into an apperr error that wraps the
// forward-step error.  It returns nil for a committed outcome.
func (o *Outcome) AsError() error {
	if o == nil || o.Success {
		return nil
	}
	if o.RollbackStatus == StatusPartialRollback && o.Rollback != nil {
		return apperr.PartialRollback(o.TransactionID, o.Rollback.Failed, o.Err)
	}
	return apperr.TransactionFailed(o.TransactionID, string(o.RollbackStatus), o.Err)
}

type Coordinator struct {
	store   LogStore
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	newID   func() string
}

type Option func(*Coordinator)

func WithLogStore(s LogStore) Option { return func(c *Coordinator) { c.store = s } }
func WithLogger(l *zap.Logger) Option { return func(c *Coordinator) { c.log = l } }
func WithMetrics(m *metrics.Metrics) Option { return func(c *Coordinator) { c.metrics = m } }
func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }
func WithIDGenerator(fn func() string) Option { return func(c *Coordinator) { c.newID = fn } }

func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{now: time.Now, newID: uuid.NewString}
	for _, o := range opts {
		o(c)
	}
	c.log = logger.Named(c.log, "saga")
	return c
}

// Execute runs fn as one transaction.  fn executes synchronously on the
// calling goroutine; a panic inside it is recovered and handled like a
// returned error.
func (c *Coordinator) Execute(ctx context.Context, txContext map[string]any, fn Func) *Outcome {
	tx := &Transaction{
		ID:        c.newID(),
		Context:   txContext,
		Status:    StatusStarted,
		StartedAt: c.now(),
		now:       c.now,
	}
	l := c.log.With(zap.String("transaction_id", tx.ID))
	l.Debug("transaction started")

	result, err := c.forward(ctx, tx, fn)
	if err == nil {
		tx.Status = StatusCommitted
		tx.Result = result
		tx.EndedAt = c.now()
		c.persist(ctx, l, tx)
		l.Info("transaction committed",
			zap.Int("operations", len(tx.Operations)),
			zap.Duration("duration", tx.Duration()))
		return &Outcome{Success: true, Result: result, TransactionID: tx.ID}
	}

	tx.Status = StatusFailed
	tx.Err = err
	l.Warn("transaction failed, rolling back",
		zap.Int("compensations", len(tx.Compensations)), zap.Error(err))

	rb := c.rollback(ctx, l, tx)
	tx.Rollback = rb
	tx.Status = rb.Status
	tx.EndedAt = c.now()
	c.persist(ctx, l, tx)

	if rb.Status == StatusPartialRollback {
		l.Error("partial rollback, manual reconciliation required",
			zap.Int("failed", rb.Failed), zap.Int("total", rb.Total))
	}
	return &Outcome{
		Err:            err,
		TransactionID:  tx.ID,
		RollbackStatus: rb.Status,
		Rollback:       rb,
	}
}

func (c *Coordinator) forward(ctx context.Context, tx *Transaction, fn Func) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("saga step panicked: %v", r)
		}
	}()
	return fn(ctx, tx)
}

// rollback pops compensations in LIFO order.  Each undo is isolated so a
// failing one never stops the rest.  The undo context is detached from the
// request so a cancelled request still unwinds.
func (c *Coordinator) rollback(ctx context.Context, l *zap.Logger, tx *Transaction) *RollbackOutcome {
	rctx := context.WithoutCancel(ctx)
	out := &RollbackOutcome{Total: len(tx.Compensations)}
	for i := len(tx.Compensations) - 1; i >= 0; i-- {
		action := tx.Compensations[i]
		if err := runCompensation(rctx, action); err != nil {
			out.Failed++
			out.Failures = append(out.Failures, CompensationFailure{Description: action.Description, Error: err.Error()})
			l.Error("compensation failed", zap.String("action", action.Description), zap.Error(err))
			continue
		}
		out.Succeeded++
		l.Info("compensation done", zap.String("action", action.Description))
	}
	out.Status = StatusRolledBack
	if out.Failed > 0 {
		out.Status = StatusPartialRollback
	}
	return out
}

func runCompensation(ctx context.Context, a CompensatingAction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("compensation panicked: %v", r)
		}
	}()
	return a.Undo(ctx)
}

func (c *Coordinator) persist(ctx context.Context, l *zap.Logger, tx *Transaction) {
	c.metrics.ObserveSaga(string(tx.Status), tx.Duration())
	if c.store == nil {
		return
	}
	if err := c.store.SaveTransaction(context.WithoutCancel(ctx), tx); err != nil {
		l.Error("save transaction log", zap.Error(err))
	}
}
