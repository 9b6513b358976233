package saga

import (
	"context"
	"time"
)

// Status is the state of a Transaction.
type Status string

const (
	StatusStarted         Status = "STARTED"
	StatusCommitted       Status = "COMMITTED"
	StatusFailed          Status = "FAILED"
	StatusRolledBack      Status = "ROLLED_BACK"
	StatusPartialRollback Status = "PARTIAL_ROLLBACK"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCommitted || s == StatusRolledBack || s == StatusPartialRollback
}

// Operation is one audit record of a forward step.
type Operation struct {
	Description string    `json:"description"`
	Data        any       `json:"data,omitempty"`
	At          time.Time `json:"timestamp"`
}

// CompensatingAction undoes a forward step that already succeeded.
type CompensatingAction struct {
	Description string
	Undo        func(ctx context.Context) error
}

// CompensationFailure records one undo that failed during rollback.
type CompensationFailure struct {
	Description string `json:"description"`
	Error       string `json:"error"`
}

// RollbackOutcome tallies a rollback.
type RollbackOutcome struct {
	Status    Status                `json:"status"`
	Total     int                   `json:"total"`
	Succeeded int                   `json:"succeeded"`
	Failed    int                   `json:"failed"`
	Failures  []CompensationFailure `json:"failures,omitempty"`
}

// Transaction is the handle a saga function mutates.  It is owned by one
// goroutine for the duration of Execute.
type Transaction struct {
	ID            string
	Context       map[string]any
	Status        Status
	Operations    []Operation
	Compensations []CompensatingAction
	StartedAt     time.Time
	EndedAt       time.Time
	Result        any
	Err           error
	Rollback      *RollbackOutcome

	now func() time.Time
}

// RecordOperation appends an audit record.
func (t *Transaction) RecordOperation(description string, data any) {
	t.Operations = append(t.Operations, Operation{Description: description, Data: data, At: t.now()})
}

// RegisterRollback pushes a compensation for a step that has just
// succeeded.  Registering after the forward pass has ended is a no-op.
func (t *Transaction) RegisterRollback(description string, undo func(ctx context.Context) error) {
	if t.Status != StatusStarted || undo == nil {
		return
	}
	t.Compensations = append(t.Compensations, CompensatingAction{Description: description, Undo: undo})
}

// Duration is the wall time between start and the terminal state.
func (t *Transaction) Duration() time.Duration {
	if t.EndedAt.IsZero() {
		return 0
	}
	return t.EndedAt.Sub(t.StartedAt)
}
