// Package apperr defines the error taxonomy shared by the booking core.
// Every error that crosses a package boundary towards a handler is either
// one of these or wraps one, so callers can branch on the Kind with
// errors.Is against the exported sentinels.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an application error.
type Kind string

const (
	KindValidation        Kind = "VALIDATION_ERROR"
	KindNotFound          Kind = "RECORD_NOT_FOUND"
	KindLockTimeout       Kind = "LOCK_TIMEOUT"
	KindExternal          Kind = "EXTERNAL_SERVICE_ERROR"
	KindTransactionFailed Kind = "TRANSACTION_FAILED"
	KindPartialRollback   Kind = "PARTIAL_ROLLBACK"
)

// Sentinels for errors.Is comparisons.  They match any *Error of the same Kind.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrLockTimeout       = &Error{Kind: KindLockTimeout}
	ErrExternal          = &Error{Kind: KindExternal}
	ErrTransactionFailed = &Error{Kind: KindTransactionFailed}
	ErrPartialRollback   = &Error{Kind: KindPartialRollback}
)

// Error is a classified error with an optional cause and structured details.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// WithDetail attaches a key/value pair and returns the receiver.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// LockTimeout is returned when the booking lock could not be acquired in
// time.  The message is safe to show to end users.
func LockTimeout(name string) *Error {
	return &Error{
		Kind:    KindLockTimeout,
		Message: "high demand, please retry",
		Details: map[string]any{"lock": name},
	}
}

func External(service string, err error) *Error {
	return &Error{
		Kind:    KindExternal,
		Message: service + " request failed",
		Details: map[string]any{"service": service},
		Err:     err,
	}
}

func TransactionFailed(transactionID string, rollbackStatus string, err error) *Error {
	return &Error{
		Kind:    KindTransactionFailed,
		Message: "transaction failed",
		Details: map[string]any{"transaction_id": transactionID, "rollback_status": rollbackStatus},
		Err:     err,
	}
}

func PartialRollback(transactionID string, failed int, err error) *Error {
	return &Error{
		Kind:    KindPartialRollback,
		Message: "transaction failed and rollback was incomplete",
		Details: map[string]any{"transaction_id": transactionID, "failed_compensations": failed, "rollback_status": "PARTIAL_ROLLBACK"},
		Err:     err,
	}
}

// KindOf returns the Kind of the outermost *Error in err's chain, or ""
// when err carries no classification.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// As returns the outermost *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
