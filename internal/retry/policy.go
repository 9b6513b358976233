package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Operation identifies the class of external call being retried.  The
// policy table is keyed by it rather than by free-form strings.
type Operation int

const (
	OpUnclassified Operation = iota
	OpPaymentCharge
	OpPaymentRefund
	OpNotificationSend
	OpCalendarSync
)

var operationNames = map[Operation]string{
	OpUnclassified:     "unclassified",
	OpPaymentCharge:    "payment_charge",
	OpPaymentRefund:    "payment_refund",
	OpNotificationSend: "notification_send",
	OpCalendarSync:     "calendar_sync",
}

func (o Operation) String() string {
	if n, ok := operationNames[o]; ok {
		return n
	}
	return "unclassified"
}

// ParseOperation maps a stored operation name back to its Operation.
// Unknown names map to OpUnclassified.
func ParseOperation(name string) Operation {
	for op, n := range operationNames {
		if n == name {
			return op
		}
	}
	return OpUnclassified
}

// IsPaymentClass reports whether failures of o can leave money in an
// unknown state.
func (o Operation) IsPaymentClass() bool {
	return o == OpPaymentCharge || o == OpPaymentRefund
}

// Policy bounds one retry session.  Delay is the wait before the second
// attempt.  A Multiplier above 1 grows the wait exponentially; the default
// is a fixed delay.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Multiplier  float64
}

// PolicyTable maps operations to their policy.  The OpUnclassified entry
// is the fallback for operations without one.
type PolicyTable map[Operation]Policy

// DefaultPolicies returns the production policy table.
func DefaultPolicies() PolicyTable {
	return PolicyTable{
		OpPaymentCharge:    {MaxAttempts: 5, Delay: 2 * time.Second},
		OpPaymentRefund:    {MaxAttempts: 5, Delay: 2 * time.Second},
		OpNotificationSend: {MaxAttempts: 2, Delay: 500 * time.Millisecond},
		OpUnclassified:     {MaxAttempts: 3, Delay: time.Second},
	}
}

// Resolve returns the policy for op, falling back to the unclassified
// entry and finally to three attempts one second apart.
func (t PolicyTable) Resolve(op Operation) Policy {
	if p, ok := t[op]; ok && p.MaxAttempts > 0 {
		return p
	}
	if p, ok := t[OpUnclassified]; ok && p.MaxAttempts > 0 {
		return p
	}
	return Policy{MaxAttempts: 3, Delay: time.Second}
}

func (p Policy) newBackOff() backoff.BackOff {
	if p.Multiplier <= 1 {
		return backoff.NewConstantBackOff(p.Delay)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Delay
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxInterval = time.Duration(float64(p.Delay) * p.Multiplier * float64(p.MaxAttempts))
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
