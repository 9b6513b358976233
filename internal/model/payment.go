package model

import "time"

// Payment statuses.
const (
	PaymentPending           = "PENDING"
	PaymentCaptured          = "CAPTURED"
	PaymentRefunded          = "REFUNDED"
	PaymentPartiallyRefunded = "PARTIALLY_REFUNDED"
)

// Payment tracks the charge for one reservation.  The idempotency key is
// generated once per logical charge and reused by every retry attempt.
type Payment struct {
	ID               string    // payments.id
	ReservationID    string    // payments.reservation_id
	CustomerID       uint64    // payments.customer_id
	AmountCents      int64     // payments.amount_cents
	Currency         string    // payments.currency
	Status           string    // payments.status
	GatewayPaymentID *string   // payments.gateway_payment_id (nullable until captured)
	IdempotencyKey   string    // payments.idempotency_key
	RefundedCents    int64     // payments.refunded_cents
	CreatedAt        time.Time // payments.created_at
	UpdatedAt        time.Time // payments.updated_at
}
