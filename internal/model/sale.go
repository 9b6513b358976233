package model

import "time"

const (
	SaleRecorded  = "RECORDED"
	SaleCancelled = "CANCELLED"
)

// Sale is a ledger row written once a payment is captured.
type Sale struct {
	ID            string    // sales.id
	ReservationID string    // sales.reservation_id
	PaymentID     string    // sales.payment_id
	CustomerID    uint64    // sales.customer_id
	AmountCents   int64     // sales.amount_cents
	Status        string    // sales.status
	CreatedAt     time.Time // sales.created_at
}
