// Package queue defines message payloads exchanged over the message broker
// and the consumer that turns confirmed bookings into log lines.
package queue

import "time"

// Queue names.  All queues are durable.
const (
	Notifications    = "booking.notifications"
	BookingConfirmed = "booking.confirmed"
	Alerts           = "booking.alerts"
)

// BookingConfirmedEvent is published once a lesson is paid and confirmed.
// It carries enough for downstream consumers to log or notify without
// querying the database.
type BookingConfirmedEvent struct {
	ReservationID string    `json:"reservation_id"`
	TransactionID string    `json:"transaction_id"`
	CustomerID    uint64    `json:"customer_id"`
	TrainerID     string    `json:"trainer_id"`
	StartsAt      time.Time `json:"starts_at"`
	EndsAt        time.Time `json:"ends_at"`
	MultipleDogs  bool      `json:"multiple_dogs"`
	AmountCents   int64     `json:"amount_cents"`
	PaymentID     string    `json:"payment_id"`
	ConfirmedAt   time.Time `json:"confirmed_at"`
}

// Notification is a message for one recipient.  RecipientID "admin"
// addresses the operators.
type Notification struct {
	RecipientID string    `json:"recipient_id"`
	Message     string    `json:"message"`
	SentAt      time.Time `json:"sent_at"`
}

// CriticalFailureAlert reports a payment-class operation that exhausted
// its retries.
type CriticalFailureAlert struct {
	RetryID    string         `json:"retry_id"`
	Operation  string         `json:"operation"`
	Attempts   int            `json:"attempts"`
	FinalError string         `json:"final_error"`
	Context    map[string]any `json:"context,omitempty"`
	At         time.Time      `json:"at"`
}
