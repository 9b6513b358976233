package model

import "time"

// Reservation statuses.  Only PENDING and CONFIRMED occupy a trainer's time.
const (
	ReservationPending   = "PENDING"
	ReservationConfirmed = "CONFIRMED"
	ReservationCancelled = "CANCELLED"
)

// Cancellation request states, set when a customer asks to cancel and an
// admin has to confirm.
const (
	CancellationRequested = "REQUESTED"
	CancellationApproved  = "APPROVED"
	CancellationRejected  = "REJECTED"
)

// Reservation is one booked lesson.
//
// Fields:
//
//	ID                 uuid primary key.
//	CustomerID         customer who booked, from the access token subject.
//	TrainerID          trainer code.
//	StartAt, EndAt     lesson window in UTC.
//	MultipleDogs       lesson is for more than one dog (longer slot).
//	AmountCents        price charged.
//	CalendarEventID    id of the event in the trainer's calendar.
//	CancellationStatus REQUESTED while waiting for an admin.
type Reservation struct {
	ID                      string     // reservations.id
	CustomerID              uint64     // reservations.customer_id
	TrainerID               string     // reservations.trainer_id
	StartAt                 time.Time  // reservations.start_at
	EndAt                   time.Time  // reservations.end_at
	MultipleDogs            bool       // reservations.multiple_dogs
	Status                  string     // reservations.status
	AmountCents             int64      // reservations.amount_cents
	CalendarEventID         *string    // reservations.calendar_event_id (nullable)
	CancellationStatus      *string    // reservations.cancellation_status (nullable)
	CancellationReason      *string    // reservations.cancellation_reason (nullable)
	CancellationDetail      *string    // reservations.cancellation_detail (nullable)
	CancellationRequestedAt *time.Time // reservations.cancellation_requested_at (nullable)
	CancellationFeeCents    int64      // reservations.cancellation_fee_cents
	CancelledAt             *time.Time // reservations.cancelled_at (nullable)
	CreatedAt               time.Time  // reservations.created_at
	UpdatedAt               time.Time  // reservations.updated_at
}

// Active reports whether r still blocks its slot.
func (r Reservation) Active() bool {
	return r.Status == ReservationPending || r.Status == ReservationConfirmed
}
