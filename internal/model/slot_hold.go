package model

import "time"

// SlotHold is a short-lived claim on a trainer's slot while the customer
// completes checkout.  Holds expire at ExpiresAt and are released when the
// booking saga starts.
type SlotHold struct {
	ID         uint64    // slot_holds.id
	CustomerID uint64    // slot_holds.customer_id
	TrainerID  string    // slot_holds.trainer_id
	StartAt    time.Time // slot_holds.start_at
	EndAt      time.Time // slot_holds.end_at
	HoldToken  string    // slot_holds.hold_token
	ExpiresAt  time.Time // slot_holds.expires_at
	CreatedAt  time.Time // slot_holds.created_at
}
