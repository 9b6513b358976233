// Package calendar keeps the trainer's calendar in sync with reservations.
package calendar

import (
	"context"
	"time"
)

// EventDetails describes one lesson on the calendar.
type EventDetails struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	TimeZone    string
	// ReservationID is stored as a private extended property so events can
	// be traced back to their row.
	ReservationID string
}

// Service creates and removes calendar events.  CreateEvent returns the
// provider's event id.
type Service interface {
	CreateEvent(ctx context.Context, ev EventDetails) (string, error)
	DeleteEvent(ctx context.Context, eventID string) error
}

// Disabled is used when no calendar is configured.  It creates nothing and
// returns an empty id.
type Disabled struct{}

func (Disabled) CreateEvent(context.Context, EventDetails) (string, error) { return "", nil }
func (Disabled) DeleteEvent(context.Context, string) error { return nil }
