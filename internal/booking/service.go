// Package booking is the application service behind the HTTP API.  It
// composes the booking lock, the availability engine, the saga coordinator
// and the retry executor into the booking, hold and cancellation flows.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/trainer-booking/internal/apperr"
	"github.com/iliyamo/trainer-booking/internal/availability"
	"github.com/iliyamo/trainer-booking/internal/calendar"
	"github.com/iliyamo/trainer-booking/internal/cancellation"
	"github.com/iliyamo/trainer-booking/internal/gateway"
	"github.com/iliyamo/trainer-booking/internal/lock"
	"github.com/iliyamo/trainer-booking/internal/logger"
	"github.com/iliyamo/trainer-booking/internal/model"
	"github.com/iliyamo/trainer-booking/internal/notify"
	"github.com/iliyamo/trainer-booking/internal/queue"
	"github.com/iliyamo/trainer-booking/internal/repository"
	"github.com/iliyamo/trainer-booking/internal/retry"
	"github.com/iliyamo/trainer-booking/internal/saga"
)

type ReservationStore interface {
	Create(ctx context.Context, res *model.Reservation) error
	GetByID(ctx context.Context, id string) (model.Reservation, error)
	AttachCalendarEvent(ctx context.Context, id, eventID string) error
	UpdateStatus(ctx context.Context, id, status string) error
	Delete(ctx context.Context, id string) error
	ListActiveByTrainer(ctx context.Context, trainerID string, from, to time.Time) ([]model.Reservation, error)
	CountCancelledSince(ctx context.Context, customerID uint64, since time.Time) (int, error)
	MarkCancelled(ctx context.Context, id string, feeCents int64, at time.Time) error
	MarkCancellationRequested(ctx context.Context, id, reason, detail string, at time.Time) error
	ListCancellationRequests(ctx context.Context) ([]model.Reservation, error)
	ResolveCancellationRequest(ctx context.Context, id, status string) error
}

type PaymentStore interface {
	Create(ctx context.Context, p *model.Payment) error
	MarkCaptured(ctx context.Context, id, gatewayPaymentID string) error
	MarkRefunded(ctx context.Context, id string, refundedCents int64, status string) error
	Delete(ctx context.Context, id string) error
	GetByReservationID(ctx context.Context, reservationID string) (model.Payment, error)
}

type SaleStore interface {
	Create(ctx context.Context, s *model.Sale) error
	MarkCancelled(ctx context.Context, id string) error
	CancelByReservation(ctx context.Context, reservationID string) (int64, error)
}

type HoldStore interface {
	Create(ctx context.Context, h *model.SlotHold) error
	ReleaseForSlot(ctx context.Context, customerID uint64, trainerID string, start time.Time) (int64, error)
	ActiveOverlapping(ctx context.Context, trainerID string, from, to time.Time) ([]model.SlotHold, error)
}

// EventPublisher announces confirmed bookings.
type EventPublisher interface {
	PublishBookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error
}

// Pricing sets the lesson price in the smallest currency unit.
type Pricing struct {
	LessonCents       int64
	MultiDogSurcharge int64
}

func (p Pricing) Amount(multipleDogs bool) int64 {
	if multipleDogs {
		return p.LessonCents + p.MultiDogSurcharge
	}
	return p.LessonCents
}

// Deps wires a Service.  Events, Holds and Logger are optional.
type Deps struct {
	Reservations ReservationStore
	Payments     PaymentStore
	Sales        SaleStore
	Holds        HoldStore
	Gateway      gateway.PaymentGateway
	Calendar     calendar.Service
	Notifier     notify.Notifier
	Events       EventPublisher

	Lock        lock.Locker
	LockTimeout time.Duration
	Coordinator *saga.Coordinator
	Retry       *retry.Executor
	Engine      *availability.Engine
	Fees        *cancellation.Calculator
	Frequency   cancellation.FrequencyPolicy

	Pricing  Pricing
	Currency string
	HoldTTL  time.Duration

	Logger *zap.Logger
	Now    func() time.Time
	NewID  func() string
}

type Service struct {
	Deps
	log *zap.Logger
}

func New(d Deps) *Service {
	if d.LockTimeout <= 0 {
		d.LockTimeout = 10 * time.Second
	}
	if d.HoldTTL <= 0 {
		d.HoldTTL = 5 * time.Minute
	}
	if d.Currency == "" {
		d.Currency = "JPY"
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	if d.Calendar == nil {
		d.Calendar = calendar.Disabled{}
	}
	if d.Fees == nil {
		d.Fees = cancellation.NewCalculator(d.Engine.Config().Location)
	}
	if d.Frequency == (cancellation.FrequencyPolicy{}) {
		d.Frequency = cancellation.DefaultFrequencyPolicy()
	}
	return &Service{Deps: d, log: logger.Named(d.Logger, "booking")}
}

func (s *Service) location() *time.Location {
	if loc := s.Engine.Config().Location; loc != nil {
		return loc
	}
	return time.UTC
}

// occupied returns the trainer's reservations and other customers' live
// holds around [from, to) as engine bookings.
func (s *Service) occupied(ctx context.Context, trainerID string, from, to time.Time, customerID uint64) ([]availability.Booking, error) {
	res, err := s.Reservations.ListActiveByTrainer(ctx, trainerID, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]availability.Booking, 0, len(res))
	for _, r := range res {
		out = append(out, availability.Booking{ID: r.ID, TrainerID: r.TrainerID, Start: r.StartAt, End: r.EndAt, Status: r.Status})
	}
	if s.Holds == nil {
		return out, nil
	}
	holds, err := s.Holds.ActiveOverlapping(ctx, trainerID, from, to)
	if err != nil {
		return nil, err
	}
	for _, h := range holds {
		if h.CustomerID == customerID {
			continue
		}
		out = append(out, availability.Booking{TrainerID: h.TrainerID, Start: h.StartAt, End: h.EndAt, Status: model.ReservationPending})
	}
	return out, nil
}

// withFreeSlot runs fn under the booking lock once the slot is confirmed
// free.  The lock is released on every exit path.
func (s *Service) withFreeSlot(ctx context.Context, trainerID string, start time.Time, duration time.Duration, customerID uint64, fn func(ctx context.Context) error) error {
	return lock.WithLock(ctx, s.Lock, s.LockTimeout, func(ctx context.Context) error {
		from, to := s.dayWindow(start)
		existing, err := s.occupied(ctx, trainerID, from, to, customerID)
		if err != nil {
			return fmt.Errorf("load trainer schedule: %w", err)
		}
		if !s.Engine.IsSlotFree(trainerID, start, duration, existing) {
			return apperr.Validation("slot %s is not available", start.In(s.location()).Format("2006-01-02 15:04"))
		}
		return fn(ctx)
	})
}

// dayWindow is the business day containing t, widened by a day on each
// side so buffered neighbours are included.
func (s *Service) dayWindow(t time.Time) (time.Time, time.Time) {
	y, m, d := t.In(s.location()).Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, s.location())
	return day.AddDate(0, 0, -1), day.AddDate(0, 0, 2)
}

// loadOwned fetches a reservation and hides other customers' rows.
func (s *Service) loadOwned(ctx context.Context, customerID uint64, id string) (model.Reservation, error) {
	res, err := s.Reservations.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && res.CustomerID != customerID) {
		return res, apperr.NotFound("reservation %s not found", id)
	}
	return res, err
}

// bestEffort logs err and swallows it.
func (s *Service) bestEffort(l *zap.Logger, what string, err error) {
	if err != nil {
		l.Warn(what+" failed", zap.Error(err))
	}
}
