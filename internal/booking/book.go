package booking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/trainer-booking/internal/apperr"
	"github.com/iliyamo/trainer-booking/internal/calendar"
	"github.com/iliyamo/trainer-booking/internal/gateway"
	"github.com/iliyamo/trainer-booking/internal/model"
	"github.com/iliyamo/trainer-booking/internal/queue"
	"github.com/iliyamo/trainer-booking/internal/retry"
	"github.com/iliyamo/trainer-booking/internal/saga"
)

type BookRequest struct {
	CustomerID   uint64
	TrainerID    string
	Start        time.Time
	MultipleDogs bool
	// SourceToken is the card nonce from the payment form.
	SourceToken string
	Note        string
}

type BookResult struct {
	ReservationID   string    `json:"reservation_id"`
	PaymentID       string    `json:"payment_id"`
	TransactionID   string    `json:"transaction_id"`
	CalendarEventID string    `json:"calendar_event_id,omitempty"`
	TrainerID       string    `json:"trainer_id"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	AmountCents     int64     `json:"amount"`
	Status          string    `json:"status"`
}

func (r BookRequest) validate() error {
	switch {
	case r.CustomerID == 0:
		return apperr.Validation("customer is required")
	case strings.TrimSpace(r.TrainerID) == "":
		return apperr.Validation("trainer_id is required")
	case r.Start.IsZero():
		return apperr.Validation("start is required")
	}
	return nil
}

// Book reserves a slot, charges the customer and puts the lesson on the
// calendar.  The slot check and the saga run under the booking lock; a
// lock timeout fails the request before anything is written.
func (s *Service) Book(ctx context.Context, req BookRequest) (*BookResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	duration := s.Engine.Config().LessonLength(req.MultipleDogs)
	end := req.Start.Add(duration)

	var result *BookResult
	err := s.withFreeSlot(ctx, req.TrainerID, req.Start, duration, req.CustomerID, func(ctx context.Context) error {
		txContext := map[string]any{
			"operation":     "create_reservation",
			"customer_id":   req.CustomerID,
			"trainer_id":    req.TrainerID,
			"start":         req.Start.UTC().Format(time.RFC3339),
			"multiple_dogs": req.MultipleDogs,
		}
		out := s.Coordinator.Execute(ctx, txContext, func(ctx context.Context, tx *saga.Transaction) (any, error) {
			return s.bookingSteps(ctx, tx, req, end)
		})
		if !out.Success {
			return out.AsError()
		}
		result = out.Result.(*BookResult)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) bookingSteps(ctx context.Context, tx *saga.Transaction, req BookRequest, end time.Time) (*BookResult, error) {
	l := s.log.With(zap.String("transaction_id", tx.ID))
	now := s.Now()
	amount := s.Pricing.Amount(req.MultipleDogs)
	res := &model.Reservation{
		ID:           s.NewID(),
		CustomerID:   req.CustomerID,
		TrainerID:    req.TrainerID,
		StartAt:      req.Start,
		EndAt:        end,
		MultipleDogs: req.MultipleDogs,
		Status:       model.ReservationPending,
		AmountCents:  amount,
	}

	// 1. provisional hold is superseded by the reservation
	if s.Holds != nil {
		n, err := s.Holds.ReleaseForSlot(ctx, req.CustomerID, req.TrainerID, req.Start)
		s.bestEffort(l, "release slot hold", err)
		tx.RecordOperation("release slot hold", map[string]any{"released": n})
	}

	// 2. reservation row and calendar event
	if err := s.Reservations.Create(ctx, res); err != nil {
		return nil, fmt.Errorf("create reservation: %w", err)
	}
	var eventID string
	tx.RegisterRollback("delete reservation row", func(ctx context.Context) error {
		var calErr error
		if eventID != "" {
			calErr = s.Calendar.DeleteEvent(ctx, eventID)
		}
		return errors.Join(calErr, s.Reservations.Delete(ctx, res.ID))
	})
	eventID, _, err := retry.Do(ctx, s.Retry, retry.Options{
		Operation: retry.OpCalendarSync,
		Context:   map[string]any{"reservation_id": res.ID, "transaction_id": tx.ID},
	}, func(ctx context.Context, _ int) (string, error) {
		return s.Calendar.CreateEvent(ctx, calendar.EventDetails{
			Summary:       fmt.Sprintf("Lesson: customer %d", req.CustomerID),
			Description:   req.Note,
			Start:         req.Start,
			End:           end,
			TimeZone:      s.location().String(),
			ReservationID: res.ID,
		})
	})
	if err != nil {
		return nil, apperr.External("calendar", err)
	}
	if eventID != "" {
		if err := s.Reservations.AttachCalendarEvent(ctx, res.ID, eventID); err != nil {
			return nil, fmt.Errorf("attach calendar event: %w", err)
		}
	}
	tx.RecordOperation("create reservation", map[string]any{"reservation_id": res.ID, "calendar_event_id": eventID})

	// 3. payment row
	pay := &model.Payment{
		ID:             s.NewID(),
		ReservationID:  res.ID,
		CustomerID:     req.CustomerID,
		AmountCents:    amount,
		Currency:       s.Currency,
		Status:         model.PaymentPending,
		IdempotencyKey: s.NewID(),
	}
	if err := s.Payments.Create(ctx, pay); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	tx.RegisterRollback("delete payment row", func(ctx context.Context) error {
		return s.Payments.Delete(ctx, pay.ID)
	})
	tx.RecordOperation("create payment", map[string]any{"payment_id": pay.ID})

	// 4. charge; one idempotency key for every attempt of this charge
	if strings.TrimSpace(req.SourceToken) == "" {
		return nil, apperr.Validation("payment source token is required")
	}
	charge, rr, err := retry.Do(ctx, s.Retry, retry.Options{
		Operation: retry.OpPaymentCharge,
		Context:   map[string]any{"payment_id": pay.ID, "reservation_id": res.ID, "transaction_id": tx.ID},
	}, func(ctx context.Context, _ int) (*gateway.Charge, error) {
		return s.Gateway.Charge(ctx, gateway.ChargeRequest{
			Amount:         amount,
			Currency:       s.Currency,
			IdempotencyKey: pay.IdempotencyKey,
			SourceToken:    req.SourceToken,
			ReferenceID:    res.ID,
			Note:           req.Note,
		})
	})
	if err != nil {
		return nil, apperr.External("payment gateway", err).WithDetail("retry_id", rr.RetryID).WithDetail("attempts", rr.Attempts)
	}
	tx.RegisterRollback("cancel payment at gateway", func(ctx context.Context) error {
		return s.Gateway.Cancel(ctx, charge.PaymentID)
	})
	tx.RecordOperation("charge payment", map[string]any{"gateway_payment_id": charge.PaymentID, "attempts": rr.Attempts})

	// 5. mark paid and confirmed
	if err := s.Payments.MarkCaptured(ctx, pay.ID, charge.PaymentID); err != nil {
		return nil, fmt.Errorf("mark payment captured: %w", err)
	}
	if err := s.Reservations.UpdateStatus(ctx, res.ID, model.ReservationConfirmed); err != nil {
		return nil, fmt.Errorf("confirm reservation: %w", err)
	}
	tx.RecordOperation("confirm reservation", nil)

	// 6. sales ledger; never fatal
	sale := &model.Sale{
		ID:            s.NewID(),
		ReservationID: res.ID,
		PaymentID:     pay.ID,
		CustomerID:    req.CustomerID,
		AmountCents:   amount,
		Status:        model.SaleRecorded,
	}
	if err := s.Sales.Create(ctx, sale); err != nil {
		s.bestEffort(l, "record sale", err)
	} else {
		tx.RegisterRollback("mark sale cancelled", func(ctx context.Context) error {
			return s.Sales.MarkCancelled(ctx, sale.ID)
		})
		tx.RecordOperation("record sale", map[string]any{"sale_id": sale.ID})
	}

	// 7. notifications; never fatal
	s.notify(ctx, l, strconv.FormatUint(req.CustomerID, 10), fmt.Sprintf("Your lesson on %s is confirmed.",
		req.Start.In(s.location()).Format("2006-01-02 15:04")))
	if s.Events != nil {
		s.bestEffort(l, "publish booking confirmed", s.Events.PublishBookingConfirmed(ctx, queue.BookingConfirmedEvent{
			ReservationID: res.ID,
			TransactionID: tx.ID,
			CustomerID:    req.CustomerID,
			TrainerID:     req.TrainerID,
			StartsAt:      req.Start,
			EndsAt:        end,
			MultipleDogs:  req.MultipleDogs,
			AmountCents:   amount,
			PaymentID:     pay.ID,
			ConfirmedAt:   now,
		}))
	}

	return &BookResult{
		ReservationID:   res.ID,
		PaymentID:       pay.ID,
		TransactionID:   tx.ID,
		CalendarEventID: eventID,
		TrainerID:       req.TrainerID,
		Start:           req.Start,
		End:             end,
		AmountCents:     amount,
		Status:          model.ReservationConfirmed,
	}, nil
}

// notify sends through the notification retry policy and swallows the
// outcome.
func (s *Service) notify(ctx context.Context, l *zap.Logger, recipientID, message string) {
	if s.Notifier == nil {
		return
	}
	_, err := s.Retry.Execute(ctx, retry.Options{
		Operation: retry.OpNotificationSend,
		Context:   map[string]any{"recipient_id": recipientID},
	}, func(ctx context.Context, _ int) (any, error) {
		return nil, s.Notifier.Send(ctx, recipientID, message)
	})
	s.bestEffort(l, "send notification", err)
}
